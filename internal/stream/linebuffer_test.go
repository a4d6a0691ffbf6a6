package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineBuffer_CarriesPartialLines(t *testing.T) {
	var b LineBuffer

	assert.Empty(t, b.Feed([]byte("data: {\"a\"")))
	assert.Equal(t, []string{"data: {\"a\":1}", ""}, b.Feed([]byte(":1}\r\n\ndata: {")))
	assert.Equal(t, []string{"data: {}"}, b.Feed([]byte("}\n")))

	_, ok := b.Flush()
	assert.False(t, ok)
}

func TestLineBuffer_SplitRune(t *testing.T) {
	var b LineBuffer
	raw := []byte("wörld\n")

	// ö is two bytes; split between them.
	assert.Empty(t, b.Feed(raw[:2]))
	assert.Equal(t, []string{"wörld"}, b.Feed(raw[2:]))
}

func TestLineBuffer_Flush(t *testing.T) {
	var b LineBuffer
	b.Feed([]byte("one\ntwo"))

	line, ok := b.Flush()
	assert.True(t, ok)
	assert.Equal(t, "two", line)

	_, ok = b.Flush()
	assert.False(t, ok, "flush empties the buffer")
}

func TestDataPayload(t *testing.T) {
	payload, ok := DataPayload("data: {\"x\":1}")
	assert.True(t, ok)
	assert.Equal(t, "{\"x\":1}", payload)

	payload, ok = DataPayload("data:[DONE]")
	assert.True(t, ok)
	assert.Equal(t, "[DONE]", payload)

	for _, line := range []string{"", ": keep-alive", "event: ping", "data:   "} {
		_, ok := DataPayload(line)
		assert.False(t, ok, line)
	}
}
