package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookforge-gateway/internal/errs"
	"bookforge-gateway/internal/models"
	"bookforge-gateway/internal/stream"
)

// chunkedReader returns its parts one Read at a time.
type chunkedReader struct {
	parts [][]byte
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.parts) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.parts[0])
	if n < len(r.parts[0]) {
		r.parts[0] = r.parts[0][n:]
	} else {
		r.parts = r.parts[1:]
	}
	return n, nil
}

// failingReader serves data once, then fails with err.
type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func frames(t *testing.T, events ...models.Event) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, ev := range events {
		require.NoError(t, stream.WriteFrame(&buf, stream.FrameFromEvent(ev)))
	}
	return buf.Bytes()
}

func sseResponse(body io.Reader) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"text/event-stream"}},
		Body:       io.NopCloser(body),
	}
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"application/json; charset=UTF-8"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestConsume_SplitAtEveryOffset(t *testing.T) {
	raw := frames(t,
		models.Chunk("Tea "),
		models.Chunk("and "),
		models.Chunk("toast, ☕"),
		models.Done("Tea and toast, ☕", models.Metadata{StopReason: "end_turn", OutputTokens: 7, WordCount: 4}),
	)

	for i := 1; i < len(raw); i++ {
		var progress []string
		acc := &Accumulator{OnChunk: func(text string) { progress = append(progress, text) }}

		result, err := acc.Consume(sseResponse(&chunkedReader{parts: [][]byte{raw[:i], raw[i:]}}))
		require.NoError(t, err, "split at %d", i)
		assert.Equal(t, "Tea and toast, ☕", result.Content, "split at %d", i)
		assert.Equal(t, "end_turn", result.Metadata.StopReason)
		assert.Equal(t, 7, result.Metadata.OutputTokens)
		assert.True(t, result.Streamed)
		assert.Equal(t, []string{"Tea ", "and ", "toast, ☕"}, progress, "split at %d", i)
	}
}

func TestConsume_DoneContentIsAuthoritative(t *testing.T) {
	raw := frames(t,
		models.Chunk("dup"),
		models.Chunk("dup"),
		models.Done("dup", models.Metadata{StopReason: "end_turn", WordCount: 1}),
	)

	result, err := (&Accumulator{}).Consume(sseResponse(bytes.NewReader(raw)))
	require.NoError(t, err)
	assert.Equal(t, "dup", result.Content)
}

func TestConsume_DoneWithoutContentKeepsChunks(t *testing.T) {
	raw := append(frames(t, models.Chunk("kept "), models.Chunk("text")),
		[]byte("data: {\"done\":true}\n\n")...)

	result, err := (&Accumulator{}).Consume(sseResponse(bytes.NewReader(raw)))
	require.NoError(t, err)
	assert.Equal(t, "kept text", result.Content)
	assert.Equal(t, 2, result.Metadata.WordCount)
}

func TestConsume_ErrorFrameDiscardsPartialContent(t *testing.T) {
	raw := frames(t,
		models.Chunk("partial"),
		models.Failed(errs.New(errs.KindUpstreamProtocol, "overloaded")),
		models.Chunk("ignored"),
	)

	result, err := (&Accumulator{}).Consume(sseResponse(bytes.NewReader(raw)))
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, errs.KindUpstreamProtocol, errs.KindOf(err))
	assert.Contains(t, err.Error(), "overloaded")
}

func TestConsume_EOFWithoutTerminalKeepsContent(t *testing.T) {
	raw := frames(t, models.Chunk("half a "), models.Chunk("story"))

	result, err := (&Accumulator{}).Consume(sseResponse(bytes.NewReader(raw)))
	require.NoError(t, err)
	assert.Equal(t, "half a story", result.Content)
	assert.Equal(t, models.StopReasonStreamEnded, result.Metadata.StopReason)
	assert.Equal(t, 3, result.Metadata.WordCount)
}

func TestConsume_CancelledReadIsNotStreamEnded(t *testing.T) {
	raw := frames(t, models.Chunk("half a "), models.Chunk("story"))

	for _, cause := range []error{context.Canceled, context.DeadlineExceeded} {
		result, err := (&Accumulator{}).Consume(sseResponse(&failingReader{data: raw, err: cause}))
		assert.Nil(t, result)
		assert.ErrorIs(t, err, cause)
	}
}

func TestConsume_InterruptedReadKeepsContent(t *testing.T) {
	raw := frames(t, models.Chunk("half a "), models.Chunk("story"))

	result, err := (&Accumulator{}).Consume(sseResponse(&failingReader{data: raw, err: io.ErrUnexpectedEOF}))
	require.NoError(t, err)
	assert.Equal(t, "half a story", result.Content)
	assert.Equal(t, models.StopReasonStreamEnded, result.Metadata.StopReason)
}

func TestConsume_EmptyStreamIsAnError(t *testing.T) {
	_, err := (&Accumulator{}).Consume(sseResponse(strings.NewReader(": keep-alive\n\n")))
	assert.True(t, errs.Is(err, errs.KindStreamDisconnected))
}

func TestConsume_FinalFrameWithoutNewline(t *testing.T) {
	raw := `data: {"chunk":"a"}` + "\n\n" + `data: {"done":true,"content":"a"}`

	result, err := (&Accumulator{}).Consume(sseResponse(strings.NewReader(raw)))
	require.NoError(t, err)
	assert.Equal(t, "a", result.Content)
	assert.NotEqual(t, models.StopReasonStreamEnded, result.Metadata.StopReason)
}

func TestConsume_MalformedFrameIsSkipped(t *testing.T) {
	raw := "data: {not json\n\n" + string(frames(t, models.Chunk("ok"), models.Done("ok", models.Metadata{})))

	result, err := (&Accumulator{}).Consume(sseResponse(strings.NewReader(raw)))
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Content)
}

func TestConsume_JSONBody(t *testing.T) {
	var progress []string
	acc := &Accumulator{OnChunk: func(text string) { progress = append(progress, text) }}

	result, err := acc.Consume(jsonResponse(http.StatusOK,
		`{"content":"One shot answer","metadata":{"stopReason":"stop","inputTokens":4,"outputTokens":3,"wordCount":3}}`))
	require.NoError(t, err)
	assert.Equal(t, "One shot answer", result.Content)
	assert.False(t, result.Streamed)
	assert.Equal(t, models.Metadata{StopReason: "stop", InputTokens: 4, OutputTokens: 3, WordCount: 3}, result.Metadata)
	assert.Equal(t, []string{"One shot answer"}, progress)
}

func TestConsume_ErrorStatus(t *testing.T) {
	tests := []struct {
		name     string
		resp     *http.Response
		wantKind errs.Kind
		wantMsg  string
	}{
		{
			name:     "classified",
			resp:     jsonResponse(http.StatusUnauthorized, `{"error":"invalid key","type":"upstream_auth"}`),
			wantKind: errs.KindUpstreamAuth,
			wantMsg:  "invalid key",
		},
		{
			name:     "missing field",
			resp:     jsonResponse(http.StatusBadRequest, `{"error":"apiKey is required","type":"bad_request"}`),
			wantKind: errs.KindBadRequest,
			wantMsg:  "apiKey is required",
		},
		{
			name: "opaque",
			resp: &http.Response{
				StatusCode: http.StatusBadGateway,
				Header:     http.Header{"Content-Type": {"text/html"}},
				Body:       io.NopCloser(strings.NewReader("<html>bad gateway</html>")),
			},
			wantKind: errs.KindUpstreamOpaque,
			wantMsg:  "<html>bad gateway</html>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := (&Accumulator{}).Consume(tt.resp)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.Equal(t, tt.wantKind, errs.KindOf(err))
			assert.Contains(t, err.Error(), tt.wantMsg)

			var classified *errs.Error
			require.ErrorAs(t, err, &classified)
			assert.Equal(t, tt.resp.StatusCode, classified.Status)
		})
	}
}

func TestResult_Outline(t *testing.T) {
	result := &Result{Content: `[{"id":"ch-1","title":"Intro","slug":"intro"},{"id":"ch-2","title":"Setup`}

	chapters, repaired, err := result.Outline()
	require.NoError(t, err)
	assert.True(t, repaired)
	assert.Equal(t, []models.ChapterNode{{ID: "ch-1", Title: "Intro", Slug: "intro"}}, chapters)
}
