// Package stream decodes upstream server-sent events into canonical events
// and encodes canonical events into the gateway's own event-stream frames.
package stream

import (
	"bytes"
	"strings"
)

// LineBuffer is the carry-over buffer of a framed stream reader. Reads may end
// anywhere, including inside a multi-byte UTF-8 sequence, so bytes are kept
// raw until a newline completes the line.
type LineBuffer struct {
	pending []byte
}

// Feed appends p and returns every line it completed, without the trailing
// newline (and without a preceding carriage return). The trailing partial line
// is retained for the next call.
func (b *LineBuffer) Feed(p []byte) []string {
	b.pending = append(b.pending, p...)

	var lines []string
	start := 0
	for {
		i := bytes.IndexByte(b.pending[start:], '\n')
		if i < 0 {
			break
		}
		line := b.pending[start : start+i]
		lines = append(lines, strings.TrimSuffix(string(line), "\r"))
		start += i + 1
	}

	n := copy(b.pending, b.pending[start:])
	b.pending = b.pending[:n]
	return lines
}

// Flush returns the retained partial line, if any, and empties the buffer.
func (b *LineBuffer) Flush() (string, bool) {
	if len(b.pending) == 0 {
		return "", false
	}
	line := strings.TrimSuffix(string(b.pending), "\r")
	b.pending = b.pending[:0]
	return line, true
}

const dataPrefix = "data:"

// DataPayload returns the payload of a "data:" line. Comment, event and blank
// lines report false.
func DataPayload(line string) (string, bool) {
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	return payload, payload != ""
}
