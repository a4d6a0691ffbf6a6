// Package client consumes the gateway's responses: the event-stream frames of
// streaming providers and the single JSON body of batch providers.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"bookforge-gateway/internal/errs"
	"bookforge-gateway/internal/models"
	"bookforge-gateway/internal/provider"
	"bookforge-gateway/internal/repair"
	"bookforge-gateway/internal/stream"
	"bookforge-gateway/internal/translator"
)

const (
	readBufferSize   = 4096
	maxErrorBodySize = 64 << 10
)

// Result is the text a generation produced and how it ended.
type Result struct {
	Content  string
	Metadata models.Metadata
	// Streamed reports whether the answer arrived as an event stream.
	Streamed bool
}

// Outline parses Content as a table of contents, repairing it when the model
// was cut off.
func (r *Result) Outline() ([]models.ChapterNode, bool, error) {
	return repair.ParseChapters(r.Content)
}

// Accumulator collects one gateway response into a Result.
type Accumulator struct {
	// OnChunk, when set, receives every chunk as it arrives.
	OnChunk func(text string)
	Logger  *slog.Logger
}

// Consume reads resp to the end and closes its body. Error frames and error
// statuses discard any partial content.
func (a *Accumulator) Consume(resp *http.Response) (*Result, error) {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, decodeErrorBody(resp)
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}

	switch mediaType {
	case "text/event-stream":
		return a.consumeStream(resp.Body)
	case "application/json":
		return a.consumeJSON(resp.Body)
	default:
		return nil, errs.Newf(errs.KindUpstreamProtocol, "unexpected gateway content type %q", resp.Header.Get("Content-Type"))
	}
}

func (a *Accumulator) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

func (a *Accumulator) consumeStream(body io.Reader) (*Result, error) {
	var (
		lines   stream.LineBuffer
		content strings.Builder
		buf     = make([]byte, readBufferSize)
	)

	// handle reports a non-nil result or error once a terminal frame is seen.
	handle := func(line string) (*Result, error) {
		payload, ok := stream.DataPayload(line)
		if !ok {
			return nil, nil
		}
		frame, err := stream.ParseFrame(payload)
		if err != nil {
			a.logger().Debug("skipping malformed frame", "error", err)
			return nil, nil
		}

		if !frame.IsTerminal() {
			content.WriteString(frame.Chunk)
			if a.OnChunk != nil && frame.Chunk != "" {
				a.OnChunk(frame.Chunk)
			}
			return nil, nil
		}

		if frame.Error != "" {
			return nil, errs.New(kindOrUnknown(string(frame.Type)), frame.Error)
		}

		text := content.String()
		if frame.Content != nil {
			text = *frame.Content
		}
		result := &Result{Content: text, Streamed: true}
		if frame.Metadata != nil {
			result.Metadata = *frame.Metadata
		}
		if result.Metadata.WordCount == 0 {
			result.Metadata.WordCount = models.WordCount(text)
		}
		return result, nil
	}

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			for _, line := range lines.Feed(buf[:n]) {
				if result, err := handle(line); result != nil || err != nil {
					return result, err
				}
			}
		}

		if readErr == nil {
			continue
		}

		if line, ok := lines.Flush(); ok {
			if result, err := handle(line); result != nil || err != nil {
				return result, err
			}
		}

		// The caller gave up; that is an abort, not a lost connection.
		if errors.Is(readErr, context.Canceled) || errors.Is(readErr, context.DeadlineExceeded) {
			return nil, readErr
		}
		if !errors.Is(readErr, io.EOF) {
			a.logger().Warn("gateway stream interrupted", "error", readErr, "received_bytes", content.Len())
		}
		if content.Len() == 0 {
			return nil, errs.Wrap(readErr, errs.KindStreamDisconnected, "gateway stream ended before producing content")
		}

		text := content.String()
		return &Result{
			Content:  text,
			Streamed: true,
			Metadata: models.Metadata{
				StopReason: models.StopReasonStreamEnded,
				WordCount:  models.WordCount(text),
			},
		}, nil
	}
}

func (a *Accumulator) consumeJSON(body io.Reader) (*Result, error) {
	var payload struct {
		translator.GenerateResponse
		Error string `json:"error"`
		Type  string `json:"type"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return nil, errs.Wrap(err, errs.KindUpstreamProtocol, "decode gateway response")
	}

	if payload.Error != "" {
		return nil, errs.New(kindOrUnknown(payload.Type), payload.Error)
	}

	result := &Result{Content: payload.Content}
	if payload.Metadata != nil {
		result.Metadata = *payload.Metadata
	}
	if result.Metadata.WordCount == 0 {
		result.Metadata.WordCount = models.WordCount(result.Content)
	}
	if a.OnChunk != nil && result.Content != "" {
		a.OnChunk(result.Content)
	}
	return result, nil
}

func decodeErrorBody(resp *http.Response) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		return errs.Wrap(err, errs.KindStreamDisconnected, "read gateway error response")
	}

	var body translator.ErrorResponse
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		return &errs.Error{
			Kind:    errs.KindUpstreamOpaque,
			Message: fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, provider.Excerpt(raw)),
			Status:  resp.StatusCode,
		}
	}

	return &errs.Error{
		Kind:    kindOrUnknown(body.Type),
		Message: body.Error,
		Status:  resp.StatusCode,
	}
}

func kindOrUnknown(raw string) errs.Kind {
	if raw == "" {
		return errs.KindUnknown
	}
	return errs.Kind(raw)
}
