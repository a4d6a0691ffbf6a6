package stream

import (
	"encoding/json"
	"fmt"
	"io"

	"bookforge-gateway/internal/errs"
	"bookforge-gateway/internal/models"
)

// Frame is the JSON payload of one downstream "data:" line. Exactly one of
// Chunk, Done or Error is meaningful.
type Frame struct {
	Chunk    string           `json:"chunk,omitempty"`
	Done     bool             `json:"done,omitempty"`
	Content  *string          `json:"content,omitempty"`
	Metadata *models.Metadata `json:"metadata,omitempty"`
	Error    string           `json:"error,omitempty"`
	Type     errs.Kind        `json:"type,omitempty"`
}

// FrameFromEvent encodes a canonical event for the downstream wire.
func FrameFromEvent(ev models.Event) Frame {
	switch ev.Kind {
	case models.EventDone:
		content := ev.Content
		meta := ev.Metadata
		return Frame{Done: true, Content: &content, Metadata: &meta}
	case models.EventError:
		return Frame{Error: ev.Message(), Type: errs.KindOf(ev.Err)}
	default:
		return Frame{Chunk: ev.Text}
	}
}

// IsTerminal reports whether the frame ends the stream.
func (f Frame) IsTerminal() bool {
	return f.Done || f.Error != ""
}

// WriteFrame writes f as "data: {json}\n\n".
func WriteFrame(w io.Writer, f Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if _, err := fmt.Fprintf(w, "%s %s\n\n", dataPrefix, payload); err != nil {
		return err
	}
	return nil
}

// ParseFrame decodes the payload of a downstream "data:" line.
func ParseFrame(payload string) (Frame, error) {
	var f Frame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}
