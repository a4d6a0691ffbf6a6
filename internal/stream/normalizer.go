package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"bookforge-gateway/internal/errs"
	"bookforge-gateway/internal/models"
)

const (
	readBufferSize = 4096
	doneSentinel   = "[DONE]"
)

// Upstream event types of the Messages streaming protocol.
const (
	typeMessageStart      = "message_start"
	typeContentBlockDelta = "content_block_delta"
	typeMessageDelta      = "message_delta"
	typeMessageStop       = "message_stop"
	typeError             = "error"
)

// Normalizer turns one upstream event stream into canonical events. It is not
// safe for concurrent use; each stream gets its own instance.
type Normalizer struct {
	lines    LineBuffer
	fullText strings.Builder
	chunks   int

	stopReason   string
	inputTokens  int
	outputTokens int

	terminal bool
}

// NewNormalizer returns a normalizer ready for the first read.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Feed consumes one network read and returns the events it completed.
func (n *Normalizer) Feed(p []byte) []models.Event {
	var events []models.Event
	for _, line := range n.lines.Feed(p) {
		events = n.appendLine(events, line)
	}
	return events
}

// Finish is called once the upstream connection ended. A final line without a
// newline is still decoded. When no terminal event was seen, partial content
// is preserved as a done event with the stream_ended stop reason.
func (n *Normalizer) Finish() []models.Event {
	var events []models.Event
	if line, ok := n.lines.Flush(); ok {
		events = n.appendLine(events, line)
	}
	if n.terminal {
		return events
	}

	n.terminal = true
	if n.chunks == 0 {
		return append(events, models.Failed(errs.New(errs.KindStreamDisconnected, "upstream stream ended before producing content")))
	}
	n.stopReason = models.StopReasonStreamEnded
	return append(events, n.done())
}

// Run reads r until it is exhausted, a terminal event is emitted or ctx is
// cancelled. emit reports false when the consumer is gone; Run then stops
// without emitting anything further.
func (n *Normalizer) Run(ctx context.Context, r io.Reader, emit func(models.Event) bool) error {
	buf := make([]byte, readBufferSize)
	for {
		nr, readErr := r.Read(buf)
		if nr > 0 {
			for _, ev := range n.Feed(buf[:nr]) {
				if !emit(ev) {
					return ctx.Err()
				}
			}
			if n.terminal {
				return nil
			}
		}

		if readErr != nil {
			if err := ctx.Err(); err != nil {
				return err
			}
			for _, ev := range n.Finish() {
				if !emit(ev) {
					return ctx.Err()
				}
			}
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return readErr
		}
	}
}

type upstreamUsage struct {
	InputTokens  *int `json:"input_tokens"`
	OutputTokens *int `json:"output_tokens"`
}

type upstreamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Usage *upstreamUsage `json:"usage"`
	} `json:"message"`
	Delta *struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage *upstreamUsage `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (n *Normalizer) appendLine(events []models.Event, line string) []models.Event {
	if n.terminal {
		return events
	}
	payload, ok := DataPayload(line)
	if !ok {
		return events
	}
	if payload == doneSentinel {
		n.terminal = true
		return append(events, n.done())
	}

	var ev upstreamEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		// Not fatal: the frame is skipped and the stream continues.
		return events
	}

	switch ev.Type {
	case typeMessageStart:
		if ev.Message != nil {
			n.applyUsage(ev.Message.Usage)
		}
	case typeContentBlockDelta:
		if ev.Delta != nil && ev.Delta.Text != "" {
			n.fullText.WriteString(ev.Delta.Text)
			n.chunks++
			events = append(events, models.Chunk(ev.Delta.Text))
		}
	case typeMessageDelta:
		if ev.Delta != nil && ev.Delta.StopReason != "" {
			n.stopReason = ev.Delta.StopReason
		}
		n.applyUsage(ev.Usage)
	case typeMessageStop:
		n.terminal = true
		events = append(events, n.done())
	case typeError:
		n.terminal = true
		message := "upstream reported an error"
		if ev.Error != nil && ev.Error.Message != "" {
			message = ev.Error.Message
		}
		events = append(events, models.Failed(errs.New(errs.KindUpstreamProtocol, message)))
	}
	return events
}

func (n *Normalizer) applyUsage(u *upstreamUsage) {
	if u == nil {
		return
	}
	if u.InputTokens != nil {
		n.inputTokens = *u.InputTokens
	}
	if u.OutputTokens != nil {
		n.outputTokens = *u.OutputTokens
	}
}

func (n *Normalizer) done() models.Event {
	text := n.fullText.String()
	return models.Done(text, models.Metadata{
		StopReason:   n.stopReason,
		InputTokens:  n.inputTokens,
		OutputTokens: n.outputTokens,
		WordCount:    models.WordCount(text),
	})
}
