package provider

import (
	"context"
	"io"

	"bookforge-gateway/internal/models"
)

// Adapter is the behaviour shared by every upstream backend. A usable adapter
// also implements exactly one of the capability interfaces below.
type Adapter interface {
	Name() models.Provider
	Limits() Limits
}

// Streamer is implemented by backends that push server-sent events while
// generating. The returned body is the raw event stream; decoding belongs to
// the stream package.
type Streamer interface {
	Adapter
	OpenStream(ctx context.Context, call Call) (io.ReadCloser, error)
}

// Completer is implemented by backends that answer with one blocking
// response.
type Completer interface {
	Adapter
	Complete(ctx context.Context, call Call) (*Completion, error)
}

// Call is one upstream invocation after the gateway applied prompt and budget
// policy.
type Call struct {
	APIKey      string
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Completion is the normalized result of a batch call.
type Completion struct {
	Text         string
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// Limits describes the output token ceilings of a backend.
type Limits struct {
	// MaxOutputTokens is the configured ceiling used for long-form tasks.
	MaxOutputTokens int
	// HardMaxOutputTokens is the provider-side limit no request may exceed.
	HardMaxOutputTokens int
}

// Clamp bounds requested to the hard limit. Non-positive values select the
// ceiling.
func (l Limits) Clamp(requested int) int {
	ceiling := l.ceiling()
	if requested <= 0 || requested > ceiling {
		return ceiling
	}
	return requested
}

func (l Limits) ceiling() int {
	ceiling := l.MaxOutputTokens
	if ceiling <= 0 || (l.HardMaxOutputTokens > 0 && ceiling > l.HardMaxOutputTokens) {
		ceiling = l.HardMaxOutputTokens
	}
	return ceiling
}
