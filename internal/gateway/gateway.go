// Package gateway dispatches one abstract generation request to the adapter of
// the requested provider and normalizes the outcome into canonical events.
package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bookforge-gateway/internal/errs"
	"bookforge-gateway/internal/logger"
	"bookforge-gateway/internal/metrics"
	"bookforge-gateway/internal/models"
	"bookforge-gateway/internal/prompt"
	"bookforge-gateway/internal/provider"
	"bookforge-gateway/internal/stream"
	"bookforge-gateway/internal/tracer"
)

// CredentialLookup resolves a fallback API key for requests that carry none.
type CredentialLookup interface {
	Lookup(provider string) (string, bool)
}

// Gateway routes generation requests to registered adapters. It owns no
// per-request state, so one instance serves concurrent requests.
type Gateway struct {
	registry    *provider.Registry
	credentials CredentialLookup
}

// New constructs a gateway backed by the provided registry. credentials may
// be nil, in which case every request must carry its own key.
func New(registry *provider.Registry, credentials CredentialLookup) (*Gateway, error) {
	if registry == nil {
		return nil, errors.New("registry must not be nil")
	}
	return &Gateway{
		registry:    registry,
		credentials: credentials,
	}, nil
}

// Streams reports whether the provider pushes incremental chunks.
func (g *Gateway) Streams(name models.Provider) bool {
	a, err := g.registry.Lookup(name)
	if err != nil {
		return false
	}
	_, ok := a.(provider.Streamer)
	return ok
}

// Validate checks that req can be dispatched without contacting any backend.
func (g *Gateway) Validate(req models.GenerationRequest) error {
	_, _, err := g.prepare(req)
	return err
}

// Generate dispatches req and returns its event stream. Any number of chunks
// are followed by exactly one done or error event, then the channel closes.
// Cancelling ctx aborts the upstream call and closes the channel without a
// terminal event.
func (g *Gateway) Generate(ctx context.Context, req models.GenerationRequest) <-chan models.Event {
	out := make(chan models.Event, 1)

	adapter, call, err := g.prepare(req)
	if err != nil {
		out <- models.Failed(err)
		close(out)
		return out
	}

	go g.run(ctx, adapter, req, call, out)
	return out
}

func (g *Gateway) prepare(req models.GenerationRequest) (provider.Adapter, provider.Call, error) {
	name := models.Provider(strings.ToLower(strings.TrimSpace(string(req.Provider))))
	if name == "" {
		return nil, provider.Call{}, errs.BadRequest("provider is required")
	}
	if strings.TrimSpace(req.Model) == "" {
		return nil, provider.Call{}, errs.BadRequest("model is required")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, provider.Call{}, errs.BadRequest("prompt is required")
	}

	adapter, err := g.registry.Lookup(name)
	if err != nil {
		return nil, provider.Call{}, errs.BadRequest("unknown provider %q", req.Provider)
	}

	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" && g.credentials != nil {
		apiKey, _ = g.credentials.Lookup(string(name))
	}
	if apiKey == "" {
		return nil, provider.Call{}, errs.BadRequest("apiKey is required")
	}

	params := provider.Policy(adapter.Limits(), req.Task)
	return adapter, provider.Call{
		APIKey:      apiKey,
		Model:       strings.TrimSpace(req.Model),
		System:      prompt.Build(req.Task, req.Context),
		Prompt:      req.Prompt,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	}, nil
}

func (g *Gateway) run(ctx context.Context, adapter provider.Adapter, req models.GenerationRequest, call provider.Call, out chan<- models.Event) {
	defer close(out)

	name := string(adapter.Name())
	task := string(req.Task)
	ctx = logger.WithContext(ctx, logger.ProviderKey, name)
	ctx = logger.WithContext(ctx, logger.ModelKey, call.Model)
	ctx = logger.WithContext(ctx, logger.TaskKey, task)
	ctx, span := tracer.Start(ctx, "gateway.generate", trace.WithAttributes(
		attribute.String("llm.provider", name),
		attribute.String("llm.model", call.Model),
		attribute.String("llm.task", task),
		attribute.Int("llm.max_tokens", call.MaxTokens),
	))
	defer span.End()

	log := logger.FromContext(ctx)
	log.Debug("dispatching generation", "max_tokens", call.MaxTokens, "temperature", call.Temperature)
	start := time.Now()

	var final models.Event
	emit := func(ev models.Event) bool {
		select {
		case out <- ev:
			if ev.Terminal() {
				final = ev
			}
			return true
		case <-ctx.Done():
			return false
		}
	}

	switch a := adapter.(type) {
	case provider.Streamer:
		g.stream(ctx, a, call, emit)
	case provider.Completer:
		g.complete(ctx, a, call, emit)
	default:
		emit(models.Failed(errs.Newf(errs.KindUnknown, "provider %s cannot generate", name)))
	}

	duration := time.Since(start)
	metrics.LLMCallDuration.WithLabelValues(name, task).Observe(duration.Seconds())

	switch {
	case final.Kind == models.EventDone:
		meta := final.Metadata
		metrics.LLMCallTotal.WithLabelValues(name, task, "success").Inc()
		metrics.LLMTokensUsed.WithLabelValues(name, call.Model, "input").Add(float64(meta.InputTokens))
		metrics.LLMTokensUsed.WithLabelValues(name, call.Model, "output").Add(float64(meta.OutputTokens))
		metrics.LLMWordCount.WithLabelValues(task).Observe(float64(meta.WordCount))
		span.SetAttributes(
			attribute.String("llm.stop_reason", meta.StopReason),
			attribute.Int("llm.output_tokens", meta.OutputTokens),
		)
		log.Info("generation finished",
			"stop_reason", meta.StopReason,
			"input_tokens", meta.InputTokens,
			"output_tokens", meta.OutputTokens,
			"word_count", meta.WordCount,
			"duration_ms", duration.Milliseconds(),
		)
	case final.Kind == models.EventError:
		metrics.LLMCallTotal.WithLabelValues(name, task, "error").Inc()
		span.RecordError(final.Err)
		span.SetStatus(codes.Error, final.Message())
		log.Warn("generation failed", "kind", errs.KindOf(final.Err), "error", final.Err)
	default:
		metrics.LLMCallTotal.WithLabelValues(name, task, "cancelled").Inc()
		span.SetStatus(codes.Error, "cancelled")
		log.Info("generation cancelled", "duration_ms", duration.Milliseconds())
	}
}

func (g *Gateway) stream(ctx context.Context, a provider.Streamer, call provider.Call, emit func(models.Event) bool) {
	body, err := a.OpenStream(ctx, call)
	if err != nil {
		emit(models.Failed(err))
		return
	}
	defer body.Close()

	if err := stream.NewNormalizer().Run(ctx, body, emit); err != nil && ctx.Err() == nil {
		logger.FromContext(ctx).Debug("upstream stream ended with error", "error", err)
	}
}

func (g *Gateway) complete(ctx context.Context, a provider.Completer, call provider.Call, emit func(models.Event) bool) {
	res, err := a.Complete(ctx, call)
	if err != nil {
		emit(models.Failed(err))
		return
	}

	if !emit(models.Chunk(res.Text)) {
		return
	}
	emit(models.Done(res.Text, models.Metadata{
		StopReason:   res.StopReason,
		InputTokens:  res.InputTokens,
		OutputTokens: res.OutputTokens,
		WordCount:    models.WordCount(res.Text),
	}))
}
