package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"bookforge-gateway/internal/config"
	"bookforge-gateway/internal/errs"
	"bookforge-gateway/internal/gateway"
	"bookforge-gateway/internal/logger"
	"bookforge-gateway/internal/metrics"
	"bookforge-gateway/internal/models"
	"bookforge-gateway/internal/repair"
	"bookforge-gateway/internal/stream"
	"bookforge-gateway/internal/translator"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
)

type Server struct {
	cfg     config.Config
	gateway *gateway.Gateway
	app     *echo.Echo
	address string
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, gw *gateway.Gateway) (*Server, error) {
	if gw == nil {
		return nil, errors.New("gateway must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = jsonErrorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(requestID())
	e.Use(tracing())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency: true,
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.FromContext(c.Request().Context()).Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))
	e.Use(prometheusMetrics())

	srv := &Server{
		cfg:     cfg,
		gateway: gw,
		app:     e,
		address: fmt.Sprintf(":%d", cfg.Server.Port),
	}

	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the routed echo instance.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	printStartupBanner(s.cfg.Server.Port)
	slog.Info("starting server", "addr", s.address)

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	})

	return g.Wait()
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)
	s.app.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.app.POST("/api/generate", s.handleGenerate)
	s.app.POST("/api/outline/parse", s.handleOutlineParse)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleGenerate waits for the first event so that failures before any
// output still get a real status code. Streaming providers are then relayed
// as an event stream; batch providers get one JSON body.
func (s *Server) handleGenerate(c echo.Context) error {
	var body translator.GenerateRequest
	if err := decodeRequestBody(c, &body); err != nil {
		return err
	}

	req := body.ToModel()
	ctx := c.Request().Context()
	events := s.gateway.Generate(ctx, req)

	first, ok := <-events
	if !ok {
		// The caller went away before anything was produced.
		return nil
	}
	if first.Kind == models.EventError {
		return toHTTPError(first.Err)
	}

	if s.gateway.Streams(req.Provider) {
		return writeEventStream(c, first, events)
	}

	final := first
	for ev := range events {
		final = ev
	}
	switch final.Kind {
	case models.EventDone:
		return c.JSON(http.StatusOK, translator.FromDone(final))
	case models.EventError:
		return toHTTPError(final.Err)
	default:
		return nil
	}
}

func (s *Server) handleOutlineParse(c echo.Context) error {
	var body translator.OutlineParseRequest
	if err := decodeRequestBody(c, &body); err != nil {
		return err
	}

	chapters, repaired, err := repair.ParseChapters(body.Text)
	if err != nil {
		metrics.RepairTotal.WithLabelValues("failed").Inc()
		logger.FromContext(c.Request().Context()).Warn("outline could not be recovered", "kind", errs.KindOf(err), "error", err)
		return toHTTPError(err)
	}

	outcome := "direct"
	if repaired {
		outcome = "repaired"
	}
	metrics.RepairTotal.WithLabelValues(outcome).Inc()

	return c.JSON(http.StatusOK, translator.OutlineParseResponse{
		Chapters: chapters,
		Repaired: repaired,
	})
}

func writeEventStream(c echo.Context, first models.Event, rest <-chan models.Event) error {
	writer := c.Response().Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		slog.Error("http writer does not support flushing")
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: "server does not support streaming responses",
			Type:    "server_error",
		}
	}

	header := c.Response().Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	c.Response().WriteHeader(http.StatusOK)

	log := logger.FromContext(c.Request().Context())
	write := func(ev models.Event) error {
		if err := stream.WriteFrame(c.Response(), stream.FrameFromEvent(ev)); err != nil {
			log.Debug("failed to write SSE frame", "kind", ev.Kind, "err", err)
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := write(first); err != nil {
		return nil
	}
	for ev := range rest {
		if err := write(ev); err != nil {
			// Returning ends the request, which cancels the upstream call.
			return nil
		}
	}
	return nil
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return requestError{
				Status:  http.StatusBadRequest,
				Message: "request body is required",
				Type:    string(errs.KindBadRequest),
			}
		}
		return requestError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("invalid JSON payload: %v", err),
			Type:    string(errs.KindBadRequest),
		}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "request body must contain a single JSON object",
			Type:    string(errs.KindBadRequest),
		}
	}
	return nil
}

type requestError struct {
	Status  int
	Message string
	Type    string
}

func (e requestError) Error() string {
	return e.Message
}

func writeError(c echo.Context, status int, message, errType string) error {
	return c.JSON(status, translator.ErrorResponse{Error: message, Type: errType})
}

func jsonErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.Type)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = writeError(c, he.Code, fmt.Sprint(he.Message), string(errs.KindBadRequest))
		return
	}

	_ = writeError(c, http.StatusInternalServerError, "internal server error", string(errs.KindUnknown))
}

// toHTTPError maps a classified failure onto its status and caller-safe
// message.
func toHTTPError(err error) error {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	var classified *errs.Error
	if errors.As(err, &classified) {
		return requestError{
			Status:  errs.HTTPStatus(classified.Kind),
			Message: classified.Message,
			Type:    string(classified.Kind),
		}
	}

	return requestError{
		Status:  http.StatusInternalServerError,
		Message: "internal server error",
		Type:    string(errs.KindUnknown),
	}
}

func printStartupBanner(port int) {
	host := "127.0.0.1"
	fmt.Println()
	fmt.Println("bookforge-gateway ready")
	fmt.Printf("Listening on http://%s:%d\n", host, port)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  GET  /metrics")
	fmt.Println("  POST /api/generate")
	fmt.Println("  POST /api/outline/parse")
	fmt.Printf("Example:\n  curl -N http://%s:%d/api/generate -H 'Content-Type: application/json' -d '{\"provider\":\"anthropic\",\"model\":\"claude-3-5-sonnet-latest\",\"type\":\"toc\",\"prompt\":\"A field guide to urban birds\"}'\n\n", host, port)
}
