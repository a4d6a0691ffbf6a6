package server

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"bookforge-gateway/internal/logger"
	"bookforge-gateway/internal/metrics"
	"bookforge-gateway/internal/tracer"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// requestID reuses the caller's request id or mints one, and stores it in the
// request context for the logger.
func requestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.New().String()
			}

			ctx := logger.WithContext(req.Context(), logger.RequestIDKey, id)
			c.SetRequest(req.WithContext(ctx))
			c.Response().Header().Set(RequestIDHeader, id)
			return next(c)
		}
	}
}

// tracing opens a server span per request, continuing an incoming trace.
func tracing() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))

			ctx, span := tracer.Start(ctx, "HTTP "+req.Method+" "+routePath(c),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", req.Method),
					attribute.String("http.route", routePath(c)),
				),
			)
			defer span.End()

			if sc := span.SpanContext(); sc.IsValid() {
				ctx = logger.WithContext(ctx, logger.TraceIDKey, sc.TraceID().String())
				c.Response().Header().Set("X-Trace-ID", sc.TraceID().String())
			}
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			span.SetAttributes(attribute.Int("http.status_code", c.Response().Status))
			return err
		}
	}
}

// prometheusMetrics records request counts and latency per route.
func prometheusMetrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				// Run the error handler now so the recorded status is final.
				c.Error(err)
			}

			method := c.Request().Method
			path := routePath(c)
			status := strconv.Itoa(c.Response().Status)
			metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

func routePath(c echo.Context) string {
	if path := c.Path(); path != "" {
		return path
	}
	return "unknown"
}
