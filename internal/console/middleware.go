package console

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"agentconsole/internal/logging"
	"agentconsole/internal/observability"
)

// observabilityMiddleware traces, measures and logs every request.
func observabilityMiddleware(obs *observability.Observability, latencyLogger logging.Logger) gin.HandlerFunc {
	latencyLogger = logging.OrNop(latencyLogger)
	return func(c *gin.Context) {
		start := time.Now()
		ctx := c.Request.Context()
		if taskID := c.Param("id"); taskID != "" {
			ctx = observability.ContextWithTaskID(ctx, taskID)
		}

		var tracer *observability.TracerProvider
		if obs != nil {
			tracer = obs.Tracer
		}
		ctx, span := tracer.StartSpan(ctx, observability.SpanHTTPServer,
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.target", c.Request.URL.Path),
		)
		defer span.End()
		if sc := span.SpanContext(); sc.HasTraceID() {
			ctx = observability.ContextWithTraceID(ctx, sc.TraceID().String())
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		latency := time.Since(start)
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}

		if obs == nil {
			latencyLogger.Debug("%s %s -> %d (%s)", c.Request.Method, route, status, latency)
			return
		}
		size := int64(c.Writer.Size())
		if size < 0 {
			size = 0
		}
		obs.Metrics.RecordHTTPServerRequest(ctx, c.Request.Method, route, status, latency, size)
		obs.Logger.WithContext(ctx).Info("http request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"latency_ms", latency.Milliseconds(),
			"bytes", size,
		)
	}
}

// recoveryMiddleware turns handler panics into a 500 envelope.
func recoveryMiddleware(logger logging.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("Handler panic on %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered)
		writeError(c, http.StatusInternalServerError, "Internal server error")
	})
}

// requirePermission rejects the request unless the console context grants p.
func (s *Server) requirePermission(p Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.console.Allows(p) {
			writeError(c, http.StatusForbidden, "Console is read-only: "+string(p)+" not granted")
			return
		}
		c.Next()
	}
}
