package middleware

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"basegraph.app/roundtable/common/logger"
)

// Logger writes one record per request. Event streams are logged when they close,
// so their latency is the subscription length.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}

		ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{Component: "roundtable.http"})
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"route", c.FullPath(),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			slog.ErrorContext(ctx, "request failed", attrs...)
		case status >= 400:
			slog.WarnContext(ctx, "request error", attrs...)
		case strings.HasSuffix(c.FullPath(), "/events"):
			slog.DebugContext(ctx, "event stream closed", attrs...)
		default:
			slog.InfoContext(ctx, "request", attrs...)
		}
	}
}
