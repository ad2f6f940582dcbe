package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"basegraph.app/roundtable/internal/discussion"
	"basegraph.app/roundtable/internal/service"
)

// respondError maps domain errors onto status codes. Anything unrecognised is a 500
// and the caller sees only action.
func respondError(c *gin.Context, err error, action string) {
	ctx := c.Request.Context()
	_ = c.Error(err)

	var planning *discussion.PlanningError
	switch {
	case errors.Is(err, discussion.ErrDiscussionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "discussion not found"})
	case errors.Is(err, discussion.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
	case errors.Is(err, discussion.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &planning),
		errors.Is(err, discussion.ErrUnknownAgents),
		errors.Is(err, discussion.ErrInvalidIntensity),
		errors.Is(err, discussion.ErrInvalidMaxTurns):
		// Well-formed request the discussion cannot be built from.
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAsyncUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		slog.ErrorContext(ctx, "failed to "+action, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + action})
	}
}

// traceID prefers the configured header and falls back to the active span.
func traceID(c *gin.Context, header string) *string {
	id := ""
	if header != "" {
		id = c.GetHeader(header)
	}
	if id == "" {
		if spanCtx := trace.SpanContextFromContext(c.Request.Context()); spanCtx.IsValid() {
			id = spanCtx.TraceID().String()
		}
	}
	if id == "" {
		return nil
	}
	return &id
}
