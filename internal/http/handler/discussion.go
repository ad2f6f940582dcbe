package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"basegraph.app/roundtable/internal/discussion"
	"basegraph.app/roundtable/internal/http/dto"
	"basegraph.app/roundtable/internal/model"
	"basegraph.app/roundtable/internal/service"
)

type DiscussionHandler struct {
	service     service.DiscussionService
	traceHeader string
}

func NewDiscussionHandler(service service.DiscussionService, traceHeader string) *DiscussionHandler {
	return &DiscussionHandler{
		service:     service,
		traceHeader: traceHeader,
	}
}

func (h *DiscussionHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}

	var req dto.CreateDiscussionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid create discussion request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	messageID, err := dto.ParseID(req.MessageID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message_id: " + err.Error()})
		return
	}
	agentIDs, err := dto.ParseIDs(req.AgentIDs)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent_ids: " + err.Error()})
		return
	}

	result, err := h.service.Create(ctx, service.CreateDiscussionParams{
		RoomID:    roomID,
		MessageID: messageID,
		AgentIDs:  agentIDs,
		Topic:     req.Topic,
		Intensity: model.Intensity(req.Intensity),
		MaxTurns:  req.MaxTurns,
		AutoRun:   req.AutoRun,
		TraceID:   traceID(c, h.traceHeader),
	})
	if err != nil {
		respondError(c, err, "create discussion")
		return
	}

	c.JSON(http.StatusCreated, dto.CreateDiscussionResponse{
		Discussion: result.Discussion,
		Enqueued:   result.Enqueued,
	})
}

func (h *DiscussionHandler) ListByRoom(c *gin.Context) {
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	discussions, err := h.service.ListByRoom(c.Request.Context(), roomID, limit)
	if err != nil {
		respondError(c, err, "list discussions")
		return
	}
	if discussions == nil {
		discussions = []model.Discussion{}
	}
	c.JSON(http.StatusOK, dto.ListDiscussionsResponse{Discussions: discussions})
}

func (h *DiscussionHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	snap, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "get discussion")
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Run executes the next batch in the request, or enqueues it with ?async=true.
func (h *DiscussionHandler) Run(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	async, _ := strconv.ParseBool(c.Query("async"))

	result, err := h.service.Run(c.Request.Context(), id, async, traceID(c, h.traceHeader))
	if err != nil {
		respondError(c, err, "run discussion")
		return
	}

	status := http.StatusOK
	if result.Enqueued {
		status = http.StatusAccepted
	}
	c.JSON(status, dto.RunDiscussionResponse{
		Outcome:  result.Outcome,
		Enqueued: result.Enqueued,
	})
}

func (h *DiscussionHandler) Pause(c *gin.Context) {
	h.transition(c, "pause discussion", h.service.Pause)
}

func (h *DiscussionHandler) Resume(c *gin.Context) {
	trace := traceID(c, h.traceHeader)
	h.transition(c, "resume discussion", func(ctx context.Context, id int64) (*discussion.Snapshot, error) {
		return h.service.Resume(ctx, id, trace)
	})
}

func (h *DiscussionHandler) Stop(c *gin.Context) {
	h.transition(c, "stop discussion", h.service.Stop)
}

func (h *DiscussionHandler) transition(c *gin.Context, action string, apply func(context.Context, int64) (*discussion.Snapshot, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	snap, err := apply(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, action)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := dto.ParseID(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + ": " + err.Error()})
		return 0, false
	}
	return id, true
}
