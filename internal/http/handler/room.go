package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"basegraph.app/roundtable/internal/http/dto"
	"basegraph.app/roundtable/internal/model"
	"basegraph.app/roundtable/internal/service"
)

type RoomHandler struct {
	service service.RoomService
}

func NewRoomHandler(service service.RoomService) *RoomHandler {
	return &RoomHandler{service: service}
}

func (h *RoomHandler) UpsertAgent(c *gin.Context) {
	var req dto.UpsertAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	agentID, err := dto.ParseID(req.ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id: " + err.Error()})
		return
	}

	agent, err := h.service.UpsertAgent(c.Request.Context(), service.UpsertAgentParams{
		ID:           agentID,
		Name:         req.Name,
		Persona:      req.Persona,
		Instructions: req.Instructions,
	})
	if err != nil {
		respondError(c, err, "save agent")
		return
	}
	c.JSON(http.StatusOK, agent)
}

func (h *RoomHandler) PostMessage(c *gin.Context) {
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	var req dto.PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, err := dto.ParseID(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id: " + err.Error()})
		return
	}

	msg, err := h.service.PostMessage(c.Request.Context(), service.PostMessageParams{
		RoomID:  roomID,
		UserID:  userID,
		Content: req.Content,
	})
	if err != nil {
		respondError(c, err, "post message")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *RoomHandler) SetUserPattern(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	var req dto.SetUserPatternRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.SetUserPattern(c.Request.Context(), model.UserPattern{
		UserID:  userID,
		Summary: req.Summary,
		Traits:  req.Traits,
	}); err != nil {
		respondError(c, err, "save user pattern")
		return
	}
	c.Status(http.StatusNoContent)
}
