package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/roundtable/internal/http/handler"
)

// RoomRouter mounts room setup. Posting messages is open; agents and user
// patterns sit behind admin.
func RoomRouter(rg *gin.RouterGroup, h *handler.RoomHandler, admin gin.HandlerFunc) {
	rg.POST("/rooms/:room_id/messages", h.PostMessage)

	guarded := rg.Group("")
	guarded.Use(admin)
	{
		guarded.POST("/agents", h.UpsertAgent)
		guarded.PUT("/users/:user_id/pattern", h.SetUserPattern)
	}
}
