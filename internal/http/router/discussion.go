package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/roundtable/internal/http/handler"
)

func DiscussionRouter(rg *gin.RouterGroup, h *handler.DiscussionHandler) {
	rooms := rg.Group("/rooms/:room_id/discussions")
	{
		rooms.POST("", h.Create)
		rooms.GET("", h.ListByRoom)
	}

	discussions := rg.Group("/discussions/:id")
	{
		discussions.GET("", h.Get)
		discussions.POST("/run", h.Run)
		discussions.POST("/pause", h.Pause)
		discussions.POST("/resume", h.Resume)
		discussions.POST("/stop", h.Stop)
	}
}
