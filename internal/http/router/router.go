package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"basegraph.app/roundtable/internal/http/handler"
	"basegraph.app/roundtable/internal/http/middleware"
	"basegraph.app/roundtable/internal/service"
)

type RouterConfig struct {
	TraceHeaderName   string
	AdminAPIKey       string
	EventStreamPrefix string
	// EventStream is nil when no Redis sink is configured; the events route then answers 503.
	EventStream handler.StreamReader
	// EventStreamBlock bounds each stream read; zero means 25s.
	EventStreamBlock time.Duration
}

func SetupRoutes(router *gin.Engine, services *service.Services, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		discussionHandler := handler.NewDiscussionHandler(services.Discussions(), cfg.TraceHeaderName)
		DiscussionRouter(v1, discussionHandler)

		eventsHandler := handler.NewEventsHandler(cfg.EventStream, cfg.EventStreamPrefix, cfg.EventStreamBlock)
		EventsRouter(v1.Group("/rooms/:room_id"), eventsHandler)

		roomHandler := handler.NewRoomHandler(services.Rooms())
		RoomRouter(v1, roomHandler, middleware.RequireAdminAPIKey(cfg.AdminAPIKey))
	}
}
