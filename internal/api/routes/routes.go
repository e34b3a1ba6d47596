package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/omnihear/omnihear/internal/api/handlers"
	"github.com/omnihear/omnihear/internal/api/middleware"
)

type Deps struct {
	Audio   *handlers.AudioHandler
	Event   *handlers.EventHandler
	History *handlers.HistoryHandler
	WS      *handlers.WSHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth())

	auth.POST("/audio", d.Audio.Upload)
	auth.GET("/audio", d.Audio.Current)
	auth.POST("/event", d.Event.Post)
	auth.GET("/state", d.Event.State)

	auth.GET("/history", d.History.List)
	auth.GET("/history/:dispatch_id/archive", d.History.Archive)

	// WebSocket
	auth.GET("/ws", d.WS.Feed)
}
