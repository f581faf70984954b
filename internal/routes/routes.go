package routes

import (
	"github.com/gin-gonic/gin"

	"kindred/internal/handlers"
	"kindred/internal/middleware"
)

func SetupRoutes(r *gin.Engine, chatHandler *handlers.ChatHandler, jwtSecret []byte) *gin.Engine {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// ---- protected
	r.Use(middleware.AuthMiddleware(jwtSecret))

	chats := r.Group("/chats")
	{
		chats.GET("/lookup", chatHandler.FindExistingChat)
		chats.GET("/ws", chatHandler.Stream)
		chats.POST("/", chatHandler.StartChat)
		chats.POST("/messages", chatHandler.SendMessage)
		chats.PUT("/name", chatHandler.RenameChat)
		chats.GET("/user/:user_id", chatHandler.ListChats)
		chats.GET("/:chat_id/messages", chatHandler.ListMessages)
		chats.POST("/:chat_id/read", chatHandler.MarkRead)
	}

	return r
}
