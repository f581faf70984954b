package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"kindred/internal/config"
	"kindred/internal/db"
	"kindred/internal/events"
	"kindred/internal/handlers"
	"kindred/internal/logger"
	"kindred/internal/realtime"
	"kindred/internal/repositories"
	"kindred/internal/routes"
	"kindred/internal/services"
)

func Run() {
	cfg := config.LoadConfig()

	log, err := logger.New(cfg.Server.Mode)
	if err != nil {
		panic("Failed to build logger: " + err.Error())
	}
	defer log.Sync()

	// === DB ===
	conn, err := db.Open(cfg.Database.DSN)
	if err != nil {
		log.Fatal("database connection failed", "error", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Error("database close failed", "error", err)
		}
	}()

	// === Repos ===
	chatRepo := repositories.NewChatRepository(conn)

	// === Realtime ===
	hub := realtime.NewHub()
	var bus realtime.Bus
	if cfg.Redis.Addr != "" {
		bus, err = realtime.NewRedisBus(log, cfg.Redis.Addr, cfg.Redis.Channel)
		if err != nil {
			log.Fatal("redis connection failed", "error", err)
		}
		defer bus.Close()
	}
	dispatcher := realtime.NewDispatcher(log, hub, bus)
	if err := dispatcher.StartForwarder(context.Background()); err != nil {
		log.Fatal("push forwarder failed to start", "error", err)
	}

	// === Events ===
	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	} else {
		log.Warn("no kafka brokers configured, chat events will be dropped")
	}
	defer publisher.Close()

	// === Services ===
	chatService := services.NewChatService(log, chatRepo, dispatcher, publisher)

	// === Handlers ===
	chatHandler := handlers.NewChatHandler(chatService, hub)

	// === Gin ===
	if cfg.Server.Mode == "release" || cfg.Server.Mode == "prod" || cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(corsMiddleware())

	routes.SetupRoutes(router, chatHandler, []byte(cfg.Auth.JWTSecret))

	// === Run ===
	listenAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("server listening", "addr", listenAddr)
	if err := router.Run(listenAddr); err != nil {
		log.Fatal("server stopped", "error", err)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
