package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/waflawe/eXwonder-backend/internal/auth"
	"github.com/waflawe/eXwonder-backend/internal/config"
	"github.com/waflawe/eXwonder-backend/internal/db"
	"github.com/waflawe/eXwonder-backend/internal/observability"
	"github.com/waflawe/eXwonder-backend/internal/repositories"
	"github.com/waflawe/eXwonder-backend/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	cfg := config.Load()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracing, err := observability.SetupTracing(context.Background(), cfg.AppName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	observability.SetupPublisher(cfg.AMQPURL, cfg.AMQPExchange)

	userRepo := repositories.NewUserRepo(database)
	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	validator := auth.NewTokenService(cfg.JWTSecret)
	registry := ws.NewGroupRegistry()
	presence := ws.NewPresenceTracker(userRepo, registry)
	dispatcher := ws.NewDispatcher(userRepo, chatRepo, messageRepo, validator, registry, presence, cfg.StoreTimeout)
	messengerWS := ws.NewMessengerHandler(dispatcher, cfg.ReadLimit, cfg.SendBuffer, cfg.WriteTimeout, cfg.AllowedOrigin)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observability.RequestIDMiddleware())
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(otelgin.Middleware(cfg.AppName))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws/messenger", messengerWS.Handle)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
