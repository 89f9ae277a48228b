package router

import (
	"context"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	eMiddleware "github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"

	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/engine"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/fanout"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/handlers"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/middleware"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/models"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/repositories"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/ws"
)

// SetupMiddleware configures global Echo middleware
func SetupMiddleware(e *echo.Echo) {
	e.Use(eMiddleware.Recover())
	e.Use(eMiddleware.CORS())
	log.Info("Global middleware configured.")
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, pgdb *gorm.DB, mgClient *mongo.Client, broker fanout.Broker, firebaseAuthClient *auth.Client, engineCfg engine.Config) {
	// AutoMigrate PostgreSQL models
	err := pgdb.AutoMigrate(
		&models.User{},
		&models.UserPosition{},
		&models.VisibilityProfile{},
		&models.Friendship{},
		&models.UserMessage{},
		&models.StorySeen{},
	)
	if err != nil {
		log.Fatalf("Failed to auto migrate models: %v", err)
	}
	log.Info("PostgreSQL auto-migrations completed for all models.")

	// Health check - always accessible
	e.GET("/health", handlers.HealthCheck)

	// --- Initialize Repositories ---
	userRepo := repositories.NewPostgresUserRepository(pgdb)
	positionRepo := repositories.NewPostgresPositionRepository(pgdb)
	profileRepo := repositories.NewPostgresProfileRepository(pgdb)
	friendshipRepo := repositories.NewPostgresFriendshipRepository(pgdb)
	messageRepo := repositories.NewPostgresMessageRepository(pgdb)
	storyRepo := repositories.NewStoryRepository(mgClient.Database("discovery"), pgdb)

	// --- Engine ---
	eng := engine.NewService(userRepo, positionRepo, profileRepo, friendshipRepo, messageRepo, storyRepo, broker, engineCfg)
	eng.StartStoryJanitor(context.Background(), time.Hour)

	// --- Unprotected routes for authentication ---
	authGroup := e.Group("/api/v1/auth")
	authHandler := handlers.NewAuthHandler(userRepo, firebaseAuthClient)
	authHandler.RegisterAuthRoutes(authGroup)
	log.Info("Auth routes configured.")

	// --- Protected routes (require JWT authentication) ---
	api := e.Group("/api/v1")
	api.Use(middleware.JWTAuthMiddleware())

	discoveryHandler := handlers.NewDiscoveryHandler(eng)
	discoveryHandler.RegisterDiscoveryRoutes(api)
	log.Info("Discovery routes configured.")

	friendshipHandler := handlers.NewFriendshipHandler(eng)
	friendshipHandler.RegisterFriendshipRoutes(api)
	log.Info("Friendship routes configured.")

	messageHandler := handlers.NewMessageHandler(eng)
	messageHandler.RegisterMessageRoutes(api)
	log.Info("Message routes configured.")

	storyHandler := handlers.NewStoryHandler(eng)
	storyHandler.RegisterStoryRoutes(api)
	log.Info("Story routes configured.")

	// Websocket endpoint authenticates via token query parameter, so it sits
	// outside the JWT header middleware.
	wsHandler := ws.NewHandler(eng)
	e.GET("/api/v1/ws", wsHandler.HandleWebSocket)
	log.Info("Websocket endpoint configured.")

	log.Info("All routes configured.")
}
