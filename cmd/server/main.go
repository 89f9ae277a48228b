package main

import (
	"context"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/engine"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/fanout"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/proximity"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/router"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/tracker"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/validators"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/pkg/config"
	"github.com/natanaelribeiro272-glitch/meetlines-sub000/pkg/firebase"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database connections
	db, err := config.InitDB()
	if err != nil {
		log.Fatalf("Failed to initialize databases: %v", err)
	}
	defer db.CloseDB()

	// Fanout transport: Redis when configured, in-process otherwise
	var broker fanout.Broker
	if db.Redis != nil {
		broker = fanout.NewRedisBroker(db.Redis)
		log.Info("Using Redis fanout broker.")
	} else {
		broker = fanout.NewInProcBroker()
		log.Info("Using in-process fanout broker.")
	}

	// Firebase sign-in is optional; without credentials only local auth works
	ctx := context.Background()
	var firebaseAuth *auth.Client
	if cfg.FirebaseCredentialsPath != "" {
		firebaseApp, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase: %v", err)
		}
		firebaseAuth = firebaseApp.AuthClient
	} else {
		log.Warn("FIREBASE_CREDENTIALS_PATH not set, firebase login disabled.")
	}

	engineCfg := engine.Config{
		Proximity: proximity.Config{
			RadiusMeters:    cfg.RadiusMeters,
			FreshnessWindow: cfg.FreshnessWindow,
		},
		Tracker:    tracker.DefaultConfig(),
		IdleWindow: cfg.IdleWindow,
	}
	engineCfg.Tracker.WriteInterval = cfg.WriteInterval

	// Create Echo instance
	e := echo.New()

	// Setup global middleware
	router.SetupMiddleware(e)

	// Setup routes and dependencies
	router.SetupRoutes(e, db.Postgres, db.Mongo, broker, firebaseAuth, engineCfg)

	// Validator
	e.Validator = validators.NewValidator()

	// Start server
	e.Logger.Fatal(e.Start(":" + cfg.Port))
}
