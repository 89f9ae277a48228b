package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries the service settings, all sourced from the environment.
type Config struct {
	Port                    string
	Env                     string
	FirebaseCredentialsPath string
	RedisAddr               string

	// engine tunables
	RadiusMeters    float64
	FreshnessWindow time.Duration
	WriteInterval   time.Duration
	IdleWindow      time.Duration
}

func Load() *Config {
	return &Config{
		Port:                    getEnv("PORT", "8080"),
		Env:                     getEnv("ENV", "development"),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		RedisAddr:               getEnv("REDIS_ADDR", ""),
		RadiusMeters:            getEnvFloat("DISCOVERY_RADIUS_METERS", 100),
		FreshnessWindow:         getEnvDuration("POSITION_FRESHNESS_WINDOW", 10*time.Minute),
		WriteInterval:           getEnvDuration("POSITION_WRITE_INTERVAL", 10*time.Second),
		IdleWindow:              getEnvDuration("SUBSCRIPTION_IDLE_WINDOW", 5*time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
