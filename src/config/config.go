package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// AppConfig holds all configuration for the application.
// The values are loaded from environment variables.
type AppConfig struct {
	// Core settings
	Port         string
	DatabasePath string
	LogLevel     string

	// Security settings
	JWTSecret     string
	SessionExpiry time.Duration

	// Trading settings
	StartingCash decimal.Decimal

	// Quote service settings
	QuoteAPIBaseURL string
	QuoteTimeout    time.Duration
	QuoteCacheTTL   time.Duration
}

// Cfg is a global instance of the AppConfig.
var Cfg *AppConfig

// LoadConfig loads configuration from environment variables or a .env file.
// It centralizes all configuration logic for the application.
func LoadConfig() {
	// Try the current directory first, then the parent (common when running from /backend).
	errEnv := godotenv.Load()
	if errEnv != nil {
		errEnv = godotenv.Load("../.env")
	}

	if errEnv != nil {
		if os.IsNotExist(errEnv) {
			log.Println("Info: No .env file found in current or parent directory. Relying on OS environment variables (expected in production).")
		} else {
			log.Printf("Warning: Error loading .env file: %v. Relying on OS environment variables.", errEnv)
		}
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	jwtSecret := getRequiredEnv("JWT_SECRET")

	startingCashStr := getEnv("STARTING_CASH", "10000")
	startingCash, err := decimal.NewFromString(startingCashStr)
	if err != nil || startingCash.IsNegative() {
		log.Printf("WARNING: Invalid STARTING_CASH value '%s'. Using default 10000. Error: %v", startingCashStr, err)
		startingCash = decimal.NewFromInt(10000)
	}

	Cfg = &AppConfig{
		// Core
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "./papertrade.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		// Security
		JWTSecret:     jwtSecret,
		SessionExpiry: getEnvAsDuration("SESSION_EXPIRY", 24*time.Hour),

		// Trading
		StartingCash: startingCash,

		// Quotes
		QuoteAPIBaseURL: getEnv("QUOTE_API_BASE_URL", "https://query1.finance.yahoo.com"),
		QuoteTimeout:    getEnvAsDuration("QUOTE_TIMEOUT", 10*time.Second),
		QuoteCacheTTL:   getEnvAsDuration("QUOTE_CACHE_TTL", 60*time.Second),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, QuoteAPI=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.QuoteAPIBaseURL)
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

// getRequiredEnv retrieves an environment variable or terminates the application if not set.
func getRequiredEnv(key string) string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set or is empty. Application cannot start securely.", key)
	}
	return value
}

// getEnvAsDuration retrieves an environment variable as a time.Duration or returns a fallback.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}
