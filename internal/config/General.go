package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment
// variables. These are populated at startup by LoadConfig.
var (
	// ChainID is the chain the engine manages accounts on.
	ChainID string

	// MarketDataURL is the base URL of the market/position provider API.
	MarketDataURL string
	// MarketDataAPIKey authenticates provider requests. Optional.
	MarketDataAPIKey string

	// GeminiAPIKey enables the language-model strategy advisor. When empty the
	// engine falls back to a static advisor.
	GeminiAPIKey string
	// GeminiModel is the model identifier used for advisor requests.
	GeminiModel string

	// LoopInterval is the delay between scheduler cycles.
	LoopInterval time.Duration

	// WebPort is the status/control API port.
	WebPort string
)

// LoadConfig loads configuration from environment variables and sets the
// global config vars. Variables without a listed default are required.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	ChainID, err = getEnv("SAE_CHAIN_ID")
	if err != nil {
		return err
	}

	MarketDataURL, err = getEnv("SAE_MARKET_DATA_URL")
	if err != nil {
		return err
	}

	MarketDataAPIKey = getEnvOr("SAE_MARKET_DATA_API_KEY", "")
	GeminiAPIKey = getEnvOr("GEMINI_API_KEY", "")
	GeminiModel = getEnvOr("GEMINI_MODEL", "gemini-2.0-flash")
	WebPort = getEnvOr("WEB_PORT", "8080")

	intervalSeconds, err := getEnvAsIntOr("SAE_LOOP_INTERVAL_SECONDS", 600)
	if err != nil {
		return err
	}
	LoopInterval = time.Duration(intervalSeconds) * time.Second

	log.Debug().
		Str("ChainID", ChainID).
		Str("MarketDataURL", MarketDataURL).
		Dur("LoopInterval", LoopInterval).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOr retrieves a string environment variable with a fallback.
func getEnvOr(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvAsIntOr retrieves an integer environment variable with a fallback.
// Returns error only when the variable is set but malformed.
func getEnvAsIntOr(key string, fallback int) (int, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid integer, got: " + valueStr)
	}
	return value, nil
}
