package main

import (
	"context"
	"os"
	"strconv"

	"github.com/axiom-fi/sae/internal/advisor"
	"github.com/axiom-fi/sae/internal/config"
	"github.com/axiom-fi/sae/internal/logger"
	"github.com/axiom-fi/sae/internal/marketdata"
	"github.com/axiom-fi/sae/internal/registry"
	"github.com/axiom-fi/sae/internal/scheduler"
	"github.com/axiom-fi/sae/internal/state"
	"github.com/axiom-fi/sae/internal/submitter"
	"github.com/axiom-fi/sae/internal/web"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	DEFAULT_PARAMS_CONFIG_NAME    = "default_sae_engine"
	DEFAULT_PARAMS_CONFIG_VERSION = 1
)

// main is the entry point for the SAE system.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	log.Info().Msg("SAE Core Logic Starting...")

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// Load Engine Parameters
	engineParams, err := state.LoadActiveEngineParameters(DEFAULT_PARAMS_CONFIG_NAME)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load active engine parameters, using defaults and saving.")
		defaultParams := config.DefaultEngineParameters
		if _, err := state.SaveEngineParameters(defaultParams, DEFAULT_PARAMS_CONFIG_NAME, DEFAULT_PARAMS_CONFIG_VERSION, true); err != nil {
			log.Fatal().Err(err).Msg("Failed to save initial default engine parameters.")
		}
		engineParams = &defaultParams
	}
	log.Info().Msg("Engine parameters loaded successfully.")

	// --- 2. External Collaborators ---
	provider, err := marketdata.NewHTTPProvider(config.MarketDataURL, config.MarketDataAPIKey, 0)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize market data provider")
	}

	ctx := context.Background()

	var strategyAdvisor advisor.StrategyAdvisor
	if config.GeminiAPIKey != "" {
		log.Info().Str("model", config.GeminiModel).Msg("Using Gemini strategy advisor")
		strategyAdvisor, err = advisor.NewGemini(ctx, config.GeminiAPIKey, config.GeminiModel)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Gemini advisor")
		}
	} else {
		log.Info().Msg("GEMINI_API_KEY not set, using rule-based strategy advisor")
		strategyAdvisor = advisor.NewRuleBased(*engineParams)
	}

	// Live submission stays external; the engine always runs dry.
	txSubmitter := submitter.NewDryRun()

	// --- 3. Engine Assembly with Dependency Injection ---
	reg := registry.New()

	sched, err := scheduler.New(scheduler.Config{
		Registry:  reg,
		Provider:  provider,
		Advisor:   strategyAdvisor,
		Submitter: txSubmitter,
		Store:     state.Store{},
		Params:    *engineParams,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}

	// --- 4. Start Web Server ---
	webServer := web.NewWebServer(config.WebPort, reg, sched)
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting SAE web API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 5. Start Scheduler Loop ---
	log.Info().Str("interval", config.LoopInterval.String()).Msg("Starting scheduler main loop")
	sched.RunLoop(ctx, config.LoopInterval)
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
