// Package app wires configuration, storage, clients, and services into a
// single App shared by cmd/dictum-server and the test harness.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dictumlegal/dictum/internal/clients/gemini"
	"github.com/dictumlegal/dictum/internal/common"
	"github.com/dictumlegal/dictum/internal/interfaces"
	"github.com/dictumlegal/dictum/internal/services/collab"
	"github.com/dictumlegal/dictum/internal/services/export"
	"github.com/dictumlegal/dictum/internal/services/extract"
	"github.com/dictumlegal/dictum/internal/services/letters"
	"github.com/dictumlegal/dictum/internal/services/templates"
	"github.com/dictumlegal/dictum/internal/storage"
	"github.com/dictumlegal/dictum/internal/storage/surrealdb"
)

// App holds all initialized services, clients, and storage.
type App struct {
	Config          *common.Config
	Logger          *common.Logger
	Storage         interfaces.StorageManager
	Blobs           storage.BlobStore
	GeminiClient    interfaces.GeminiClient
	TemplateService interfaces.TemplateService
	LetterService   interfaces.LetterService
	ExportService   interfaces.ExportService
	ExtractService  *extract.Service
	CollabHub       *collab.Hub
	CollabTokens    *collab.TokenIssuer
	Sweeper         *export.Sweeper
	StartupTime     time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes storage, clients, and services from configuration.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	common.LoadVersionFromFile()

	binDir := getBinaryDir()

	// Load configuration - check provided path, DICTUM_CONFIG, then binary dir, then fallback
	if configPath == "" {
		configPath = os.Getenv("DICTUM_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "dictum.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/dictum.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve relative blob path to binary directory
	if config.Blob.File.BasePath != "" && !filepath.IsAbs(config.Blob.File.BasePath) {
		config.Blob.File.BasePath = filepath.Join(binDir, config.Blob.File.BasePath)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	storageManager, err := surrealdb.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	ctx := context.Background()

	blobs, err := storage.NewBlobStore(ctx, logger, &config.Blob)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}

	// Gemini is optional. Without it the server still serves reads,
	// uploads, collab, and exports; generation returns 503.
	var geminiClient interfaces.GeminiClient
	if config.Clients.Gemini.APIKey != "" {
		client, err := gemini.NewClient(ctx, config.Clients.Gemini.APIKey,
			gemini.WithLogger(logger),
			gemini.WithModel(config.Clients.Gemini.Model),
			gemini.WithRateLimit(config.Clients.Gemini.RateLimit),
			gemini.WithTimeout(config.Clients.Gemini.GetTimeout()),
		)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize Gemini client - letter generation will be unavailable")
		} else {
			geminiClient = client
		}
	} else {
		logger.Warn().Msg("Gemini API key not configured - letter generation will be unavailable")
	}

	templateService := templates.NewService(storageManager.TemplateStore(), logger)
	extractService := extract.NewService(storageManager.DocumentStore(), blobs, logger, config.Letters.MaxExtractChars)
	letterService := letters.NewService(
		storageManager.LetterStore(),
		storageManager.AccountStore(),
		templateService,
		extractService,
		geminiClient,
		logger,
		config.Letters.MaxPromptChars,
	)
	exportService := export.NewService(storageManager.ExportStore(), blobs, logger)

	// Seed the built-in template library on first boot.
	if err := templates.Seed(ctx, storageManager.AccountStore(), storageManager.TemplateStore(), logger); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed template library")
	}

	hub := collab.NewHub(storageManager.LetterStore(), logger)
	tokens := collab.NewTokenIssuer(config.Auth.JWTSecret, config.Auth.GetCollabTokenExpiry())

	sweeper := export.NewSweeper(exportService, config.Exports.GetSweepInterval(), config.Exports.GetMaxAge())
	sweeper.Start()

	a := &App{
		Config:          config,
		Logger:          logger,
		Storage:         storageManager,
		Blobs:           blobs,
		GeminiClient:    geminiClient,
		TemplateService: templateService,
		LetterService:   letterService,
		ExportService:   exportService,
		ExtractService:  extractService,
		CollabHub:       hub,
		CollabTokens:    tokens,
		Sweeper:         sweeper,
		StartupTime:     startupStart,
	}

	logger.Info().
		Str("environment", config.Environment).
		Dur("startup", time.Since(startupStart)).
		Msg("App initialized")

	return a, nil
}

// Close shuts down background workers and storage in dependency order.
func (a *App) Close() {
	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}
	if a.CollabHub != nil {
		a.CollabHub.Stop()
	}
	if a.Blobs != nil {
		if err := a.Blobs.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("Failed to close blob store")
		}
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("Failed to close storage")
		}
	}
}
