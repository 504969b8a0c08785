package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sharvin27/contracts-management-aptosc5/internal/api"
	"github.com/Sharvin27/contracts-management-aptosc5/internal/blobstore"
	"github.com/Sharvin27/contracts-management-aptosc5/internal/classify"
	"github.com/Sharvin27/contracts-management-aptosc5/internal/config"
	"github.com/Sharvin27/contracts-management-aptosc5/internal/db"
	"github.com/Sharvin27/contracts-management-aptosc5/internal/ledger"
	"github.com/Sharvin27/contracts-management-aptosc5/internal/repository"
	"github.com/Sharvin27/contracts-management-aptosc5/pkg/logger"
	"github.com/Sharvin27/contracts-management-aptosc5/pkg/metrics"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Secrets (Pinata keys, Gemini key, wallet bridge) live in .env locally.
	_ = godotenv.Load()

	cfg := config.InitializeDefaultConfig()
	config.ApplyEnv(cfg)

	zapLogger, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()
	zap.ReplaceGlobals(zapLogger)

	config.LogConfig(zapLogger)

	if cfg.Ledger.ModuleAddress == "" {
		zapLogger.Fatal("MODULE_ADDRESS is required; the service cannot reach the document module without it")
	}

	database, err := db.Initialize(cfg)
	if err != nil {
		zapLogger.Fatal("Failed to initialize database", zap.Error(err))
	}

	collector := metrics.NewCollector()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ledgerClient := ledger.NewClient(cfg.Ledger, zapLogger)
	store := blobstore.NewClient(cfg.BlobStore, zapLogger)

	var generator classify.TextGenerator
	if cfg.Classifier.APIKey != "" {
		gemini, err := classify.NewGeminiGenerator(ctx, cfg.Classifier.APIKey, cfg.Classifier.Model)
		if err != nil {
			zapLogger.Fatal("Failed to initialize classifier", zap.Error(err))
		}
		generator = gemini
	} else {
		zapLogger.Warn("No classifier API key set, all documents will be labeled 'other'")
	}
	classifier := classify.NewClassifier(generator, cfg.Classifier.MaxExcerpt, zapLogger)

	repo := repository.New(ledgerClient, store, classifier, database, zapLogger, collector)

	signerFor := func(address string) ledger.TransactionSigner {
		return ledger.NewWalletBridgeSigner(cfg.Wallet, address, zapLogger)
	}

	router := api.NewRouter(zapLogger, collector, repo, signerFor, cfg.Server.BaseURL)
	router.SetupRoutes()

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Server.Port
	}
	go func() {
		if err := router.Run(":" + port); err != nil {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()
	zapLogger.Info("Server started", zap.String("port", port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	router.Close()
	if sqlDB, err := database.DB(); err == nil {
		sqlDB.Close()
	}
	zapLogger.Info("Server gracefully stopped")
}
