package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/octobees/leads-discovery/internal/app"
	"github.com/octobees/leads-discovery/internal/auth"
	"github.com/octobees/leads-discovery/internal/config"
	"github.com/octobees/leads-discovery/internal/database"
	"github.com/octobees/leads-discovery/internal/dto"
	"github.com/octobees/leads-discovery/internal/handler"
	middlewarepkg "github.com/octobees/leads-discovery/internal/middleware"
	"github.com/octobees/leads-discovery/internal/repository"
	"github.com/octobees/leads-discovery/internal/router"
	"github.com/octobees/leads-discovery/internal/service/credits"
	"github.com/octobees/leads-discovery/internal/source"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := config.InitLogger(cfg.Log); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	logger := zap.L()
	defer func() { _ = logger.Sync() }()

	var (
		directory source.DirectoryReader
		ledger    credits.Ledger
		runs      handler.RunStore
	)

	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			logger.Fatal("failed to connect database", zap.Error(err))
		}
		defer pool.Close()

		directory = repository.NewPGXDirectoryRepository(pool)
		ledger = repository.NewPGXCreditsRepository(pool, cfg.DefaultCredits)
		runs = repository.NewPGXSearchRunsRepository(pool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory credits and no run archive")
		ledger = credits.NewMemoryLedger(cfg.DefaultCredits)
	}

	// A CSV dataset overrides the database directory when both are configured.
	if cfg.DirectoryCSV != "" {
		mem, err := source.LoadDirectoryFile(cfg.DirectoryCSV)
		if err != nil {
			logger.Fatal("failed to load directory csv", zap.String("path", cfg.DirectoryCSV), zap.Error(err))
		}
		logger.Info("directory loaded", zap.String("path", cfg.DirectoryCSV), zap.Int("entries", mem.Len()))
		directory = mem
	}

	search, identity, err := app.ProviderSources(cfg, nil)
	if err != nil {
		logger.Fatal("failed to configure providers", zap.Error(err))
	}

	gate := credits.NewGate(ledger)
	orchestrator := app.NewOrchestrator(cfg, app.Sources{Directory: directory, Search: search, Identity: identity}, gate, logger)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)

	handlers := router.Handlers{
		Search: handler.NewSearchHandler(orchestrator, runs, dto.SearchLimits{
			DefaultTargetCount: cfg.DefaultTargetCount,
			MaxTargetCount:     cfg.MaxTargetCount,
		}, logger),
		Credits: handler.NewCreditsHandler(gate),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middlewarepkg.RequestID())
	e.Use(middlewarepkg.Logging(logger))
	e.Use(echoMiddleware.Recover())

	router.Register(e, cfg, jwtManager, handlers)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("api listening", zap.String("port", cfg.Port))
		serverErr <- e.Start(":" + cfg.Port)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
