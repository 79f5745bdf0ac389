package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/snaplate/backend/internal/api"
	"github.com/snaplate/backend/internal/auth"
	"github.com/snaplate/backend/internal/capture"
	"github.com/snaplate/backend/internal/config"
	"github.com/snaplate/backend/internal/db"
	"github.com/snaplate/backend/internal/dispatch"
	"github.com/snaplate/backend/internal/history"
	"github.com/snaplate/backend/internal/imaging"
	"github.com/snaplate/backend/internal/logging"
	"github.com/snaplate/backend/internal/projector"
	"github.com/snaplate/backend/internal/translate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	base, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	logger := base.Sugar()
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Errorw("server stopped", "error", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	database, err := db.Open(ctx, cfg.DBPath, cfg.DBDebug)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()
	logger.Infow("database ready", "path", cfg.DBPath)

	// Ensure admin user exists
	if err := database.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}
	logger.Infow("admin user ensured", "username", cfg.AdminUsername)
	if cfg.GeneratedJWTSecret {
		logger.Warnw("JWT_SECRET not set, generated a random secret; tokens will not survive a restart")
	}

	imageOpts := imaging.Options{
		MaxDimension: cfg.Image.MaxDimension,
		Quality:      cfg.Image.JPEGQuality,
		MaxPixels:    cfg.Image.MaxPixels,
	}
	store := history.NewSQLStore(database.DB())
	client := translate.NewClient(translate.ClientOptions{
		BaseURL:        cfg.Translate.BaseURL,
		TargetLanguage: cfg.Translate.TargetLanguage,
		Timeout:        cfg.Translate.Timeout,
		Image:          imageOpts,
		Logger:         logger.Named("translate"),
	})

	queue := dispatch.NewQueue(cfg.Dispatch.Workers, logger.Named("dispatch"))
	defer queue.Stop()

	orch := capture.New(capture.Options{
		Translator:     client,
		Store:          store,
		Dispatcher:     queue,
		Image:          imageOpts,
		TargetLanguage: cfg.Translate.TargetLanguage,
		Logger:         logger.Named("capture"),
	})
	defer orch.Close()

	router, stopRouter := api.NewRouter(api.Deps{
		Config:       cfg,
		Database:     database,
		JWT:          auth.NewJWTService(cfg.JWTSecret),
		Orchestrator: orch,
		Projector:    projector.New(store, time.Local, logger.Named("history")),
		Queue:        queue,
		Logger:       logger.Named("http"),
	})
	defer stopRouter()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// long enough for a bounded wait to run its course
		WriteTimeout: cfg.WaitBudget() + 30*time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("starting server",
			"addr", srv.Addr,
			"translate_base_url", cfg.Translate.BaseURL,
			"target_language", cfg.Translate.TargetLanguage,
			"wait_budget", cfg.WaitBudget(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("http shutdown", "error", err)
	}
	// deferred: router limiter, orchestrator, queue, database
	return nil
}
