package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/snaplate/backend/internal/api/handlers"
	"github.com/snaplate/backend/internal/api/middleware"
	"github.com/snaplate/backend/internal/auth"
	"github.com/snaplate/backend/internal/capture"
	"github.com/snaplate/backend/internal/config"
	"github.com/snaplate/backend/internal/db"
	"github.com/snaplate/backend/internal/dispatch"
	"github.com/snaplate/backend/internal/projector"
)

// jsonBodyLimit caps request bodies on JSON routes.
const jsonBodyLimit = 1 << 20

type Deps struct {
	Config       *config.Config
	Database     *db.Database
	JWT          *auth.JWTService
	Orchestrator *capture.Orchestrator
	Projector    *projector.Projector
	Queue        *dispatch.Queue
	Logger       *zap.SugaredLogger
}

// NewRouter builds the HTTP API. The returned stop func releases the
// rate limiter's background cleanup.
func NewRouter(d Deps) (*chi.Mux, func()) {
	cfg := d.Config
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(d.Logger))
	r.Use(cors.Handler(middleware.CORSHandler(cfg.CORSOrigins)))

	limiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	wait := capture.WaitPolicy{Interval: cfg.Wait.Interval, MaxAttempts: cfg.Wait.MaxAttempts}

	// Handlers
	healthHandler := handlers.NewHealthHandler(d.Database.DB())
	authHandler := handlers.NewAuthHandler(d.Database, d.JWT, d.Logger)
	settingsHandler := handlers.NewSettingsHandler(d.Database, cfg.Translate.TargetLanguage)
	captureHandler := handlers.NewCaptureHandler(d.Orchestrator, settingsHandler.TargetLanguage, wait, d.Logger)
	historyHandler := handlers.NewHistoryHandler(d.Projector, d.Logger)
	taskHandler := handlers.NewTaskHandler(d.Queue)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.Health)

		// Auth (public)
		r.With(middleware.MaxBodySize(jsonBodyLimit)).Post("/auth/login", authHandler.Login)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(d.JWT))

			// Auth
			r.Get("/auth/me", authHandler.Me)

			// Captures
			r.With(limiter.Handler, middleware.MaxBodySize(cfg.MaxUploadBytes)).Post("/captures", captureHandler.Create)
			r.Get("/captures/current", captureHandler.Current)
			r.Get("/captures/current/wait", captureHandler.Wait)
			r.Post("/captures/current/ack", captureHandler.Acknowledge)
			r.Delete("/captures/current", captureHandler.Reset)

			// History
			r.Get("/history", historyHandler.ListHistory)
			r.Get("/history/{id}", historyHandler.GetHistoryItem)
			r.Get("/history/{id}/image", historyHandler.GetHistoryImage)
			r.Delete("/history/{id}", historyHandler.DeleteHistoryItem)

			// Tasks
			r.Get("/tasks", taskHandler.ListTasks)
			r.Get("/tasks/{id}", taskHandler.GetTask)
			r.Delete("/tasks/{id}", taskHandler.CancelTask)

			// Settings
			r.Get("/settings", settingsHandler.GetSettings)
			r.With(middleware.RequireRole("admin"), middleware.MaxBodySize(jsonBodyLimit)).Put("/settings", settingsHandler.UpdateSettings)
		})
	})

	return r, limiter.Stop
}
