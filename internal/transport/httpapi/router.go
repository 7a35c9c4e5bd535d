package httpapi

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/NeverShitty/rental-manager-sub001/internal/transport/httpapi/handler"
	"github.com/NeverShitty/rental-manager-sub001/internal/transport/httpapi/middleware"
	"github.com/NeverShitty/rental-manager-sub001/pkg/logger"
)

// Config holds router configuration
type Config struct {
	Logger             *logger.Logger
	AllowedOrigins     []string
	HealthHandler      *handler.HealthHandler
	RunHandler         *handler.RunHandler
	TransactionHandler *handler.TransactionHandler
	PushHandler        *handler.PushHandler
	AccountHandler     *handler.AccountHandler
}

// NewRouter creates a new HTTP router
func NewRouter(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Compress(5))
	r.Use(middleware.RateLimit()) // Rate limiting: 100 req/s with burst of 20

	// Health check endpoints
	r.Get("/health", handler.GetHealth)
	r.Get("/health/live", handler.GetLiveness)
	if cfg.HealthHandler != nil {
		r.Get("/health/ready", cfg.HealthHandler.GetReadiness)
		r.Get("/health/detailed", cfg.HealthHandler.GetHealthDetailed)
	}

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Reconciliation runs
		if cfg.RunHandler != nil {
			r.Post("/runs", cfg.RunHandler.TriggerRun)
			r.Get("/runs", cfg.RunHandler.ListRuns)
			r.Get("/runs/{id}", cfg.RunHandler.GetRun)
		}

		// Canonical ledger
		if cfg.TransactionHandler != nil {
			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", cfg.TransactionHandler.ListTransactions)
				r.Get("/uncategorized", cfg.TransactionHandler.ListUncategorized)
				r.Get("/{id}", cfg.TransactionHandler.GetTransaction)
				r.Put("/{id}/category", cfg.TransactionHandler.SetCategory)
				r.Post("/{id}/match", cfg.TransactionHandler.Match)
				r.Delete("/{id}/match", cfg.TransactionHandler.Unmatch)
			})
		}

		// Export to the system of record
		if cfg.PushHandler != nil {
			r.Get("/push/stuck", cfg.PushHandler.ListStuck)
			r.Post("/push/run", cfg.PushHandler.RunPush)
		}

		// External account snapshots
		if cfg.AccountHandler != nil {
			r.Get("/accounts", cfg.AccountHandler.ListAccounts)
		}
	})

	return r
}
