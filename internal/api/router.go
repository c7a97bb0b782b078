package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/codescope-api/internal/api/middleware"
	"github.com/phrazzld/codescope-api/internal/api/shared"
	"github.com/phrazzld/codescope-api/internal/service/auth"
	"github.com/phrazzld/codescope-api/internal/store"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// RouterDeps holds everything the HTTP surface needs.
type RouterDeps struct {
	Logger           *slog.Logger
	JWTService       auth.JWTService
	PasswordVerifier auth.PasswordVerifier
	UserStore        store.UserStore
	Tasks            TaskService
	Reports          ReportService
	Events           Subscriber

	// Metrics, when set, instruments every route and serves /metrics
	Metrics interface {
		Middleware(http.Handler) http.Handler
		Handler() http.Handler
	}

	// Health checks run by /health, keyed by dependency name
	Health map[string]HealthCheck

	// StreamPoll is the WebSocket refresh interval; zero uses the default
	StreamPoll time.Duration
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewRouter builds the chi router serving the API.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewTraceMiddleware(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	authHandler := NewAuthHandler(deps.UserStore, deps.JWTService, deps.PasswordVerifier)
	authMiddleware := middleware.NewAuthMiddleware(deps.JWTService)
	taskHandler := NewTaskHandler(deps.Tasks)
	reportHandler := NewReportHandler(deps.Reports)
	streamHandler := NewStreamHandler(deps.Tasks, deps.Events, deps.StreamPoll)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Post("/tasks", taskHandler.SubmitTask)
			r.Get("/tasks", taskHandler.ListTasks)
			r.Get("/tasks/{id}", taskHandler.GetTask)
			r.Delete("/tasks/{id}", taskHandler.CancelTask)
			r.Get("/tasks/{id}/stream", streamHandler.StreamTask)

			r.Get("/reports", reportHandler.ListReports)
			r.Get("/reports/{id}", reportHandler.GetReport)
			r.Get("/reports/{id}/download", reportHandler.DownloadReport)
			r.Delete("/reports/{id}", reportHandler.DeleteReport)
		})
	})

	r.Get("/health", healthHandler(deps.Health))
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := HealthResponse{Status: "ok"}
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		shared.RespondWithJSON(w, r, status, resp)
	}
}
