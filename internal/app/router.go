package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atelier-ai/atelier/internal/audit"
	"github.com/atelier-ai/atelier/internal/observability"
	"github.com/atelier-ai/atelier/internal/resource"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	AppsHandler     *resource.Handler
	DatasetsHandler *resource.Handler
	AuditHandler    *audit.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with Atelier defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/apps", params.AppsHandler.Routes)
	r.Route("/api/datasets", params.DatasetsHandler.Routes)
	if params.AuditHandler != nil {
		r.Route("/api/audit", params.AuditHandler.Routes)
	}

	return r
}
