package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-cargo/meridian-cargo/internal/ledger"
	"github.com/meridian-cargo/meridian-cargo/internal/observability"
	"github.com/meridian-cargo/meridian-cargo/internal/partners"
	"github.com/meridian-cargo/meridian-cargo/internal/rates"
	"github.com/meridian-cargo/meridian-cargo/internal/simulation"
	"github.com/meridian-cargo/meridian-cargo/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	PartnersHandler   *partners.Handler
	RatesHandler      *rates.Handler
	SimulationHandler *simulation.Handler
	LedgerHandler     *ledger.Handler
	JobsHandler       *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/partners", params.PartnersHandler.MountRoutes)
	r.Route("/rates", params.RatesHandler.MountRoutes)
	r.Route("/simulations", params.SimulationHandler.MountRoutes)
	r.Route("/ledger", params.LedgerHandler.MountRoutes)
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
