package routes

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"p9e.in/lakewatch/handlers"
	"p9e.in/lakewatch/middleware"
	"p9e.in/lakewatch/pkg/metrics"
)

// Deps are the collaborators the router wires together.
type Deps struct {
	Observations *handlers.ObservationHandler
	Auth         *middleware.Auth
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	Ping         handlers.Pinger
}

// RegisterRoutes sets up all application routes
func RegisterRoutes(d Deps) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(d.Logger, d.Metrics))

	// =====================================================
	// Operational routes (no authentication)
	// =====================================================
	r.HandleFunc("/healthz", handlers.Health(d.Ping)).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})).Methods("GET")

	// =====================================================
	// API routes (JWT optional, admin for deletion)
	// =====================================================
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(d.Auth.OptionalJWT)
	registerObservationRoutes(api, d.Observations)

	return r
}

func registerObservationRoutes(api *mux.Router, h *handlers.ObservationHandler) {
	obs := api.PathPrefix("/observations").Subrouter()
	obs.HandleFunc("", h.List).Methods("GET")
	obs.HandleFunc("", h.Create).Methods("POST")
	// export must come before {id}
	obs.HandleFunc("/export", h.Export).Methods("GET")
	obs.HandleFunc("/{id}", h.Get).Methods("GET")
	obs.Handle("/{id}", middleware.RequireRole([]string{middleware.RoleAdmin}, http.HandlerFunc(h.Delete))).Methods("DELETE")
}
