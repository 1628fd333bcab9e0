// internal/api/router.go

// Package api is the thin JSON facade over the telemetry service. It does
// transport glue only; validation and semantics live in the service.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vku-open-source-2025/openinfra-sub001/internal/observability"
)

// NewRouter wires all HTTP routes exposed by the telemetry daemon.
func NewRouter(h *Handlers, metrics *observability.Metrics) *mux.Router {
	r := mux.NewRouter()

	wrap := func(route string, fn http.HandlerFunc) http.Handler {
		return metrics.WrapHandler(route, fn)
	}

	r.Handle("/health", wrap("health", h.handleHealth)).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.Handle("/sensors", wrap("sensors_create", h.handleRegisterSensor)).Methods(http.MethodPost)
	r.Handle("/sensors", wrap("sensors_list", h.handleListSensors)).Methods(http.MethodGet)
	r.Handle("/sensors/{id}", wrap("sensors_get", h.handleGetSensor)).Methods(http.MethodGet)
	r.Handle("/sensors/{id}/readings", wrap("readings_list", h.handleGetReadings)).Methods(http.MethodGet)
	r.Handle("/sensors/{id}/statistics", wrap("statistics", h.handleStatistics)).Methods(http.MethodGet)

	r.Handle("/readings", wrap("readings_ingest", h.handleIngestReading)).Methods(http.MethodPost)
	r.Handle("/readings/batch", wrap("readings_batch", h.handleIngestBatch)).Methods(http.MethodPost)

	r.Handle("/alerts", wrap("alerts_list", h.handleListAlerts)).Methods(http.MethodGet)
	r.Handle("/alerts/{id}/acknowledge", wrap("alerts_ack", h.handleAcknowledge)).Methods(http.MethodPost)
	r.Handle("/alerts/{id}/resolve", wrap("alerts_resolve", h.handleResolve)).Methods(http.MethodPost)
	r.Handle("/alerts/{id}/dismiss", wrap("alerts_dismiss", h.handleDismiss)).Methods(http.MethodPost)

	r.Handle("/sweep", wrap("sweep", h.handleSweep)).Methods(http.MethodPost)

	return r
}
