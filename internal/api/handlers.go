// internal/api/handlers.go
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/vku-open-source-2025/openinfra-sub001/internal/telemetry"
)

// Handlers serves the JSON endpoints over the telemetry service.
type Handlers struct {
	Log     *slog.Logger
	Service *telemetry.Service
}

func (h *Handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handlers) handleRegisterSensor(w http.ResponseWriter, r *http.Request) {
	var def telemetry.SensorDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sensor, err := h.Service.RegisterSensor(r.Context(), def)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, sensor)
}

func (h *Handlers) handleListSensors(w http.ResponseWriter, r *http.Request) {
	f := telemetry.SensorFilter{
		Status: telemetry.SensorStatus(r.URL.Query().Get("status")),
	}
	sensors, err := h.Service.ListSensors(r.Context(), f)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sensors)
}

func (h *Handlers) handleGetSensor(w http.ResponseWriter, r *http.Request) {
	sensor, err := h.Service.GetSensor(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sensor)
}

func (h *Handlers) handleIngestReading(w http.ResponseWriter, r *http.Request) {
	var in telemetry.ReadingInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	reading, err := h.Service.IngestReading(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, reading)
}

func (h *Handlers) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	var items []telemetry.BatchItem
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res := h.Service.IngestBatch(r.Context(), items)
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) handleGetReadings(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.parseWindow(w, r)
	if !ok {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "bad 'limit'")
			return
		}
		limit = n
	}
	readings, err := h.Service.GetReadings(r.Context(), mux.Vars(r)["id"], from, to, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, readings)
}

func (h *Handlers) handleStatistics(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.parseWindow(w, r)
	if !ok {
		return
	}
	g := telemetry.Granularity(r.URL.Query().Get("granularity"))
	if g == "" {
		g = telemetry.GranularityHour
	}
	buckets, err := h.Service.Aggregate(r.Context(), mux.Vars(r)["id"], from, to, g)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, buckets)
}

func (h *Handlers) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := telemetry.AlertFilter{
		Status:    telemetry.AlertStatus(q.Get("status")),
		Severity:  telemetry.AlertSeverity(q.Get("severity")),
		SubjectID: q.Get("subjectId"),
	}
	alerts, err := h.Service.ListAlerts(r.Context(), f)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, alerts)
}

type transitionBody struct {
	Actor string `json:"actor"`
	Notes string `json:"notes,omitempty"`
}

func (h *Handlers) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	body, ok := h.parseTransition(w, r)
	if !ok {
		return
	}
	alert, err := h.Service.AcknowledgeAlert(r.Context(), mux.Vars(r)["id"], body.Actor)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, alert)
}

func (h *Handlers) handleResolve(w http.ResponseWriter, r *http.Request) {
	body, ok := h.parseTransition(w, r)
	if !ok {
		return
	}
	alert, err := h.Service.ResolveAlert(r.Context(), mux.Vars(r)["id"], body.Actor, body.Notes)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, alert)
}

func (h *Handlers) handleDismiss(w http.ResponseWriter, r *http.Request) {
	body, ok := h.parseTransition(w, r)
	if !ok {
		return
	}
	alert, err := h.Service.DismissAlert(r.Context(), mux.Vars(r)["id"], body.Actor)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, alert)
}

func (h *Handlers) handleSweep(w http.ResponseWriter, r *http.Request) {
	staleness := time.Duration(0)
	if v := r.URL.Query().Get("stalenessMinutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "bad 'stalenessMinutes'")
			return
		}
		staleness = time.Duration(n) * time.Minute
	}
	res, err := h.Service.SweepOfflineSensors(r.Context(), staleness)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) parseTransition(w http.ResponseWriter, r *http.Request) (transitionBody, bool) {
	var body transitionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return body, false
	}
	if body.Actor == "" {
		h.writeError(w, http.StatusBadRequest, "missing actor")
		return body, false
	}
	return body, true
}

// parseWindow extracts from/to, defaulting to the last 24 hours.
func (h *Handlers) parseWindow(w http.ResponseWriter, r *http.Request) (from, to time.Time, ok bool) {
	q := r.URL.Query()
	to = time.Now().UTC()
	from = to.Add(-24 * time.Hour)
	var err error
	if v := q.Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			h.writeError(w, http.StatusBadRequest, "bad 'from' (RFC3339)")
			return from, to, false
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			h.writeError(w, http.StatusBadRequest, "bad 'to' (RFC3339)")
			return from, to, false
		}
	}
	return from, to, true
}

func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	var (
		vErr *telemetry.ValidationError
		nErr *telemetry.NotFoundError
		tErr *telemetry.InvalidTransitionError
	)
	switch {
	case errors.As(err, &vErr):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &nErr):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &tErr):
		h.writeError(w, http.StatusConflict, err.Error())
	default:
		h.Log.Error("request_failed", slog.Any("err", err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Log.Error("write_response_failed", slog.Any("err", err))
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
