package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"homesim/internal/alert"
	"homesim/internal/engine"
	"homesim/internal/hub"
	"homesim/internal/power"
	"homesim/internal/storage"
)

const (
	defaultHistoryLimit = 100
	defaultRunsLimit    = 20
)

// QueryHandler serves read-only views of the simulation
type QueryHandler struct {
	engine *engine.Engine
	store  storage.Storage
}

// NewQueryHandler creates new query handler
func NewQueryHandler(e *engine.Engine, store storage.Storage) *QueryHandler {
	return &QueryHandler{engine: e, store: store}
}

// Sensors lists the configured sensors
// GET /api/sensors
func (h *QueryHandler) Sensors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Sensors())
}

// Sensor returns one sensor with its alert state
// GET /api/sensors/{sensorID}
func (h *QueryHandler) Sensor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sensorID")
	spec, err := h.engine.Sensor(id)
	if err != nil {
		writeError(w, err)
		return
	}
	st, err := h.engine.AlertState(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sensor": spec,
		"alert":  st,
	})
}

// StatsResponse is the current power picture
type StatsResponse struct {
	Tick               uint64               `json:"tick"`
	Power              power.Stats          `json:"power"`
	EffectiveDutyCycle float64              `json:"effectiveDutyCycle"`
	Sensors            []hub.SensorCounters `json:"sensors"`
}

// Stats returns the current energy statistics
// GET /api/stats
func (h *QueryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Tick:    h.engine.Tick(),
		Power:   h.engine.CurrentStats(),
		Sensors: []hub.SensorCounters{},
	}
	if snap, ok := h.engine.LatestSnapshot(); ok {
		resp.EffectiveDutyCycle = snap.EffectiveDutyCycle
		resp.Sensors = snap.Sensors
	}
	writeJSON(w, http.StatusOK, resp)
}

// Alerts returns the alert state of every sensor
// GET /api/alerts?active=true
func (h *QueryHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	states := h.engine.CurrentAlerts()
	if active, _ := strconv.ParseBool(r.URL.Query().Get("active")); active {
		filtered := make([]alert.State, 0, len(states))
		for _, st := range states {
			if st.Severity != alert.None {
				filtered = append(filtered, st)
			}
		}
		states = filtered
	}
	writeJSON(w, http.StatusOK, states)
}

// AlertSummary returns alert counts by severity, kind and sensor
// GET /api/alerts/summary
func (h *QueryHandler) AlertSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.AlertSummary())
}

// Alert returns one sensor's alert state
// GET /api/alerts/{sensorID}
func (h *QueryHandler) Alert(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.AlertState(chi.URLParam(r, "sensorID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// History returns recent reading and alert events, newest first
// GET /api/history?limit=100&since=123
func (h *QueryHandler) History(w http.ResponseWriter, r *http.Request) {
	history := h.engine.Hub().History()
	lastSeq := h.engine.Hub().LastSeq()

	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		since, err := strconv.ParseUint(sinceStr, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be a sequence number"})
			return
		}
		list := history.Since(since)
		if list == nil {
			list = []hub.Event{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"events":  list,
			"lastSeq": lastSeq,
		})
		return
	}

	limit := parseLimit(r, defaultHistoryLimit, history.Cap())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events":  h.engine.History(limit),
		"lastSeq": lastSeq,
	})
}

// Runs returns archived run reports, newest first
// GET /api/runs?limit=20
func (h *QueryHandler) Runs(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusOK, []storage.RunEntry{})
		return
	}
	runs, err := h.store.ListRuns(parseLimit(r, defaultRunsLimit, 1000))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}
