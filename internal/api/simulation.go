package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"homesim/internal/engine"
	"homesim/internal/events"
	"homesim/internal/logger"
	"homesim/internal/optimizer"
	"homesim/internal/storage"
)

const (
	// SettingsNamespace is the storage namespace for engine settings
	SettingsNamespace = "engine"
	// OptimizationKey stores the last accepted OptimizationSettings
	OptimizationKey = "optimization"
)

// OptimizationSettings is the persisted and exchanged optimization state
type OptimizationSettings struct {
	DutyCycle         float64 `json:"dutyCycle"`
	AggregationFactor float64 `json:"aggregationFactor"`
	Adaptive          bool    `json:"adaptive"`
}

// optimizationUpdate allows partial updates: omitted fields keep their value
type optimizationUpdate struct {
	DutyCycle         *float64 `json:"dutyCycle"`
	AggregationFactor *float64 `json:"aggregationFactor"`
	Adaptive          *bool    `json:"adaptive"`
}

// LoadOptimization reads persisted settings. It reports false when nothing
// was stored yet.
func LoadOptimization(store storage.Storage) (OptimizationSettings, bool, error) {
	var s OptimizationSettings
	if store == nil {
		return s, false, nil
	}
	if err := store.GetJSON(SettingsNamespace, OptimizationKey, &s); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s, false, nil
		}
		return s, false, fmt.Errorf("load optimization settings: %w", err)
	}
	return s, true, nil
}

// ApplyOptimization validates and applies s to the engine as one change.
func ApplyOptimization(e *engine.Engine, s OptimizationSettings) error {
	if err := e.SetOptimization(optimizer.Config{DutyCycle: s.DutyCycle, AggregationFactor: s.AggregationFactor}); err != nil {
		return err
	}
	e.SetAdaptive(s.Adaptive)
	return nil
}

func currentOptimization(e *engine.Engine) OptimizationSettings {
	cfg := e.Optimization()
	return OptimizationSettings{
		DutyCycle:         cfg.DutyCycle,
		AggregationFactor: cfg.AggregationFactor,
		Adaptive:          e.Adaptive(),
	}
}

// SimulationHandler handles simulation control endpoints
type SimulationHandler struct {
	engine     *engine.Engine
	store      storage.Storage
	eventStore *events.Store
	log        *logger.Logger
}

// NewSimulationHandler creates new simulation handler
func NewSimulationHandler(e *engine.Engine, store storage.Storage, eventStore *events.Store, log *logger.Logger) *SimulationHandler {
	return &SimulationHandler{
		engine:     e,
		store:      store,
		eventStore: eventStore,
		log:        log.With("Simulation"),
	}
}

// StatusResponse describes the simulation state
type StatusResponse struct {
	State        engine.State         `json:"state"`
	Tick         uint64               `json:"tick"`
	TickInterval string               `json:"tickInterval"`
	GateMode     optimizer.GateMode   `json:"gateMode"`
	Sensors      int                  `json:"sensors"`
	Subscribers  int                  `json:"subscribers"`
	Optimization OptimizationSettings `json:"optimization"`
	LastRun      *engine.RunReport    `json:"lastRun,omitempty"`
}

// controlResponse is returned by start and stop
type controlResponse struct {
	Status engine.Status `json:"status"`
	State  engine.State  `json:"state"`
}

// Start starts the simulation
// POST /api/simulation/start
func (h *SimulationHandler) Start(w http.ResponseWriter, r *http.Request) {
	status, err := h.engine.Start()
	h.eventStore.Add(events.EventSimulationStart, getClientIP(r), err == nil, string(status))
	if err != nil {
		h.log.Errorf("Failed to start simulation: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, controlResponse{Status: status, State: h.engine.Status()})
}

// Stop stops the simulation
// POST /api/simulation/stop
func (h *SimulationHandler) Stop(w http.ResponseWriter, r *http.Request) {
	status, err := h.engine.Stop()
	h.eventStore.Add(events.EventSimulationStop, getClientIP(r), err == nil, string(status))
	if err != nil {
		h.log.Errorf("Failed to stop simulation: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, controlResponse{Status: status, State: h.engine.Status()})
}

// Status returns the simulation state
// GET /api/simulation/status
func (h *SimulationHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		State:        h.engine.Status(),
		Tick:         h.engine.Tick(),
		TickInterval: h.engine.TickInterval().String(),
		GateMode:     h.engine.GateMode(),
		Sensors:      len(h.engine.Sensors()),
		Subscribers:  h.engine.Hub().SubscriberCount(),
		Optimization: currentOptimization(h.engine),
	}
	if rep, ok := h.engine.LastRun(); ok {
		resp.LastRun = &rep
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetOptimization returns the optimization settings
// GET /api/optimization
func (h *SimulationHandler) GetOptimization(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentOptimization(h.engine))
}

// UpdateOptimization changes and persists the optimization settings.
// Both fractions are validated before anything is applied.
// PUT /api/optimization
func (h *SimulationHandler) UpdateOptimization(w http.ResponseWriter, r *http.Request) {
	var req optimizationUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	next := currentOptimization(h.engine)
	if req.DutyCycle != nil {
		next.DutyCycle = *req.DutyCycle
	}
	if req.AggregationFactor != nil {
		next.AggregationFactor = *req.AggregationFactor
	}
	if req.Adaptive != nil {
		next.Adaptive = *req.Adaptive
	}

	details := fmt.Sprintf("dutyCycle=%g aggregationFactor=%g adaptive=%t", next.DutyCycle, next.AggregationFactor, next.Adaptive)
	if err := ApplyOptimization(h.engine, next); err != nil {
		h.eventStore.Add(events.EventOptimizationUpdate, getClientIP(r), false, err.Error())
		writeError(w, err)
		return
	}
	h.eventStore.Add(events.EventOptimizationUpdate, getClientIP(r), true, details)

	if h.store != nil {
		if err := h.store.SetJSON(SettingsNamespace, OptimizationKey, next); err != nil {
			h.log.Errorf("Failed to persist optimization settings: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to save settings"})
			return
		}
	}

	h.log.Infof("Optimization updated: %s", details)
	writeJSON(w, http.StatusOK, next)
}
