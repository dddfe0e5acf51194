// Package api exposes the simulation over HTTP: control, queries, a live
// WebSocket stream, plugin management and Prometheus metrics.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"homesim/internal/engine"
	"homesim/internal/events"
	"homesim/internal/logger"
	"homesim/internal/metrics"
	"homesim/internal/plugins"
	"homesim/internal/storage"
)

// ServerDeps holds everything the HTTP layer talks to. Metrics and Plugins
// are optional.
type ServerDeps struct {
	Engine   *engine.Engine
	Storage  storage.Storage
	Plugins  *plugins.Registry
	Metrics  *metrics.Metrics
	Events   *events.Store
	Logger   *logger.Logger
	Version  string
	Settings SettingsReloader
}

// SettingsReloader re-reads configuration from disk.
type SettingsReloader interface {
	Reload() error
}

// Server represents the API server
type Server struct {
	router *chi.Mux
	deps   ServerDeps
	log    *logger.Logger
}

// NewServer creates the API server and registers all routes
func NewServer(deps ServerDeps) *Server {
	if deps.Events == nil {
		deps.Events = events.NewStore(100)
	}
	s := &Server{
		router: chi.NewRouter(),
		deps:   deps,
		log:    deps.Logger.With("API"),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	r := s.router

	// Middleware
	if s.deps.Metrics != nil {
		r.Use(s.deps.Metrics.Middleware)
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: s.log, NoColor: true}))
	r.Use(middleware.Recoverer)

	// Create handlers
	simHandler := NewSimulationHandler(s.deps.Engine, s.deps.Storage, s.deps.Events, s.deps.Logger)
	queryHandler := NewQueryHandler(s.deps.Engine, s.deps.Storage)
	streamHandler := NewStreamHandler(s.deps.Engine, s.deps.Logger)
	eventsHandler := NewEventsHandler(s.deps.Events)
	pluginHandler := NewPluginHandler(s.deps.Plugins, s.deps.Events)

	r.Get("/api/stream", streamHandler.Connect)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))

		// Simulation control
		r.Post("/api/simulation/start", simHandler.Start)
		r.Post("/api/simulation/stop", simHandler.Stop)
		r.Get("/api/simulation/status", simHandler.Status)
		r.Get("/api/optimization", simHandler.GetOptimization)
		r.Put("/api/optimization", simHandler.UpdateOptimization)
		if s.deps.Settings != nil {
			r.Post("/api/config/reload", s.reloadConfig)
		}

		// Queries
		r.Get("/api/sensors", queryHandler.Sensors)
		r.Get("/api/sensors/{sensorID}", queryHandler.Sensor)
		r.Get("/api/stats", queryHandler.Stats)
		r.Get("/api/alerts", queryHandler.Alerts)
		r.Get("/api/alerts/summary", queryHandler.AlertSummary)
		r.Get("/api/alerts/{sensorID}", queryHandler.Alert)
		r.Get("/api/history", queryHandler.History)
		r.Get("/api/runs", queryHandler.Runs)

		// Audit log
		r.Get("/api/events", eventsHandler.List)

		// Plugins Management
		r.Get("/api/plugins", pluginHandler.List)
		r.Get("/api/plugins/{name}", pluginHandler.Get)
		r.Post("/api/plugins/{name}/enable", pluginHandler.Enable)
		r.Post("/api/plugins/{name}/disable", pluginHandler.Disable)

		// Register plugin routes
		s.registerPluginRoutes(r)
	})

	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics.Handler())
	}
	r.Get("/healthz", s.health)
}

// registerPluginRoutes registers the routes of every registered plugin.
// Routes of a stopped plugin answer 503 until it is enabled.
func (s *Server) registerPluginRoutes(r chi.Router) {
	if s.deps.Plugins == nil {
		return
	}

	for _, plugin := range s.deps.Plugins.All() {
		name := plugin.Name()
		for _, route := range plugin.Routes() {
			next := route.Handler
			handler := func(w http.ResponseWriter, req *http.Request) {
				if s.deps.Plugins.Status(name) != plugins.StatusRunning {
					writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "plugin " + name + " is not running"})
					return
				}
				next(w, req)
			}

			switch route.Method {
			case http.MethodGet:
				r.Get(route.Path, handler)
			case http.MethodPost:
				r.Post(route.Path, handler)
			case http.MethodPut:
				r.Put(route.Path, handler)
			case http.MethodPatch:
				r.Patch(route.Path, handler)
			case http.MethodDelete:
				r.Delete(route.Path, handler)
			default:
				s.log.Warnf("Unknown HTTP method for plugin route: %s %s", route.Method, route.Path)
				continue
			}

			s.log.Debugf("Registered plugin route: %s %s (plugin=%s)", route.Method, route.Path, name)
		}
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.deps.Version,
		"state":   s.deps.Engine.Status().String(),
	})
}

// reloadConfig re-reads the configuration file
// POST /api/config/reload
func (s *Server) reloadConfig(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Settings.Reload()
	s.deps.Events.Add(events.EventConfigReload, getClientIP(r), err == nil, errString(err))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// Router returns the chi router
func (s *Server) Router() *chi.Mux {
	return s.router
}

// writeJSON writes JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps an error onto a status code: rejected input is 400, an
// unknown sensor 404, anything else 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var verr *engine.ValidationError
	switch {
	case errors.Is(err, engine.ErrUnknownSensor):
		status = http.StatusNotFound
	case errors.As(err, &verr):
		status = http.StatusBadRequest
	case errors.Is(err, plugins.ErrPluginNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrNotRunning):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
