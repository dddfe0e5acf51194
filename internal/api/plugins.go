package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"homesim/internal/events"
	"homesim/internal/plugins"
)

// PluginHandler handles plugin management endpoints
type PluginHandler struct {
	registry   *plugins.Registry
	eventStore *events.Store
}

// NewPluginHandler creates new plugin handler
func NewPluginHandler(registry *plugins.Registry, eventStore *events.Store) *PluginHandler {
	return &PluginHandler{registry: registry, eventStore: eventStore}
}

// List returns all registered plugins
// GET /api/plugins
func (h *PluginHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		writeJSON(w, http.StatusOK, []*plugins.PluginInfo{})
		return
	}
	writeJSON(w, http.StatusOK, h.registry.ListInfo())
}

// Get returns one plugin
// GET /api/plugins/{name}
func (h *PluginHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		writeError(w, plugins.ErrPluginNotFound)
		return
	}
	info, err := h.registry.GetInfo(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Enable enables and starts a plugin
// POST /api/plugins/{name}/enable
func (h *PluginHandler) Enable(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, true)
}

// Disable stops and disables a plugin
// POST /api/plugins/{name}/disable
func (h *PluginHandler) Disable(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, false)
}

func (h *PluginHandler) toggle(w http.ResponseWriter, r *http.Request, enable bool) {
	if h.registry == nil {
		writeError(w, plugins.ErrPluginNotFound)
		return
	}
	name := chi.URLParam(r, "name")

	var err error
	eventType := events.EventPluginDisable
	if enable {
		eventType = events.EventPluginEnable
		err = h.registry.EnablePlugin(r.Context(), name)
	} else {
		err = h.registry.DisablePlugin(r.Context(), name)
	}
	h.eventStore.Add(eventType, getClientIP(r), err == nil, name)
	if err != nil {
		writeError(w, err)
		return
	}

	info, err := h.registry.GetInfo(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
