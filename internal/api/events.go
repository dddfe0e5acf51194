package api

import (
	"net/http"
	"strconv"

	"homesim/internal/events"
)

// EventsHandler serves the control audit log
type EventsHandler struct {
	store *events.Store
}

// NewEventsHandler creates new events handler
func NewEventsHandler(store *events.Store) *EventsHandler {
	return &EventsHandler{store: store}
}

type eventsResponse struct {
	Events []events.Event `json:"events"`
	LastID int64          `json:"lastId"`
}

// List returns audit entries newest first. With since, only entries after
// that ID are returned, so pollers can pass back lastId.
// GET /api/events?limit=50&type=plugin_enable&since=12
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp := eventsResponse{LastID: h.store.LastID()}

	if s := q.Get("since"); s != "" {
		sinceID, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be an event id"})
			return
		}
		resp.Events = h.store.GetSince(sinceID)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.Events = h.store.Filter(events.EventType(q.Get("type")), parseLimit(r, 50, 100))
	writeJSON(w, http.StatusOK, resp)
}
