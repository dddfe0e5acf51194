package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"homesim/internal/engine"
	"homesim/internal/hub"
	"homesim/internal/logger"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 512                 // Maximum message size allowed from peer.

	defaultReplay = 50
)

// StreamHandler serves the live event stream over WebSocket
type StreamHandler struct {
	engine   *engine.Engine
	log      *logger.Logger
	upgrader websocket.Upgrader
}

// NewStreamHandler creates new stream handler
func NewStreamHandler(e *engine.Engine, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		engine: e,
		log:    log.With("Stream"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Connect upgrades the connection, replays recent history oldest first and
// then forwards live events until either side goes away.
// GET /api/stream?replay=50
func (h *StreamHandler) Connect(w http.ResponseWriter, r *http.Request) {
	replay := defaultReplay
	if s := r.URL.Query().Get("replay"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			replay = n
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("WebSocket upgrade error: %v", err)
		return
	}

	// Subscribe before reading history so nothing falls between the two.
	sub := h.engine.Subscribe()
	c := &streamClient{
		conn: conn,
		sub:  sub,
		log:  h.log,
		done: make(chan struct{}),
	}
	h.log.Debugf("Client %s connected (subscription %s)", conn.RemoteAddr(), sub.ID())

	go c.readPump()
	c.writePump(h.backlog(replay))

	h.engine.Unsubscribe(sub)
	h.log.Debugf("Client %s disconnected, %d events dropped", conn.RemoteAddr(), sub.Dropped())
}

// backlog returns up to n history events oldest first, followed by the
// latest stats snapshot.
func (h *StreamHandler) backlog(n int) []hub.Event {
	recent := h.engine.History(n)
	out := make([]hub.Event, 0, len(recent)+1)
	for i := len(recent) - 1; i >= 0; i-- {
		out = append(out, recent[i])
	}
	if snap, ok := h.engine.LatestSnapshot(); ok {
		out = append(out, hub.StatsEvent(snap))
	}
	return out
}

type streamClient struct {
	conn *websocket.Conn
	sub  *hub.Subscription
	log  *logger.Logger
	done chan struct{}
}

// readPump discards client messages and keeps the read deadline moving on
// pongs. It closes done when the peer goes away.
func (c *streamClient) readPump() {
	defer close(c.done)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debugf("WebSocket read error: %v", err)
			}
			return
		}
	}
}

// writePump sends the backlog, then live events and periodic pings.
// Live events already covered by the backlog are skipped.
func (c *streamClient) writePump(backlog []hub.Event) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	var replayed uint64
	for _, ev := range backlog {
		if err := c.write(ev); err != nil {
			return
		}
		if ev.Kind != hub.KindStats && ev.Seq > replayed {
			replayed = ev.Seq
		}
	}

	for {
		select {
		case ev, ok := <-c.sub.Events():
			if !ok {
				// The hub closed the subscription.
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "simulation shutting down"))
				return
			}
			if ev.Kind != hub.KindStats && ev.Seq <= replayed {
				continue
			}
			if err := c.write(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debugf("WebSocket ping error: %v", err)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *streamClient) write(ev hub.Event) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(ev); err != nil {
		c.log.Debugf("WebSocket write error: %v", err)
		return err
	}
	return nil
}
