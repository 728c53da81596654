package main

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/CoursePilotAI/coursepilot-mvp/pkg/metrics"
)

// botPrefix is prepended to every chat reply sent over the socket.
const botPrefix = "Bot: "

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Cross-origin policy is enforced by the CORS middleware; the browser
	// origin check here would reject the dev frontend.
	CheckOrigin: func(*http.Request) bool { return true },
}

// connManager tracks live chat connections so shutdown can close them and
// disconnects are idempotent under racing error paths.
type connManager struct {
	mu     sync.Mutex
	conns  map[*websocket.Conn]bool
	logger *slog.Logger
	gauge  *metrics.Gauge
}

func newConnManager(logger *slog.Logger, reg *metrics.Registry) *connManager {
	m := &connManager{
		conns:  make(map[*websocket.Conn]bool),
		logger: logger,
	}
	if reg != nil {
		m.gauge = reg.Gauge("ws_connections", "Active chat connections")
	}
	return m
}

func (m *connManager) add(c *websocket.Conn) {
	m.mu.Lock()
	m.conns[c] = true
	m.mu.Unlock()
	if m.gauge != nil {
		m.gauge.Inc()
	}
}

// remove closes and untracks a connection. Removing a connection that is
// already gone is a no-op, so both the read-loop exit and the shutdown path
// can call it without coordination.
func (m *connManager) remove(c *websocket.Conn) {
	m.mu.Lock()
	_, tracked := m.conns[c]
	delete(m.conns, c)
	m.mu.Unlock()

	if !tracked {
		return
	}
	if m.gauge != nil {
		m.gauge.Dec()
	}
	if err := c.Close(); err != nil {
		m.logger.Debug("ws: close", "err", err)
	}
}

func (m *connManager) closeAll() {
	m.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(m.conns))
	for c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		m.remove(c)
	}
}

// handleWS runs the chat loop: one text message in, one answer out. Answer
// composition never surfaces an error to the socket; faults become short
// user-facing fallback strings.
func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws: upgrade failed", "err", err)
		return
	}
	s.manager.add(conn)
	defer s.manager.remove(conn)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("ws: read", "err", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		answer := s.rag.Respond(r.Context(), string(data))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(botPrefix+answer)); err != nil {
			s.logger.Warn("ws: write", "err", err)
			return
		}
	}
}
