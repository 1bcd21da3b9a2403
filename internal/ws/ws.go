// Package ws pushes live updates to open pages.
package ws

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	pingEvery    = 20 * time.Second
	writeTimeout = 10 * time.Second
	readTimeout  = 60 * time.Second
)

// Message types sent to clients.
const (
	TypeEntryAdded   = "ENTRY_ADDED"
	TypeProfileSaved = "PROFILE_SAVED"
)

type Msg struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Hub tracks connected pages, each subscribed to one user ID.
// The zero value is not usable; call NewHub.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]string
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]string),
	}
}

// Publish sends m to the clients subscribed to userID and returns how many
// received it. Clients that fail a write are dropped. A nil hub publishes to
// nobody, and neither does an empty userID.
func (h *Hub) Publish(userID string, m Msg) int {
	if h == nil || userID == "" {
		return 0
	}
	b, err := json.Marshal(m)
	if err != nil {
		log.Error().Err(err).Str("type", m.Type).Msg("ws marshal")
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for c, sub := range h.clients {
		if sub != userID {
			continue
		}
		_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Warn().Err(err).Msg("ws write")
			_ = c.Close()
			delete(h.clients, c)
			continue
		}
		n++
	}
	log.Debug().Str("type", m.Type).Int("clients", n).Msg("publish")
	return n
}

func (h *Hub) ClientsCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) remove(c *websocket.Conn) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	return len(h.clients)
}

// ServeHTTP upgrades the connection and holds it until the client goes away.
// The userId query parameter picks whose events the client receives.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade")
		return
	}
	h.mu.Lock()
	h.clients[c] = userID
	total := len(h.clients)
	h.mu.Unlock()
	log.Info().Int("total", total).Msg("ws connected")

	// keepalive pings
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(pingEvery)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if err := c.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	c.SetReadLimit(1024)
	_ = c.SetReadDeadline(time.Now().Add(readTimeout))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
	close(done)
	total = h.remove(c)
	_ = c.Close()
	log.Info().Int("total", total).Msg("ws disconnected")
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = c.Close()
		delete(h.clients, c)
	}
}
