// Package session — WebSocket hub for real-time session fill feeds.
package session

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quotedrill/sim-engine/internal/metrics"
)

// FeedMessage is a JSON event sent to a session's feed subscribers.
// Fair values are never carried here; they stay hidden until the
// end-of-session report.
type FeedMessage struct {
	Type      string `json:"type"` // "fill", "session_ended", "session_reset"
	SessionID string `json:"session_id"`
	Side      string `json:"side,omitempty"`
	Price     string `json:"price,omitempty"`
	Qty       int64  `json:"qty,omitempty"`
	Cash      string `json:"cash"`
	Inventory int64  `json:"inventory"`
	FillCount int    `json:"fill_count"`
}

// feedEvent pairs a serialized message with the session it belongs to.
type feedEvent struct {
	sessionID string
	data      []byte
}

type feedClient struct {
	conn      *websocket.Conn
	sessionID string
}

// FeedHub manages WebSocket connections and routes events to the
// subscribers of the session they belong to.
type FeedHub struct {
	clients    map[*websocket.Conn]string // conn -> session ID
	broadcast  chan feedEvent
	register   chan feedClient
	unregister chan *websocket.Conn
	mu         sync.RWMutex
}

// NewFeedHub creates a new feed hub.
func NewFeedHub() *FeedHub {
	return &FeedHub{
		clients:    make(map[*websocket.Conn]string),
		broadcast:  make(chan feedEvent, 256),
		register:   make(chan feedClient),
		unregister: make(chan *websocket.Conn),
	}
}

// Run starts the hub's main event loop. Must be called in a goroutine.
func (h *FeedHub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.conn] = c.sessionID
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WSClients.Inc()
			slog.Info("feed client connected", "session_id", c.sessionID, "total", total)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				metrics.WSClients.Dec()
			}
			h.mu.Unlock()

		case ev := <-h.broadcast:
			h.mu.Lock()
			for conn, sid := range h.clients {
				if sid != ev.sessionID {
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, ev.data); err != nil {
					conn.Close()
					delete(h.clients, conn)
					metrics.WSClients.Dec()
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues an event for one session's subscribers.
func (h *FeedHub) Broadcast(sessionID string, msg FeedMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- feedEvent{sessionID: sessionID, data: data}:
	default:
		// Drop if buffer full to avoid blocking quote handling.
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// Serve upgrades the connection and subscribes it to one session's
// feed. Callers resolve the session before upgrading.
func (h *FeedHub) Serve(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("feed upgrade failed", "err", err)
		return
	}

	h.register <- feedClient{conn: conn, sessionID: sessionID}

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer func() { h.unregister <- conn }()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[conn]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()
}
