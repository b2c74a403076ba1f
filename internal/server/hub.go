package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lehydrosys/hydromon/internal/monitor"
	"github.com/lehydrosys/hydromon/pkg/metrics"
	"github.com/lehydrosys/hydromon/pkg/notify"
)

const (
	DefaultMaxClients = 10

	writeWait = 5 * time.Second
)

// Hub fans live feed messages out to websocket clients. It is also a
// notify.Notifier so alerts reach connected clients.
type Hub struct {
	maxClients int
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	mu         sync.Mutex
	clients    map[*websocket.Conn]struct{}
}

func NewHub(maxClients int, logger *slog.Logger) *Hub {
	if maxClients <= 0 {
		maxClients = DefaultMaxClients
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Hub{
		maxClients: maxClients,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) >= h.maxClients {
		return false
	}
	h.clients[conn] = struct{}{}
	metrics.SetWebsocketClients(len(h.clients))
	return true
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; !ok {
		return
	}
	delete(h.clients, conn)
	conn.Close()
	metrics.SetWebsocketClients(len(h.clients))
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Clients() >= h.maxClients {
		h.logger.LogAttrs(r.Context(), slog.LevelWarn, "Max websocket clients reached", slog.Int("max", h.maxClients))
		http.Error(w, "Too many clients", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.LogAttrs(r.Context(), slog.LevelWarn, "Websocket upgrade failed", slog.Any("error", err))
		return
	}
	if !h.add(conn) {
		conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many clients"), time.Now().Add(writeWait))
		conn.Close()
		return
	}
	h.logger.LogAttrs(r.Context(), slog.LevelInfo, "Websocket client connected", slog.String("remote", r.RemoteAddr), slog.Int("clients", h.Clients()))
	go h.readLoop(conn)
}

// Clients never send anything meaningful; reading only detects disconnects.
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.remove(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends msg to every client, dropping clients that fail to receive
func (h *Hub) Broadcast(msg monitor.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.LogAttrs(context.Background(), slog.LevelError, "Failed to encode websocket message", slog.Any("error", err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.LogAttrs(context.Background(), slog.LevelWarn, "Failed to send websocket message", slog.Any("error", err))
			delete(h.clients, conn)
			conn.Close()
		}
	}
	metrics.SetWebsocketClients(len(h.clients))
}

func (h *Hub) Notify(ctx context.Context, n notify.Notification) error {
	h.Broadcast(monitor.Message{Type: monitor.MessageAlert, Time: n.Time, Notification: &n})
	return nil
}

// Close disconnects every client
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
		conn.Close()
		delete(h.clients, conn)
	}
	metrics.SetWebsocketClients(0)
	return nil
}
