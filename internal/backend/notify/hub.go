package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	readLimit = 512
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

// pings must go out before the peer's read deadline runs out
const pingPeriod = (pongWait * 9) / 10

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type message struct {
	Event   string `json:"event"`
	Payload Event  `json:"payload"`
}

// Hub broadcasts events to connected websocket clients
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	pingPeriod time.Duration
	pongWait   time.Duration
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		pingPeriod: pingPeriod,
		pongWait:   pongWait,
	}
}

// Run serves registrations, broadcasts and keep-alive pings until ctx is cancelled.
// It is the only writer to client connections.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			h.mutex.Lock()
			for client := range h.clients {
				if err := client.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					slog.Warn("websocket ping failed, dropping client", "error", err)
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			slog.Info("websocket client connected", "clients", count)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			count := len(h.clients)
			h.mutex.Unlock()
			slog.Info("websocket client disconnected", "clients", count)

		case data := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				_ = client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
					slog.Error("error sending websocket message", "error", err)
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()
		}
	}
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	close(h.done)
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}

// Notify broadcasts event to all clients. It is a no-op once the hub stopped.
func (h *Hub) Notify(ctx context.Context, event Event) error {
	data, err := json.Marshal(message{Event: event.Name(), Payload: event})
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Name(), err)
	}
	select {
	case h.broadcast <- data:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and keeps the client registered until it disconnects
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	connection, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade error", "error", err)
		return
	}
	connection.SetReadLimit(readLimit)
	_ = connection.SetReadDeadline(time.Now().Add(h.pongWait))
	connection.SetPongHandler(func(string) error {
		return connection.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	select {
	case h.register <- connection:
	case <-h.done:
		connection.Close()
		return
	}

	for {
		if _, _, err := connection.ReadMessage(); err != nil {
			break
		}
	}

	select {
	case h.unregister <- connection:
	case <-h.done:
	}
}
