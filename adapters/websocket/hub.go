package websocket

import (
	"sync"

	"go.uber.org/zap"

	"github.com/roberta039/Gym-Trainer/utils/log"
)

// Hub tracks live clients by chat session. A session may be open in several
// tabs or devices at once.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub
func (h *Hub) Run() {
	go h.run()
}

// Stop ends the hub loop and closes every client.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.WithCtx(client.ctx).Debug("New client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			delete(h.clients, client)
			h.mu.Unlock()
			if ok {
				client.Close()
				log.WithCtx(client.ctx).Debug("Client unregistered")
			}

		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
			}
			h.clients = make(map[*Client]bool)
			h.mu.Unlock()
			return
		}
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// SendToSession sends a message to every client of a session and reports
// how many accepted it.
func (h *Hub) SendToSession(sessionID string, message []byte) int {
	sent := 0
	for _, client := range h.snapshot(sessionID) {
		if err := client.SendMessage(message); err != nil {
			log.WithCtx(client.ctx).Debug("failed to push to client", zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

// IsSessionConnected checks if any client of the session is connected
func (h *Hub) IsSessionConnected(sessionID string) bool {
	return len(h.snapshot(sessionID)) > 0
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// snapshot returns the open clients of a session.
func (h *Hub) snapshot(sessionID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if client.IsClosed() {
			continue
		}
		if client.sessionID == sessionID {
			out = append(out, client)
		}
	}
	return out
}
