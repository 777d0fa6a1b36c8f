// Package websocket streams live acquisition events to browser and script
// clients: captured traces, property changes, and run state transitions.
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/gometr/gometr/internal/trace"
)

// Message is the envelope for every event on the stream
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Event types carried on the stream
const (
	TypeTrace     = "trace"
	TypeProperty  = "property"
	TypeRunState  = "run_state"
	TypeDriverSet = "drivers_reloaded"
)

// PropertyEvent reports a property write applied through the API
type PropertyEvent struct {
	Instrument string `json:"instrument"`
	Path       string `json:"path"`
	Value      any    `json:"value"`
}

// RunStateEvent reports acquisition starting or stopping
type RunStateEvent struct {
	Instrument string   `json:"instrument"`
	Running    bool     `json:"running"`
	Sources    []string `json:"sources,omitempty"`
}

// Hub maintains the set of connected clients and fans events out to them
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	mu      sync.RWMutex
	clients map[*Client]bool

	logger *zap.Logger
}

// NewHub creates a hub; call Run to start it
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan []byte, 256),
		clients:    make(map[*Client]bool),
		logger:     logger,
	}
}

// Run processes registrations and broadcasts until the context is cancelled
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("stream client connected", zap.Int("clients", n))
		case client := <-h.unregister:
			h.drop(client)
		case payload := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- payload:
				default:
					// Slow consumer: drop the connection rather than
					// stalling the acquisition path.
					go h.Unregister(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a client to the hub
func (h *Hub) Register(c *Client) { h.register <- c }

// Unregister removes a client from the hub
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues an event for every connected client. Returns false when
// the hub's queue is full and the event was dropped.
func (h *Hub) Broadcast(msgType string, data any) bool {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("stream event marshal failed", zap.String("type", msgType), zap.Error(err))
		return false
	}
	payload, err := json.Marshal(Message{Type: msgType, Data: raw})
	if err != nil {
		return false
	}

	select {
	case h.broadcast <- payload:
		return true
	default:
		h.logger.Warn("stream backlog full, event dropped", zap.String("type", msgType))
		return false
	}
}

// BroadcastTrace publishes a captured trace
func (h *Hub) BroadcastTrace(t *trace.Trace) bool {
	return h.Broadcast(TypeTrace, t)
}

func (h *Hub) drop(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}
