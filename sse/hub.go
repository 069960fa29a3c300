package sse

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/kbukum/sonify/logger"
	"github.com/kbukum/sonify/observability"
)

// clientBuffer is the number of undelivered events a client may hold before
// further events to it are dropped.
const clientBuffer = 256

// Client is one connected stream.
type Client struct {
	id     string
	events chan []byte
}

// NewClient creates a client with a buffered event channel.
func NewClient(id string) *Client {
	return &Client{id: id, events: make(chan []byte, clientBuffer)}
}

// ID returns the client id the hub matches patterns against.
func (c *Client) ID() string { return c.id }

// Events returns the channel the stream reads from. It is closed when the
// client is unregistered or the hub stops.
func (c *Client) Events() <-chan []byte { return c.events }

// Send queues data without blocking and reports whether it was queued.
func (c *Client) Send(data []byte) bool {
	select {
	case c.events <- data:
		return true
	default:
		return false
	}
}

// Message is a broadcast addressed by glob pattern.
type Message struct {
	Pattern string
	Data    []byte
}

// Hub fans broadcasts out to registered clients. All client map mutations
// happen on the Run goroutine.
type Hub struct {
	log        *logger.Logger
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan Message
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
}

// NewHub creates a hub. Run must be started before clients register.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		log:        log.WithComponent("sse"),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, clientBuffer),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.closeAll()
			return

		case c := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[c.id]; ok {
				close(old.events)
			}
			h.clients[c.id] = c
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client registered", logger.Fields("client_id", c.id, "clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.clients[c.id]; ok && cur == c {
				delete(h.clients, c.id)
				close(c.events)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client unregistered", logger.Fields("client_id", c.id, "clients", n))

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// Stop closes every client and makes Run return. Safe to call repeatedly.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register adds c. It returns false if the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes c and closes its channel.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// BroadcastToPattern queues data for every client whose id matches pattern
// (path.Match syntax). Broadcasts after Stop are discarded.
func (h *Hub) BroadcastToPattern(pattern string, data []byte) {
	select {
	case h.broadcast <- Message{Pattern: pattern, Data: data}:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CheckHealth implements observability.HealthChecker.
func (h *Hub) CheckHealth(_ context.Context) observability.Health {
	health := observability.Health{
		Name:    "sse",
		Status:  observability.HealthStatusUp,
		Details: map[string]string{"clients": fmt.Sprint(h.ClientCount())},
	}
	select {
	case <-h.done:
		health.Status = observability.HealthStatusDown
		health.Message = "hub stopped"
	default:
	}
	return health
}

func (h *Hub) deliver(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, c := range h.clients {
		matched, err := filepath.Match(msg.Pattern, id)
		if err != nil {
			h.log.Error("bad broadcast pattern", logger.Fields("pattern", msg.Pattern, logger.FieldError, err.Error()))
			return
		}
		if matched && !c.Send(msg.Data) {
			h.log.Warn("client buffer full, dropping event", logger.Fields("client_id", id))
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.events)
		delete(h.clients, id)
	}
}
