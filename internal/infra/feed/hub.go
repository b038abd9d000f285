package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"market_go/internal/execution"
)

// Hub tracks connected clients and fans sales out to subscribers.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				c.stop()
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			slog.Info("Gateway client connected", slog.String("session", c.session.String()), slog.Int("clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.stop()
			}
			n := len(h.clients)
			h.mu.Unlock()
			slog.Info("Gateway client disconnected", slog.String("session", c.session.String()), slog.Int("clients", n))

		case data := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if !c.subscribed.Load() {
					continue
				}
				select {
				case c.send <- data:
				default:
					// Slow consumer: drop it.
					slog.Warn("Gateway client too slow, disconnecting", slog.String("session", c.session.String()))
					c.stop()
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishSale queues sale for every subscribed client. It never blocks the
// caller; sales are dropped when the broadcast queue is full.
func (h *Hub) PublishSale(sale *execution.Sale) {
	data, err := json.Marshal(Message{Type: TypeSale, Sale: sale})
	if err != nil {
		slog.Error("Failed to marshal sale", slog.Any("error", err))
		return
	}
	select {
	case h.broadcast <- data:
	default:
		slog.Warn("Gateway broadcast queue full, sale dropped", slog.String("mint", sale.Mint.String()))
	}
}
