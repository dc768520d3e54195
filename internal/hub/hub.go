package hub

import (
	"sync"

	"github.com/kstaniek/go-cansock/internal/can"
	"github.com/kstaniek/go-cansock/internal/logging"
	"github.com/kstaniek/go-cansock/internal/metrics"
)

type BackpressurePolicy int

const (
	PolicyDrop BackpressurePolicy = iota
	PolicyKick
)

// ParsePolicy maps "drop"/"kick" to a policy.
func ParsePolicy(s string) (BackpressurePolicy, bool) {
	switch s {
	case "drop":
		return PolicyDrop, true
	case "kick":
		return PolicyKick, true
	}
	return PolicyDrop, false
}

func (p BackpressurePolicy) String() string {
	if p == PolicyKick {
		return "kick"
	}
	return "drop"
}

// Client is one subscriber of received frames.
type Client struct {
	Out    chan can.Frame
	Closed chan struct{}
	// Filters restricts delivery to matching ids; empty accepts every frame.
	Filters   []can.Filter
	closeOnce sync.Once
}

// NewClient allocates a client with an outbound buffer of buf frames.
func NewClient(buf int, filters ...can.Filter) *Client {
	return &Client{Out: make(chan can.Frame, buf), Closed: make(chan struct{}), Filters: filters}
}

// Close signals the client is closed (idempotent).
func (c *Client) Close() { c.closeOnce.Do(func() { close(c.Closed) }) }

// Accepts reports whether fr passes the client's filters.
func (c *Client) Accepts(fr can.Frame) bool {
	if len(c.Filters) == 0 {
		return true
	}
	for _, f := range c.Filters {
		if f.Match(fr.CANID) {
			return true
		}
	}
	return false
}

// Hub fans frames received from the bus out to all clients.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	OutBufSize int
	Policy     BackpressurePolicy
}

func New() *Hub { return &Hub{clients: make(map[*Client]struct{}), OutBufSize: 512} }

func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.SetHubClients(n)
	if n == 1 {
		logging.L().Info("clients_first_connected")
	}
}

// Remove unregisters and closes c; safe to call multiple times.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.Close()
	metrics.SetHubClients(n)
	if existed && n == 0 {
		logging.L().Info("clients_last_disconnected")
	}
}

// Broadcast delivers fr to every accepting client without blocking. A full
// client queue drops the frame or kicks the client depending on Policy.
func (h *Hub) Broadcast(fr can.Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.Accepts(fr) {
			continue
		}
		select {
		case c.Out <- fr:
		default:
			if h.Policy == PolicyKick {
				metrics.IncHubKick()
				c.Close()
			} else {
				metrics.IncHubDrop()
			}
		}
	}
}

// Count returns the number of active clients.
func (h *Hub) Count() int { h.mu.RLock(); defer h.mu.RUnlock(); return len(h.clients) }
