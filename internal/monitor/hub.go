package monitor

import (
	"sync"

	"github.com/HefnySco/droneengage-mavlink/internal/logging"
	"github.com/HefnySco/droneengage-mavlink/internal/metrics"
)

// Hub manages monitor connections and fans events out to them.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Conn

	register   chan *Conn
	unregister chan *Conn
	done       chan struct{}

	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewHub creates a new Hub. m may be nil.
func NewHub(logger *logging.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		conns:      make(map[string]*Conn),
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		done:       make(chan struct{}),
		logger:     logger,
		metrics:    m,
	}
}

// Run starts the hub's main loop. It should be called in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.conns[conn.id] = conn
			n := len(h.conns)
			h.mu.Unlock()
			h.metrics.SetMonitorClients(n)
			h.logger.Infof("[monitor] connection registered: %s", conn.id)

		case conn := <-h.unregister:
			h.mu.Lock()
			delete(h.conns, conn.id)
			n := len(h.conns)
			h.mu.Unlock()
			h.metrics.SetMonitorClients(n)
			h.logger.Infof("[monitor] connection unregistered: %s", conn.id)

		case <-h.done:
			return
		}
	}
}

// Stop signals the hub to stop its run loop.
func (h *Hub) Stop() {
	close(h.done)
}

// Register adds a connection to the hub.
func (h *Hub) Register(conn *Conn) {
	select {
	case h.register <- conn:
	case <-h.done:
	}
}

// Unregister removes a connection from the hub.
func (h *Hub) Unregister(conn *Conn) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Count returns the number of active connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast queues e on every connection. Slow connections drop events.
func (h *Hub) Broadcast(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		c.enqueue(e)
	}
}
