package hub

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Policy decides what to do with a client whose queue is full.
type Policy int

const (
	// DropClient disconnects the slow client.
	DropClient Policy = iota

	// DropOldest discards the client's oldest queued message to make room.
	DropOldest
)

// DefaultBuffer is the per-client queue length.
const DefaultBuffer = 64

// Option configures a Hub.
type Option func(*Hub)

// WithPolicy sets the slow-client policy.
func WithPolicy(p Policy) Option {
	return func(h *Hub) { h.policy = p }
}

// WithBuffer sets the per-client queue length.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// op is a queued registration, unregistration (leave) or broadcast
// (client nil).
type op struct {
	client *Client
	leave  bool
	msg    Message
}

// Hub owns the client set. All mutations happen on the Run goroutine;
// mu only guards reads from other goroutines. Registrations and
// broadcasts share one queue, so a client sees exactly the broadcasts
// queued after it registered.
type Hub struct {
	name   string
	logger *slog.Logger
	policy Policy
	buffer int

	clients    map[*Client]struct{}
	inbox      chan op

	done     chan struct{}
	stopOnce sync.Once

	mu sync.RWMutex

	running atomic.Bool
	dropped atomic.Int64
	evicted atomic.Int64
}

// New creates a hub. Call Run in a goroutine.
func New(name string, logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		name:       name,
		logger:     logger.With("component", "hub", "hub", name),
		buffer:     DefaultBuffer,
		clients:    make(map[*Client]struct{}),
		inbox:      make(chan op, 256),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run dispatches until Stop. On stop every client queue is closed, which
// makes its writer send a close frame.
func (h *Hub) Run() {
	h.running.Store(true)
	defer h.running.Store(false)

	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case o := <-h.inbox:
			switch {
			case o.client == nil:
				h.dispatch(o.msg)
			case o.leave:
				h.remove(o.client)
			default:
				h.mu.Lock()
				h.clients[o.client] = struct{}{}
				n := len(h.clients)
				h.mu.Unlock()
				h.logger.Debug("client connected", "clients", n)
			}
		}
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client disconnected", "clients", n)
}

func (h *Hub) dispatch(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- msg:
			continue
		default:
		}

		switch h.policy {
		case DropOldest:
			select {
			case <-c.send:
			default:
			}
			select {
			case c.send <- msg:
			default:
			}
			h.dropped.Add(1)
		default:
			close(c.send)
			delete(h.clients, c)
			h.evicted.Add(1)
			h.logger.Warn("disconnected slow client")
		}
	}
}

// Stop ends Run. Safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Broadcast queues msg for every client. It never blocks; when the hub
// itself is backed up the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.inbox <- op{msg: msg}:
	default:
		h.dropped.Add(1)
		h.logger.Warn("broadcast queue full, dropping message")
	}
}

// BroadcastJSON encodes v and broadcasts it as text.
func (h *Hub) BroadcastJSON(v any) error {
	msg, err := EncodeJSON(v)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// BroadcastBinary broadcasts raw bytes.
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(NewBinary(data))
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped counts messages discarded by the hub or the DropOldest policy.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Evicted counts clients disconnected by the DropClient policy.
func (h *Hub) Evicted() int64 {
	return h.evicted.Load()
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}
