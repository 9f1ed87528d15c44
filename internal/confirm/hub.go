// Package confirm implements the human-in-the-loop gate for state-mutating
// integration actions. An action registers a Request and blocks until a UI
// resolves it; each request settles exactly once.
package confirm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Request describes one pending confirmation.
type Request struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Service     string                 `json:"service"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Data        map[string]interface{} `json:"data,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
}

// Event is pushed to subscribers when the pending set changes.
type Event struct {
	Kind     string  `json:"kind"` // "pending" or "resolved"
	Request  Request `json:"request"`
	Approved bool    `json:"approved,omitempty"`
}

type pending struct {
	req  Request
	ch   chan bool
	once sync.Once
}

// Hub tracks outstanding confirmation requests.
type Hub struct {
	mu      sync.Mutex
	pending map[string]*pending
	subs    map[chan Event]struct{}
	logger  *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		pending: make(map[string]*pending),
		subs:    make(map[chan Event]struct{}),
		logger:  logger,
	}
}

// Await registers the request and blocks until it is confirmed, rejected or
// the context ends. The returned bool is the human's decision. A zero ID is
// filled in with a fresh uuid.
func (h *Hub) Await(ctx context.Context, req Request) (bool, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}

	p := &pending{req: req, ch: make(chan bool, 1)}

	h.mu.Lock()
	if _, exists := h.pending[req.ID]; exists {
		h.mu.Unlock()
		return false, fmt.Errorf("duplicate confirmation id: %s", req.ID)
	}
	h.pending[req.ID] = p
	h.mu.Unlock()

	h.logger.Info("confirmation requested", "id", req.ID, "service", req.Service, "title", req.Title)
	h.broadcast(Event{Kind: "pending", Request: req})

	select {
	case approved := <-p.ch:
		return approved, nil
	case <-ctx.Done():
		h.remove(req.ID)
		h.broadcast(Event{Kind: "resolved", Request: req, Approved: false})
		return false, ctx.Err()
	}
}

// Resolve settles the named request. Repeat resolutions of the same id are
// ignored after the first; an unknown id is an error.
func (h *Hub) Resolve(id string, approved bool) error {
	h.mu.Lock()
	p, ok := h.pending[id]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("no pending confirmation with id %s", id)
	}

	p.once.Do(func() {
		p.ch <- approved
		h.remove(id)
		h.logger.Info("confirmation resolved", "id", id, "approved", approved)
		h.broadcast(Event{Kind: "resolved", Request: p.req, Approved: approved})
	})
	return nil
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.pending, id)
	h.mu.Unlock()
}

// Pending returns a snapshot of outstanding requests.
func (h *Hub) Pending() []Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Request, 0, len(h.pending))
	for _, p := range h.pending {
		out = append(out, p.req)
	}
	return out
}

// Subscribe returns a channel of pending-set changes plus an unsubscribe
// function. Slow subscribers drop events rather than block resolution.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

func (h *Hub) broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
