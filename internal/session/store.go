package session

import (
	"encoding/json"
	"log/slog"
	"sync"

	"AgentHub/internal/message"
)

// DefaultStorageKey is the fixed key the whole session blob lives under.
const DefaultStorageKey = "agenthub_sessions"

// ToolState carries tool-scoped UI state for one agent.
type ToolState struct {
	Attachment string `json:"attachment"`
	Canvas     string `json:"canvas"`
	CanvasOpen bool   `json:"isCanvasOpen"`
}

// Session is the persisted conversational state for one agent.
type Session struct {
	Messages []message.Message `json:"messages"`
	Draft    string            `json:"draft"`
	Tools    ToolState         `json:"tools"`
}

// Patch describes a shallow merge into a session. Nil fields are left alone.
type Patch struct {
	Messages *[]message.Message
	Draft    *string
	Tools    *ToolState
}

// Store holds per-agent sessions and persists the whole mapping to a Backend
// on every mutation. Persistence is best effort: load and save failures are
// logged, never surfaced to callers.
type Store struct {
	mu      sync.Mutex
	backend Backend
	key     string
	limit   int
	logger  *slog.Logger

	sessions map[string]*Session
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithStorageKey overrides the blob key.
func WithStorageKey(key string) StoreOption {
	return func(s *Store) { s.key = key }
}

// WithHistoryLimit overrides the per-session message cap.
func WithHistoryLimit(limit int) StoreOption {
	return func(s *Store) { s.limit = limit }
}

// NewStore creates a store and restores state from the backend. A missing or
// corrupt blob yields an empty mapping.
func NewStore(backend Backend, logger *slog.Logger, opts ...StoreOption) *Store {
	s := &Store{
		backend:  backend,
		key:      DefaultStorageKey,
		limit:    message.DefaultHistoryLimit,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.load()
	return s
}

func (s *Store) load() {
	blob, ok, err := s.backend.Get(s.key)
	if err != nil {
		s.logger.Warn("failed to load sessions, starting empty", "key", s.key, "error", err)
		return
	}
	if !ok {
		return
	}
	var sessions map[string]*Session
	if err := json.Unmarshal([]byte(blob), &sessions); err != nil {
		s.logger.Warn("corrupt session blob, starting empty", "key", s.key, "error", err)
		return
	}
	for id, sess := range sessions {
		if sess == nil {
			sess = newSession()
		}
		sess.Messages = message.Clamp(sess.Messages, s.limit)
		s.sessions[id] = sess
	}
}

// persist serializes the full mapping. Caller must hold the lock.
func (s *Store) persist() {
	blob, err := json.Marshal(s.sessions)
	if err != nil {
		s.logger.Warn("failed to serialize sessions", "error", err)
		return
	}
	if err := s.backend.Set(s.key, string(blob)); err != nil {
		s.logger.Warn("failed to save sessions", "key", s.key, "error", err)
	}
}

func newSession() *Session {
	return &Session{Messages: []message.Message{}}
}

// Ensure guarantees a session record exists for each of the given agent ids.
func (s *Store) Ensure(agentIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, id := range agentIDs {
		if _, ok := s.sessions[id]; !ok {
			s.sessions[id] = newSession()
			changed = true
		}
	}
	if changed {
		s.persist()
	}
}

// Get returns a copy of the named session and whether it exists.
func (s *Store) Get(agentID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[agentID]
	if !ok {
		return Session{}, false
	}
	out := *sess
	out.Messages = make([]message.Message, len(sess.Messages))
	copy(out.Messages, sess.Messages)
	return out, true
}

// Update shallow-merges the patch into the named session, creating it if
// absent.
func (s *Store) Update(agentID string, patch Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[agentID]
	if !ok {
		sess = newSession()
		s.sessions[agentID] = sess
	}
	if patch.Messages != nil {
		sess.Messages = message.Clamp(*patch.Messages, s.limit)
	}
	if patch.Draft != nil {
		sess.Draft = *patch.Draft
	}
	if patch.Tools != nil {
		sess.Tools = *patch.Tools
	}
	s.persist()
}

// AddMessage normalizes raw and appends it to the named session, then
// re-clamps history. A message that fails normalization is a no-op.
func (s *Store) AddMessage(agentID string, raw interface{}) {
	msg := message.Normalize(raw)
	if msg == nil {
		s.logger.Warn("dropping unnormalizable message", "agent", agentID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[agentID]
	if !ok {
		sess = newSession()
		s.sessions[agentID] = sess
	}
	sess.Messages = message.Clamp(append(sess.Messages, *msg), s.limit)
	s.persist()
}
