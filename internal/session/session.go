// Package session manages live form sessions: one document and engine per
// client, expired after a maximum age or an idle period.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/fieldstate/internal/definition"
	"github.com/matthewbaird/fieldstate/internal/engine"
	"github.com/matthewbaird/fieldstate/internal/event"
	"github.com/matthewbaird/fieldstate/internal/form"
	"github.com/matthewbaird/fieldstate/internal/logging"
	"github.com/matthewbaird/fieldstate/internal/metrics"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Session holds one live form.
type Session struct {
	ID        string    `json:"id"`
	Form      string    `json:"form,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// lastActive is unix nanoseconds. The cleanup loop reads it without
	// holding mu.
	lastActive atomic.Int64

	mu      sync.Mutex
	doc     *form.Document
	engine  *engine.Engine
	pending []event.Transition
}

// Touch updates the last activity timestamp.
func (s *Session) Touch() {
	s.touchAt(time.Now())
}

func (s *Session) touchAt(t time.Time) {
	s.lastActive.Store(t.UnixNano())
}

// LastActiveAt returns the time of the last Do call.
func (s *Session) LastActiveAt() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// IsExpired returns true if the session has exceeded the given max age.
func (s *Session) IsExpired(maxAge time.Duration) bool {
	return maxAge > 0 && time.Since(s.CreatedAt) > maxAge
}

// IsIdle returns true if the session has been idle longer than the timeout.
func (s *Session) IsIdle(timeout time.Duration) bool {
	return timeout > 0 && time.Since(s.LastActiveAt()) > timeout
}

// Do runs fn with exclusive access to the session's engine and returns the
// transitions it caused, in order.
func (s *Session) Do(fn func(e *engine.Engine, doc *form.Document)) []event.Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Touch()
	fn(s.engine, s.doc)
	out := s.pending
	s.pending = nil
	return out
}

// Snapshot reports every field of the session's form.
func (s *Session) Snapshot() []engine.FieldState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Snapshot()
}

// Diagnostics returns the engine's accumulated diagnostics as strings.
func (s *Session) Diagnostics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	errs := s.engine.Diagnostics()
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}

// Options configures a Manager.
type Options struct {
	MaxAge      time.Duration
	IdleTimeout time.Duration
	// Publisher receives every transition of every session, after the
	// session's own buffer.
	Publisher event.Publisher
	Logger    *slog.Logger
}

// Manager handles session creation, lookup, and cleanup.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	maxAge      time.Duration
	idleTimeout time.Duration
	publisher   event.Publisher
	log         *slog.Logger
}

// NewManager creates a session manager.
func NewManager(opts Options) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		maxAge:      opts.MaxAge,
		idleTimeout: opts.IdleTimeout,
		publisher:   opts.Publisher,
		log:         logging.WithComponent(opts.Logger, "session"),
	}
}

// Create builds def into a new session and initialises every field. The
// transitions of the initial pass are not reported; callers read the
// snapshot instead.
func (m *Manager) Create(def *definition.Definition) (*Session, error) {
	built, err := def.Build()
	if err != nil {
		return nil, fmt.Errorf("building form: %w", err)
	}
	now := time.Now()
	s := &Session{
		ID:        uuid.New().String(),
		Form:      def.Name,
		CreatedAt: now,
		doc:       built.Document,
	}
	s.touchAt(now)
	log := m.log.With(logging.SessionKey, s.ID)
	buffer := event.PublisherFunc(func(_ context.Context, evt event.Transition) {
		s.pending = append(s.pending, evt)
	})
	s.engine = built.Engine(engine.Config{
		Publisher: event.Fanout{buffer, m.publisher},
		OnDiagnostic: func(err error) {
			metrics.RecordDiagnostic(err)
			log.Warn("diagnostic", "error", err)
		},
		Logger: log,
		Scope:  s.ID,
	})
	s.Do(func(e *engine.Engine, _ *form.Document) { e.Initialise("", "") })

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	metrics.SessionOpened()
	log.Info("session created", "form", def.Name, "fields", len(built.Document.Fields()))
	return s, nil
}

// Get retrieves a session by ID. Expired and idle sessions are removed and
// reported as ErrNotFound.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.IsExpired(m.maxAge) || s.IsIdle(m.idleTimeout) {
		m.Remove(id)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Remove deletes a session.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		metrics.SessionClosed()
		m.log.Debug("session removed", logging.SessionKey, id)
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Cleanup removes all expired and idle sessions and returns how many were
// removed.
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.IsExpired(m.maxAge) || s.IsIdle(m.idleTimeout) {
			delete(m.sessions, id)
			metrics.SessionClosed()
			n++
		}
	}
	if n > 0 {
		m.log.Info("expired sessions removed", "count", n)
	}
	return n
}

// Run calls Cleanup every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Cleanup()
		}
	}
}
