package http

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/stammtisch-map-service/internal/board"
	"github.com/couchcryptid/stammtisch-map-service/internal/domain"
	"github.com/couchcryptid/stammtisch-map-service/internal/observability"
)

// SessionOptions configures the session registry.
type SessionOptions struct {
	TTL       time.Duration
	Location  *time.Location
	Debounce  time.Duration
	LogoRules []domain.LogoRule
	Clock     clockwork.Clock
}

// Sessions holds one board per browser session and reloads every board when
// the event store receives a new snapshot.
type Sessions struct {
	store   *board.Store
	opts    SessionOptions
	metrics *observability.Metrics
	logger  *slog.Logger

	mu          sync.Mutex
	sessions    map[string]*Session
	unsubscribe func()
}

// NewSessions creates a registry bound to store.
func NewSessions(store *board.Store, opts SessionOptions, metrics *observability.Metrics, logger *slog.Logger) *Sessions {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	s := &Sessions{
		store:    store,
		opts:     opts,
		metrics:  metrics,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
	s.unsubscribe = store.Subscribe(s.reload)
	return s
}

// Create starts a new session. theme is the stored cookie choice, nil when
// absent; system is the browser's preferred scheme.
func (s *Sessions) Create(theme *domain.Theme, system domain.Theme, width int) *Session {
	sess := s.build(theme, system, width)

	// Registered before the first load so a concurrent store reload reaches it.
	s.register(sess)
	sess.load(s.store.Snapshot())

	s.metrics.SessionsActive.Inc()
	s.logger.Debug("session created", "session", sess.id)
	return sess
}

func (s *Sessions) build(theme *domain.Theme, system domain.Theme, width int) *Session {
	sess := newSession(uuid.NewString(), theme, s.opts.Clock.Now())
	sess.controller = board.New(sess, sess, sess, sess, board.Options{
		Clock:         s.opts.Clock,
		Location:      s.opts.Location,
		LogoRules:     s.opts.LogoRules,
		Debounce:      s.opts.Debounce,
		SystemTheme:   system,
		ViewportWidth: width,
		Logger:        s.logger.With("session", sess.id),
		Metrics:       s.metrics,
	})
	return sess
}

func (s *Sessions) register(sess *Session) {
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
}

// Get returns a live session and marks it active.
func (s *Sessions) Get(id string) (*Session, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if ok {
		sess.touch(s.opts.Clock.Now())
	}
	return sess, ok
}

// Remove disposes a session. It reports whether the session existed.
func (s *Sessions) Remove(id string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return false
	}
	sess.controller.Dispose()
	s.metrics.SessionsActive.Dec()
	return true
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Sessions) all() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

func (s *Sessions) reload(events []domain.Termin, version uint64) {
	for _, sess := range s.all() {
		sess.load(events, version)
	}
}

// Sweep removes sessions idle for longer than the TTL. Sessions with an open
// event stream are kept.
func (s *Sessions) Sweep() int {
	cutoff := s.opts.Clock.Now().Add(-s.opts.TTL)
	removed := 0
	for _, sess := range s.all() {
		last, streaming := sess.idleSince()
		if streaming || last.After(cutoff) {
			continue
		}
		if s.Remove(sess.id) {
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("idle sessions removed", "count", removed)
	}
	return removed
}

// Run sweeps idle sessions until ctx is cancelled, then disposes all sessions.
func (s *Sessions) Run(ctx context.Context) {
	ticker := s.opts.Clock.NewTicker(s.opts.TTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-ticker.Chan():
			s.Sweep()
		}
	}
}

// Close disposes every session and detaches from the store.
func (s *Sessions) Close() {
	s.unsubscribe()
	for _, sess := range s.all() {
		s.Remove(sess.id)
	}
}
