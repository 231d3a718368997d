package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quotedrill/sim-engine/internal/engine"
	"github.com/quotedrill/sim-engine/internal/metrics"
	"github.com/quotedrill/sim-engine/internal/model"
)

var (
	// ErrSessionLimit is returned when the registry is at capacity.
	ErrSessionLimit = errors.New("session: active session limit reached")

	// ErrNotFound is returned for unknown session IDs.
	ErrNotFound = errors.New("session: not found")
)

// Session binds one scenario to one engine with its clock bounds. The
// mutex serializes engine access; the engine itself is single-threaded.
type Session struct {
	ID        string
	Scenario  model.Scenario
	Settings  model.Settings
	StartedAt time.Time
	ExpiresAt time.Time
	Ended     bool

	mu     sync.Mutex
	engine *engine.Engine
}

// Expired reports whether the session clock has run out at now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Registry tracks active sessions behind a capacity cap so a single
// instance cannot accumulate unbounded engines.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	capacity int
}

// NewRegistry creates a registry holding at most capacity sessions.
func NewRegistry(capacity int) *Registry {
	if capacity < 1 {
		capacity = 1
	}
	return &Registry{
		sessions: make(map[string]*Session),
		capacity: capacity,
	}
}

// Add registers a session, rejecting when at capacity.
func (r *Registry) Add(sess *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sessions) >= r.capacity {
		return fmt.Errorf("%w (%d active)", ErrSessionLimit, len(r.sessions))
	}
	r.sessions[sess.ID] = sess
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	return nil
}

// Get returns a session by ID.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess, nil
}

// Remove drops a session by ID.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep drops sessions whose expiry is further in the past than grace
// and returns how many were dropped. Ended sessions linger for the
// same grace so reports stay fetchable briefly after the clock runs
// out.
func (r *Registry) Sweep(now time.Time, grace time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, sess := range r.sessions {
		if now.Sub(sess.ExpiresAt) > grace {
			delete(r.sessions, id)
			n++
		}
	}
	if n > 0 {
		metrics.ActiveSessions.Set(float64(len(r.sessions)))
	}
	return n
}

// RunSweeper sweeps expired sessions on an interval until ctx is done.
// Must be called in a goroutine.
func (r *Registry) RunSweeper(ctx context.Context, interval, grace time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(time.Now(), grace); n > 0 {
				slog.Info("swept expired sessions", "count", n, "remaining", r.Len())
			}
		}
	}
}
