package calls

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrDuplicateSession = errors.New("calls: session already registered")
	ErrSessionNotFound  = errors.New("calls: session not found")
)

// Registry tracks live sessions by id. A session is removed by its own
// finalization path, never by callers.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	if _, ok := r.sessions[s.ID()]; ok {
		r.mu.Unlock()
		return ErrDuplicateSession
	}
	r.sessions[s.ID()] = s
	r.mu.Unlock()

	s.OnFinish(func(Summary) { r.remove(s) })
	return nil
}

func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.ID()]; ok && cur == s {
		delete(r.sessions, s.ID())
	}
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns snapshots ordered by start time, oldest first.
// An empty tenantID lists every tenant.
func (r *Registry) List(tenantID string) []Snapshot {
	r.mu.RLock()
	out := make([]Snapshot, 0, len(r.sessions))
	for _, s := range r.sessions {
		if tenantID != "" && s.Tenant().TenantID != tenantID {
			continue
		}
		out = append(out, s.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Close forces one session to CLOSED.
func (r *Registry) Close(id string) error {
	s, ok := r.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	s.Shutdown()
	return nil
}

// CloseAll forces every session closed and waits until the registry
// drains or ctx expires.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.RLock()
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.mu.RUnlock()

	for _, s := range live {
		s.Shutdown()
	}

	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for r.Len() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}
