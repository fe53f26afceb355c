package tenants

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory tenant store for tests and local runs.
type MemoryRepo struct {
	mu    sync.RWMutex
	byKey map[string]Tenant

	// Err, when set, is returned from every lookup.
	Err error
}

func NewMemoryRepo(ts ...Tenant) *MemoryRepo {
	r := &MemoryRepo{byKey: make(map[string]Tenant, len(ts))}
	for _, t := range ts {
		r.byKey[t.RoutingKey] = t
	}
	return r
}

func (r *MemoryRepo) Put(t Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[t.RoutingKey] = t
}

func (r *MemoryRepo) GetTenantByRoutingKey(ctx context.Context, key string) (Tenant, error) {
	if r.Err != nil {
		return Tenant{}, r.Err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byKey[key]
	if !ok {
		return Tenant{}, ErrNotFound
	}
	return t, nil
}
