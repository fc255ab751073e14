package peer

import (
	"context"
	"slices"
	"sync"
)

// Registry is a concurrency-safe set of peer addresses.
//
// Add and Remove are idempotent. Snapshot returns a point-in-time copy the
// caller may keep and iterate freely; it never reflects a partially applied
// mutation. Adding the empty address is a no-op.
type Registry interface {
	Add(ctx context.Context, addrs ...Address) error
	Remove(ctx context.Context, addr Address) error
	Snapshot(ctx context.Context) ([]Address, error)
}

// MemoryRegistry is an in-process Registry.
type MemoryRegistry struct {
	mu    sync.RWMutex
	peers map[Address]struct{}
}

var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry returns a registry seeded with addrs.
func NewMemoryRegistry(addrs ...Address) *MemoryRegistry {
	r := &MemoryRegistry{peers: make(map[Address]struct{}, len(addrs))}
	for _, a := range addrs {
		if a != "" {
			r.peers[a] = struct{}{}
		}
	}
	return r
}

// Add inserts every address in one step.
func (r *MemoryRegistry) Add(_ context.Context, addrs ...Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range addrs {
		if a != "" {
			r.peers[a] = struct{}{}
		}
	}
	return nil
}

func (r *MemoryRegistry) Remove(_ context.Context, addr Address) error {
	r.mu.Lock()
	delete(r.peers, addr)
	r.mu.Unlock()
	return nil
}

// Snapshot returns the peers sorted by address.
func (r *MemoryRegistry) Snapshot(_ context.Context) ([]Address, error) {
	r.mu.RLock()
	out := make([]Address, 0, len(r.peers))
	for a := range r.peers {
		out = append(out, a)
	}
	r.mu.RUnlock()
	slices.Sort(out)
	return out, nil
}

func (r *MemoryRegistry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
