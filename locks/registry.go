// Package locks provides per-hash mutual exclusion so concurrent
// upload tasks that happen to hash the same content serialize on the
// dedup check and the single resulting store write, instead of racing
// to double-upload or double-count a reference.
//
// Grounded on the teacher's monotonic-registry design note (never
// shrink a lock map for the life of a command) with
// golang.org/x/sync/semaphore standing in for a hand-rolled mutex map.
package locks

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/cairnbackup/cairn/hash"
)

// Registry hands out a per-hash weighted semaphore with a single
// permit, creating it on first use. Entries are never removed: the
// registry lives for one command invocation, and the memory cost of
// one semaphore per distinct hash seen is bounded by that invocation's
// own working set.
type Registry struct {
	mu   sync.Mutex
	sems map[hash.Hash]*semaphore.Weighted
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sems: map[hash.Hash]*semaphore.Weighted{}}
}

func (r *Registry) semaphoreFor(h hash.Hash) *semaphore.Weighted {
	r.mu.Lock()
	defer r.mu.Unlock()
	sem, ok := r.sems[h]
	if !ok {
		sem = semaphore.NewWeighted(1)
		r.sems[h] = sem
	}
	return sem
}

// Acquire blocks until the calling goroutine holds exclusive access to
// h, or ctx is done.
func (r *Registry) Acquire(ctx context.Context, h hash.Hash) error {
	return r.semaphoreFor(h).Acquire(ctx, 1)
}

// Release relinquishes exclusive access to h.
func (r *Registry) Release(h hash.Hash) {
	r.semaphoreFor(h).Release(1)
}

// With runs fn while holding exclusive access to h.
func (r *Registry) With(ctx context.Context, h hash.Hash, fn func() error) error {
	if err := r.Acquire(ctx, h); err != nil {
		return err
	}
	defer r.Release(h)
	return fn()
}
