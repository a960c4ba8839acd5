package platform

import (
	"context"
	"sync"
)

// OwnerLocks serializes work per owner id. The platform rate-limits per
// access token, so at most one call per owner may be in flight; different
// owners proceed in parallel.
type OwnerLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewOwnerLocks returns an empty lock set.
func NewOwnerLocks() *OwnerLocks {
	return &OwnerLocks{slots: make(map[string]chan struct{})}
}

// Acquire blocks until the owner's slot is free or ctx is done. The returned
// func releases the slot and must be called exactly once.
func (l *OwnerLocks) Acquire(ctx context.Context, ownerID string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[ownerID]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[ownerID] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
