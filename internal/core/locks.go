package core

import (
	"sync"

	"github.com/google/uuid"
)

// clientLocks serializes batch processing per client. Two batches for
// different clients share no mutable state and may run concurrently, but
// interleaving two batches for the same client would corrupt the
// ordering of its stock-history trail.
type clientLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newClientLocks() *clientLocks {
	return &clientLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// forClient returns the mutex owned by one client, creating it on first
// use. Lock entries are never removed; the per-client footprint is one
// mutex and clients number in the hundreds, not millions.
func (c *clientLocks) forClient(id uuid.UUID) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[id] = lock
	}
	return lock
}
