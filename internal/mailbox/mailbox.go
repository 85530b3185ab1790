// Package mailbox provides a single-slot, overwrite-on-write holder for the
// most recent value produced by one goroutine and polled by others.
package mailbox

import (
	"sync"
	"time"
)

// Mailbox holds at most one value. Update replaces it; Read copies it out.
// There is no queue and no backpressure: a value that is overwritten before
// anyone reads it is lost.
//
// T should be a plain value type. The lock only covers the copy, so a T
// holding pointers or slices would leak shared state out of the slot.
type Mailbox[T any] struct {
	mu        sync.RWMutex
	v         T
	have      bool
	updates   uint64
	updatedAt time.Time
}

func New[T any]() *Mailbox[T] {
	return &Mailbox[T]{}
}

func (m *Mailbox[T]) Update(v T) {
	now := time.Now().UTC()
	m.mu.Lock()
	m.v = v
	m.have = true
	m.updates++
	m.updatedAt = now
	m.mu.Unlock()
}

// Read returns a copy of the held value, or ok=false before the first Update.
func (m *Mailbox[T]) Read() (v T, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v, m.have
}

// Updates reports how many values were stored and when the last one arrived.
func (m *Mailbox[T]) Updates() (n uint64, last time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.updates, m.updatedAt
}
