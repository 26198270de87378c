// Package mailbox implements a single slot, latest-wins buffer shared by one producer and one
// consumer that must never wait on each other.
package mailbox

import (
	"sync"

	"go.uber.org/atomic"
)

// Mailbox holds at most one pending value. Offer overwrites whatever is pending and Take drains
// it. Both sides only ever try the lock: if the other side holds it, Offer discards its value
// and Take reports empty, so neither side can stall the other.
type Mailbox[T any] struct {
	mu      sync.Mutex
	pending T
	full    bool

	offered   atomic.Uint64
	replaced  atomic.Uint64
	contended atomic.Uint64
	taken     atomic.Uint64
}

// Stats are the lifetime counters of a Mailbox.
type Stats struct {
	// Offered counts every call to Offer.
	Offered uint64 `json:"offered"`
	// Replaced counts pending values overwritten before they were taken.
	Replaced uint64 `json:"replaced"`
	// Contended counts offered values discarded because the slot was busy.
	Contended uint64 `json:"contended"`
	// Taken counts values handed to the consumer.
	Taken uint64 `json:"taken"`
}

// Dropped is the number of offered values that will never be taken.
func (s Stats) Dropped() uint64 {
	return s.Replaced + s.Contended
}

// New returns an empty Mailbox.
func New[T any]() *Mailbox[T] {
	return &Mailbox[T]{}
}

// Offer stores v, replacing any value not yet taken. It returns false when the slot was busy,
// in which case v is discarded.
func (m *Mailbox[T]) Offer(v T) bool {
	m.offered.Inc()
	if !m.mu.TryLock() {
		m.contended.Inc()
		return false
	}
	defer m.mu.Unlock()

	if m.full {
		m.replaced.Inc()
	}
	m.pending = v
	m.full = true
	return true
}

// Take returns the pending value and clears the slot. ok is false when nothing is pending or
// the slot was busy.
func (m *Mailbox[T]) Take() (v T, ok bool) {
	if !m.mu.TryLock() {
		return v, false
	}
	defer m.mu.Unlock()

	if !m.full {
		return v, false
	}
	v = m.pending
	var zero T
	m.pending = zero
	m.full = false
	m.taken.Inc()
	return v, true
}

// Stats returns a snapshot of the counters.
func (m *Mailbox[T]) Stats() Stats {
	return Stats{
		Offered:   m.offered.Load(),
		Replaced:  m.replaced.Load(),
		Contended: m.contended.Load(),
		Taken:     m.taken.Load(),
	}
}
