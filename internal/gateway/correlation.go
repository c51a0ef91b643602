package gateway

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrDuplicateRequest is returned by Register when a slot already exists for
// the request id. Request ids are UUIDs, so this indicates a programmer error,
// but it is fatal only to the single request, never to the process.
var ErrDuplicateRequest = errors.New("correlation slot already registered for request id")

// ErrAwaitTimeout is returned by Slot.Await when the deadline elapses before
// any reply resolves the slot.
var ErrAwaitTimeout = errors.New("timed out waiting for reply")

// Slot is a single-assignment completion cell for one in-flight request.
// It is resolved at most once by the first matching reply; later resolve
// attempts are silent no-ops (first-writer-wins).
type Slot struct {
	requestID string
	createdAt time.Time

	once  sync.Once
	done  chan struct{}
	value string
}

// resolve assigns the value and wakes the waiter. Only the first call has any
// effect.
func (s *Slot) resolve(value string) {
	s.once.Do(func() {
		s.value = value
		close(s.done)
	})
}

// Await blocks until the slot is resolved or ctx is done, whichever comes
// first. The wait is a cooperative suspension, not a poll.
func (s *Slot) Await(ctx context.Context) (string, error) {
	select {
	case <-s.done:
		return s.value, nil
	case <-ctx.Done():
		return "", ErrAwaitTimeout
	}
}

// Table is the concurrent map from request id to correlation slot. It is one
// of the two gateway structures mutated from multiple goroutines; every
// operation holds the mutex for the minimal check-and-set critical section.
type Table struct {
	mu    sync.Mutex
	slots map[string]*Slot
}

// NewTable creates an empty correlation table.
func NewTable() *Table {
	return &Table{slots: make(map[string]*Slot)}
}

// Register creates and stores a new slot for the request id.
// Returns ErrDuplicateRequest if a slot is already present.
func (t *Table) Register(requestID string) (*Slot, error) {
	slot := &Slot{
		requestID: requestID,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.slots[requestID]; exists {
		return nil, ErrDuplicateRequest
	}
	t.slots[requestID] = slot
	return slot, nil
}

// Resolve delivers a reply to the waiter for the request id. If no slot is
// registered (late reply after removal) or the slot is already resolved
// (duplicate reply), the call is a silent no-op; both are expected.
func (t *Table) Resolve(requestID, value string) {
	t.mu.Lock()
	slot := t.slots[requestID]
	t.mu.Unlock()

	if slot != nil {
		slot.resolve(value)
	}
}

// Remove unconditionally drops the slot entry. Callers invoke it exactly once
// per request, on every exit path, so abandoned slots never leak.
func (t *Table) Remove(requestID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.slots, requestID)
}

// Len returns the number of in-flight slots.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}
