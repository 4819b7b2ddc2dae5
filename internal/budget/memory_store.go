package budget

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/mbd888/spendgate/internal/money"
)

// MemoryStore is an in-memory Store for development and tests.
// State is lost on restart; durability is an external concern layered
// behind the same interface.
type MemoryStore struct {
	mu          sync.Mutex
	spendWindow time.Duration
	orderWindow time.Duration
	windows     map[string]*windowState
	attempts    map[string][]time.Time
}

type windowState struct {
	startedAt    time.Time
	committed    *big.Int
	reservations map[string]*big.Int
}

// NewMemoryStore creates an in-memory budget store.
func NewMemoryStore(spendWindow, orderWindow time.Duration) *MemoryStore {
	return &MemoryStore{
		spendWindow: spendWindow,
		orderWindow: orderWindow,
		windows:     make(map[string]*windowState),
		attempts:    make(map[string][]time.Time),
	}
}

// window returns the identity's state after applying the lazy-reset rule.
// Caller holds s.mu.
func (s *MemoryStore) window(identity string, now time.Time) *windowState {
	w, ok := s.windows[identity]
	if !ok {
		w = &windowState{
			startedAt:    now,
			committed:    new(big.Int),
			reservations: make(map[string]*big.Int),
		}
		s.windows[identity] = w
		return w
	}
	if now.Sub(w.startedAt) >= s.spendWindow {
		// All-or-nothing reset. Reservations for in-flight runs survive.
		w.startedAt = now
		w.committed = new(big.Int)
	}
	return w
}

func (s *MemoryStore) Window(_ context.Context, identity string, now time.Time) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.window(identity, now)
	reserved := new(big.Int)
	for _, amt := range w.reservations {
		reserved.Add(reserved, amt)
	}
	return &Snapshot{
		Identity:        identity,
		WindowStartedAt: w.startedAt,
		Committed:       money.Format(w.committed),
		Reserved:        money.Format(reserved),
	}, nil
}

func (s *MemoryStore) Reserve(_ context.Context, identity string, amount, ceiling *big.Int, ref string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.window(identity, now)
	projected := new(big.Int).Set(w.committed)
	for _, amt := range w.reservations {
		projected.Add(projected, amt)
	}
	projected.Add(projected, amount)

	if projected.Cmp(ceiling) > 0 {
		return ErrLimitExceeded
	}
	w.reservations[ref] = new(big.Int).Set(amount)
	return nil
}

func (s *MemoryStore) Commit(_ context.Context, identity, ref string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.window(identity, now)
	amt, ok := w.reservations[ref]
	if !ok {
		return ErrUnknownReservation
	}
	delete(w.reservations, ref)
	w.committed.Add(w.committed, amt)
	return nil
}

func (s *MemoryStore) Release(_ context.Context, identity, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[identity]
	if !ok {
		return ErrUnknownReservation
	}
	if _, ok := w.reservations[ref]; !ok {
		return ErrUnknownReservation
	}
	delete(w.reservations, ref)
	return nil
}

func (s *MemoryStore) RecordAttempt(_ context.Context, identity string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := at.Add(-s.orderWindow)
	pruned := prune(s.attempts[identity], cutoff)
	s.attempts[identity] = append(pruned, at)
	return nil
}

func (s *MemoryStore) CountAttempts(_ context.Context, identity string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts[identity] = prune(s.attempts[identity], since)
	return len(s.attempts[identity]), nil
}

// prune drops timestamps before cutoff; entries are in append order.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	start := 0
	for start < len(ts) && ts[start].Before(cutoff) {
		start++
	}
	if start > 0 {
		ts = ts[start:]
	}
	return ts
}

var _ Store = (*MemoryStore)(nil)
