// Package budget tracks rolling-window spend and order frequency per identity.
//
// It is the policy store behind the decision engine and the approval stage:
// a spend ledger with a lazily-reset rolling window, plus an attempt tracker
// for frequency caps. Spend is consumed with a check-and-reserve discipline:
// Reserve atomically verifies the ceiling and holds the amount, Commit turns
// the hold into committed spend when a pipeline run completes, and Release
// returns it when the run fails or is rejected. Two concurrent orders can
// therefore never both pass the limit check and later overshoot the ceiling.
package budget

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/mbd888/spendgate/internal/idgen"
	"github.com/mbd888/spendgate/internal/money"
	"github.com/mbd888/spendgate/internal/syncutil"
)

var (
	ErrLimitExceeded      = errors.New("budget: rolling-window spend limit exceeded")
	ErrUnknownReservation = errors.New("budget: reservation not found")
	ErrInvalidAmount      = errors.New("budget: invalid amount")
)

// Snapshot is a point-in-time view of an identity's rolling spend window,
// taken after the lazy-reset rule has been applied.
type Snapshot struct {
	Identity        string    `json:"identity"`
	WindowStartedAt time.Time `json:"windowStartedAt"`
	Committed       string    `json:"committed"` // decimal string
	Reserved        string    `json:"reserved"`  // decimal string, in-flight holds
}

// Store persists spend windows, reservations, and order attempts.
//
// Implementations must apply the lazy-reset rule on every access: once
// now - windowStartedAt >= the window length, committed spend drops to zero
// and the window restarts at now. No partial decay. Reservations held by
// in-flight runs survive a reset.
type Store interface {
	// Window returns the identity's window after lazy reset.
	Window(ctx context.Context, identity string, now time.Time) (*Snapshot, error)

	// Reserve atomically checks committed+reserved+amount against ceiling
	// and records a hold under ref. Returns ErrLimitExceeded when the
	// projected total would overshoot.
	Reserve(ctx context.Context, identity string, amount, ceiling *big.Int, ref string, now time.Time) error

	// Commit converts the hold under ref into committed spend. A ref can be
	// committed at most once; unknown refs return ErrUnknownReservation.
	Commit(ctx context.Context, identity, ref string, now time.Time) error

	// Release discards the hold under ref without committing it.
	Release(ctx context.Context, identity, ref string) error

	// RecordAttempt appends an order attempt timestamp.
	RecordAttempt(ctx context.Context, identity string, at time.Time) error

	// CountAttempts returns the number of attempts at or after since.
	CountAttempts(ctx context.Context, identity string, since time.Time) (int, error)
}

// Limits configures the rolling windows a Book enforces.
type Limits struct {
	SpendCeiling string        // rolling-window spend ceiling, decimal
	SpendWindow  time.Duration // length of the spend window
	OrderWindow  time.Duration // trailing window for frequency counting
}

// Book coordinates per-identity budget operations. All read-then-act
// sequences run inside a per-identity critical section so concurrent runs
// for the same identity serialize; different identities never contend
// beyond shard collisions.
type Book struct {
	store   Store
	limits  Limits
	ceiling *big.Int
	locks   *syncutil.ContextKeyMutex
}

// New creates a budget book over the given store.
func New(store Store, limits Limits) (*Book, error) {
	ceiling, ok := money.ParsePositive(limits.SpendCeiling)
	if !ok {
		return nil, fmt.Errorf("%w: spend ceiling %q", ErrInvalidAmount, limits.SpendCeiling)
	}
	return &Book{
		store:   store,
		limits:  limits,
		ceiling: ceiling,
		locks:   syncutil.NewContextKeyMutex(),
	}, nil
}

// Ceiling returns the rolling-window spend ceiling in smallest units.
func (b *Book) Ceiling() *big.Int {
	return new(big.Int).Set(b.ceiling)
}

// Snapshot returns the identity's current window view.
func (b *Book) Snapshot(ctx context.Context, identity string) (*Snapshot, error) {
	unlock, err := b.locks.LockContext(ctx, identity)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return b.store.Window(ctx, identity, time.Now())
}

// Reserve holds amount against the identity's rolling ceiling and returns
// the reservation ref. The check and the hold are a single critical section.
func (b *Book) Reserve(ctx context.Context, identity, amount string) (string, error) {
	amt, ok := money.ParsePositive(amount)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}

	unlock, err := b.locks.LockContext(ctx, identity)
	if err != nil {
		return "", err
	}
	defer unlock()

	ref := idgen.Reservation()
	if err := b.store.Reserve(ctx, identity, amt, b.ceiling, ref, time.Now()); err != nil {
		return "", err
	}
	return ref, nil
}

// Commit converts a reservation into committed spend. Must be called exactly
// once, and only for a COMPLETED pipeline run.
func (b *Book) Commit(ctx context.Context, identity, ref string) error {
	unlock, err := b.locks.LockContext(ctx, identity)
	if err != nil {
		return err
	}
	defer unlock()
	return b.store.Commit(ctx, identity, ref, time.Now())
}

// Release reverts a reservation after a failed or rejected run.
func (b *Book) Release(ctx context.Context, identity, ref string) error {
	unlock, err := b.locks.LockContext(ctx, identity)
	if err != nil {
		return err
	}
	defer unlock()
	return b.store.Release(ctx, identity, ref)
}

// RecordAttempt registers an order attempt for frequency tracking.
func (b *Book) RecordAttempt(ctx context.Context, identity string) error {
	return b.store.RecordAttempt(ctx, identity, time.Now())
}

// AttemptCount returns the number of attempts within the trailing order window.
func (b *Book) AttemptCount(ctx context.Context, identity string) (int, error) {
	return b.store.CountAttempts(ctx, identity, time.Now().Add(-b.limits.OrderWindow))
}
