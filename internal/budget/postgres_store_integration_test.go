//go:build integration

package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mbd888/spendgate/internal/money"
	"github.com/mbd888/spendgate/internal/testutil"
)

func newPGStore(t *testing.T) *PostgresStore {
	t.Helper()
	db := testutil.OpenPostgres(t)
	store := NewPostgresStore(db, 24*time.Hour, time.Hour)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestPGReserveCommitRelease(t *testing.T) {
	store := newPGStore(t)
	ctx := context.Background()
	identity := "0xaaaa000000000000000000000000000000000001"
	now := time.Now()

	ceiling, _ := money.ParsePositive("10.00")
	amount, _ := money.ParsePositive("3.00")

	if err := store.Reserve(ctx, identity, amount, ceiling, "rsv_pg_1", now); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	snap, err := store.Window(ctx, identity, now)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Reserved != "3.000000" || snap.Committed != "0.000000" {
		t.Errorf("after reserve: committed=%s reserved=%s", snap.Committed, snap.Reserved)
	}

	if err := store.Commit(ctx, identity, "rsv_pg_1", now); err != nil {
		t.Fatalf("commit: %v", err)
	}
	snap, err = store.Window(ctx, identity, now)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Committed != "3.000000" || snap.Reserved != "0.000000" {
		t.Errorf("after commit: committed=%s reserved=%s", snap.Committed, snap.Reserved)
	}

	// A ref commits at most once.
	if err := store.Commit(ctx, identity, "rsv_pg_1", now); !errors.Is(err, ErrUnknownReservation) {
		t.Errorf("double commit = %v, want ErrUnknownReservation", err)
	}

	if err := store.Reserve(ctx, identity, amount, ceiling, "rsv_pg_2", now); err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if err := store.Release(ctx, identity, "rsv_pg_2"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := store.Release(ctx, identity, "rsv_pg_2"); !errors.Is(err, ErrUnknownReservation) {
		t.Errorf("double release = %v, want ErrUnknownReservation", err)
	}
}

func TestPGReserveOverCeiling(t *testing.T) {
	store := newPGStore(t)
	ctx := context.Background()
	identity := "0xaaaa000000000000000000000000000000000002"
	now := time.Now()

	ceiling, _ := money.ParsePositive("5.00")
	big, _ := money.ParsePositive("4.00")
	small, _ := money.ParsePositive("2.00")

	if err := store.Reserve(ctx, identity, big, ceiling, "rsv_pg_a", now); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	// 4.00 held + 2.00 requested > 5.00 ceiling.
	if err := store.Reserve(ctx, identity, small, ceiling, "rsv_pg_b", now); !errors.Is(err, ErrLimitExceeded) {
		t.Errorf("over-ceiling reserve = %v, want ErrLimitExceeded", err)
	}
}

func TestPGLazyWindowReset(t *testing.T) {
	store := newPGStore(t)
	ctx := context.Background()
	identity := "0xaaaa000000000000000000000000000000000003"
	start := time.Now().Add(-25 * time.Hour)

	ceiling, _ := money.ParsePositive("10.00")
	amount, _ := money.ParsePositive("9.00")

	if err := store.Reserve(ctx, identity, amount, ceiling, "rsv_pg_old", start); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.Commit(ctx, identity, "rsv_pg_old", start); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// 25 hours later the 24h window has elapsed: committed resets to zero.
	snap, err := store.Window(ctx, identity, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Committed != "0.000000" {
		t.Errorf("committed after reset = %s, want 0.000000", snap.Committed)
	}

	// The full ceiling is available again.
	fresh, _ := money.ParsePositive("10.00")
	if err := store.Reserve(ctx, identity, fresh, ceiling, "rsv_pg_new", time.Now()); err != nil {
		t.Errorf("reserve after reset: %v", err)
	}
}

func TestPGAttemptTracking(t *testing.T) {
	store := newPGStore(t)
	ctx := context.Background()
	identity := "0xaaaa000000000000000000000000000000000004"
	now := time.Now()

	for i := 0; i < 3; i++ {
		if err := store.RecordAttempt(ctx, identity, now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("record attempt: %v", err)
		}
	}

	count, err := store.CountAttempts(ctx, identity, now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	// Attempts before the since cutoff are excluded.
	count, err = store.CountAttempts(ctx, identity, now.Add(90*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("count after cutoff = %d, want 0", count)
	}
}
