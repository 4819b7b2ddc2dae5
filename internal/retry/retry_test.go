package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo(t *testing.T) {
	errFlaky := errors.New("flaky")

	t.Run("immediate success", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), 3, time.Millisecond, func() error {
			calls++
			return nil
		})
		if err != nil || calls != 1 {
			t.Fatalf("err = %v, calls = %d", err, calls)
		}
	})

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), 4, time.Millisecond, func() error {
			calls++
			if calls < 3 {
				return errFlaky
			}
			return nil
		})
		if err != nil {
			t.Fatalf("err = %v", err)
		}
		if calls != 3 {
			t.Fatalf("calls = %d, want 3", calls)
		}
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), 3, time.Millisecond, func() error {
			calls++
			return errFlaky
		})
		if !errors.Is(err, errFlaky) {
			t.Fatalf("err = %v, want wrapped errFlaky", err)
		}
		if calls != 3 {
			t.Fatalf("calls = %d, want 3", calls)
		}
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), 5, time.Millisecond, func() error {
			calls++
			return Permanent(errFlaky)
		})
		if !errors.Is(err, errFlaky) {
			t.Fatalf("err = %v", err)
		}
		if calls != 1 {
			t.Fatalf("calls = %d, want 1", calls)
		}
	})

	t.Run("zero attempts still runs once", func(t *testing.T) {
		calls := 0
		if err := Do(context.Background(), 0, time.Millisecond, func() error {
			calls++
			return nil
		}); err != nil {
			t.Fatalf("err = %v", err)
		}
		if calls != 1 {
			t.Fatalf("calls = %d, want 1", calls)
		}
	})
}

func TestDo_HonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Do(ctx, 10, 50*time.Millisecond, func() error {
		calls++
		cancel()
		return errors.New("down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1; backoff sleep must observe cancellation", calls)
	}
}

func TestDo_BacksOffBetweenAttempts(t *testing.T) {
	start := time.Now()
	calls := 0
	_ = Do(context.Background(), 3, 20*time.Millisecond, func() error {
		calls++
		return errors.New("down")
	})
	// Two sleeps at roughly 20ms and 40ms, minus jitter headroom.
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("elapsed = %v, expected backoff delays between attempts", elapsed)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestPermanent_WrapsInner(t *testing.T) {
	inner := errors.New("bad request")
	if !errors.Is(Permanent(inner), inner) {
		t.Fatal("Permanent must unwrap to the inner error")
	}
}
