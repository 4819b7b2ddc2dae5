package circuitbreaker

import (
	"testing"
	"time"
)

const (
	destA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	destB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func trip(b *Breaker, key string, n int) {
	for i := 0; i < n; i++ {
		b.RecordFailure(key)
	}
}

func TestBreaker_ClosedUntilThreshold(t *testing.T) {
	b := New(3, time.Minute)

	if !b.Allow(destA) {
		t.Fatal("fresh key must be allowed")
	}

	trip(b, destA, 2)
	if !b.Allow(destA) {
		t.Fatal("below threshold must still be allowed")
	}
	if b.State(destA) != StateClosed {
		t.Fatalf("state = %s, want closed", b.State(destA))
	}

	b.RecordFailure(destA)
	if b.Allow(destA) {
		t.Fatal("threshold reached, must shed")
	}
	if b.State(destA) != StateOpen {
		t.Fatalf("state = %s, want open", b.State(destA))
	}
}

func TestBreaker_ProbeAfterCoolOff(t *testing.T) {
	b := New(2, 40*time.Millisecond)
	trip(b, destA, 2)

	if b.Allow(destA) {
		t.Fatal("open circuit must shed")
	}

	time.Sleep(50 * time.Millisecond)

	if !b.Allow(destA) {
		t.Fatal("cool-off elapsed, probe must be admitted")
	}
	if b.State(destA) != StateHalfOpen {
		t.Fatalf("state = %s, want half_open", b.State(destA))
	}
	if b.Allow(destA) {
		t.Fatal("only one probe may be in flight")
	}
}

func TestBreaker_ProbeOutcome(t *testing.T) {
	t.Run("success closes", func(t *testing.T) {
		b := New(2, 40*time.Millisecond)
		trip(b, destA, 2)
		time.Sleep(50 * time.Millisecond)
		b.Allow(destA)

		b.RecordSuccess(destA)
		if b.State(destA) != StateClosed {
			t.Fatalf("state = %s, want closed", b.State(destA))
		}
		if !b.Allow(destA) {
			t.Fatal("recovered circuit must allow")
		}
	})

	t.Run("failure reopens", func(t *testing.T) {
		b := New(2, 40*time.Millisecond)
		trip(b, destA, 2)
		time.Sleep(50 * time.Millisecond)
		b.Allow(destA)

		b.RecordFailure(destA)
		if b.State(destA) != StateOpen {
			t.Fatalf("state = %s, want open", b.State(destA))
		}
	})
}

func TestBreaker_SuccessResetsStrikes(t *testing.T) {
	b := New(3, time.Minute)

	trip(b, destA, 2)
	b.RecordSuccess(destA)
	b.RecordFailure(destA)

	if b.State(destA) != StateClosed {
		t.Fatal("strike count must reset on success")
	}
}

func TestBreaker_KeysAreIndependent(t *testing.T) {
	b := New(2, time.Minute)
	trip(b, destA, 2)

	if b.Allow(destA) {
		t.Fatal("tripped key must shed")
	}
	if !b.Allow(destB) {
		t.Fatal("other keys must be unaffected")
	}
	if b.State(destB) != StateClosed {
		t.Fatalf("unseen key state = %s, want closed", b.State(destB))
	}
}

func TestState_String(t *testing.T) {
	for want, s := range map[string]State{
		"closed":    StateClosed,
		"open":      StateOpen,
		"half_open": StateHalfOpen,
		"unknown":   State(7),
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d) = %q, want %q", s, got, want)
		}
	}
}
