package backend

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(failures, successes int, timeout time.Duration) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(failures, successes, timeout)
	cb.now = clock.now
	return cb, clock
}

func TestCircuitBreaker_startsClosed(t *testing.T) {
	cb, _ := newTestBreaker(3, 2, time.Second)

	if s := cb.State(); s != BreakerClosed {
		t.Errorf("initial state = %v, want closed", s)
	}
	if err := cb.Allow(); err != nil {
		t.Errorf("Allow() error = %v, want nil", err)
	}
}

func TestCircuitBreaker_opensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, 2, time.Second)

	cb.RecordFailure()
	cb.RecordFailure()
	if s := cb.State(); s != BreakerClosed {
		t.Errorf("state after 2 failures = %v, want closed", s)
	}

	cb.RecordFailure()
	if s := cb.State(); s != BreakerOpen {
		t.Errorf("state after 3 failures = %v, want open", s)
	}
	if err := cb.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("Allow() error = %v, want ErrBreakerOpen", err)
	}
}

func TestCircuitBreaker_successResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(3, 2, time.Second)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if s := cb.State(); s != BreakerClosed {
		t.Errorf("state = %v, want closed after reset", s)
	}
}

func TestCircuitBreaker_halfOpenAfterTimeout(t *testing.T) {
	cb, clock := newTestBreaker(1, 2, time.Second)

	cb.RecordFailure()
	clock.advance(500 * time.Millisecond)
	if err := cb.Allow(); err == nil {
		t.Fatal("Allow() before timeout should fail")
	}

	clock.advance(time.Second)
	if s := cb.State(); s != BreakerHalfOpen {
		t.Fatalf("state after timeout = %v, want half-open", s)
	}
	if err := cb.Allow(); err != nil {
		t.Errorf("Allow() in half-open = %v, want nil", err)
	}

	cb.RecordSuccess()
	if s := cb.State(); s != BreakerHalfOpen {
		t.Errorf("state after 1 success = %v, want half-open", s)
	}
	cb.RecordSuccess()
	if s := cb.State(); s != BreakerClosed {
		t.Errorf("state after 2 successes = %v, want closed", s)
	}
}

func TestCircuitBreaker_halfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(1, 2, time.Second)

	cb.RecordFailure()
	clock.advance(2 * time.Second)
	_ = cb.Allow()

	cb.RecordFailure()
	if s := cb.State(); s != BreakerOpen {
		t.Errorf("state = %v, want open after half-open failure", s)
	}
}

func TestCircuitBreaker_onChange(t *testing.T) {
	cb, clock := newTestBreaker(1, 1, time.Second)
	var seen []BreakerState
	cb.OnChange(func(s BreakerState) { seen = append(seen, s) })

	cb.RecordFailure()
	clock.advance(2 * time.Second)
	_ = cb.Allow()
	cb.RecordSuccess()

	want := []BreakerState{BreakerOpen, BreakerHalfOpen, BreakerClosed}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition[%d] = %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestCircuitBreaker_defaults(t *testing.T) {
	cb, _ := newTestBreaker(0, 0, 0)

	for i := 0; i < 4; i++ {
		cb.RecordFailure()
	}
	if s := cb.State(); s != BreakerClosed {
		t.Errorf("state after 4 failures = %v, want closed (default threshold 5)", s)
	}
	cb.RecordFailure()
	if s := cb.State(); s != BreakerOpen {
		t.Errorf("state after 5 failures = %v, want open", s)
	}
}

func TestBreakerState_String(t *testing.T) {
	for state, want := range map[BreakerState]string{
		BreakerClosed:    "closed",
		BreakerOpen:      "open",
		BreakerHalfOpen:  "half-open",
		BreakerState(99): "unknown",
	} {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
