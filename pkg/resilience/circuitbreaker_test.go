package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/CoursePilotAI/coursepilot-mvp/pkg/fn"
)

func failing(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Cooldown: time.Minute})
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		if err := b.Call(context.Background(), failing(boom)); !errors.Is(err, boom) {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %s", b.State())
	}

	calls := 0
	err := b.Call(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 0 {
		t.Error("rejected call still invoked f")
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Cooldown: time.Minute})
	boom := errors.New("boom")

	_ = b.Call(context.Background(), failing(boom))
	_ = b.Call(context.Background(), failing(nil))
	_ = b.Call(context.Background(), failing(boom))

	if b.State() != StateClosed {
		t.Fatalf("state = %s, interleaved success must reset the count", b.State())
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	clock := time.Unix(0, 0)
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Cooldown: 10 * time.Second})
	b.now = func() time.Time { return clock }

	_ = b.Call(context.Background(), failing(errors.New("boom")))
	if b.State() != StateOpen {
		t.Fatalf("state = %s", b.State())
	}

	clock = clock.Add(11 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("state after cooldown = %s", b.State())
	}

	if err := b.Call(context.Background(), failing(nil)); err != nil {
		t.Fatal(err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state after probe success = %s", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := time.Unix(0, 0)
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Cooldown: 10 * time.Second})
	b.now = func() time.Time { return clock }

	_ = b.Call(context.Background(), failing(errors.New("boom")))
	clock = clock.Add(11 * time.Second)

	_ = b.Call(context.Background(), failing(errors.New("still broken")))
	if b.State() != StateOpen {
		t.Fatalf("state = %s", b.State())
	}
}

func TestBreaker_HalfOpenProbeCap(t *testing.T) {
	clock := time.Unix(0, 0)
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Cooldown: 10 * time.Second, HalfOpenMax: 1})
	b.now = func() time.Time { return clock }

	_ = b.Call(context.Background(), failing(errors.New("boom")))
	clock = clock.Add(11 * time.Second)

	if err := b.admit(); err != nil {
		t.Fatalf("first probe rejected: %v", err)
	}
	if err := b.admit(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("second probe admitted: %v", err)
	}
}

func TestCallResult(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Cooldown: time.Minute})

	res := CallResult(b, context.Background(), func(context.Context) fn.Result[int] {
		return fn.Ok(7)
	})
	if v, err := res.Unwrap(); err != nil || v != 7 {
		t.Fatalf("got (%d, %v)", v, err)
	}

	_ = CallResult(b, context.Background(), func(context.Context) fn.Result[int] {
		return fn.Err[int](errors.New("boom"))
	})
	res = CallResult(b, context.Background(), func(context.Context) fn.Result[int] {
		return fn.Ok(1)
	})
	if _, err := res.Unwrap(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreakerStage(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Cooldown: time.Minute})
	double := fn.MapStage(func(n int) int { return n * 2 })

	guarded := BreakerStage(b, double)
	if v, err := guarded(context.Background(), 21).Unwrap(); err != nil || v != 42 {
		t.Fatalf("got (%d, %v)", v, err)
	}
}
