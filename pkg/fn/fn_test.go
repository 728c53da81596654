package fn

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestResultBasics(t *testing.T) {
	ok := Ok(5)
	if !ok.IsOk() || ok.IsErr() {
		t.Fatal("Ok result misreports state")
	}
	v, err := ok.Unwrap()
	if v != 5 || err != nil {
		t.Fatalf("Unwrap = (%d, %v)", v, err)
	}

	e := Err[int](errors.New("bad"))
	if e.IsOk() || !e.IsErr() {
		t.Fatal("Err result misreports state")
	}
	if got := e.UnwrapOr(7); got != 7 {
		t.Fatalf("UnwrapOr = %d, want 7", got)
	}
}

func TestErrf(t *testing.T) {
	e := Errf[int]("stage %d failed", 3)
	_, err := e.Unwrap()
	if err == nil || !strings.Contains(err.Error(), "stage 3") {
		t.Fatalf("got %v", err)
	}
}

func TestFromPair(t *testing.T) {
	if r := FromPair(1, nil); r.IsErr() {
		t.Fatal("nil error should be Ok")
	}
	if r := FromPair(0, errors.New("x")); r.IsOk() {
		t.Fatal("non-nil error should be Err")
	}
}

func TestMapResult(t *testing.T) {
	r := MapResult(Ok(2), func(n int) string { return strconv.Itoa(n * 2) })
	if v, _ := r.Unwrap(); v != "4" {
		t.Fatalf("got %q", v)
	}
	bad := MapResult(Err[int](errors.New("x")), func(n int) string { return "" })
	if bad.IsOk() {
		t.Fatal("error should propagate through MapResult")
	}
}

func TestCollect(t *testing.T) {
	all := Collect([]Result[int]{Ok(1), Ok(2)})
	vs, err := all.Unwrap()
	if err != nil || len(vs) != 2 {
		t.Fatalf("got (%v, %v)", vs, err)
	}

	some := Collect([]Result[int]{Ok(1), Err[int](errors.New("x"))})
	if some.IsOk() {
		t.Fatal("Collect must fail on any error")
	}
}

func TestThenShortCircuits(t *testing.T) {
	calls := 0
	first := func(_ context.Context, n int) Result[int] { return Err[int](errors.New("fail")) }
	second := func(_ context.Context, n int) Result[string] {
		calls++
		return Ok("unreachable")
	}
	r := Then(first, second)(context.Background(), 1)
	if r.IsOk() || calls != 0 {
		t.Fatalf("second stage ran %d times after failure", calls)
	}
}

func TestPipeline(t *testing.T) {
	double := MapStage(func(n int) int { return n * 2 })
	inc := MapStage(func(n int) int { return n + 1 })
	r := Pipeline(double, inc, double)(context.Background(), 3)
	if v, _ := r.Unwrap(); v != 14 {
		t.Fatalf("got %d, want 14", v)
	}
}

func TestTapStage(t *testing.T) {
	var seen int
	tap := TapStage(func(_ context.Context, n int) { seen = n })
	r := tap(context.Background(), 9)
	if v, _ := r.Unwrap(); v != 9 || seen != 9 {
		t.Fatalf("tap got %d, passed %d", seen, v)
	}
}

func TestTracedStagePassesThrough(t *testing.T) {
	stage := TracedStage("test", MapStage(func(n int) int { return n + 1 }))
	r := stage(context.Background(), 1)
	if v, _ := r.Unwrap(); v != 2 {
		t.Fatalf("got %d", v)
	}

	failing := TracedStage("fail", func(_ context.Context, _ int) Result[int] {
		return Err[int](errors.New("x"))
	})
	if failing(context.Background(), 1).IsOk() {
		t.Fatal("error must propagate through traced stage")
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond}, func(_ context.Context) Result[int] {
		attempts++
		if attempts < 3 {
			return Err[int](errors.New("transient"))
		}
		return Ok(attempts)
	})
	if v, _ := r.Unwrap(); v != 3 {
		t.Fatalf("got %d attempts", v)
	}
}

func TestRetryExhausts(t *testing.T) {
	attempts := 0
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond}, func(_ context.Context) Result[int] {
		attempts++
		return Err[int](errors.New("always"))
	})
	if r.IsOk() || attempts != 2 {
		t.Fatalf("got ok=%v attempts=%d", r.IsOk(), attempts)
	}
}

func TestRetryRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Retry(ctx, RetryOpts{MaxAttempts: 5, InitialWait: time.Hour}, func(_ context.Context) Result[int] {
		return Err[int](errors.New("x"))
	})
	_, err := r.Unwrap()
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestMapFilterChunk(t *testing.T) {
	doubled := Map([]int{1, 2, 3}, func(n int) int { return n * 2 })
	if doubled[2] != 6 {
		t.Fatalf("Map got %v", doubled)
	}

	odd := Filter([]int{1, 2, 3, 4}, func(n int) bool { return n%2 == 1 })
	if len(odd) != 2 {
		t.Fatalf("Filter got %v", odd)
	}

	chunks := Chunk([]int{1, 2, 3, 4, 5}, 2)
	if len(chunks) != 3 || len(chunks[2]) != 1 {
		t.Fatalf("Chunk got %v", chunks)
	}
	if Chunk([]int{1}, 0) != nil {
		t.Fatal("Chunk with n<=0 must be nil")
	}
}

func TestParMapPreservesOrder(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}
	var running, peak atomic.Int32
	out := ParMap(items, 4, func(n int) int {
		cur := running.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		running.Add(-1)
		return n * n
	})
	for i, v := range out {
		if v != i*i {
			t.Fatalf("out[%d] = %d", i, v)
		}
	}
	if peak.Load() > 4 {
		t.Fatalf("concurrency exceeded bound: %d", peak.Load())
	}
}

func TestParMapResult(t *testing.T) {
	results := ParMapResult([]int{1, 2, 3}, 2, func(n int) Result[int] {
		if n == 2 {
			return Err[int](errors.New("two"))
		}
		return Ok(n)
	})
	if results[0].IsErr() || results[1].IsOk() || results[2].IsErr() {
		t.Fatalf("unexpected results: %v", results)
	}
}
