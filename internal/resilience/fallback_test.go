package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestExecuteWithResult_Primary(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", FallbackConfig{})
	fg.AddFallback("twenty", 20)

	got, err := ExecuteWithResult(context.Background(), fg, func(v int) (int, error) { return v, nil })
	if err != nil || got != 10 {
		t.Fatalf("got (%d, %v), want (10, nil)", got, err)
	}
	if names := fg.Names(); !slices.Equal(names, []string{"ten", "twenty"}) || fg.Len() != 2 {
		t.Errorf("Names() = %v", names)
	}
}

func TestExecuteWithResult_Failover(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", FallbackConfig{})
	fg.AddFallback("twenty", 20)

	got, err := ExecuteWithResult(context.Background(), fg, func(v int) (int, error) {
		if v == 10 {
			return 0, errTest
		}
		return v, nil
	})
	if err != nil || got != 20 {
		t.Fatalf("got (%d, %v), want (20, nil)", got, err)
	}
}

func TestExecuteWithResult_AllFail(t *testing.T) {
	fg := NewFallbackGroup(1, "one", FallbackConfig{})
	fg.AddFallback("two", 2)

	_, err := ExecuteWithResult(context.Background(), fg, func(int) (int, error) { return 0, errTest })
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want ErrAllFailed wrapping errTest", err)
	}
}

func TestExecuteWithResult_SkipsOpenCircuit(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	fg.AddFallback("secondary", "secondary")

	var primaryCalls int
	call := func(v string) (string, error) {
		if v == "primary" {
			primaryCalls++
			return "", errTest
		}
		return v, nil
	}
	for range 2 {
		_, _ = ExecuteWithResult(context.Background(), fg, call)
	}
	got, err := ExecuteWithResult(context.Background(), fg, call)
	if err != nil || got != "secondary" {
		t.Fatalf("got (%q, %v)", got, err)
	}
	if primaryCalls != 2 {
		t.Errorf("primary called %d times, want 2 (breaker should skip the third)", primaryCalls)
	}
}

func TestExecuteWithResult_StopsOnCancelledContext(t *testing.T) {
	fg := NewFallbackGroup(1, "one", FallbackConfig{})
	fg.AddFallback("two", 2)

	ctx, cancel := context.WithCancel(context.Background())
	var calls []int
	_, err := ExecuteWithResult(ctx, fg, func(v int) (int, error) {
		calls = append(calls, v)
		cancel()
		return 0, context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if !slices.Equal(calls, []int{1}) {
		t.Errorf("calls = %v, want only the primary", calls)
	}
}
