package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFallbackGroup_PrimarySuccess(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("secondary", "secondary")

	var called string
	err := fg.Execute(context.Background(), func(_ context.Context, v string) error {
		called = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called != "primary" {
		t.Fatalf("called = %q, want primary", called)
	}
}

func TestFallbackGroup_PrimaryFailFallbackSuccess(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("secondary", "secondary")

	var called string
	err := fg.Execute(context.Background(), func(_ context.Context, v string) error {
		if v == "primary" {
			return errTest
		}
		called = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called != "secondary" {
		t.Fatalf("called = %q, want secondary", called)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("secondary", "secondary")

	err := fg.Execute(context.Background(), func(context.Context, string) error {
		return errTest
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want it to wrap the last error", err)
	}
}

func TestFallbackGroup_CircuitBreakerSkipsOpenEntry(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	fg.AddFallback("secondary", "secondary")

	failPrimary := func(_ context.Context, v string) error {
		if v == "primary" {
			return errTest
		}
		return nil
	}
	for range 2 {
		_ = fg.Execute(context.Background(), failPrimary)
	}

	var called []string
	err := fg.Execute(context.Background(), func(_ context.Context, v string) error {
		called = append(called, v)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(called) != 1 || called[0] != "secondary" {
		t.Fatalf("called = %v, want [secondary] (primary circuit should be open)", called)
	}
}

func TestFallbackGroup_StopsOnCancel(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{})
	fg.AddFallback("secondary", "secondary")

	ctx, cancel := context.WithCancel(context.Background())
	var called []string
	err := fg.Execute(ctx, func(ctx context.Context, v string) error {
		called = append(called, v)
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(called) != 1 {
		t.Fatalf("called = %v, want only the primary", called)
	}
}

func TestFallbackGroup_Names(t *testing.T) {
	fg := NewFallbackGroup(1, "speaker", FallbackConfig{})
	fg.AddFallback("simulated", 2)
	names := fg.Names()
	if len(names) != 2 || names[0] != "speaker" || names[1] != "simulated" {
		t.Errorf("Names() = %v", names)
	}
}

func TestFallbackGroup_Each(t *testing.T) {
	fg := NewFallbackGroup("a", "primary", FallbackConfig{})
	fg.AddFallback("b", "b")

	var got []string
	fg.Each(func(name, v string) { got = append(got, name+"="+v) })
	if len(got) != 2 || got[0] != "primary=a" || got[1] != "b=b" {
		t.Errorf("Each visited %v, want [primary=a b=b]", got)
	}
}
