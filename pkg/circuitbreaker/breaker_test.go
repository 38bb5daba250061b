package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("test", Config{FailureThreshold: 2, Timeout: time.Hour})
	fail := errors.New("boom")

	for i := 0; i < 2; i++ {
		if err := cb.Execute(context.Background(), func() error { return fail }); !errors.Is(err, fail) {
			t.Fatalf("attempt %d: err = %v", i, err)
		}
	}

	if cb.State() != StateOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}

	called := false
	err := cb.Execute(context.Background(), func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn should not run while the breaker is open")
	}
}

func TestCircuitBreaker_IsSuccessfulIgnoresClientErrors(t *testing.T) {
	clientErr := errors.New("bad request")
	cb := NewCircuitBreaker("test", Config{
		FailureThreshold: 1,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, clientErr)
		},
	})

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error { return clientErr })
	}

	if cb.State() != StateClosed {
		t.Fatalf("state = %s, want closed", cb.State())
	}
	if got := cb.counts.TotalSuccesses; got != 3 {
		t.Errorf("TotalSuccesses = %d, want 3", got)
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{StateClosed: "closed", StateHalfOpen: "half-open", StateOpen: "open", State(9): "unknown"}
	for s, want := range cases {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}
