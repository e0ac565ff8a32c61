package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

var errEngine = errors.New("engine down")

// clock is a manually advanced time source.
type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg BreakerConfig) (*Breaker, *clock) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	b := NewBreaker("test", cfg)
	b.now = c.now
	return b, c
}

func fail() error    { return errEngine }
func succeed() error { return nil }

func TestBreaker_Defaults(t *testing.T) {
	b := NewBreaker("test", BreakerConfig{})
	if b.cfg.Threshold != 3 || b.cfg.Cooldown != 20*time.Second || b.cfg.Probes != 1 {
		t.Errorf("defaults = %+v", b.cfg)
	}
	if b.State() != Closed {
		t.Errorf("initial state = %v, want closed", b.State())
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Threshold: 2})

	if err := b.Do(fail); !errors.Is(err, errEngine) {
		t.Fatalf("first failure: %v", err)
	}
	if b.State() != Closed {
		t.Fatalf("opened after one failure")
	}
	_ = b.Do(fail)
	if b.State() != Open {
		t.Fatalf("state = %v, want open", b.State())
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) || called {
		t.Errorf("open breaker: err=%v called=%v", err, called)
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Threshold: 2})
	_ = b.Do(fail)
	_ = b.Do(succeed)
	_ = b.Do(fail)
	if b.State() != Closed {
		t.Errorf("state = %v, want closed: failures were not consecutive", b.State())
	}
}

func TestBreaker_CancellationIsNotFailure(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Threshold: 1})
	for _, err := range []error{
		context.Canceled,
		context.DeadlineExceeded,
		fmt.Errorf("synthesize: %w", context.Canceled),
	} {
		_ = b.Do(func() error { return err })
	}
	if b.State() != Closed {
		t.Errorf("state = %v after cancellations, want closed", b.State())
	}
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	b, c := newTestBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Minute, Probes: 2})
	_ = b.Do(fail)

	c.advance(30 * time.Second)
	if err := b.Do(succeed); !errors.Is(err, ErrOpen) {
		t.Fatalf("call during cool-down: %v", err)
	}

	c.advance(30 * time.Second)
	if b.State() != HalfOpen {
		t.Fatalf("state = %v, want half-open", b.State())
	}
	if err := b.Do(succeed); err != nil {
		t.Fatalf("first probe: %v", err)
	}
	if b.State() != HalfOpen {
		t.Fatalf("closed after one of two probes")
	}
	if err := b.Do(succeed); err != nil {
		t.Fatalf("second probe: %v", err)
	}
	if b.State() != Closed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, c := newTestBreaker(BreakerConfig{Threshold: 3, Cooldown: time.Minute})
	for range 3 {
		_ = b.Do(fail)
	}
	c.advance(time.Minute)
	_ = b.Do(fail)
	if b.State() != Open {
		t.Fatalf("state = %v, want open", b.State())
	}
	c.advance(59 * time.Second)
	if err := b.Do(succeed); !errors.Is(err, ErrOpen) {
		t.Errorf("cool-down did not restart: %v", err)
	}
}

func TestBreaker_ProbeBudget(t *testing.T) {
	b, c := newTestBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Second, Probes: 1})
	_ = b.Do(fail)
	c.advance(time.Second)

	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Do(func() error { <-release; return nil })
	}()
	// Wait until the probe is in flight.
	deadline := time.Now().Add(2 * time.Second)
	for {
		b.mu.Lock()
		inflight := b.probing
		b.mu.Unlock()
		if inflight == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("probe never started")
		}
		time.Sleep(time.Millisecond)
	}
	if err := b.Do(succeed); !errors.Is(err, ErrOpen) {
		t.Errorf("second concurrent probe: %v, want ErrOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != Closed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Closed, "closed"},
		{Open, "open"},
		{HalfOpen, "half-open"},
		{State(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
