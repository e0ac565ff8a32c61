// Package resilience keeps a practice session usable when a speech engine
// misbehaves.
//
// A [Breaker] stops calling an engine after repeated failures and probes it
// again after a cool-down. [Failover] chains several engines of one kind,
// each behind its own breaker, and [STT] and [TTS] expose such chains as
// ordinary providers.
//
// Cancellation is not failure: an error wrapping [context.Canceled] or
// [context.DeadlineExceeded] neither trips a breaker nor moves on to the
// next engine, because the learner stopping playback says nothing about the
// engine's health.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrOpen = errors.New("resilience: breaker open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed passes every call through.
	Closed State = iota

	// Open rejects calls until the cool-down has elapsed.
	Open

	// HalfOpen lets a limited number of probe calls through.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields take defaults.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the
	// breaker. Default: 3.
	Threshold int

	// Cooldown is how long an open breaker waits before probing.
	// Default: 20s.
	Cooldown time.Duration

	// Probes is the number of successful half-open calls needed to close
	// again. Default: 1.
	Probes int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.Threshold <= 0 {
		c.Threshold = 3
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 20 * time.Second
	}
	if c.Probes <= 0 {
		c.Probes = 1
	}
	return c
}

// Breaker is a three-state circuit breaker. It is safe for concurrent use.
type Breaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  int
	passed   int
}

// NewBreaker returns a closed breaker labelled name in logs.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	return &Breaker{name: name, cfg: cfg.withDefaults(), now: time.Now}
}

// Do runs fn unless the breaker is open.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.acquire()
	if err != nil {
		return err
	}
	err = fn()
	b.release(probe, err)
	return err
}

// State reports the current mode. An open breaker whose cool-down has
// elapsed reports HalfOpen.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return HalfOpen
	}
	return b.state
}

func (b *Breaker) acquire() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open {
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false, ErrOpen
		}
		b.state = HalfOpen
		b.probing, b.passed = 0, 0
		slog.Info("resilience: probing engine", "engine", b.name)
	}
	if b.state == HalfOpen {
		if b.probing >= b.cfg.Probes {
			return false, ErrOpen
		}
		b.probing++
		return true, nil
	}
	return false, nil
}

func (b *Breaker) release(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case cancelled(err):
		if probe {
			b.probing--
		}
	case err != nil:
		if probe || b.failures+1 >= b.cfg.Threshold {
			b.trip()
			return
		}
		b.failures++
	case probe:
		b.passed++
		if b.passed >= b.cfg.Probes {
			b.state = Closed
			b.failures = 0
			slog.Info("resilience: engine recovered", "engine", b.name)
		}
	default:
		b.failures = 0
	}
}

// trip opens the breaker. b.mu must be held.
func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = b.now()
	b.failures = 0
	b.probing, b.passed = 0, 0
	slog.Warn("resilience: engine disabled", "engine", b.name, "cooldown", b.cfg.Cooldown)
}

func cancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
