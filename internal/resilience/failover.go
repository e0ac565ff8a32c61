package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrExhausted wraps the last error once every engine in a [Failover] has
// failed or is disabled.
var ErrExhausted = errors.New("resilience: no engine available")

type member[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Failover tries engines of one kind in the order they were added. Add all
// engines before first use; after that it is safe for concurrent use.
type Failover[T any] struct {
	cfg     BreakerConfig
	members []member[T]

	// OnResult, if set, is told the outcome of every engine attempt:
	// "ok", "error" or "skipped".
	OnResult func(engine, status string)
}

// NewFailover returns an empty chain whose breakers use cfg.
func NewFailover[T any](cfg BreakerConfig) *Failover[T] {
	return &Failover[T]{cfg: cfg}
}

// Add appends an engine.
func (f *Failover[T]) Add(name string, v T) {
	f.members = append(f.members, member[T]{name: name, value: v, breaker: NewBreaker(name, f.cfg)})
}

// Len reports the number of engines.
func (f *Failover[T]) Len() int { return len(f.members) }

// Each calls fn for every engine in order.
func (f *Failover[T]) Each(fn func(name string, v T)) {
	for _, m := range f.members {
		fn(m.name, m.value)
	}
}

// Try runs fn against each engine until one succeeds. pos is the engine's
// position in the chain; 0 is the primary. A cancelled call returns at once
// without trying the rest.
func Try[T, R any](f *Failover[T], fn func(pos int, v T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range f.members {
		m := &f.members[i]
		var out R
		err := m.breaker.Do(func() error {
			var err error
			out, err = fn(i, m.value)
			return err
		})
		switch {
		case err == nil:
			f.report(m.name, "ok")
			return out, nil
		case cancelled(err):
			return zero, err
		case errors.Is(err, ErrOpen):
			f.report(m.name, "skipped")
			slog.Debug("resilience: skipping disabled engine", "engine", m.name)
		default:
			f.report(m.name, "error")
			slog.Warn("resilience: engine failed", "engine", m.name, "err", err)
		}
		lastErr = err
	}
	if lastErr == nil {
		return zero, ErrExhausted
	}
	return zero, fmt.Errorf("%w: %w", ErrExhausted, lastErr)
}

func (f *Failover[T]) report(engine, status string) {
	if f.OnResult != nil {
		f.OnResult(engine, status)
	}
}
