// Package usage counts how often each sentence was listened to and read
// aloud.
//
// [Tracker] keeps counts in memory for one practice connection; the browser
// owns their persistence. [History] stores counts and scored attempts in a
// local SQLite database for terminal practice.
package usage

import (
	"context"
	"fmt"
	"sync"
)

// Kind names a counted event.
type Kind string

const (
	// Listened counts playbacks of the target sentence.
	Listened Kind = "listened"

	// Read counts transcribed attempts.
	Read Kind = "read"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool { return k == Listened || k == Read }

// Count holds the counters for one sentence.
type Count struct {
	Listened int `json:"listened"`
	Read     int `json:"read"`
}

// Counts maps sentence IDs to their counters.
type Counts map[string]Count

// Store records usage events.
type Store interface {
	// Increment bumps kind for sentenceID and returns the updated count.
	Increment(ctx context.Context, sentenceID string, kind Kind) (Count, error)

	// Counts returns every recorded count.
	Counts(ctx context.Context) (Counts, error)
}

// Tracker is an in-memory [Store]. It is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	counts Counts
}

var _ Store = (*Tracker)(nil)

// NewTracker returns a tracker seeded with a copy of seed. Negative values
// in seed are clamped to zero.
func NewTracker(seed Counts) *Tracker {
	t := &Tracker{counts: make(Counts, len(seed))}
	t.Seed(seed)
	return t
}

// Seed replaces all counts with a copy of seed.
func (t *Tracker) Seed(seed Counts) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts = make(Counts, len(seed))
	for id, c := range seed {
		t.counts[id] = Count{Listened: max(c.Listened, 0), Read: max(c.Read, 0)}
	}
}

// Increment implements [Store].
func (t *Tracker) Increment(_ context.Context, sentenceID string, kind Kind) (Count, error) {
	if !kind.Valid() {
		return Count{}, fmt.Errorf("usage: unknown kind %q", kind)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.counts[sentenceID]
	switch kind {
	case Listened:
		c.Listened++
	case Read:
		c.Read++
	}
	t.counts[sentenceID] = c
	return c, nil
}

// Counts implements [Store]. The returned map is a copy.
func (t *Tracker) Counts(context.Context) (Counts, error) {
	return t.Snapshot(), nil
}

// Get returns the count for one sentence.
func (t *Tracker) Get(sentenceID string) Count {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[sentenceID]
}

// Snapshot returns a copy of all counts.
func (t *Tracker) Snapshot() Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(Counts, len(t.counts))
	for id, c := range t.counts {
		out[id] = c
	}
	return out
}
