// Package adapter connects the provider packages to the speech controller:
// [Recognizer] runs an stt.Provider as a [speech.Recognizer], and
// [Synthesizer] pairs a tts.Provider with a [Sink] that plays the audio.
package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/cantomaster/internal/speech"
	"github.com/MrWong99/cantomaster/pkg/provider/stt"
)

// Recognizer adapts an stt.Provider to speech.Recognizer.
type Recognizer struct {
	provider stt.Provider
}

var _ speech.Recognizer = (*Recognizer)(nil)

// NewRecognizer wraps p.
func NewRecognizer(p stt.Provider) *Recognizer {
	return &Recognizer{provider: p}
}

// Start opens an STT session for one recognition pass. Without
// cfg.Continuous the pass ends after the first final transcript.
func (r *Recognizer) Start(ctx context.Context, cfg speech.RecognitionConfig) (speech.Recognition, error) {
	f := cfg.Format
	sess, err := r.provider.StartStream(ctx, stt.StreamConfig{
		SampleRate: f.SampleRate,
		Channels:   f.Channels,
		Language:   cfg.Locale,
	})
	if err != nil {
		return nil, fmt.Errorf("adapter: start recognition: %w", err)
	}
	rec := &recognition{
		sess:       sess,
		continuous: cfg.Continuous,
		interim:    cfg.InterimResults,
		results:    make(chan speech.Result, 8),
		stopped:    make(chan struct{}),
	}
	go rec.pump(ctx)
	return rec, nil
}

type recognition struct {
	sess       stt.SessionHandle
	continuous bool
	interim    bool
	results    chan speech.Result

	stopOnce sync.Once
	stopped  chan struct{}

	mu  sync.Mutex
	err error
}

func (r *recognition) SendAudio(chunk []byte) error {
	return r.sess.SendAudio(chunk)
}

func (r *recognition) Results() <-chan speech.Result { return r.results }

func (r *recognition) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Stop ends the pass like a finished utterance: the provider session is
// closed, and a final it produces for audio already sent is still
// delivered before Results closes. Cancelling the Start context aborts
// instead and discards it.
func (r *recognition) Stop() error {
	r.stopOnce.Do(func() { close(r.stopped) })
	return nil
}

func (r *recognition) pump(ctx context.Context) {
	defer close(r.results)

	delivered := false
	partials := r.sess.Partials()
	finals := r.sess.Finals()
	for {
		select {
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			if r.interim && !r.emit(ctx, toResult(t, false)) {
				r.abort()
				return
			}
		case t, ok := <-finals:
			if !ok {
				// The provider ended the session on its own.
				r.finish(ctx, false)
				return
			}
			if len(t.Alternatives) == 0 && t.Text == "" {
				continue
			}
			if !r.emit(ctx, toResult(t, true)) {
				r.abort()
				return
			}
			delivered = true
			if !r.continuous {
				r.finish(ctx, false)
				return
			}
		case <-r.stopped:
			r.finish(ctx, r.continuous || !delivered)
			return
		case <-ctx.Done():
			r.abort()
			return
		}
	}
}

// emit blocks until the consumer takes res or ctx ends.
func (r *recognition) emit(ctx context.Context, res speech.Result) bool {
	select {
	case r.results <- res:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish closes the provider session on the pump goroutine, so its error is
// recorded before Results closes. Batch engines transcribe buffered audio
// on Close; with forward set, the finals that yields are passed on (only
// the first unless continuous).
func (r *recognition) finish(ctx context.Context, forward bool) {
	closed := make(chan error, 1)
	go func() { closed <- r.sess.Close() }()
	go drain(r.sess.Partials())

	finals := r.sess.Finals()
	for finals != nil {
		select {
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			if !forward || (len(t.Alternatives) == 0 && t.Text == "") {
				continue
			}
			if !r.emit(ctx, toResult(t, true)) {
				forward = false
				continue
			}
			forward = r.continuous
		case <-ctx.Done():
			go drain(finals)
			finals = nil
		}
	}
	select {
	case err := <-closed:
		r.setErr(err)
	case <-ctx.Done():
	}
}

// abort releases the provider session without waiting for it.
func (r *recognition) abort() {
	go func() {
		if err := r.sess.Close(); err != nil {
			slog.Debug("adapter: closing stt session", "err", err)
		}
		drain(r.sess.Finals())
	}()
	go drain(r.sess.Partials())
}

func (r *recognition) setErr(err error) {
	if err == nil {
		return
	}
	slog.Debug("adapter: stt session ended with error", "err", err)
	r.mu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.mu.Unlock()
}

func drain(ch <-chan stt.Transcript) {
	for range ch {
	}
}

func toResult(t stt.Transcript, final bool) speech.Result {
	res := speech.Result{Final: final}
	for _, a := range t.Alternatives {
		res.Alternatives = append(res.Alternatives, speech.Alternative{Transcript: a.Text, Confidence: a.Confidence})
	}
	if len(res.Alternatives) == 0 {
		res.Alternatives = []speech.Alternative{{Transcript: t.Text, Confidence: t.Confidence}}
	}
	return res
}
