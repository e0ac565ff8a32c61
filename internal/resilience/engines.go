package resilience

import (
	"context"
	"errors"
	"io"

	"github.com/MrWong99/cantomaster/internal/observe"
	"github.com/MrWong99/cantomaster/pkg/provider/stt"
	"github.com/MrWong99/cantomaster/pkg/provider/tts"
)

// STT is an [stt.Provider] that fails over between recognition engines.
// Only opening a session is covered; a session that breaks mid-utterance
// ends the capture like any other recognizer error.
type STT struct {
	chain *Failover[stt.Provider]
}

var (
	_ stt.Provider = (*STT)(nil)
	_ io.Closer    = (*STT)(nil)
)

// NewSTT returns a chain with primary as its first engine.
func NewSTT(name string, primary stt.Provider, cfg BreakerConfig) *STT {
	s := &STT{chain: NewFailover[stt.Provider](cfg)}
	s.chain.Add(name, primary)
	return s
}

// Add appends a fallback engine.
func (s *STT) Add(name string, p stt.Provider) { s.chain.Add(name, p) }

// StartStream implements [stt.Provider].
func (s *STT) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return Try(s.chain, func(_ int, p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}

// Close closes every engine that holds resources.
func (s *STT) Close() error { return closeAll(s.chain) }

// RecordTo counts every engine attempt in m.
func (s *STT) RecordTo(m *observe.Metrics) { s.chain.OnResult = recorder(m, "stt") }

// TTS is a [tts.Provider] that fails over between synthesis engines. Only
// starting a stream is covered; errors after the first chunk end playback.
type TTS struct {
	chain *Failover[tts.Provider]
}

var (
	_ tts.Provider = (*TTS)(nil)
	_ io.Closer    = (*TTS)(nil)
)

// NewTTS returns a chain with primary as its first engine.
func NewTTS(name string, primary tts.Provider, cfg BreakerConfig) *TTS {
	t := &TTS{chain: NewFailover[tts.Provider](cfg)}
	t.chain.Add(name, primary)
	return t
}

// Add appends a fallback engine.
func (t *TTS) Add(name string, p tts.Provider) { t.chain.Add(name, p) }

// Synthesize implements [tts.Provider]. Voice IDs belong to the primary
// engine, so fallbacks speak with their default voice.
func (t *TTS) Synthesize(ctx context.Context, req tts.Request) (tts.Stream, error) {
	return Try(t.chain, func(pos int, p tts.Provider) (tts.Stream, error) {
		r := req
		if pos > 0 {
			r.Voice = ""
		}
		return p.Synthesize(ctx, r)
	})
}

// Voices implements [tts.Provider] with the first healthy engine's voices.
func (t *TTS) Voices(ctx context.Context) ([]tts.Voice, error) {
	return Try(t.chain, func(_ int, p tts.Provider) ([]tts.Voice, error) {
		return p.Voices(ctx)
	})
}

// Close closes every engine that holds resources.
func (t *TTS) Close() error { return closeAll(t.chain) }

// RecordTo counts every engine attempt in m.
func (t *TTS) RecordTo(m *observe.Metrics) { t.chain.OnResult = recorder(m, "tts") }

func recorder(m *observe.Metrics, kind string) func(engine, status string) {
	return func(engine, status string) {
		m.RecordProviderRequest(context.Background(), engine, kind, status)
	}
}

func closeAll[T any](f *Failover[T]) error {
	var errs []error
	f.Each(func(_ string, v T) {
		if c, ok := any(v).(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	})
	return errors.Join(errs...)
}
