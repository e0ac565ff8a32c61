package adapter

import (
	"context"
	"fmt"

	"github.com/MrWong99/cantomaster/internal/speech"
	"github.com/MrWong99/cantomaster/pkg/audio"
	"github.com/MrWong99/cantomaster/pkg/provider/tts"
)

// Sink plays synthesized audio. Play returns once the stream has been heard
// in full, or when ctx is cancelled, in which case playback stops promptly.
type Sink interface {
	Play(ctx context.Context, s tts.Stream) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, s tts.Stream) error

// Play calls f.
func (f SinkFunc) Play(ctx context.Context, s tts.Stream) error { return f(ctx, s) }

// Synthesizer adapts a tts.Provider and a Sink to speech.Synthesizer.
type Synthesizer struct {
	provider tts.Provider
	sink     Sink
}

var _ speech.Synthesizer = (*Synthesizer)(nil)

// NewSynthesizer plays speech from p through sink.
func NewSynthesizer(p tts.Provider, sink Sink) *Synthesizer {
	return &Synthesizer{provider: p, sink: sink}
}

// Voices lists the provider's voices.
func (s *Synthesizer) Voices(ctx context.Context) ([]speech.Voice, error) {
	vs, err := s.provider.Voices(ctx)
	if err != nil {
		return nil, fmt.Errorf("adapter: list voices: %w", err)
	}
	out := make([]speech.Voice, len(vs))
	for i, v := range vs {
		out[i] = speech.Voice{ID: v.ID, Name: v.Name, Locale: v.Locale, Default: v.Default}
	}
	return out, nil
}

// Speak synthesizes u and blocks until the sink has played it.
func (s *Synthesizer) Speak(ctx context.Context, u speech.Utterance) error {
	req := tts.Request{Text: u.Text, Locale: u.Locale, Rate: u.Rate}
	if u.Voice != nil {
		req.Voice = u.Voice.ID
	}
	stream, err := s.provider.Synthesize(ctx, req)
	if err != nil {
		return fmt.Errorf("adapter: synthesize: %w", err)
	}
	if err := s.sink.Play(ctx, stream); err != nil {
		audio.Drain(stream.Chunks())
		return fmt.Errorf("adapter: play: %w", err)
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("adapter: synthesis stream: %w", err)
	}
	return nil
}
