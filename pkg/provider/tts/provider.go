// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider wraps a speech synthesis service (a local Coqui server or
// the OpenAI speech endpoint) and presents a uniform interface: one request
// per utterance, answered by a [Stream] of raw s16le PCM in a known format.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"sync"

	"github.com/MrWong99/cantomaster/pkg/audio"
)

// Voice describes a voice offered by a provider.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Locale is the BCP-47 tag the voice speaks, if known.
	Locale string

	// Default marks the provider's default voice.
	Default bool
}

// Request is a single synthesis request.
type Request struct {
	Text string

	// Voice is a Voice.ID. Empty selects the provider default.
	Voice string

	// Locale is the BCP-47 language tag of Text (e.g. "zh-HK").
	Locale string

	// Rate is the speaking-rate multiplier; 0 means 1.0. Providers without
	// rate control ignore it.
	Rate float64
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize starts synthesis of req. It returns an error if the request
	// cannot be started; later failures end the Stream early and are
	// reported by Stream.Err.
	Synthesize(ctx context.Context, req Request) (Stream, error)

	// Voices lists the voices the provider currently offers.
	Voices(ctx context.Context) ([]Voice, error)
}

// Stream is synthesized audio being delivered.
type Stream interface {
	// Format is the PCM format of every chunk.
	Format() audio.Format

	// Chunks emits PCM in order and is closed when synthesis ends.
	Chunks() <-chan []byte

	// Err reports why the stream ended early. Valid after Chunks is closed.
	Err() error
}

// Pipe is a Stream fed by a producer goroutine.
type Pipe struct {
	format audio.Format
	ch     chan []byte

	mu  sync.Mutex
	err error
}

var _ Stream = (*Pipe)(nil)

// NewPipe returns an open Pipe for PCM in format f.
func NewPipe(f audio.Format) *Pipe {
	return &Pipe{format: f, ch: make(chan []byte, 64)}
}

func (p *Pipe) Format() audio.Format  { return p.format }
func (p *Pipe) Chunks() <-chan []byte { return p.ch }

func (p *Pipe) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Send delivers chunk, or reports false once ctx is done.
func (p *Pipe) Send(ctx context.Context, chunk []byte) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case p.ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// SendAll splits pcm into chunks of at most size bytes (rounded down to whole
// frames) and sends them in order.
func (p *Pipe) SendAll(ctx context.Context, pcm []byte, size int) bool {
	if fs := p.format.FrameSize(); fs > 0 && size >= fs {
		size -= size % fs
	}
	if size <= 0 {
		size = len(pcm)
	}
	for len(pcm) > 0 {
		n := min(size, len(pcm))
		if !p.Send(ctx, pcm[:n]) {
			return false
		}
		pcm = pcm[n:]
	}
	return true
}

// CloseWithError ends the stream. It must be called exactly once, by the
// producer.
func (p *Pipe) CloseWithError(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	close(p.ch)
}
