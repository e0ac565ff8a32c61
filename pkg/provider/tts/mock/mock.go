// Package mock provides a test double for the tts.Provider interface.
//
// Example:
//
//	p := &mock.Provider{
//	    Chunks:     [][]byte{pcmA, pcmB},
//	    VoiceList:  []tts.Voice{{ID: "v1", Name: "Cantonese", Locale: "zh-HK"}},
//	}
//	stream, _ := p.Synthesize(ctx, tts.Request{Text: "你好"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/cantomaster/pkg/audio"
	"github.com/MrWong99/cantomaster/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Chunks is emitted, in order, on every stream.
	Chunks [][]byte

	// StreamFormat is the stream format; zero means 24 kHz mono.
	StreamFormat audio.Format

	// SynthesizeErr, if non-nil, is returned from Synthesize.
	SynthesizeErr error

	// StreamErr, if non-nil, ends every stream after its chunks.
	StreamErr error

	// Hold, if non-nil, delays the end of every stream until it is closed or
	// the request context is cancelled.
	Hold chan struct{}

	// VoiceList is returned by Voices.
	VoiceList []tts.Voice

	// VoicesErr, if non-nil, is returned from Voices.
	VoicesErr error

	// --- Call records ---

	// Requests records every Synthesize request.
	Requests []tts.Request

	// VoicesCallCount is the number of Voices calls.
	VoicesCallCount int
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (tts.Stream, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	err := p.SynthesizeErr
	chunks := append([][]byte(nil), p.Chunks...)
	streamErr := p.StreamErr
	hold := p.Hold
	f := p.StreamFormat
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !f.Valid() {
		f = audio.Format{SampleRate: 24000, Channels: 1}
	}

	pipe := tts.NewPipe(f)
	go func() {
		for _, c := range chunks {
			if !pipe.Send(ctx, c) {
				pipe.CloseWithError(ctx.Err())
				return
			}
		}
		if hold != nil {
			select {
			case <-hold:
			case <-ctx.Done():
				pipe.CloseWithError(ctx.Err())
				return
			}
		}
		pipe.CloseWithError(streamErr)
	}()
	return pipe, nil
}

// Voices implements tts.Provider.
func (p *Provider) Voices(_ context.Context) ([]tts.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.VoicesCallCount++
	if p.VoicesErr != nil {
		return nil, p.VoicesErr
	}
	return append([]tts.Voice(nil), p.VoiceList...), nil
}

// Calls returns a copy of the recorded requests.
func (p *Provider) Calls() []tts.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]tts.Request(nil), p.Requests...)
}
