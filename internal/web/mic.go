package web

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/cantomaster/internal/speech"
	"github.com/MrWong99/cantomaster/pkg/audio"
)

// defaultMicRate is assumed when the browser grants the microphone without
// reporting its sample rate. It is the usual AudioContext rate.
const defaultMicRate = 48000

type micGrant struct {
	granted bool
	rate    int
}

// browserMic is the learner's browser microphone. Open asks the page for
// permission with mic_request and waits for the mic reply; granted audio
// arrives as binary frames on the socket.
type browserMic struct {
	s      *session
	grants chan micGrant

	mu     sync.Mutex
	stream *browserStream
}

var _ speech.Microphone = (*browserMic)(nil)

func newBrowserMic(s *session) *browserMic {
	return &browserMic{s: s, grants: make(chan micGrant, 1)}
}

// Open implements speech.Microphone.
func (m *browserMic) Open(ctx context.Context) (speech.AudioStream, error) {
	select {
	case <-m.grants:
	default:
	}
	if err := m.s.send(outbound{Type: msgMicRequest}); err != nil {
		return nil, fmt.Errorf("web: request microphone: %w", err)
	}

	var g micGrant
	select {
	case g = <-m.grants:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if !g.granted {
		return nil, speech.ErrPermissionDenied
	}
	if g.rate <= 0 {
		g.rate = defaultMicRate
	}

	st := &browserStream{
		mic:    m,
		format: audio.Format{SampleRate: g.rate, Channels: 1},
		chunks: make(chan []byte, 64),
	}
	m.mu.Lock()
	prev := m.stream
	m.stream = st
	m.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	return st, nil
}

// grant delivers the page's answer to a pending Open. Unsolicited answers
// are dropped.
func (m *browserMic) grant(granted bool, rate int) {
	select {
	case m.grants <- micGrant{granted: granted, rate: rate}:
	default:
	}
}

// push routes one binary frame to the open stream. Frames that arrive while
// no stream is open are discarded.
func (m *browserMic) push(pcm []byte) {
	m.mu.Lock()
	st := m.stream
	m.mu.Unlock()
	if st != nil {
		st.push(pcm)
	}
}

func (m *browserMic) detach(st *browserStream) {
	m.mu.Lock()
	if m.stream == st {
		m.stream = nil
	}
	m.mu.Unlock()
}

// browserStream is one granted microphone session. Closing it tells the page
// to stop capturing.
type browserStream struct {
	mic    *browserMic
	format audio.Format
	chunks chan []byte

	mu      sync.Mutex
	closed  bool
	dropped int
}

func (st *browserStream) Chunks() <-chan []byte { return st.chunks }
func (st *browserStream) Format() audio.Format  { return st.format }

func (st *browserStream) push(pcm []byte) {
	if len(pcm)%audio.BytesPerSample != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return
	}
	select {
	case st.chunks <- pcm:
	default:
		st.dropped++
	}
}

// Close releases the microphone. It is idempotent.
func (st *browserStream) Close() error {
	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return nil
	}
	st.closed = true
	close(st.chunks)
	dropped := st.dropped
	st.mu.Unlock()

	st.mic.detach(st)
	if dropped > 0 {
		slog.Warn("web: microphone chunks dropped", "session", st.mic.s.id, "dropped", dropped)
	}
	if err := st.mic.s.send(outbound{Type: msgMicRelease}); err != nil {
		return fmt.Errorf("web: release microphone: %w", err)
	}
	return nil
}
