package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/cantomaster/internal/speech"
	"github.com/MrWong99/cantomaster/pkg/audio"
)

// Microphone captures s16le PCM from a host input device.
type Microphone struct {
	host   *Host
	format audio.Format
	name   string
}

var _ speech.Microphone = (*Microphone)(nil)

// NewMicrophone captures in format f from the device whose name contains
// name, or the default device when name is empty.
func NewMicrophone(h *Host, f audio.Format, name string) *Microphone {
	if !f.Valid() {
		f = audio.Recognition
	}
	return &Microphone{host: h, format: f, name: name}
}

// Open starts the device. Host audio needs no permission prompt, so Open
// only fails when the device cannot be started.
func (m *Microphone) Open(ctx context.Context) (speech.AudioStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, err := m.host.find(malgo.Capture, m.name)
	if err != nil {
		return nil, err
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(m.format.Channels)
	cfg.SampleRate = uint32(m.format.SampleRate)
	cfg.Alsa.NoMMap = 1
	if id != nil {
		cfg.Capture.DeviceID = id.Pointer()
	}

	s := &stream{format: m.format, chunks: make(chan []byte, 64)}
	dev, err := malgo.InitDevice(m.host.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) { s.deliver(in) },
	})
	if err != nil {
		return nil, fmt.Errorf("device: init capture device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("device: start capture device: %w", err)
	}
	s.dev = dev
	return s, nil
}

type stream struct {
	format audio.Format
	dev    *malgo.Device
	chunks chan []byte

	mu      sync.Mutex
	closed  bool
	dropped atomic.Int64
	once    sync.Once
}

// deliver runs on the audio thread and must not block.
func (s *stream) deliver(in []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.chunks <- append([]byte(nil), in...):
	default:
		s.dropped.Add(1)
	}
}

func (s *stream) Chunks() <-chan []byte { return s.chunks }
func (s *stream) Format() audio.Format  { return s.format }

func (s *stream) Close() error {
	var err error
	s.once.Do(func() {
		if s.dev != nil {
			err = s.dev.Stop()
			s.dev.Uninit()
		}
		s.mu.Lock()
		s.closed = true
		close(s.chunks)
		s.mu.Unlock()
		if n := s.dropped.Load(); n > 0 {
			slog.Warn("device: capture buffer overflow", "dropped_chunks", n)
		}
	})
	if err != nil {
		return fmt.Errorf("device: stop capture device: %w", err)
	}
	return nil
}
