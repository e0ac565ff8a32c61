package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/cantomaster/internal/speech/adapter"
	"github.com/MrWong99/cantomaster/pkg/provider/tts"
)

// Speaker plays synthesized speech on a host output device. A device is
// opened per utterance in the stream's own format.
type Speaker struct {
	host *Host
	name string
}

var _ adapter.Sink = (*Speaker)(nil)

// NewSpeaker plays on the device whose name contains name, or the default
// device when name is empty.
func NewSpeaker(h *Host, name string) *Speaker {
	return &Speaker{host: h, name: name}
}

// Play blocks until every chunk of st has been rendered or ctx is done.
func (sp *Speaker) Play(ctx context.Context, st tts.Stream) error {
	f := st.Format()
	id, err := sp.host.find(malgo.Playback, sp.name)
	if err != nil {
		return err
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(f.Channels)
	cfg.SampleRate = uint32(f.SampleRate)
	cfg.Alsa.NoMMap = 1
	if id != nil {
		cfg.Playback.DeviceID = id.Pointer()
	}

	q := newQueue()
	dev, err := malgo.InitDevice(sp.host.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(out, _ []byte, _ uint32) { q.fill(out) },
	})
	if err != nil {
		return fmt.Errorf("device: init playback device: %w", err)
	}
	defer dev.Uninit()
	if err := dev.Start(); err != nil {
		return fmt.Errorf("device: start playback device: %w", err)
	}
	defer dev.Stop()

	chunks := st.Chunks()
	for chunks != nil {
		select {
		case c, ok := <-chunks:
			if !ok {
				chunks = nil
				q.finish()
				continue
			}
			q.write(c)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	select {
	case <-q.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// queue buffers PCM between the producer and the audio callback.
type queue struct {
	mu       sync.Mutex
	buf      []byte
	finished bool
	once     sync.Once
	drained  chan struct{}
}

func newQueue() *queue {
	return &queue{drained: make(chan struct{})}
}

func (q *queue) write(p []byte) {
	q.mu.Lock()
	q.buf = append(q.buf, p...)
	q.mu.Unlock()
}

// finish marks the end of input; drained closes once the buffer empties.
func (q *queue) finish() {
	q.mu.Lock()
	q.finished = true
	empty := len(q.buf) == 0
	q.mu.Unlock()
	if empty {
		q.once.Do(func() { close(q.drained) })
	}
}

// fill copies buffered PCM into out and pads the rest with silence.
func (q *queue) fill(out []byte) {
	q.mu.Lock()
	n := copy(out, q.buf)
	q.buf = q.buf[n:]
	done := q.finished && len(q.buf) == 0
	q.mu.Unlock()
	clear(out[n:])
	if done {
		q.once.Do(func() { close(q.drained) })
	}
}
