package web

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/cantomaster/internal/speech/adapter"
	"github.com/MrWong99/cantomaster/pkg/provider/tts"
)

// playbackLead is how far ahead of real time synthesized audio may be sent.
const playbackLead = 500 * time.Millisecond

// socketSink streams synthesized PCM to the page as binary frames, paced to
// real time so that cancellation takes effect audibly.
type socketSink struct {
	s    *session
	lead time.Duration
}

var _ adapter.Sink = (*socketSink)(nil)

func newSocketSink(s *session) *socketSink {
	return &socketSink{s: s, lead: playbackLead}
}

// Play announces the stream format with a speaking message, sends every
// chunk and returns once the page has had time to play all of it.
func (k *socketSink) Play(ctx context.Context, st tts.Stream) error {
	f := st.Format()
	if err := k.s.send(outbound{Type: msgSpeaking, SampleRate: f.SampleRate, Channels: f.Channels}); err != nil {
		return err
	}

	start := time.Now()
	var queued time.Duration
	chunks := st.Chunks()
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return sleep(ctx, queued-time.Since(start))
			}
			if err := k.s.sendBinary(ctx, chunk); err != nil {
				return fmt.Errorf("web: stream audio: %w", err)
			}
			queued += f.Duration(len(chunk))
			if err := sleep(ctx, queued-time.Since(start)-k.lead); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
