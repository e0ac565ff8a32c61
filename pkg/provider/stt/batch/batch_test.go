package batch_test

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/cantomaster/pkg/audio"
	"github.com/MrWong99/cantomaster/pkg/provider/stt"
	"github.com/MrWong99/cantomaster/pkg/provider/stt/batch"
)

// recorder is a TranscribeFunc that records every utterance it receives.
type recorder struct {
	mu    sync.Mutex
	clips [][]byte
	text  string
	err   error
}

func (r *recorder) transcribe(_ context.Context, pcm []byte, _ audio.Format) (stt.Transcript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clips = append(r.clips, append([]byte(nil), pcm...))
	if r.err != nil {
		return stt.Transcript{}, r.err
	}
	return stt.Transcript{Text: r.text, Confidence: 0.9}, nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clips)
}

// speech is a 440 Hz tone at 16 kHz; 1600 samples = 100 ms.
func speech(samples int) []byte {
	buf := make([]byte, samples*2)
	for i := range samples {
		v := int16(10_000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func silence(samples int) []byte { return make([]byte, samples*2) }

func newSession(t *testing.T, cfg batch.Config, r *recorder) *batch.Session {
	t.Helper()
	s := batch.NewSession(context.Background(), cfg, r.transcribe)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSession_LeadingSilenceIgnored(t *testing.T) {
	t.Parallel()
	r := &recorder{text: "你好"}
	s := newSession(t, batch.Config{SilenceThreshold: 100 * time.Millisecond}, r)

	for range 10 {
		if err := s.SendAudio(silence(1600)); err != nil {
			t.Fatalf("SendAudio: %v", err)
		}
	}
	s.Close()

	if n := r.count(); n != 0 {
		t.Errorf("transcribe calls = %d, want 0", n)
	}
	if _, ok := <-s.Finals(); ok {
		t.Error("finals should be closed without transcripts")
	}
}

func TestSession_SilenceCommitsUtterance(t *testing.T) {
	t.Parallel()
	r := &recorder{text: "你好"}
	s := newSession(t, batch.Config{SilenceThreshold: 200 * time.Millisecond}, r)

	_ = s.SendAudio(silence(1600)) // leading, dropped
	_ = s.SendAudio(speech(1600))
	_ = s.SendAudio(silence(1600))
	_ = s.SendAudio(silence(1600)) // 200 ms silence reached

	select {
	case p := <-s.Partials():
		if p.IsFinal || p.Text != "你好" {
			t.Errorf("partial = %+v", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for partial")
	}
	select {
	case f := <-s.Finals():
		if !f.IsFinal || f.Text != "你好" || f.Confidence != 0.9 {
			t.Errorf("final = %+v", f)
		}
		if f.Timestamp != 100*time.Millisecond {
			t.Errorf("Timestamp = %v, want 100ms", f.Timestamp)
		}
		if f.Duration != 300*time.Millisecond {
			t.Errorf("Duration = %v, want 300ms", f.Duration)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for final")
	}
}

func TestSession_MaxUtteranceForcesFlush(t *testing.T) {
	t.Parallel()
	r := &recorder{text: "長句"}
	s := newSession(t, batch.Config{MaxUtterance: 300 * time.Millisecond}, r)

	for range 3 {
		_ = s.SendAudio(speech(1600))
	}
	select {
	case <-s.Finals():
	case <-time.After(5 * time.Second):
		t.Fatal("continuous speech was never flushed")
	}
	if got := len(r.clips[0]); got != 3*3200 {
		t.Errorf("clip bytes = %d, want %d", got, 3*3200)
	}
}

func TestSession_CloseFlushesBufferedSpeech(t *testing.T) {
	t.Parallel()
	r := &recorder{text: "多謝"}
	s := newSession(t, batch.Config{}, r)

	_ = s.SendAudio(speech(1600))
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var finals []stt.Transcript
	for f := range s.Finals() {
		finals = append(finals, f)
	}
	if len(finals) != 1 || finals[0].Text != "多謝" {
		t.Errorf("finals = %+v, want one 多謝", finals)
	}
}

func TestSession_CloseIncludesQueuedAudio(t *testing.T) {
	t.Parallel()
	for i := range 20 {
		r := &recorder{text: "你好嗎"}
		s := batch.NewSession(context.Background(), batch.Config{}, r.transcribe)

		// One second of speech, closed before the session can have read it.
		for range 10 {
			_ = s.SendAudio(speech(1600))
		}
		s.Close()

		var finals []stt.Transcript
		for f := range s.Finals() {
			finals = append(finals, f)
		}
		if len(finals) != 1 {
			t.Fatalf("run %d: finals = %+v, want one", i, finals)
		}
		if got := finals[0].Duration; got != time.Second {
			t.Errorf("run %d: utterance duration = %v, want 1s of queued audio", i, got)
		}
	}
}

func TestSession_ContextCancelFlushes(t *testing.T) {
	t.Parallel()
	r := &recorder{text: "早晨"}
	ctx, cancel := context.WithCancel(context.Background())
	s := batch.NewSession(ctx, batch.Config{}, r.transcribe)
	defer s.Close()

	_ = s.SendAudio(speech(1600))
	// Let the chunk reach the buffer before cancelling.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case f, ok := <-s.Finals():
		if !ok || f.Text != "早晨" {
			t.Errorf("final = %+v (ok=%v), want 早晨", f, ok)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for final after cancel")
	}
}

func TestSession_EmptyTextAndErrorsProduceNothing(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		r    *recorder
	}{
		{name: "empty text", r: &recorder{}},
		{name: "transcribe error", r: &recorder{text: "x", err: errors.New("engine down")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newSession(t, batch.Config{}, tt.r)
			_ = s.SendAudio(speech(1600))
			s.Close()

			for f := range s.Finals() {
				t.Errorf("unexpected final %+v", f)
			}
			if tt.r.count() != 1 {
				t.Errorf("transcribe calls = %d, want 1", tt.r.count())
			}
		})
	}
}

func TestSession_SendAfterClose(t *testing.T) {
	t.Parallel()
	s := newSession(t, batch.Config{}, &recorder{})
	s.Close()
	s.Close()

	if err := s.SendAudio(speech(160)); !errors.Is(err, stt.ErrSessionClosed) {
		t.Errorf("SendAudio after Close = %v, want ErrSessionClosed", err)
	}
}

func TestSession_ConcurrentSendAudio(t *testing.T) {
	t.Parallel()
	s := newSession(t, batch.Config{}, &recorder{text: "好"})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				_ = s.SendAudio(speech(160))
			}
		}()
	}
	wg.Wait()
	s.Close()
}
