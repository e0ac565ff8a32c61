// Package batch adapts one-shot transcription engines to the streaming
// [stt.SessionHandle] interface.
//
// Engines such as whisper.cpp or the OpenAI transcription endpoint accept a
// complete audio clip and return text. A batch Session buffers incoming PCM,
// segments it into utterances with an energy-based silence detector, and
// submits each completed utterance to a [TranscribeFunc]. Leading silence is
// discarded; an utterance ends after a configurable run of trailing silence,
// when it grows past a maximum length, or when the session is closed.
//
// Because the engine is not streaming, each committed utterance is emitted as
// a partial and a final carrying the same text.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/cantomaster/pkg/audio"
	"github.com/MrWong99/cantomaster/pkg/provider/stt"
)

const (
	// DefaultSilenceThreshold is the trailing silence that ends an utterance.
	DefaultSilenceThreshold = 700 * time.Millisecond

	// DefaultMaxUtterance forces a flush during continuous speech.
	DefaultMaxUtterance = 15 * time.Second

	// DefaultRMSThreshold is the normalised RMS level (0–1) below which a
	// chunk counts as silence. 0.01 is roughly -40 dBFS.
	DefaultRMSThreshold = 0.01

	flushTimeout = 30 * time.Second
)

// TranscribeFunc transcribes one utterance of s16le PCM in format f. An empty
// Text means nothing intelligible was said.
type TranscribeFunc func(ctx context.Context, pcm []byte, f audio.Format) (stt.Transcript, error)

// Config tunes utterance segmentation. Zero fields take the defaults.
type Config struct {
	// Name prefixes log messages, e.g. "whisper".
	Name string

	Format           audio.Format
	SilenceThreshold time.Duration
	MaxUtterance     time.Duration
	RMSThreshold     float64
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "batch"
	}
	if c.Format.SampleRate <= 0 {
		c.Format.SampleRate = audio.Recognition.SampleRate
	}
	if c.Format.Channels <= 0 {
		c.Format.Channels = 1
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = DefaultSilenceThreshold
	}
	if c.MaxUtterance <= 0 {
		c.MaxUtterance = DefaultMaxUtterance
	}
	if c.RMSThreshold <= 0 {
		c.RMSThreshold = DefaultRMSThreshold
	}
}

// Session is a segmenting [stt.SessionHandle]. All buffering state is
// confined to its process goroutine.
type Session struct {
	cfg        Config
	transcribe TranscribeFunc

	audioCh  chan []byte
	partials chan stt.Transcript
	finals   chan stt.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

var _ stt.SessionHandle = (*Session)(nil)

// NewSession starts a session that feeds utterances to fn until ctx is
// cancelled or Close is called.
func NewSession(ctx context.Context, cfg Config, fn TranscribeFunc) *Session {
	cfg.applyDefaults()
	s := &Session{
		cfg:        cfg,
		transcribe: fn,
		audioCh:    make(chan []byte, 256),
		partials:   make(chan stt.Transcript, 16),
		finals:     make(chan stt.Transcript, 16),
		done:       make(chan struct{}),
	}
	s.wg.Add(1)
	go s.process(ctx)
	return s
}

// SendAudio queues chunk for segmentation.
func (s *Session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return fmt.Errorf("%s: %w", s.cfg.Name, stt.ErrSessionClosed)
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return fmt.Errorf("%s: %w", s.cfg.Name, stt.ErrSessionClosed)
	}
}

// Partials returns the partial transcript channel.
func (s *Session) Partials() <-chan stt.Transcript { return s.partials }

// Finals returns the final transcript channel.
func (s *Session) Finals() <-chan stt.Transcript { return s.finals }

// Close transcribes any buffered speech, including audio queued by SendAudio
// that has not been segmented yet, then closes both channels.
func (s *Session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *Session) process(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	var (
		buf       []byte
		hadSpeech bool
		silence   time.Duration
		elapsed   time.Duration // audio received so far
		startedAt time.Duration // offset of the current utterance
	)
	maxBytes := int(s.cfg.MaxUtterance.Seconds() * float64(s.cfg.Format.SampleRate*s.cfg.Format.FrameSize()))

	flush := func(fctx context.Context) {
		pcm, had, at := buf, hadSpeech, startedAt
		buf, hadSpeech, silence = nil, false, 0
		if !had || len(pcm) == 0 {
			return
		}

		t, err := s.transcribe(fctx, pcm, s.cfg.Format)
		if err != nil {
			slog.Warn(s.cfg.Name+": transcription failed", "err", err)
			return
		}
		if t.Text == "" {
			return
		}
		t.Timestamp = at
		t.Duration = s.cfg.Format.Duration(len(pcm))

		partial := t
		partial.IsFinal = false
		t.IsFinal = true
		select {
		case s.partials <- partial:
		default:
		}
		select {
		case s.finals <- t:
		default:
			slog.Warn(s.cfg.Name+": finals channel full, dropping transcript")
		}
	}

	segment := func(fctx context.Context, chunk []byte) {
		d := s.cfg.Format.Duration(len(chunk))
		defer func() { elapsed += d }()
		if audio.RMS(chunk) < s.cfg.RMSThreshold {
			if !hadSpeech {
				return
			}
			buf = append(buf, chunk...)
			silence += d
			if silence >= s.cfg.SilenceThreshold {
				flush(fctx)
			}
			return
		}
		if !hadSpeech {
			startedAt = elapsed
		}
		hadSpeech = true
		silence = 0
		buf = append(buf, chunk...)
		if maxBytes > 0 && len(buf) >= maxBytes {
			flush(fctx)
		}
	}

	// finish segments audio that was queued before the session ended, then
	// transcribes whatever utterance is still open.
	finish := func() {
		fctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
	queued:
		for {
			select {
			case chunk := <-s.audioCh:
				segment(fctx, chunk)
			default:
				break queued
			}
		}
		flush(fctx)
	}

	for {
		select {
		case <-ctx.Done():
			finish()
			return
		case <-s.done:
			finish()
			return
		case chunk := <-s.audioCh:
			segment(ctx, chunk)
		}
	}
}
