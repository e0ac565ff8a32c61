// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a transcription engine (a local whisper.cpp server or
// library, an offline Vosk model, or a hosted API such as Deepgram or OpenAI)
// and exposes a uniform streaming interface. Once a session is opened it
// accepts raw PCM chunks and emits two streams of [Transcript] values:
// low-latency partials and authoritative finals.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"time"
)

// ErrSessionClosed is returned by SendAudio after Close.
var ErrSessionClosed = errors.New("stt: session is closed")

// StreamConfig describes the audio format and language of a new session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Most engines want 16000.
	SampleRate int

	// Channels is the channel count. 1 = mono, which every provider accepts.
	Channels int

	// Language is the BCP-47 recognition language (e.g. "zh-HK"). Providers
	// translate it to their own language codes. Empty means auto-detect
	// where supported.
	Language string
}

// Alternative is one hypothesis for an utterance.
type Alternative struct {
	Text       string
	Confidence float64
}

// Transcript is one recognition result. Text and Confidence mirror the best
// hypothesis; Alternatives lists every hypothesis the engine reported, best
// first, and may be nil for engines that only return one.
type Transcript struct {
	Text         string
	IsFinal      bool
	Confidence   float64
	Alternatives []Alternative

	// Timestamp is the utterance start relative to the session start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// SessionHandle is an open streaming session.
//
// Callers must call Close when done. Close flushes buffered audio, so a final
// transcript may still arrive after Close has been called; both channels are
// closed once it returns. All methods are safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers s16le PCM matching the session's StreamConfig.
	// It returns ErrSessionClosed (possibly wrapped) after Close.
	SendAudio(chunk []byte) error

	// Partials emits interim transcripts. Closed when the session ends.
	Partials() <-chan Transcript

	// Finals emits committed transcripts. Closed when the session ends.
	Finals() <-chan Transcript

	// Close ends the session. It is idempotent.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// StartStream opens a session ready to accept audio immediately. It
	// fails if the backend cannot be reached or ctx is already cancelled.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}

// BaseLanguage returns the primary subtag of a BCP-47 tag: "zh-HK" -> "zh".
// Batch engines such as whisper take bare ISO 639-1 codes.
func BaseLanguage(tag string) string {
	for i, r := range tag {
		if r == '-' || r == '_' {
			return tag[:i]
		}
	}
	return tag
}
