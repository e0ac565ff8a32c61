package speech

import (
	"context"
	"errors"

	"github.com/MrWong99/cantomaster/pkg/audio"
)

// ErrPermissionDenied is returned by [Microphone.Open] when the learner (or
// the host) refuses access to the input device.
var ErrPermissionDenied = errors.New("speech: microphone permission denied")

// Voice is one voice offered by a [Synthesizer].
type Voice struct {
	// ID is the platform identifier passed back in [Utterance.Voice].
	ID string

	// Name is the human-readable name, e.g. "Microsoft Tracy - Chinese (Hong Kong)".
	Name string

	// Locale is the BCP-47 tag of the voice. Some platforms report it with an
	// underscore separator ("zh_HK"); both forms are accepted.
	Locale string

	// Default marks the platform default voice.
	Default bool
}

// Utterance is one synthesis request.
type Utterance struct {
	Text   string
	Locale string

	// Rate is the speaking-rate multiplier; 1.0 is normal speed.
	Rate float64

	// Voice is nil when the platform default should be used.
	Voice *Voice
}

// Synthesizer renders text as audible speech.
//
// Implementations must be safe for concurrent use. Speak blocks until the
// utterance has finished playing, failed, or ctx was cancelled; a cancelled
// Speak must stop playback promptly.
type Synthesizer interface {
	Voices(ctx context.Context) ([]Voice, error)
	Speak(ctx context.Context, u Utterance) error
}

// RecognitionConfig configures one recognition pass.
type RecognitionConfig struct {
	// Locale is the BCP-47 recognition language, e.g. "zh-HK".
	Locale string

	// Continuous keeps recognising after the first utterance. The capture
	// session always starts recognition with Continuous false.
	Continuous bool

	// InterimResults requests non-final hypotheses. Always false for
	// capture sessions.
	InterimResults bool

	// Format is the PCM format of chunks passed to [Recognition.SendAudio].
	Format audio.Format
}

// Alternative is one recognition hypothesis.
type Alternative struct {
	Transcript string
	Confidence float64
}

// Result is one recognition result. Alternatives are ordered best first.
type Result struct {
	Alternatives []Alternative
	Final        bool
}

// Recognition is a running recognition pass.
//
// Results is closed exactly once when the pass ends, whether naturally, after
// Stop, or on error. Err reports the terminal error, if any, and is only
// meaningful after Results has been closed.
type Recognition interface {
	SendAudio(chunk []byte) error
	Results() <-chan Result
	Err() error
	Stop() error
}

// Recognizer starts recognition passes.
type Recognizer interface {
	Start(ctx context.Context, cfg RecognitionConfig) (Recognition, error)
}

// AudioStream is an acquired microphone. Chunks is closed after Close, or
// earlier if the device fails. Close releases the device and is idempotent.
type AudioStream interface {
	Chunks() <-chan []byte
	Format() audio.Format
	Close() error
}

// Microphone acquires the input device. Open blocks while permission is
// pending and returns [ErrPermissionDenied] (possibly wrapped) on refusal.
type Microphone interface {
	Open(ctx context.Context) (AudioStream, error)
}

// Recording is the audio captured during one session, packaged as a WAV
// container. Ownership passes to the receiver of onAudioReady.
type Recording struct {
	WAV      []byte
	MimeType string
	Format   audio.Format

	// PCMBytes is the length of the raw PCM payload; zero for a session that
	// acquired the microphone but captured nothing.
	PCMBytes int
}
