// Package mock provides test doubles for the speech package interfaces.
//
// Synthesizer records every utterance and blocks in Speak until the test
// releases it (or the context is cancelled), which makes supersession
// observable. Recognizer hands out Recognition values whose result stream the
// test drives explicitly. Microphone either grants a Stream the test feeds,
// or denies permission.
//
// Example:
//
//	rec := &mock.Recognizer{}
//	mic := &mock.Microphone{}
//	ctrl := speech.New(speech.WithRecognizer(rec), speech.WithMicrophone(mic))
//	capt := ctrl.Listen(onText, onEnd, onAudio)
//	rec.Last().Emit("你好")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/cantomaster/internal/speech"
	"github.com/MrWong99/cantomaster/pkg/audio"
)

// ─── Synthesizer ────────────────────────────────────────────────────────────

// Synthesizer is a mock implementation of speech.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// VoiceList is returned by Voices.
	VoiceList []speech.Voice

	// VoicesErr, if non-nil, is returned by Voices.
	VoicesErr error

	// SpeakErr, if non-nil, is returned by Speak once released.
	SpeakErr error

	// Block makes Speak wait for Release or ctx cancellation. When false,
	// Speak returns immediately.
	Block bool

	// SpeakCalls records every utterance passed to Speak.
	SpeakCalls []speech.Utterance

	// VoicesCallCount is the number of Voices calls.
	VoicesCallCount int

	started chan speech.Utterance
	pending []pendingSpeak
}

var _ speech.Synthesizer = (*Synthesizer)(nil)

// Voices records the call and returns VoiceList, VoicesErr.
func (s *Synthesizer) Voices(_ context.Context) ([]speech.Voice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.VoicesCallCount++
	return s.VoiceList, s.VoicesErr
}

// Speak records u. When Block is set it waits for Release or ctx.
func (s *Synthesizer) Speak(ctx context.Context, u speech.Utterance) error {
	release := make(chan struct{})
	s.mu.Lock()
	s.SpeakCalls = append(s.SpeakCalls, u)
	block := s.Block
	err := s.SpeakErr
	started := s.startedCh()
	if block {
		s.pending = append(s.pending, pendingSpeak{ctx: ctx, release: release})
	}
	s.mu.Unlock()

	select {
	case started <- u:
	default:
	}

	if !block {
		return err
	}
	select {
	case <-release:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Started returns a channel that receives each utterance as Speak begins.
// It is buffered; unread utterances beyond its capacity are dropped.
func (s *Synthesizer) Started() <-chan speech.Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedCh()
}

// Release lets the most recent blocked Speak call whose context is still
// live return. It reports false if there is none.
func (s *Synthesizer) Release() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.pending) - 1; i >= 0; i-- {
		p := s.pending[i]
		if p.ctx.Err() != nil {
			continue
		}
		close(p.release)
		s.pending = append(s.pending[:i], s.pending[i+1:]...)
		return true
	}
	return false
}

// Calls returns a copy of SpeakCalls.
func (s *Synthesizer) Calls() []speech.Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]speech.Utterance(nil), s.SpeakCalls...)
}

func (s *Synthesizer) startedCh() chan speech.Utterance {
	if s.started == nil {
		s.started = make(chan speech.Utterance, 16)
	}
	return s.started
}

type pendingSpeak struct {
	ctx     context.Context
	release chan struct{}
}

// ─── Recognizer ─────────────────────────────────────────────────────────────

// Recognizer is a mock implementation of speech.Recognizer.
type Recognizer struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// StartCalls records the config of every Start call.
	StartCalls []speech.RecognitionConfig

	// Recognitions holds every Recognition handed out, in order.
	Recognitions []*Recognition
}

var _ speech.Recognizer = (*Recognizer)(nil)

// Start records cfg and returns a fresh Recognition.
func (r *Recognizer) Start(_ context.Context, cfg speech.RecognitionConfig) (speech.Recognition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StartCalls = append(r.StartCalls, cfg)
	if r.StartErr != nil {
		return nil, r.StartErr
	}
	rec := NewRecognition()
	r.Recognitions = append(r.Recognitions, rec)
	return rec, nil
}

// Last returns the most recent Recognition, or nil.
func (r *Recognizer) Last() *Recognition {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Recognitions) == 0 {
		return nil
	}
	return r.Recognitions[len(r.Recognitions)-1]
}

// Recognition is a mock implementation of speech.Recognition. Stop ends the
// pass by closing Results, as a single-utterance recognizer would.
type Recognition struct {
	mu sync.Mutex

	results chan speech.Result
	closed  bool
	err     error

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// Audio holds a copy of every chunk passed to SendAudio.
	Audio [][]byte

	// StopCallCount is the number of Stop calls.
	StopCallCount int

	// IgnoreStop keeps Results open after Stop, simulating a recognizer that
	// finishes on its own schedule.
	IgnoreStop bool
}

var _ speech.Recognition = (*Recognition)(nil)

// NewRecognition returns an open Recognition.
func NewRecognition() *Recognition {
	return &Recognition{results: make(chan speech.Result, 8)}
}

// SendAudio records a copy of chunk.
func (r *Recognition) SendAudio(chunk []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Audio = append(r.Audio, append([]byte(nil), chunk...))
	return r.SendAudioErr
}

// Results returns the result stream.
func (r *Recognition) Results() <-chan speech.Result { return r.results }

// Err returns the error passed to Fail, if any.
func (r *Recognition) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Stop records the call and ends the pass unless IgnoreStop is set.
func (r *Recognition) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StopCallCount++
	if !r.IgnoreStop {
		r.closeLocked()
	}
	return nil
}

// Stops returns StopCallCount under the lock.
func (r *Recognition) Stops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.StopCallCount
}

// Emit publishes a final result with the given hypotheses.
func (r *Recognition) Emit(transcripts ...string) {
	res := speech.Result{Final: true}
	for _, t := range transcripts {
		res.Alternatives = append(res.Alternatives, speech.Alternative{Transcript: t, Confidence: 0.9})
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.results <- res
	}
}

// End closes the result stream without a result.
func (r *Recognition) End() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

// Fail records err and closes the result stream.
func (r *Recognition) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.err = err
	}
	r.closeLocked()
}

// AudioBytes returns the total number of bytes received by SendAudio.
func (r *Recognition) AudioBytes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.Audio {
		n += len(a)
	}
	return n
}

func (r *Recognition) closeLocked() {
	if !r.closed {
		r.closed = true
		close(r.results)
	}
}

// ─── Microphone ─────────────────────────────────────────────────────────────

// Microphone is a mock implementation of speech.Microphone.
type Microphone struct {
	mu sync.Mutex

	// OpenErr, if non-nil, is returned by Open (e.g. speech.ErrPermissionDenied).
	OpenErr error

	// Hold makes Open block until Grant is called or ctx is cancelled,
	// simulating a pending permission prompt.
	Hold bool

	// StreamFormat is the format of streams handed out. Default: 16 kHz mono.
	StreamFormat audio.Format

	// Streams holds every Stream handed out, in order.
	Streams []*Stream

	// OpenCallCount is the number of Open calls.
	OpenCallCount int

	grant chan struct{}
}

var _ speech.Microphone = (*Microphone)(nil)

// Open returns a new Stream, OpenErr, or blocks while Hold is set.
func (m *Microphone) Open(ctx context.Context) (speech.AudioStream, error) {
	m.mu.Lock()
	m.OpenCallCount++
	hold := m.Hold
	grant := m.grantCh()
	m.mu.Unlock()

	if hold {
		select {
		case <-grant:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	f := m.StreamFormat
	if !f.Valid() {
		f = audio.Recognition
	}
	s := &Stream{format: f, chunks: make(chan []byte, 64)}
	m.Streams = append(m.Streams, s)
	return s, nil
}

// Grant resolves a held Open.
func (m *Microphone) Grant() {
	m.mu.Lock()
	ch := m.grantCh()
	m.mu.Unlock()
	close(ch)
}

// Last returns the most recent Stream, or nil.
func (m *Microphone) Last() *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Streams) == 0 {
		return nil
	}
	return m.Streams[len(m.Streams)-1]
}

func (m *Microphone) grantCh() chan struct{} {
	if m.grant == nil {
		m.grant = make(chan struct{})
	}
	return m.grant
}

// Stream is a mock implementation of speech.AudioStream.
type Stream struct {
	mu     sync.Mutex
	format audio.Format
	chunks chan []byte
	closed bool

	// CloseCallCount is the number of Close calls.
	CloseCallCount int

	// Rejected counts Push calls made after Close.
	Rejected int
}

var _ speech.AudioStream = (*Stream)(nil)

// Chunks returns the chunk stream.
func (s *Stream) Chunks() <-chan []byte { return s.chunks }

// Format returns the stream format.
func (s *Stream) Format() audio.Format { return s.format }

// Close releases the stream. It is idempotent.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if !s.closed {
		s.closed = true
		close(s.chunks)
	}
	return nil
}

// Push delivers chunk as if the device had captured it. It reports false,
// and counts a rejection, once the stream has been released.
func (s *Stream) Push(chunk []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.Rejected++
		return false
	}
	s.chunks <- chunk
	return true
}

// Released reports whether Close has been called.
func (s *Stream) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
