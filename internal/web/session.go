package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/MrWong99/cantomaster/internal/scoring"
	"github.com/MrWong99/cantomaster/internal/sentence"
	"github.com/MrWong99/cantomaster/internal/speech"
	"github.com/MrWong99/cantomaster/internal/speech/adapter"
	"github.com/MrWong99/cantomaster/internal/usage"
)

const writeTimeout = 5 * time.Second

// session is one practice connection. The read loop owns the socket reader;
// everything else may send concurrently.
type session struct {
	id      string
	srv     *Server
	conn    *websocket.Conn
	tracker *usage.Tracker
	mic     *browserMic
	pending *pending
	ctrl    *speech.Controller

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	settings  Settings
	current   sentence.Sentence
	loaded    bool
	listening uint64
	listenSeq uint64
	abort     bool
	discard   uint64 // capture whose late transcript belongs to a replaced sentence
	capture   *speech.Capture
	speakSeq  uint64
	nextTimer *time.Timer
	voices    []speech.Voice
}

func newSession(srv *Server, conn *websocket.Conn) *session {
	s := &session{
		id:       uuid.NewString(),
		srv:      srv,
		conn:     conn,
		tracker:  usage.NewTracker(nil),
		pending:  newPending(),
		settings: srv.Settings(),
	}
	s.mic = newBrowserMic(s)
	return s
}

func (s *session) controller() *speech.Controller {
	opts := []speech.Option{
		speech.WithLocale(s.settings.Locale),
		speech.WithRate(s.settings.Rate),
		speech.WithVoiceHints(s.settings.VoiceHints...),
		speech.WithMicrophone(s.mic),
		speech.WithMetrics(s.srv.metrics),
	}
	switch s.srv.ttsMode {
	case ModeServer:
		opts = append(opts, speech.WithSynthesizer(adapter.NewSynthesizer(s.srv.tts, newSocketSink(s))))
	case ModeClient:
		opts = append(opts, speech.WithSynthesizer(&clientSynth{s: s}))
	}
	switch s.srv.sttMode {
	case ModeServer:
		opts = append(opts, speech.WithRecognizer(adapter.NewRecognizer(s.srv.stt)))
	case ModeClient:
		opts = append(opts, speech.WithRecognizer(&clientRecognizer{s: s}))
	}
	return speech.New(opts...)
}

// serve runs the read loop until the connection closes or ctx is done.
func (s *session) serve(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	defer s.shutdown()
	s.ctrl = s.controller()

	slog.Info("web: practice session opened",
		"session", s.id,
		"synthesis", s.srv.ttsMode,
		"recognition", s.srv.sttMode,
	)

	for {
		typ, data, err := s.conn.Read(s.ctx)
		if err != nil {
			return err
		}
		switch typ {
		case websocket.MessageBinary:
			s.mic.push(data)
		case websocket.MessageText:
			var m inbound
			if err := json.Unmarshal(data, &m); err != nil {
				s.sendError("malformed message")
				continue
			}
			s.handle(m)
		}
	}
}

func (s *session) shutdown() {
	s.mu.Lock()
	s.stopTimerLocked()
	s.mu.Unlock()
	s.ctrl.Close()
	s.pending.closeAll()
	s.cancel()
	slog.Info("web: practice session closed", "session", s.id)
}

func (s *session) handle(m inbound) {
	switch m.Type {
	case msgHello:
		s.hello(m)
	case msgNext:
		s.loadNext()
	case msgSpeak:
		s.play(m.Text, false)
	case msgListen:
		s.listen()
	case msgStop:
		s.stop()
	case msgMic:
		s.mic.grant(m.Granted, m.SampleRate)
	case msgSettings:
		s.updateSettings(m)
	case msgSpeakDone:
		s.pending.speakDone(m.ID, m.Error)
	case msgRecognitionResult:
		s.pending.recognitionResult(m.ID, m.Alternatives)
	case msgRecognitionEnd:
		s.pending.recognitionEnd(m.ID, m.Error)
	default:
		s.sendError(fmt.Sprintf("unknown message type %q", m.Type))
	}
}

func (s *session) hello(m inbound) {
	s.tracker.Seed(m.Usage)
	voices := make([]speech.Voice, 0, len(m.Voices))
	for _, v := range m.Voices {
		voices = append(voices, speech.Voice{ID: v.ID, Name: v.Name, Locale: v.Locale, Default: v.Default})
	}
	s.mu.Lock()
	s.voices = voices
	s.mu.Unlock()

	s.sendSettings()
	s.sendUsage()
	s.loadNext()
}

// loadNext stops whatever is running and shows a different sentence,
// speaking it when auto-play is on.
func (s *session) loadNext() {
	s.mu.Lock()
	capt := s.cancelCaptureLocked()
	s.discard = s.listening
	s.stopTimerLocked()
	s.speakSeq++
	s.current = s.srv.catalog.Bank().Next(s.current.ID)
	s.loaded = true
	st := s.current
	auto := s.settings.AutoPlay
	s.mu.Unlock()

	s.ctrl.Cancel(capt)
	s.ctrl.StopSpeaking()

	count := s.tracker.Get(st.ID)
	_ = s.send(outbound{Type: msgSentence, Sentence: &st, Count: &count})
	if auto {
		s.play("", true)
	}
}

// play speaks text, or the current sentence when text is empty. Speaking the
// current sentence counts as a listen.
func (s *session) play(text string, auto bool) {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		s.sendError("no sentence loaded")
		return
	}
	if s.listening != 0 {
		s.mu.Unlock()
		s.sendError("recording in progress")
		return
	}
	s.stopTimerLocked()
	s.speakSeq++
	seq := s.speakSeq
	st := s.current
	s.mu.Unlock()

	if text == "" {
		text = st.Text
		if _, err := s.tracker.Increment(s.ctx, st.ID, usage.Listened); err != nil {
			slog.Warn("web: count listen", "session", s.id, "err", err)
		}
		s.sendUsage()
	}
	s.ctrl.Speak(text, func() { s.speechEnded(seq, auto) })
}

// speechEnded reports the end of an utterance and, for auto-played speech
// that was not superseded, schedules the next sentence.
func (s *session) speechEnded(seq uint64, auto bool) {
	_ = s.send(outbound{Type: msgSpeakEnd})
	if !auto {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.speakSeq || !s.settings.AutoPlayNext {
		return
	}
	s.nextTimer = time.AfterFunc(s.settings.AutoNextDelay, func() { s.autoNext(seq) })
}

func (s *session) autoNext(seq uint64) {
	s.mu.Lock()
	stale := seq != s.speakSeq || s.listening != 0
	s.mu.Unlock()
	if stale || s.ctx.Err() != nil {
		return
	}
	s.loadNext()
}

func (s *session) listen() {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		s.sendError("no sentence loaded")
		return
	}
	if s.listening != 0 {
		s.mu.Unlock()
		s.sendError("session already active")
		return
	}
	s.listenSeq++
	tok := s.listenSeq
	s.listening = tok
	s.abort = false
	s.stopTimerLocked()
	s.speakSeq++
	st := s.current
	s.mu.Unlock()

	s.ctrl.StopSpeaking()
	_ = s.send(outbound{Type: msgListening})
	capt := s.ctrl.Listen(
		func(text string) { s.transcribed(tok, st, text) },
		func() { s.listenEnded(tok) },
		s.recordingReady,
	)

	s.mu.Lock()
	if capt == nil {
		if s.listening == tok {
			s.listening = 0
		}
		s.mu.Unlock()
		s.sendError("speech recognition is not available")
		_ = s.send(outbound{Type: msgListenEnd})
		return
	}
	// The session may already have ended.
	abort := false
	if s.listening == tok {
		s.capture = capt
		abort = s.abort
	}
	s.mu.Unlock()
	if abort {
		capt.Cancel()
	}
}

// cancelCaptureLocked returns the active capture for cancellation, or marks a
// capture that is still starting to be cancelled once Listen returns.
func (s *session) cancelCaptureLocked() *speech.Capture {
	if s.listening != 0 && s.capture == nil {
		s.abort = true
	}
	return s.capture
}

func (s *session) listenEnded(tok uint64) {
	s.mu.Lock()
	if s.listening == tok {
		s.listening = 0
		s.capture = nil
	}
	s.mu.Unlock()
	_ = s.send(outbound{Type: msgListenEnd})
}

func (s *session) transcribed(tok uint64, st sentence.Sentence, text string) {
	s.mu.Lock()
	stale := s.discard == tok
	s.mu.Unlock()
	if stale {
		slog.Debug("web: dropping transcript for a replaced sentence", "session", s.id, "text", text)
		return
	}
	res := scoring.Evaluate(st.Text, text)
	s.srv.metrics.RecordScore(s.ctx, res.Score)
	if _, err := s.tracker.Increment(s.ctx, st.ID, usage.Read); err != nil {
		slog.Warn("web: count read", "session", s.id, "err", err)
	}
	score := res.Score
	_ = s.send(outbound{Type: msgTranscript, Text: text, Score: &score, Grade: res.Grade})
	s.sendUsage()
}

func (s *session) recordingReady(rec speech.Recording) {
	_ = s.send(outbound{
		Type:       msgRecording,
		WAV:        rec.WAV,
		Mime:       rec.MimeType,
		DurationMS: rec.Format.Duration(rec.PCMBytes).Milliseconds(),
	})
}

// stop cancels the active capture and any speech.
func (s *session) stop() {
	s.mu.Lock()
	capt := s.cancelCaptureLocked()
	s.stopTimerLocked()
	s.speakSeq++
	s.mu.Unlock()
	s.ctrl.Cancel(capt)
	s.ctrl.StopSpeaking()
}

func (s *session) updateSettings(m inbound) {
	s.mu.Lock()
	if m.AutoPlay != nil {
		s.settings.AutoPlay = *m.AutoPlay
	}
	if m.AutoPlayNext != nil {
		s.settings.AutoPlayNext = *m.AutoPlayNext
		if !*m.AutoPlayNext {
			s.stopTimerLocked()
		}
	}
	s.mu.Unlock()
	s.sendSettings()
}

func (s *session) clientVoices() []speech.Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voices
}

func (s *session) stopTimerLocked() {
	if s.nextTimer != nil {
		s.nextTimer.Stop()
		s.nextTimer = nil
	}
}

func (s *session) send(v outbound) error {
	ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, s.conn, v); err != nil {
		slog.Debug("web: send failed", "session", s.id, "type", v.Type, "err", err)
		return fmt.Errorf("web: send %s: %w", v.Type, err)
	}
	return nil
}

func (s *session) sendBinary(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return s.conn.Write(ctx, websocket.MessageBinary, data)
}

func (s *session) sendError(msg string) {
	_ = s.send(outbound{Type: msgError, Message: msg})
}

func (s *session) sendUsage() {
	_ = s.send(outbound{Type: msgUsage, Counts: s.tracker.Snapshot()})
}

func (s *session) sendSettings() {
	s.mu.Lock()
	auto, next := s.settings.AutoPlay, s.settings.AutoPlayNext
	s.mu.Unlock()
	_ = s.send(outbound{Type: msgSettings, AutoPlay: &auto, AutoPlayNext: &next})
}
