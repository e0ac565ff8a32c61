package web

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/cantomaster/internal/speech"
)

// errClientGone is reported to waiters when the connection closes.
var errClientGone = errors.New("web: client disconnected")

// pending tracks browser-side speech operations awaiting a reply.
type pending struct {
	mu     sync.Mutex
	speaks map[string]chan error
	recogs map[string]*clientRecognition
	closed bool
}

func newPending() *pending {
	return &pending{
		speaks: make(map[string]chan error),
		recogs: make(map[string]*clientRecognition),
	}
}

func (p *pending) addSpeak(id string) (chan error, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errClientGone
	}
	ch := make(chan error, 1)
	p.speaks[id] = ch
	return ch, nil
}

func (p *pending) removeSpeak(id string) {
	p.mu.Lock()
	delete(p.speaks, id)
	p.mu.Unlock()
}

func (p *pending) speakDone(id, errText string) {
	p.mu.Lock()
	ch, ok := p.speaks[id]
	delete(p.speaks, id)
	p.mu.Unlock()
	if !ok {
		return
	}
	var err error
	if errText != "" {
		err = fmt.Errorf("web: browser synthesis: %s", errText)
	}
	ch <- err
}

func (p *pending) addRecognition(r *clientRecognition) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errClientGone
	}
	p.recogs[r.id] = r
	return nil
}

func (p *pending) removeRecognition(id string) {
	p.mu.Lock()
	delete(p.recogs, id)
	p.mu.Unlock()
}

func (p *pending) recognition(id string) *clientRecognition {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recogs[id]
}

func (p *pending) recognitionResult(id string, alternatives []string) {
	if r := p.recognition(id); r != nil {
		r.deliver(alternatives)
	}
}

func (p *pending) recognitionEnd(id, errText string) {
	r := p.recognition(id)
	if r == nil {
		return
	}
	var err error
	if errText != "" {
		err = fmt.Errorf("web: browser recognition: %s", errText)
	}
	r.finish(err)
}

// closeAll fails every waiter. Later registrations are refused.
func (p *pending) closeAll() {
	p.mu.Lock()
	p.closed = true
	speaks := p.speaks
	recogs := p.recogs
	p.speaks = map[string]chan error{}
	p.recogs = map[string]*clientRecognition{}
	p.mu.Unlock()

	for _, ch := range speaks {
		ch <- errClientGone
	}
	for _, r := range recogs {
		r.finish(errClientGone)
	}
}

// clientSynth speaks with the browser's speech synthesis.
type clientSynth struct {
	s *session
}

var _ speech.Synthesizer = (*clientSynth)(nil)

// Voices returns the voices the page listed in its hello message.
func (c *clientSynth) Voices(context.Context) ([]speech.Voice, error) {
	return c.s.clientVoices(), nil
}

// Speak asks the page to speak u and waits for speak_done.
func (c *clientSynth) Speak(ctx context.Context, u speech.Utterance) error {
	id := uuid.NewString()
	done, err := c.s.pending.addSpeak(id)
	if err != nil {
		return err
	}
	defer c.s.pending.removeSpeak(id)

	msg := outbound{Type: msgSpeak, ID: id, Text: u.Text, Locale: u.Locale, Rate: u.Rate}
	if u.Voice != nil {
		msg.Voice = u.Voice.ID
	}
	if err := c.s.send(msg); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = c.s.send(outbound{Type: msgSpeakCancel, ID: id})
		return ctx.Err()
	}
}

// clientRecognizer recognises with the browser's speech recognition. The
// page listens to its own microphone, so audio sent by the capture session
// is not forwarded.
type clientRecognizer struct {
	s *session
}

var _ speech.Recognizer = (*clientRecognizer)(nil)

// Start asks the page to begin one recognition pass.
func (c *clientRecognizer) Start(ctx context.Context, cfg speech.RecognitionConfig) (speech.Recognition, error) {
	r := &clientRecognition{
		id:      uuid.NewString(),
		s:       c.s,
		results: make(chan speech.Result, 4),
	}
	if err := c.s.pending.addRecognition(r); err != nil {
		return nil, err
	}
	err := c.s.send(outbound{
		Type:   msgRecognize,
		ID:     r.id,
		Locale: cfg.Locale,
	})
	if err != nil {
		c.s.pending.removeRecognition(r.id)
		return nil, fmt.Errorf("web: start browser recognition: %w", err)
	}
	go func() {
		<-ctx.Done()
		r.finish(nil)
	}()
	return r, nil
}

type clientRecognition struct {
	id      string
	s       *session
	results chan speech.Result

	mu       sync.Mutex
	stopping bool
	finished bool
	err      error
}

var _ speech.Recognition = (*clientRecognition)(nil)

// clientStopGrace bounds the wait for recognition_end after recognize_stop.
const clientStopGrace = 3 * time.Second

func (r *clientRecognition) SendAudio([]byte) error      { return nil }
func (r *clientRecognition) Results() <-chan speech.Result { return r.results }

func (r *clientRecognition) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Stop tells the page to stop listening. Like the browser's own stop, the
// page may still report a result for speech it already heard; the pass ends
// when it sends recognition_end, or after clientStopGrace.
func (r *clientRecognition) Stop() error {
	r.mu.Lock()
	if r.finished || r.stopping {
		r.mu.Unlock()
		return nil
	}
	r.stopping = true
	r.mu.Unlock()

	time.AfterFunc(clientStopGrace, func() { r.finish(nil) })
	if err := r.s.send(outbound{Type: msgRecognizeStop, ID: r.id}); err != nil {
		r.finish(nil)
		return err
	}
	return nil
}

// deliver publishes a final result. Blank hypotheses are dropped, and a
// result with none left is ignored.
func (r *clientRecognition) deliver(alternatives []string) {
	res := speech.Result{Final: true}
	for _, a := range alternatives {
		if strings.TrimSpace(a) == "" {
			continue
		}
		res.Alternatives = append(res.Alternatives, speech.Alternative{Transcript: a})
	}
	if len(res.Alternatives) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	select {
	case r.results <- res:
	default:
	}
}

func (r *clientRecognition) finish(err error) {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	r.finished = true
	r.err = err
	close(r.results)
	r.mu.Unlock()
	r.s.pending.removeRecognition(r.id)
}
