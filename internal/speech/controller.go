// Package speech implements the session controller for one learner: it plays
// the target sentence through a [Synthesizer] and runs capture sessions that
// record the learner's attempt from a [Microphone] while a [Recognizer]
// transcribes it.
//
// Every platform primitive is injected, so the same controller drives a
// browser over a websocket and a terminal using the host sound card. All
// results are delivered through callbacks; no public method blocks and none
// returns an error. Failures are logged and folded into the normal
// completion path so the caller always sees a definite end signal.
//
// Speak is safe to call from any goroutine. Listen is not guarded: callers
// must not start a second capture before the first one's onSessionEnd has
// fired.
package speech

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/cantomaster/internal/observe"
	"github.com/MrWong99/cantomaster/pkg/audio"
)

const (
	// DefaultLocale is the spoken locale for synthesis and recognition.
	DefaultLocale = "zh-HK"

	// DefaultRate slows synthesis slightly to aid comprehension.
	DefaultRate = 0.9
)

// Option configures a [Controller].
type Option func(*Controller)

// WithSynthesizer sets the speech synthesis backend. Without one, Speak
// completes immediately and plays nothing.
func WithSynthesizer(s Synthesizer) Option {
	return func(c *Controller) { c.synth = s }
}

// WithRecognizer sets the speech recognition backend. Without one, Listen
// returns nil.
func WithRecognizer(r Recognizer) Option {
	return func(c *Controller) { c.rec = r }
}

// WithMicrophone sets the audio capture device. Without one, capture
// sessions still recognise (if the recognizer has its own audio source) but
// never produce a [Recording].
func WithMicrophone(m Microphone) Option {
	return func(c *Controller) { c.mic = m }
}

// WithLocale overrides [DefaultLocale].
func WithLocale(locale string) Option {
	return func(c *Controller) { c.locale = locale }
}

// WithRate overrides [DefaultRate].
func WithRate(rate float64) Option {
	return func(c *Controller) { c.rate = rate }
}

// WithVoiceHints overrides [DefaultVoiceHints].
func WithVoiceHints(hints ...string) Option {
	return func(c *Controller) { c.hints = hints }
}

// WithRecognitionFormat sets the PCM format fed to the recognizer. Microphone
// audio is converted to it. Default: 16 kHz mono.
func WithRecognitionFormat(f audio.Format) Option {
	return func(c *Controller) { c.recFormat = f }
}

// WithMetrics records synthesis and capture metrics to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// Controller coordinates synthesis and capture sessions for one learner.
type Controller struct {
	synth     Synthesizer
	rec       Recognizer
	mic       Microphone
	locale    string
	rate      float64
	hints     []string
	recFormat audio.Format
	metrics   *observe.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	current *speakRequest
	voice   *Voice
	voiceOK bool
}

// New returns a Controller. Call Close to stop any in-flight synthesis and
// capture when the learner goes away.
func New(opts ...Option) *Controller {
	c := &Controller{
		locale:    DefaultLocale,
		rate:      DefaultRate,
		hints:     DefaultVoiceHints,
		recFormat: audio.Recognition,
	}
	for _, o := range opts {
		o(c)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// speakRequest is one live synthesis. complete fires onComplete at most
// once, so callbacks arriving after supersession are ignored.
type speakRequest struct {
	id         string
	cancel     context.CancelFunc
	once       sync.Once
	onComplete func()
}

func (r *speakRequest) complete() {
	r.once.Do(func() {
		if r.onComplete != nil {
			r.onComplete()
		}
	})
}

// Speak plays text in the configured locale and rate. Any utterance still in
// progress is cancelled first and its onComplete fires before the new
// utterance starts. onComplete fires exactly once, on success and on failure
// alike.
func (c *Controller) Speak(text string, onComplete func()) {
	if c.synth == nil {
		slog.Debug("speech: synthesis unavailable, completing immediately")
		if onComplete != nil {
			go onComplete()
		}
		return
	}

	ctx, cancel := context.WithCancel(c.ctx)
	req := &speakRequest{id: uuid.NewString(), cancel: cancel, onComplete: onComplete}

	c.mu.Lock()
	prev := c.current
	c.current = req
	c.mu.Unlock()

	if prev != nil {
		prev.cancel()
		prev.complete()
	}

	go c.runSpeak(ctx, req, text)
}

// StopSpeaking cancels the current utterance, if any. Its onComplete fires.
func (c *Controller) StopSpeaking() {
	c.mu.Lock()
	req := c.current
	c.current = nil
	c.mu.Unlock()
	if req != nil {
		req.cancel()
		req.complete()
	}
}

// Speaking reports whether an utterance is in progress.
func (c *Controller) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

func (c *Controller) runSpeak(ctx context.Context, req *speakRequest, text string) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "speech.speak",
		trace.WithAttributes(observe.Attr("utterance.id", req.id), observe.Attr("locale", c.locale)))
	u := Utterance{
		Text:   text,
		Locale: c.locale,
		Rate:   c.rate,
		Voice:  c.selectVoice(ctx),
	}
	err := c.synth.Speak(ctx, u)

	outcome, failure := "done", error(nil)
	switch {
	case ctx.Err() != nil:
		outcome = "superseded"
	case err != nil:
		outcome, failure = "error", err
		slog.Warn("speech: synthesis failed", "utterance", req.id, "err", err)
	}
	observe.Finish(span, outcome, failure)

	c.mu.Lock()
	if c.current == req {
		c.current = nil
	}
	c.mu.Unlock()

	req.cancel()
	req.complete()

	if c.metrics != nil {
		c.metrics.RecordSynthesis(context.Background(), outcome, time.Since(start).Seconds())
	}
}

// selectVoice resolves the voice once per controller. A failed lookup is
// retried on the next utterance.
func (c *Controller) selectVoice(ctx context.Context) *Voice {
	c.mu.Lock()
	if c.voiceOK {
		v := c.voice
		c.mu.Unlock()
		return v
	}
	c.mu.Unlock()

	voices, err := c.synth.Voices(ctx)
	if err != nil {
		slog.Debug("speech: listing voices failed, using default voice", "err", err)
		return nil
	}
	v := SelectVoice(voices, c.locale, c.hints)
	if v != nil {
		cp := *v
		v = &cp
	}

	c.mu.Lock()
	c.voice, c.voiceOK = v, true
	c.mu.Unlock()
	return v
}

// Listen starts one capture session and returns its handle, or nil if
// recognition is unavailable or could not be started.
//
// onTranscript receives the first hypothesis of the first result, at most
// once. onAudioReady receives the recording exactly once if the microphone
// was acquired and never otherwise. onSessionEnd fires exactly once, last.
// All callbacks run on the session's goroutine. Any of them may be nil.
func (c *Controller) Listen(onTranscript func(string), onSessionEnd func(), onAudioReady func(Recording)) *Capture {
	if c.rec == nil {
		slog.Warn("speech: recognition is not supported on this platform")
		return nil
	}

	ctx, cancel := context.WithCancel(c.ctx)
	recog, err := c.rec.Start(ctx, RecognitionConfig{
		Locale:         c.locale,
		Continuous:     false,
		InterimResults: false,
		Format:         c.recFormat,
	})
	if err != nil {
		cancel()
		slog.Warn("speech: could not start recognition", "err", err)
		return nil
	}

	capt := newCapture(recog, c.mic, c.recFormat, callbacks{
		transcript: onTranscript,
		audio:      onAudioReady,
		end:        onSessionEnd,
	}, c.metrics)
	go capt.run(ctx, cancel)
	return capt
}

// Cancel stops capt. It is equivalent to capt.Cancel and accepts nil.
func (c *Controller) Cancel(capt *Capture) {
	if capt != nil {
		capt.Cancel()
	}
}

// Close cancels the current utterance and every capture started by this
// controller. Pending callbacks still fire.
func (c *Controller) Close() {
	c.StopSpeaking()
	c.cancel()
}
