package speech

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/cantomaster/internal/observe"
	"github.com/MrWong99/cantomaster/pkg/audio"
)

// State is the lifecycle position of a [Capture].
type State int32

const (
	// StateIdle is a capture that has not been started.
	StateIdle State = iota

	// StateStarting waits for microphone permission.
	StateStarting

	// StateActive records (when the microphone was granted) and recognises.
	StateActive

	// StateEnding has stopped capture and is flushing audio and callbacks.
	StateEnding

	// StateEnded is terminal.
	StateEnded
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// stopGrace bounds how long a cancelled capture waits for the recognizer
// to deliver a transcript for speech already captured.
const stopGrace = 15 * time.Second

var errNoMicrophone = errors.New("speech: no microphone configured")

type callbacks struct {
	transcript func(string)
	audio      func(Recording)
	end        func()
}

type micResult struct {
	stream AudioStream
	err    error
}

// Capture is one listen-and-record attempt. It is returned by
// [Controller.Listen] already started and must not be reused once ended.
type Capture struct {
	id      string
	recog   Recognition
	mic     Microphone
	format  audio.Format
	cb      callbacks
	metrics *observe.Metrics

	state    atomic.Int32
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	// Owned by the run goroutine.
	buf        bytes.Buffer
	accepting  bool
	transcript bool
	sendFailed bool
}

func newCapture(recog Recognition, mic Microphone, format audio.Format, cb callbacks, m *observe.Metrics) *Capture {
	c := &Capture{
		id:      uuid.NewString(),
		recog:   recog,
		mic:     mic,
		format:  format,
		cb:      cb,
		metrics: m,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	c.state.Store(int32(StateStarting))
	return c
}

// ID identifies the capture in logs.
func (c *Capture) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Capture) State() State { return State(c.state.Load()) }

// Done is closed after onSessionEnd has returned.
func (c *Capture) Done() <-chan struct{} { return c.done }

// Cancel asks the session to end now. The usual end sequence follows:
// whatever audio was captured is delivered, the microphone is released and
// onSessionEnd fires. Calling Cancel more than once, or after the session
// has ended, has no effect.
func (c *Capture) Cancel() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Capture) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Capture) run(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	start := time.Now()
	if c.metrics != nil {
		c.metrics.ActiveCaptures.Add(ctx, 1)
	}

	micCtx, micCancel := context.WithCancel(ctx)
	defer micCancel()
	micCh := make(chan micResult, 1)
	if c.mic != nil {
		go func() {
			s, err := c.mic.Open(micCtx)
			micCh <- micResult{stream: s, err: err}
		}()
	} else {
		micCh <- micResult{err: errNoMicrophone}
	}

	var (
		stream     AudioStream
		chunks     <-chan []byte
		conv       *audio.Converter
		micPending = micCh
		outcome    = "empty"
		settled    bool // results closed, so Err is final
	)
	results := c.recog.Results()

loop:
	for {
		select {
		case r := <-micPending:
			micPending = nil
			c.setState(StateActive)
			if r.err != nil {
				c.logMicFailure(r.err)
				continue
			}
			stream = r.stream
			chunks = stream.Chunks()
			conv = &audio.Converter{Source: stream.Format(), Target: c.format}
			c.accepting = true

		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			c.accept(chunk, conv)

		case res, ok := <-results:
			if !ok {
				settled = true
				break loop
			}
			c.handleResult(res)

		case <-c.stop:
			outcome = "cancelled"
			settled = c.finishRecognition(ctx, results, chunks, conv)
			chunks = nil
			break loop

		case <-ctx.Done():
			outcome = "cancelled"
			break loop
		}
	}

	c.setState(StateEnding)
	if err := c.recog.Stop(); err != nil {
		slog.Debug("speech: stopping recognition", "capture", c.id, "err", err)
	}
	if settled {
		if err := c.recog.Err(); err != nil {
			slog.Warn("speech: recognition error", "capture", c.id, "err", err)
			outcome = "error"
		}
	}
	if c.transcript && outcome != "error" {
		outcome = "transcript"
	}

	// Flush what the device already delivered, then stop accepting.
	if chunks != nil {
		c.flush(chunks, conv)
	}
	c.accepting = false

	if micPending != nil {
		micCancel()
		go releaseLate(micPending)
	}

	var rec *Recording
	if stream != nil {
		rec = &Recording{
			WAV:      audio.EncodeWAV(c.buf.Bytes(), stream.Format()),
			MimeType: audio.WAVMime,
			Format:   stream.Format(),
			PCMBytes: c.buf.Len(),
		}
		c.buf.Reset()
	}
	if rec != nil && c.cb.audio != nil {
		c.cb.audio(*rec)
	}
	if stream != nil {
		if err := stream.Close(); err != nil {
			slog.Warn("speech: releasing microphone", "capture", c.id, "err", err)
		}
	}
	if c.cb.end != nil {
		c.cb.end()
	}

	c.setState(StateEnded)
	close(c.done)

	if c.metrics != nil {
		mctx := context.Background()
		c.metrics.ActiveCaptures.Add(mctx, -1)
		c.metrics.RecordCapture(mctx, outcome, rec != nil, time.Since(start).Seconds())
	}
	slog.Debug("speech: capture ended",
		"capture", c.id,
		"outcome", outcome,
		"audio", rec != nil,
		"duration", time.Since(start),
	)
}

// accept buffers a raw chunk for the recording and forwards it, converted,
// to the recognizer.
func (c *Capture) accept(chunk []byte, conv *audio.Converter) {
	if !c.accepting {
		return
	}
	c.buf.Write(chunk)
	pcm := conv.Convert(chunk)
	if len(pcm) == 0 {
		return
	}
	if err := c.recog.SendAudio(pcm); err != nil && !c.sendFailed {
		c.sendFailed = true
		slog.Debug("speech: recognizer rejected audio", "capture", c.id, "err", err)
	}
}

// finishRecognition handles Cancel like the end of an utterance. Audio the
// device already delivered is sent, the recognizer is stopped, and its
// results are read until they close, so speech captured so far can still
// produce a transcript. It reports whether results closed; it gives up when
// ctx ends or after stopGrace.
func (c *Capture) finishRecognition(ctx context.Context, results <-chan Result, chunks <-chan []byte, conv *audio.Converter) bool {
	c.setState(StateEnding)
	if chunks != nil {
		c.flush(chunks, conv)
	}
	c.accepting = false
	if err := c.recog.Stop(); err != nil {
		slog.Debug("speech: stopping recognition", "capture", c.id, "err", err)
	}

	grace := time.NewTimer(stopGrace)
	defer grace.Stop()
	for {
		select {
		case res, ok := <-results:
			if !ok {
				return true
			}
			c.handleResult(res)
		case _, ok := <-chunks:
			// Keep the device from blocking; nothing more is recorded.
			if !ok {
				chunks = nil
			}
		case <-grace.C:
			slog.Warn("speech: recognizer did not finish after cancel", "capture", c.id, "grace", stopGrace)
			return false
		case <-ctx.Done():
			return false
		}
	}
}

func (c *Capture) flush(chunks <-chan []byte, conv *audio.Converter) {
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			c.accept(chunk, conv)
		default:
			return
		}
	}
}

// handleResult delivers the first hypothesis of the first result and then
// asks the recognizer to finish, since capture is single-utterance.
func (c *Capture) handleResult(res Result) {
	if c.transcript || len(res.Alternatives) == 0 {
		return
	}
	c.transcript = true
	text := res.Alternatives[0].Transcript
	if c.cb.transcript != nil {
		c.cb.transcript(text)
	}
	if err := c.recog.Stop(); err != nil {
		slog.Debug("speech: stopping recognition after result", "capture", c.id, "err", err)
	}
}

func (c *Capture) logMicFailure(err error) {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		slog.Info("speech: microphone permission denied, recording disabled", "capture", c.id)
	case errors.Is(err, errNoMicrophone):
		slog.Debug("speech: no microphone, recording disabled", "capture", c.id)
	case errors.Is(err, context.Canceled):
	default:
		slog.Warn("speech: microphone unavailable, recording disabled", "capture", c.id, "err", err)
	}
}

// releaseLate closes a microphone that was granted after its session ended.
func releaseLate(ch <-chan micResult) {
	r := <-ch
	if r.stream != nil {
		_ = r.stream.Close()
	}
}
