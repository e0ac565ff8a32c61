// Package vosk provides an offline STT provider backed by the Vosk speech
// recognition toolkit (cgo). Vosk is a true streaming engine: each chunk is
// fed to the recognizer, which reports partial hypotheses and commits a final
// result at its own endpoint detection.
//
// A Cantonese model (e.g. vosk-model-small-cn or a yue model) must be
// downloaded separately; the provider is language-agnostic and ignores
// StreamConfig.Language.
package vosk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/cantomaster/pkg/provider/stt"
	vosk "github.com/alphacep/vosk-api/go"
)

const defaultAlternatives = 3

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithAlternatives sets how many hypotheses Vosk reports per final result.
// Zero disables alternatives.
func WithAlternatives(n int) Option {
	return func(p *Provider) { p.alternatives = n }
}

// Provider implements stt.Provider on a Vosk model loaded once at startup.
type Provider struct {
	model        *vosk.VoskModel
	alternatives int
}

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// New loads the Vosk model directory at modelPath. The caller must Close the
// provider when done.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("vosk: modelPath must not be empty")
	}
	vosk.SetLogLevel(-1)
	model, err := vosk.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("vosk: load model %q: %w", modelPath, err)
	}
	if model == nil {
		return nil, fmt.Errorf("vosk: load model %q: model returned nil", modelPath)
	}
	p := &Provider{model: model, alternatives: defaultAlternatives}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close frees the model. Sessions must be closed first.
func (p *Provider) Close() error {
	if p.model != nil {
		p.model.Free()
		p.model = nil
	}
	return nil
}

// StartStream creates a recognizer for the session's sample rate.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("vosk: context already cancelled: %w", err)
	}
	if cfg.Channels > 1 {
		return nil, fmt.Errorf("vosk: only mono audio is supported, got %d channels", cfg.Channels)
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = 16000
	}
	rec, err := vosk.NewRecognizer(p.model, float64(sr))
	if err != nil {
		return nil, fmt.Errorf("vosk: create recognizer: %w", err)
	}
	rec.SetWords(1)
	if p.alternatives > 0 {
		rec.SetMaxAlternatives(p.alternatives)
	}

	s := &session{
		rec:      rec,
		audio:    make(chan []byte, 256),
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 16),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.loop(ctx)
	return s, nil
}

// session feeds a single recognizer from one goroutine; Vosk recognizers are
// not safe for concurrent use.
type session struct {
	rec      *vosk.VoskRecognizer
	audio    chan []byte
	partials chan stt.Transcript
	finals   chan stt.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return fmt.Errorf("vosk: %w", stt.ErrSessionClosed)
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return fmt.Errorf("vosk: %w", stt.ErrSessionClosed)
	}
}

func (s *session) Partials() <-chan stt.Transcript { return s.partials }
func (s *session) Finals() <-chan stt.Transcript   { return s.finals }

// Close drains queued audio, emits the recognizer's final result and frees it.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *session) loop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)
	defer s.rec.Free()

	lastPartial := ""
	feed := func(chunk []byte) {
		if s.rec.AcceptWaveform(chunk) > 0 {
			lastPartial = ""
			s.emitFinal(s.rec.Result())
			return
		}
		if text, ok := parsePartial(s.rec.PartialResult()); ok && text != lastPartial {
			lastPartial = text
			select {
			case s.partials <- stt.Transcript{Text: text}:
			default:
			}
		}
	}

	for {
		select {
		case chunk := <-s.audio:
			feed(chunk)
		case <-s.done:
			for {
				select {
				case chunk := <-s.audio:
					feed(chunk)
				default:
					s.emitFinal(s.rec.FinalResult())
					return
				}
			}
		case <-ctx.Done():
			s.emitFinal(s.rec.FinalResult())
			return
		}
	}
}

func (s *session) emitFinal(raw string) {
	t, ok := parseFinal(raw)
	if !ok {
		return
	}
	select {
	case s.finals <- t:
	default:
		slog.Warn("vosk: finals channel full, dropping transcript")
	}
}

// result covers both Vosk output shapes: plain {"text", "result"} and
// {"alternatives": [...]} when max alternatives is set.
type result struct {
	Text   string `json:"text"`
	Result []struct {
		Conf float64 `json:"conf"`
	} `json:"result"`
	Alternatives []struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	} `json:"alternatives"`
	Partial string `json:"partial"`
}

// parseFinal converts a Result or FinalResult payload into a final Transcript.
func parseFinal(raw string) (stt.Transcript, bool) {
	var r result
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		slog.Debug("vosk: unparsable result", "err", err)
		return stt.Transcript{}, false
	}

	var alts []stt.Alternative
	for _, a := range r.Alternatives {
		if text := joinHan(a.Text); text != "" {
			alts = append(alts, stt.Alternative{Text: text, Confidence: a.Confidence})
		}
	}
	if len(r.Alternatives) == 0 {
		if text := joinHan(r.Text); text != "" {
			alts = append(alts, stt.Alternative{Text: text, Confidence: wordConfidence(r)})
		}
	}
	if len(alts) == 0 {
		return stt.Transcript{}, false
	}
	return stt.Transcript{
		Text:         alts[0].Text,
		IsFinal:      true,
		Confidence:   alts[0].Confidence,
		Alternatives: alts,
	}, true
}

func parsePartial(raw string) (string, bool) {
	var r result
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return "", false
	}
	text := joinHan(r.Partial)
	return text, text != ""
}

func wordConfidence(r result) float64 {
	if len(r.Result) == 0 {
		return 0
	}
	var sum float64
	for _, w := range r.Result {
		sum += w.Conf
	}
	return sum / float64(len(r.Result))
}

// joinHan removes the spaces Vosk puts between Chinese characters while
// keeping spaces between other words.
func joinHan(s string) string {
	fields := strings.Fields(s)
	var b strings.Builder
	for i, f := range fields {
		if i > 0 && !(endsHan(fields[i-1]) && startsHan(f)) {
			b.WriteByte(' ')
		}
		b.WriteString(f)
	}
	return b.String()
}

func startsHan(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.Is(unicode.Han, r)
}

func endsHan(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return unicode.Is(unicode.Han, r)
}
