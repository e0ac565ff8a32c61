// Package openai provides a TTS provider backed by the OpenAI speech
// endpoint. Audio is requested as raw PCM (24 kHz, 16-bit mono) and streamed
// from the response body as it arrives.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/cantomaster/pkg/audio"
	"github.com/MrWong99/cantomaster/pkg/provider/tts"
)

const (
	// DefaultModel is the default speech model.
	DefaultModel = string(oai.SpeechModelGPT4oMiniTTS)

	// DefaultVoice is used when a request names no voice.
	DefaultVoice = "alloy"

	readChunk = 4800 // 100 ms at 24 kHz mono
)

// pcmFormat is the fixed format of the "pcm" response format.
var pcmFormat = audio.Format{SampleRate: 24000, Channels: 1}

// builtinVoices is the fixed OpenAI voice catalogue. The voices are
// multilingual and carry no locale.
var builtinVoices = []string{"alloy", "ash", "ballad", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer", "verse"}

// Ensure Provider implements the tts.Provider interface.
var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client       oai.Client
	model        string
	instructions string
}

type config struct {
	baseURL      string
	timeout      time.Duration
	instructions string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithInstructions sets delivery instructions for models that accept them.
func WithInstructions(s string) Option {
	return func(c *config) { c.instructions = s }
}

// New constructs an OpenAI TTS provider. If model is empty DefaultModel is
// used.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: model, instructions: cfg.instructions}, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (tts.Stream, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("openai tts: text must not be empty")
	}
	voice := req.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	params := oai.AudioSpeechNewParams{
		Input:          req.Text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if req.Rate > 0 {
		params.Speed = oai.Float(min(max(req.Rate, 0.25), 4))
	}
	if instr := p.instructionsFor(req.Locale); instr != "" {
		params.Instructions = oai.String(instr)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai tts: synthesize: %w", err)
	}

	pipe := tts.NewPipe(pcmFormat)
	go func() {
		defer resp.Body.Close()
		pipe.CloseWithError(pump(ctx, resp.Body, pipe))
	}()
	return pipe, nil
}

// pump copies r to pipe in whole-sample chunks.
func pump(ctx context.Context, r io.Reader, pipe *tts.Pipe) error {
	var carry []byte
	buf := make([]byte, readChunk*audio.BytesPerSample)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			whole := len(data) - len(data)%audio.BytesPerSample
			if whole > 0 {
				if !pipe.Send(ctx, append([]byte(nil), data[:whole]...)) {
					return ctx.Err()
				}
			}
			carry = append([]byte(nil), data[whole:]...)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("openai tts: read audio: %w", err)
		}
	}
}

func (p *Provider) instructionsFor(locale string) string {
	if p.instructions != "" {
		return p.instructions
	}
	l := strings.ToLower(locale)
	if strings.HasPrefix(l, "yue") || l == "zh-hk" || l == "zh_hk" {
		return "Speak in Hong Kong Cantonese, clearly and slowly, for a language learner."
	}
	return ""
}

// Voices returns the built-in voice catalogue. The first voice is the default.
func (p *Provider) Voices(_ context.Context) ([]tts.Voice, error) {
	voices := make([]tts.Voice, 0, len(builtinVoices))
	for _, v := range builtinVoices {
		voices = append(voices, tts.Voice{ID: v, Name: v, Default: v == DefaultVoice})
	}
	return voices, nil
}
