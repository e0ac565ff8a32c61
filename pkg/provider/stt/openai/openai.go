// Package openai provides an STT provider backed by the OpenAI audio
// transcription endpoint. The endpoint is batch-only, so utterances are
// segmented locally by the [batch] package.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/cantomaster/pkg/audio"
	"github.com/MrWong99/cantomaster/pkg/provider/stt"
	"github.com/MrWong99/cantomaster/pkg/provider/stt/batch"
)

// DefaultModel is the default transcription model.
const DefaultModel = string(oai.AudioModelWhisper1)

// cantonesePrompt steers the model towards traditional characters and
// colloquial Cantonese when transcribing a Hong Kong locale.
const cantonesePrompt = "以下係廣東話句子。"

// Ensure Provider implements the stt.Provider interface.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI API.
type Provider struct {
	client  oai.Client
	model   string
	prompt  string
	segment batch.Config
}

type config struct {
	baseURL string
	timeout time.Duration
	prompt  string
	segment batch.Config
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

// WithPrompt replaces the transcription prompt.
func WithPrompt(prompt string) Option {
	return func(c *config) { c.prompt = prompt }
}

// WithSilenceThreshold sets the trailing silence that commits an utterance.
func WithSilenceThreshold(d time.Duration) Option {
	return func(c *config) { c.segment.SilenceThreshold = d }
}

// New constructs an OpenAI STT provider. If model is empty DefaultModel is
// used.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	cfg := &config{segment: batch.Config{Name: "openai stt"}}
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

	return &Provider{
		client:  oai.NewClient(reqOpts...),
		model:   model,
		prompt:  cfg.prompt,
		segment: cfg.segment,
	}, nil
}

// StartStream implements stt.Provider.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("openai stt: context already cancelled: %w", err)
	}
	seg := p.segment
	seg.Format = audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}

	lang := strings.ToLower(stt.BaseLanguage(cfg.Language))
	prompt := p.prompt
	if prompt == "" && isCantonese(cfg.Language) {
		prompt = cantonesePrompt
	}

	return batch.NewSession(ctx, seg, func(ctx context.Context, pcm []byte, f audio.Format) (stt.Transcript, error) {
		text, err := p.transcribe(ctx, pcm, f, lang, prompt)
		if err != nil {
			return stt.Transcript{}, err
		}
		return stt.Transcript{Text: text, Confidence: 1}, nil
	}), nil
}

func (p *Provider) transcribe(ctx context.Context, pcm []byte, f audio.Format, lang, prompt string) (string, error) {
	params := oai.AudioTranscriptionNewParams{
		Model:          oai.AudioModel(p.model),
		File:           oai.File(bytes.NewReader(audio.EncodeWAV(pcm, f)), "utterance.wav", audio.WAVMime),
		ResponseFormat: oai.AudioResponseFormatJSON,
	}
	if lang != "" {
		params.Language = oai.String(lang)
	}
	if prompt != "" {
		params.Prompt = oai.String(prompt)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func isCantonese(tag string) bool {
	t := strings.ToLower(strings.ReplaceAll(tag, "_", "-"))
	return strings.HasPrefix(t, "yue") || t == "zh-hk" || t == "zh-mo" || strings.HasPrefix(t, "zh-hant-hk")
}
