// Building this file needs the whisper.cpp static library and headers on
// LIBRARY_PATH and C_INCLUDE_PATH.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/cantomaster/pkg/audio"
	"github.com/MrWong99/cantomaster/pkg/provider/stt"
	"github.com/MrWong99/cantomaster/pkg/provider/stt/batch"
)

var _ stt.Provider = (*NativeProvider)(nil)

// nativePrompt nudges the model towards written Cantonese rather than
// Mandarin characters.
const nativePrompt = "以下係廣東話。"

// NativeProvider transcribes in process with a whisper.cpp model. The
// model is shared; each utterance runs in its own context, one at a time.
type NativeProvider struct {
	model    whisperlib.Model
	language string
	prompt   string
	threads  uint
	segment  batch.Config

	mu sync.Mutex
}

// NativeOption configures a [NativeProvider].
type NativeOption func(*NativeProvider)

// WithNativeLanguage pins the whisper language code, such as "yue" or "zh".
// Otherwise it comes from the stream's locale.
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativePrompt replaces the initial prompt. An empty prompt disables it.
func WithNativePrompt(prompt string) NativeOption {
	return func(p *NativeProvider) { p.prompt = prompt }
}

// WithNativeThreads caps the CPU threads per inference. Zero keeps the
// library default.
func WithNativeThreads(n uint) NativeOption {
	return func(p *NativeProvider) { p.threads = n }
}

// WithNativeSilenceThreshold sets how much trailing silence ends an
// utterance.
func WithNativeSilenceThreshold(d time.Duration) NativeOption {
	return func(p *NativeProvider) { p.segment.SilenceThreshold = d }
}

// WithNativeMaxUtterance forces a flush after d of buffered audio.
func WithNativeMaxUtterance(d time.Duration) NativeOption {
	return func(p *NativeProvider) { p.segment.MaxUtterance = d }
}

// NewNative loads the ggml model at modelPath. Close releases it.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path is required")
	}
	p := &NativeProvider{
		prompt:  nativePrompt,
		segment: batch.Config{Name: "whisper-native"},
	}
	for _, o := range opts {
		o(p)
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p.model = model
	return p, nil
}

// Close releases the model.
func (p *NativeProvider) Close() error {
	if p.model == nil {
		return nil
	}
	return p.model.Close()
}

// StartStream opens a capture session. Utterances are segmented on silence
// and each one is transcribed when it ends.
func (p *NativeProvider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: start stream: %w", err)
	}
	lang := resolveLanguage(p.language, cfg.Language)
	seg := p.segment
	seg.Format = streamFormat(cfg)

	return batch.NewSession(ctx, seg, func(ctx context.Context, pcm []byte, f audio.Format) (stt.Transcript, error) {
		if err := ctx.Err(); err != nil {
			return stt.Transcript{}, err
		}
		text, err := p.transcribe(pcmToFloat32Mono(pcm, f.Channels), lang)
		if err != nil {
			return stt.Transcript{}, err
		}
		return stt.Transcript{Text: text, Confidence: 1}, nil
	}), nil
}

func (p *NativeProvider) transcribe(samples []float32, lang string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: new context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: language rejected, model will detect it", "language", lang, "err", err)
	}
	if p.prompt != "" {
		wctx.SetInitialPrompt(p.prompt)
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process: %w", err)
	}

	var b strings.Builder
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: next segment: %w", err)
		}
		// Written Chinese has no spaces between segments.
		b.WriteString(strings.TrimSpace(seg.Text))
	}
	return b.String(), nil
}
