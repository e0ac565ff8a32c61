package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/cantomaster/internal/app"
	"github.com/MrWong99/cantomaster/internal/config"
	"github.com/MrWong99/cantomaster/internal/observe"
	"github.com/MrWong99/cantomaster/internal/resilience"
	"github.com/MrWong99/cantomaster/pkg/provider/stt"
	"github.com/MrWong99/cantomaster/pkg/provider/stt/deepgram"
	oaistt "github.com/MrWong99/cantomaster/pkg/provider/stt/openai"
	"github.com/MrWong99/cantomaster/pkg/provider/stt/vosk"
	"github.com/MrWong99/cantomaster/pkg/provider/stt/whisper"
	"github.com/MrWong99/cantomaster/pkg/provider/tts"
	"github.com/MrWong99/cantomaster/pkg/provider/tts/coqui"
	"github.com/MrWong99/cantomaster/pkg/provider/tts/elevenlabs"
	oaitts "github.com/MrWong99/cantomaster/pkg/provider/tts/openai"
)

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if prompt, ok := entry.Options["prompt"].(string); ok {
			opts = append(opts, whisper.WithNativePrompt(prompt))
		}
		if n := optInt(entry.Options, "threads"); n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if n := optInt(entry.Options, "alternatives"); n > 0 {
			opts = append(opts, deepgram.WithAlternatives(n))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("vosk", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []vosk.Option
		if n := optInt(entry.Options, "alternatives"); n > 0 {
			opts = append(opts, vosk.WithAlternatives(n))
		}
		return vosk.New(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oaistt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		if prompt := optString(entry.Options, "prompt"); prompt != "" {
			opts = append(opts, oaistt.WithPrompt(prompt))
		}
		return oaistt.New(entry.APIKey, entry.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if rate := optInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, coqui.WithOutputSampleRate(rate))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oaitts.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		if s := optString(entry.Options, "instructions"); s != "" {
			opts = append(opts, oaitts.WithInstructions(s))
		}
		return oaitts.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	for _, kind := range []string{"stt", "tts"} {
		for _, name := range reg.Names(kind) {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates the providers named in cfg using the registry.
// A stage set to [config.ClientProvider] stays nil so the browser handles it.
// When fallbacks are configured the stage is wrapped in a failover chain
// whose attempts are counted in m.
func buildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.STT.Name; name != "" && name != config.ClientProvider {
		p, err := createSTT(reg, cfg.Providers.STT)
		if err != nil {
			return nil, err
		}
		if p != nil && len(cfg.Providers.Fallbacks.STT) > 0 {
			chain := resilience.NewSTT(name, p, resilience.BreakerConfig{})
			for _, entry := range cfg.Providers.Fallbacks.STT {
				fb, err := createSTT(reg, entry)
				if err != nil {
					return nil, fmt.Errorf("fallback: %w", err)
				}
				if fb != nil {
					chain.Add(entry.Name, fb)
				}
			}
			if m != nil {
				chain.RecordTo(m)
			}
			p = chain
		}
		ps.STT = p
	}

	if name := cfg.Providers.TTS.Name; name != "" && name != config.ClientProvider {
		p, err := createTTS(reg, cfg.Providers.TTS)
		if err != nil {
			return nil, err
		}
		if p != nil && len(cfg.Providers.Fallbacks.TTS) > 0 {
			chain := resilience.NewTTS(name, p, resilience.BreakerConfig{})
			for _, entry := range cfg.Providers.Fallbacks.TTS {
				fb, err := createTTS(reg, entry)
				if err != nil {
					return nil, fmt.Errorf("fallback: %w", err)
				}
				if fb != nil {
					chain.Add(entry.Name, fb)
				}
			}
			if m != nil {
				chain.RecordTo(m)
			}
			p = chain
		}
		ps.TTS = p
	}

	return ps, nil
}

// createSTT returns nil without error when no factory is registered.
func createSTT(reg *config.Registry, entry config.ProviderEntry) (stt.Provider, error) {
	p, err := reg.CreateSTT(entry)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("provider not available in this build, skipping", "kind", "stt", "name", entry.Name)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", entry.Name)
	return p, nil
}

// createTTS returns nil without error when no factory is registered.
func createTTS(reg *config.Registry, entry config.ProviderEntry) (tts.Provider, error) {
	p, err := reg.CreateTTS(entry)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("provider not available in this build, skipping", "kind", "tts", "name", entry.Name)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "tts", "name", entry.Name)
	return p, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// optInt extracts an integer value from a provider Options map. YAML
// decodes whole numbers as int; floats are truncated. Returns 0 otherwise.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
