package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper", "whisper-native", "deepgram", "vosk", "openai", ClientProvider},
	"tts": {"coqui", "openai", "elevenlabs", ClientProvider},
}

const (
	defaultListenAddr    = ":8080"
	defaultLocale        = "zh-HK"
	defaultRate          = 0.9
	defaultAutoNextDelay = time.Second
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills defaults and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero values with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = defaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Speech.Locale == "" {
		cfg.Speech.Locale = defaultLocale
	}
	if cfg.Speech.Rate == 0 {
		cfg.Speech.Rate = defaultRate
	}
	if cfg.Practice.AutoNextDelay == 0 {
		cfg.Practice.AutoNextDelay = defaultAutoNextDelay
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	for i, fb := range cfg.Providers.Fallbacks.STT {
		if fb.Name == "" || fb.Name == ClientProvider {
			errs = append(errs, fmt.Errorf("providers.fallbacks.stt[%d]: name must name a server-side engine", i))
		}
		validateProviderName("stt", fb.Name)
	}
	for i, fb := range cfg.Providers.Fallbacks.TTS {
		if fb.Name == "" || fb.Name == ClientProvider {
			errs = append(errs, fmt.Errorf("providers.fallbacks.tts[%d]: name must name a server-side engine", i))
		}
		validateProviderName("tts", fb.Name)
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; listening will be unavailable")
	}

	// Speech
	if cfg.Speech.Locale != "" {
		if _, err := language.Parse(cfg.Speech.Locale); err != nil {
			errs = append(errs, fmt.Errorf("speech.locale %q is not a valid BCP-47 tag: %w", cfg.Speech.Locale, err))
		}
	}
	if cfg.Speech.Rate != 0 && (cfg.Speech.Rate < 0.1 || cfg.Speech.Rate > 10) {
		errs = append(errs, fmt.Errorf("speech.rate %.2f is out of range [0.1, 10]", cfg.Speech.Rate))
	}

	// Practice
	if cfg.Practice.AutoNextDelay < 0 {
		errs = append(errs, fmt.Errorf("practice.auto_next_delay %s must not be negative", cfg.Practice.AutoNextDelay))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
