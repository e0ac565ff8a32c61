// Package config provides the configuration schema, loader, watcher and
// provider registry for the cantomaster practice service.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to a slog level. Unknown levels map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ClientProvider is the provider name that delegates a speech stage to the
// connected browser instead of a server-side engine.
const ClientProvider = "client"

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Speech    SpeechConfig    `yaml:"speech"`
	Practice  PracticeConfig  `yaml:"practice"`
	Devices   DevicesConfig   `yaml:"devices"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// StaticDir, when set, is served at "/" so a browser front end can be
	// hosted alongside the API.
	StaticDir string `yaml:"static_dir"`

	// AllowedOrigins lists extra origins accepted on the websocket
	// handshake, as host patterns (e.g., "localhost:5173").
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig selects the speech engines. Each entry names a provider
// registered in the [Registry], or [ClientProvider].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`

	// Fallbacks are tried in order when the primary engine fails to start a
	// session. They are ignored when the primary is [ClientProvider].
	Fallbacks FallbacksConfig `yaml:"fallbacks"`
}

// FallbacksConfig lists secondary engines per speech stage.
type FallbacksConfig struct {
	STT []ProviderEntry `yaml:"stt"`
	TTS []ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "whisper", "coqui").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "nova-2",
	// or a model path for local engines).
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// SpeechConfig tunes the session controller.
type SpeechConfig struct {
	// Locale is the BCP-47 tag used for synthesis and recognition.
	// Default: "zh-HK".
	Locale string `yaml:"locale"`

	// Rate is the synthesis speaking rate. Default: 0.9.
	Rate float64 `yaml:"rate"`

	// VoiceHints are substrings that mark a voice as Cantonese when its
	// locale tag does not.
	VoiceHints []string `yaml:"voice_hints"`
}

// PracticeConfig holds per-learner defaults.
type PracticeConfig struct {
	// SentencesFile replaces the built-in sentence bank when set. The file
	// is reloaded when it changes.
	SentencesFile string `yaml:"sentences_file"`

	// AutoPlay speaks each new sentence as soon as it is shown.
	// Default: true.
	AutoPlay *bool `yaml:"auto_play"`

	// AutoPlayNext advances to the next sentence after the current one has
	// been spoken.
	AutoPlayNext bool `yaml:"auto_play_next"`

	// AutoNextDelay is the pause before auto-advancing. Default: 1s.
	AutoNextDelay time.Duration `yaml:"auto_next_delay"`
}

// DevicesConfig selects host audio devices for local practice. Names match
// by case-insensitive substring; empty selects the system default.
type DevicesConfig struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
}

// AutoPlayEnabled resolves the AutoPlay default.
func (p PracticeConfig) AutoPlayEnabled() bool {
	return p.AutoPlay == nil || *p.AutoPlay
}
