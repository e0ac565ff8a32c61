package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/cantomaster/internal/config"
)

func TestDiff_NoChange(t *testing.T) {
	t.Parallel()
	a, b := config.Default(), config.Default()
	d := config.Diff(a, b)
	if d.LogLevelChanged || d.SentencesChanged || d.PracticeChanged || d.SpeechChanged || len(d.RestartRequired) != 0 {
		t.Errorf("Diff of equal configs = %+v, want empty", d)
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()
	off := false
	tests := []struct {
		name   string
		mutate func(c *config.Config)
		check  func(t *testing.T, d config.ConfigDiff)
	}{
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
					t.Errorf("got %+v", d)
				}
			},
		},
		{
			name:   "sentences file",
			mutate: func(c *config.Config) { c.Practice.SentencesFile = "bank.yaml" },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.SentencesChanged || d.PracticeChanged {
					t.Errorf("got %+v", d)
				}
			},
		},
		{
			name:   "auto play off",
			mutate: func(c *config.Config) { c.Practice.AutoPlay = &off },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.PracticeChanged {
					t.Errorf("got %+v", d)
				}
			},
		},
		{
			name:   "auto next delay",
			mutate: func(c *config.Config) { c.Practice.AutoNextDelay = 3 * time.Second },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.PracticeChanged {
					t.Errorf("got %+v", d)
				}
			},
		},
		{
			name:   "voice hints",
			mutate: func(c *config.Config) { c.Speech.VoiceHints = []string{"粵"} },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.SpeechChanged {
					t.Errorf("got %+v", d)
				}
			},
		},
		{
			name: "providers and address need restart",
			mutate: func(c *config.Config) {
				c.Server.ListenAddr = ":1"
				c.Providers.STT.Name = "vosk"
				c.Providers.TTS.Model = "tts-1"
			},
			check: func(t *testing.T, d config.ConfigDiff) {
				want := []string{"server.listen_addr", "providers.stt", "providers.tts"}
				if !slices.Equal(d.RestartRequired, want) {
					t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
				}
			},
		},
		{
			name: "fallbacks need restart",
			mutate: func(c *config.Config) {
				c.Providers.Fallbacks.STT = []config.ProviderEntry{{Name: "vosk", Model: "/models/yue"}}
			},
			check: func(t *testing.T, d config.ConfigDiff) {
				if !slices.Equal(d.RestartRequired, []string{"providers.fallbacks"}) {
					t.Errorf("RestartRequired = %v", d.RestartRequired)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, updated := config.Default(), config.Default()
			tt.mutate(updated)
			tt.check(t, config.Diff(old, updated))
		})
	}
}
