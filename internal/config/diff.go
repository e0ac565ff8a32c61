package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SentencesChanged is set when practice.sentences_file points elsewhere.
	SentencesChanged bool

	// PracticeChanged is set when auto-play defaults changed. They apply to
	// connections opened afterwards.
	PracticeChanged bool

	// SpeechChanged is set when locale, rate or voice hints changed. They
	// apply to sessions opened afterwards.
	SpeechChanged bool

	// RestartRequired lists changed settings that only take effect after a
	// restart.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Practice.SentencesFile != new.Practice.SentencesFile {
		d.SentencesChanged = true
	}
	if old.Practice.AutoPlayEnabled() != new.Practice.AutoPlayEnabled() ||
		old.Practice.AutoPlayNext != new.Practice.AutoPlayNext ||
		old.Practice.AutoNextDelay != new.Practice.AutoNextDelay {
		d.PracticeChanged = true
	}

	if old.Speech.Locale != new.Speech.Locale ||
		old.Speech.Rate != new.Speech.Rate ||
		!slices.Equal(old.Speech.VoiceHints, new.Speech.VoiceHints) {
		d.SpeechChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !sameProvider(old.Providers.STT, new.Providers.STT) {
		d.RestartRequired = append(d.RestartRequired, "providers.stt")
	}
	if !sameProvider(old.Providers.TTS, new.Providers.TTS) {
		d.RestartRequired = append(d.RestartRequired, "providers.tts")
	}
	if !slices.EqualFunc(old.Providers.Fallbacks.STT, new.Providers.Fallbacks.STT, sameProvider) ||
		!slices.EqualFunc(old.Providers.Fallbacks.TTS, new.Providers.Fallbacks.TTS, sameProvider) {
		d.RestartRequired = append(d.RestartRequired, "providers.fallbacks")
	}

	return d
}

// sameProvider compares the scalar fields of two entries. Options maps are
// not compared.
func sameProvider(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}
