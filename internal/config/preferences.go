package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Preferences are a learner's local practice settings, stored as TOML so
// they can be hand-edited. Nil fields leave the YAML configuration in
// effect.
//
// Example:
//
//	[practice]
//	auto-play = true
//	auto-play-next = false
//
//	[devices]
//	input = "USB"
type Preferences struct {
	Practice PracticePreferences `toml:"practice"`
	Devices  DevicePreferences   `toml:"devices"`
}

// PracticePreferences override [PracticeConfig].
type PracticePreferences struct {
	AutoPlay      *bool   `toml:"auto-play"`
	AutoPlayNext  *bool   `toml:"auto-play-next"`
	AutoNextDelay *string `toml:"auto-next-delay"`
	SentencesFile *string `toml:"sentences-file"`
}

// DevicePreferences override [DevicesConfig].
type DevicePreferences struct {
	Input  *string `toml:"input"`
	Output *string `toml:"output"`
}

// LoadPreferences reads a TOML preferences file. A missing file is not an
// error.
func LoadPreferences(path string) (Preferences, error) {
	if path == "" {
		return Preferences{}, errors.New("config: preferences path is empty")
	}
	var p Preferences
	md, err := toml.DecodeFile(path, &p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Preferences{}, nil
		}
		return Preferences{}, fmt.Errorf("config: decode preferences %q: %w", path, err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return Preferences{}, fmt.Errorf("config: preferences %q: unknown key %q", path, undec[0].String())
	}
	if d := p.Practice.AutoNextDelay; d != nil {
		if _, err := time.ParseDuration(*d); err != nil {
			return Preferences{}, fmt.Errorf("config: preferences %q: auto-next-delay: %w", path, err)
		}
	}
	return p, nil
}

// Apply overlays the preferences onto cfg.
func (p Preferences) Apply(cfg *Config) {
	if v := p.Practice.AutoPlay; v != nil {
		b := *v
		cfg.Practice.AutoPlay = &b
	}
	if v := p.Practice.AutoPlayNext; v != nil {
		cfg.Practice.AutoPlayNext = *v
	}
	if v := p.Practice.AutoNextDelay; v != nil {
		if d, err := time.ParseDuration(*v); err == nil {
			cfg.Practice.AutoNextDelay = d
		}
	}
	if v := p.Practice.SentencesFile; v != nil {
		cfg.Practice.SentencesFile = *v
	}
	if v := p.Devices.Input; v != nil {
		cfg.Devices.Input = *v
	}
	if v := p.Devices.Output; v != nil {
		cfg.Devices.Output = *v
	}
}

// PreferencesTemplate is written by "cantomaster config" when no
// preferences file exists yet.
const PreferencesTemplate = `# cantomaster local practice preferences

[practice]
# auto-play = true
# auto-play-next = false
# auto-next-delay = "1s"
# sentences-file = ""

[devices]
# input = ""
# output = ""
`
