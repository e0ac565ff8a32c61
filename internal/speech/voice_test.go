package speech_test

import (
	"testing"

	"github.com/MrWong99/cantomaster/internal/speech"
)

func TestSelectVoice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		voices []speech.Voice
		want   string // voice ID, "" for default
	}{
		{
			name:   "no voices",
			voices: nil,
			want:   "",
		},
		{
			name: "exact locale",
			voices: []speech.Voice{
				{ID: "tw", Locale: "zh-TW"},
				{ID: "hk", Locale: "zh-HK"},
			},
			want: "hk",
		},
		{
			name: "posix spelling",
			voices: []speech.Voice{
				{ID: "cn", Locale: "zh_CN"},
				{ID: "hk", Locale: "zh_HK"},
			},
			want: "hk",
		},
		{
			name: "case insensitive tag",
			voices: []speech.Voice{
				{ID: "hk", Locale: "ZH-hk"},
			},
			want: "hk",
		},
		{
			name: "locale beats earlier name hint",
			voices: []speech.Voice{
				{ID: "hint", Name: "Google Cantonese", Locale: "zh"},
				{ID: "hk", Locale: "zh-HK"},
			},
			want: "hk",
		},
		{
			name: "name hint",
			voices: []speech.Voice{
				{ID: "cn", Name: "Tingting", Locale: "zh-CN"},
				{ID: "hint", Name: "Microsoft Tracy - Chinese (Hong Kong)", Locale: "zh"},
			},
			want: "hint",
		},
		{
			name: "cantonese language tag",
			voices: []speech.Voice{
				{ID: "en", Locale: "en-GB"},
				{ID: "yue", Locale: "yue-Hant-HK"},
			},
			want: "yue",
		},
		{
			name: "no match falls back to default",
			voices: []speech.Voice{
				{ID: "cn", Name: "Tingting", Locale: "zh-CN", Default: true},
				{ID: "en", Name: "Daniel", Locale: "en-GB"},
			},
			want: "",
		},
		{
			name: "unparseable locale ignored",
			voices: []speech.Voice{
				{ID: "bad", Locale: "???"},
			},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := speech.SelectVoice(tt.voices, "zh-HK", speech.DefaultVoiceHints)
			switch {
			case tt.want == "" && got != nil:
				t.Errorf("SelectVoice = %q, want default", got.ID)
			case tt.want != "" && got == nil:
				t.Errorf("SelectVoice = default, want %q", tt.want)
			case tt.want != "" && got.ID != tt.want:
				t.Errorf("SelectVoice = %q, want %q", got.ID, tt.want)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	states := map[speech.State]string{
		speech.StateIdle:     "idle",
		speech.StateStarting: "starting",
		speech.StateActive:   "active",
		speech.StateEnding:   "ending",
		speech.StateEnded:    "ended",
		speech.State(42):     "unknown",
	}
	for s, want := range states {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
