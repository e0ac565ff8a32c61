package speech

import (
	"strings"

	"golang.org/x/text/language"
)

// DefaultVoiceHints are name fragments that identify a Cantonese voice on
// platforms that report a generic "zh" locale.
var DefaultVoiceHints = []string{"Cantonese", "Hong Kong", "粵", "廣東"}

var cantonese = language.MustParse("yue")

// SelectVoice picks the voice to use for locale. A voice whose locale tag
// is canonically equal to locale wins; otherwise the first voice whose tag
// is Cantonese or whose name contains one of hints. It returns nil when
// nothing matches and the platform default should be used.
func SelectVoice(voices []Voice, locale string, hints []string) *Voice {
	want, wantOK := parseTag(locale)
	if wantOK {
		for i := range voices {
			if got, ok := parseTag(voices[i].Locale); ok && got == want {
				return &voices[i]
			}
		}
	}
	for i := range voices {
		if isDialectVoice(voices[i], hints) {
			return &voices[i]
		}
	}
	return nil
}

func isDialectVoice(v Voice, hints []string) bool {
	if tag, ok := parseTag(v.Locale); ok {
		if base, _ := tag.Base(); base.String() == cantonese.String() {
			return true
		}
	}
	name := strings.ToLower(v.Name)
	for _, h := range hints {
		if h != "" && strings.Contains(name, strings.ToLower(h)) {
			return true
		}
	}
	return false
}

// parseTag parses s as BCP-47, tolerating the POSIX "zh_HK" spelling.
func parseTag(s string) (language.Tag, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "_", "-"))
	if s == "" {
		return language.Und, false
	}
	tag, err := language.Parse(s)
	if err != nil {
		return language.Und, false
	}
	return tag, true
}
