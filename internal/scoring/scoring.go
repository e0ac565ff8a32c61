// Package scoring computes a textual pronunciation score between a target
// sentence and a recognised transcript.
//
// The score is character-level: both strings are reduced to their CJK
// ideographs and compared with unit-cost Levenshtein distance. Tones and
// audio-level pronunciation are not considered.
//
//	score = round((maxLen - distance) / maxLen * 100)
//
// where maxLen is the longer of the two normalised lengths. Ties round up.
package scoring

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Ideograph range kept by [Normalize] (CJK Unified Ideographs, basic block).
const (
	ideographFirst = '一'
	ideographLast  = '龥'
)

// Normalize discards every rune outside the CJK Unified Ideographs range
// U+4E00..U+9FA5. Punctuation, whitespace, Latin text and digits are removed.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= ideographFirst && r <= ideographLast {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Score returns a similarity score in [0, 100] for target and transcript.
//
// Two empty normalised inputs score 0, identical inputs score 100. The
// function is symmetric and deterministic.
func Score(target, transcript string) int {
	a, b := Normalize(target), Normalize(transcript)
	if a == "" && b == "" {
		return 0
	}
	if a == b {
		return 100
	}

	maxLen := max(runeCount(a), runeCount(b))
	dist := matchr.Levenshtein(a, b)
	return roundRatio(maxLen-dist, maxLen)
}

// Distance returns the unit-cost edit distance between the normalised forms
// of a and b, measured in characters.
func Distance(a, b string) int {
	return matchr.Levenshtein(Normalize(a), Normalize(b))
}

// roundRatio returns round-half-up(num*100/den) using integer arithmetic so
// that exact halves (e.g. 1/8 -> 12.5) never drift below the tie.
func roundRatio(num, den int) int {
	if den <= 0 || num <= 0 {
		return 0
	}
	p := num * 100
	return (2*p + den) / (2 * den)
}

func runeCount(s string) int {
	return len([]rune(s))
}
