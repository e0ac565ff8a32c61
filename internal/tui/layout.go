package tui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// center pads s on the left so it sits in the middle of width cells. CJK
// runes occupy two cells.
func center(s string, width int) string {
	w := runewidth.StringWidth(s)
	if width <= w {
		return s
	}
	return strings.Repeat(" ", (width-w)/2) + s
}

// truncate cuts s to at most width cells, marking the cut with an ellipsis.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}

// bar renders score as a filled gauge of width cells.
func bar(score, width int) string {
	if width <= 0 {
		return ""
	}
	score = max(0, min(100, score))
	filled := score * width / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
