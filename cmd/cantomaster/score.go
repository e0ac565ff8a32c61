package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/MrWong99/cantomaster/internal/scoring"
)

var scoreJSON bool

var (
	scoreValueStyle = lipgloss.NewStyle().Bold(true)
	scoreLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	gradeStyles     = map[scoring.Grade]lipgloss.Style{
		scoring.GradePerfect:  lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A")).Bold(true),
		scoring.GradeGreat:    lipgloss.NewStyle().Foreground(lipgloss.Color("#95DE64")),
		scoring.GradeGood:     lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")),
		scoring.GradePractice: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF7A45")),
	}
)

func newScoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score <target> <transcript>",
		Short: "Score a transcript against a target sentence",
		Example: `  cantomaster score "你好嗎" "你好"
  cantomaster score --json "多謝" "多謝"`,
		Args: cobra.ExactArgs(2),
		RunE: runScoreCmd,
	}
	cmd.Flags().BoolVar(&scoreJSON, "json", false, "print the result as JSON")
	return cmd
}

func runScoreCmd(cmd *cobra.Command, args []string) error {
	res := scoring.Evaluate(args[0], args[1])
	return writeScore(cmd.OutOrStdout(), res, scoreJSON, useColor(cmd.OutOrStdout()))
}

func writeScore(w io.Writer, res scoring.Result, asJSON, color bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	score := fmt.Sprintf("%d", res.Score)
	grade := string(res.Grade)
	target := "target:"
	heard := "heard: "
	if color {
		score = scoreValueStyle.Render(score)
		if st, ok := gradeStyles[res.Grade]; ok {
			grade = st.Render(grade)
		}
		target = scoreLabelStyle.Render(target)
		heard = scoreLabelStyle.Render(heard)
	}
	_, err := fmt.Fprintf(w, "%s/100  %s\n%s %s\n%s %s\n",
		score, grade, target, res.NormalizedTarget, heard, res.NormalizedTranscript)
	return err
}

// useColor reports whether w is a terminal that should get styled output.
func useColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}
