package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/MrWong99/cantomaster/internal/config"
	"github.com/MrWong99/cantomaster/internal/tui"
	"github.com/MrWong99/cantomaster/internal/usage"
)

const defaultHistoryLimit = 50

var historyLimit int

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show scored practice attempts",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().IntVar(&historyLimit, "limit", defaultHistoryLimit, "number of recent attempts to show")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	if historyLimit <= 0 {
		return fmt.Errorf("--limit must be > 0")
	}
	st, err := usage.OpenHistory(config.DefaultHistoryPath())
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close history: %v\n", cerr)
		}
	}()

	ctx := context.Background()
	summary, err := st.Summarize(ctx)
	if err != nil {
		return fmt.Errorf("failed to summarize history: %w", err)
	}
	attempts, err := st.Recent(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	out := cmd.OutOrStdout()
	if !useColor(out) {
		return writeHistory(out, summary, attempts)
	}
	program := tea.NewProgram(tui.NewHistory(summary, attempts), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func writeHistory(w io.Writer, summary usage.Summary, attempts []usage.Attempt) error {
	if summary.Attempts == 0 {
		_, err := fmt.Fprintln(w, "No attempts yet. Run \"cantomaster practice\" to start.")
		return err
	}
	if _, err := fmt.Fprintf(w, "attempts: %d  average: %.1f  best: %d\n\n",
		summary.Attempts, summary.Average, summary.Best); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tSCORE\tSENTENCE\tHEARD")
	for _, a := range attempts {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", a.At.Local().Format("2006-01-02 15:04"), a.Score, a.Target, a.Transcript)
	}
	return tw.Flush()
}
