// Command cantomaster is a Cantonese pronunciation trainer: it speaks a
// sentence, listens to the learner read it back, and scores the reading.
//
// With no subcommand it runs the practice server for browser clients. The
// practice, score, history, mcp and config subcommands cover local use.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/cantomaster/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var configPath string

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cantomaster",
		Short:         "Cantonese pronunciation trainer",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runServeCmd,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML configuration file (default: "+config.DefaultConfigPath()+")")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newPracticeCmd())
	rootCmd.AddCommand(newScoreCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newMCPCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

// loadConfig reads the --config file. Without the flag, a missing default
// file yields the built-in defaults.
func loadConfig() (*config.Config, string, error) {
	path := configPath
	explicit := path != ""
	if !explicit {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, path, nil
	}
	if !explicit && errors.Is(err, os.ErrNotExist) {
		slog.Debug("no config file, using defaults", "path", path)
		return config.Default(), "", nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", path)
	}
	return nil, "", err
}

// newLogger returns a text logger on w whose level can be changed at
// runtime through the returned LevelVar.
func newLogger(w io.Writer, level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lv := new(slog.LevelVar)
	lv.Set(level.SlogLevel())
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv})), lv
}

func logErrf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format, args...)
}
