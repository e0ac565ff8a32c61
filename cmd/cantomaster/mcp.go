package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/cantomaster/internal/config"
	"github.com/MrWong99/cantomaster/internal/mcpserver"
	"github.com/MrWong99/cantomaster/internal/observe"
	"github.com/MrWong99/cantomaster/internal/sentence"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the practice tools to an MCP client over stdio",
		Args:  cobra.NoArgs,
		RunE:  runMCPCmd,
	}
}

func runMCPCmd(_ *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	// stdout carries the protocol.
	logger, _ := newLogger(os.Stderr, cfg.Server.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog := sentence.NewCatalog(sentence.Default())
	if path := cfg.Practice.SentencesFile; path != "" {
		w, err := config.Watch(path, func(r io.Reader) (*sentence.Bank, error) {
			return sentence.LoadFromReader(r)
		}, func(_, b *sentence.Bank) {
			catalog.Replace(b)
			slog.Info("sentence bank reloaded", "path", path, "sentences", b.Len())
		})
		if err != nil {
			return fmt.Errorf("failed to load sentences: %w", err)
		}
		defer w.Stop()
		catalog.Replace(w.Current())
	}

	srv := mcpserver.New(mcpserver.Config{Version: version}, catalog, observe.DefaultMetrics())
	return srv.Run(ctx)
}
