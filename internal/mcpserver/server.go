// Package mcpserver exposes the practice core to MCP clients over stdio.
//
// Four tools are registered:
//   - "score_pronunciation" scores a transcript against a target sentence.
//   - "next_sentence" picks a practice sentence, optionally avoiding one.
//   - "get_sentence" looks a sentence up by ID.
//   - "list_sentences" reports the bank size and its IDs.
//
// All handlers are safe for concurrent use. The sentence bank is read through
// a [sentence.Catalog], so a reloaded bank is picked up without restarting.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/cantomaster/internal/observe"
	"github.com/MrWong99/cantomaster/internal/sentence"
)

// Config identifies the server to clients.
type Config struct {
	Name    string
	Version string
}

// Server is the practice MCP server.
type Server struct {
	catalog *sentence.Catalog
	metrics *observe.Metrics
	mcp     *sdk.Server
}

// New returns a Server with all tools registered. m may be nil.
func New(cfg Config, catalog *sentence.Catalog, m *observe.Metrics) *Server {
	if cfg.Name == "" {
		cfg.Name = "cantomaster"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	s := &Server{
		catalog: catalog,
		metrics: m,
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
	}
	s.registerTools()
	return s
}

// Run serves on stdin/stdout until ctx is cancelled or the client leaves.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, &sdk.StdioTransport{})
}

// Serve serves on t until ctx is cancelled or the client leaves.
func (s *Server) Serve(ctx context.Context, t sdk.Transport) error {
	slog.Info("mcp server starting", "sentences", s.catalog.Bank().Len())
	if err := s.mcp.Run(ctx, t); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcpserver: run: %w", err)
	}
	return nil
}

// Connect starts a session on t and returns without blocking. Tests use it
// with in-memory transports.
func (s *Server) Connect(ctx context.Context, t sdk.Transport) (*sdk.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "score_pronunciation",
		Description: "Score a recognised transcript against a Cantonese target sentence. Only Chinese ideographs are compared; the score is 0-100 with a feedback grade.",
	}, s.handleScore)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "next_sentence",
		Description: "Pick a random practice sentence, avoiding exclude_id when the bank has more than one.",
	}, s.handleNext)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_sentence",
		Description: "Look up a practice sentence by ID.",
	}, s.handleGet)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_sentences",
		Description: "List the IDs of all practice sentences.",
	}, s.handleList)
}
