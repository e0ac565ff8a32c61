package mcpserver

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/cantomaster/internal/scoring"
	"github.com/MrWong99/cantomaster/internal/sentence"
)

// scoreArgs is the input of "score_pronunciation".
type scoreArgs struct {
	Target     string `json:"target" jsonschema:"the sentence the learner was asked to say"`
	Transcript string `json:"transcript" jsonschema:"what the recogniser heard"`
}

// scoreResult is the output of "score_pronunciation".
type scoreResult struct {
	Score int           `json:"score"`
	Grade scoring.Grade `json:"grade"`
}

// nextArgs is the input of "next_sentence".
type nextArgs struct {
	ExcludeID string `json:"exclude_id,omitempty" jsonschema:"ID of the sentence to avoid, usually the current one"`
}

// getArgs is the input of "get_sentence".
type getArgs struct {
	ID string `json:"id" jsonschema:"sentence ID"`
}

type listArgs struct{}

// listResult is the output of "list_sentences".
type listResult struct {
	Count int      `json:"count"`
	IDs   []string `json:"ids"`
}

func (s *Server) handleScore(ctx context.Context, _ *sdk.CallToolRequest, args scoreArgs) (*sdk.CallToolResult, scoreResult, error) {
	if args.Target == "" {
		return nil, scoreResult{}, errors.New("target is required")
	}
	res := scoring.Evaluate(args.Target, args.Transcript)
	if s.metrics != nil {
		s.metrics.RecordScore(ctx, res.Score)
	}
	out := scoreResult{Score: res.Score, Grade: res.Grade}
	return &sdk.CallToolResult{
		Content: []sdk.Content{
			&sdk.TextContent{Text: fmt.Sprintf("%d/100 %s", out.Score, out.Grade)},
		},
	}, out, nil
}

func (s *Server) handleNext(_ context.Context, _ *sdk.CallToolRequest, args nextArgs) (*sdk.CallToolResult, sentence.Sentence, error) {
	st := s.catalog.Bank().Next(args.ExcludeID)
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: describe(st)}},
	}, st, nil
}

func (s *Server) handleGet(_ context.Context, _ *sdk.CallToolRequest, args getArgs) (*sdk.CallToolResult, sentence.Sentence, error) {
	st, ok := s.catalog.Bank().Get(args.ID)
	if !ok {
		return nil, sentence.Sentence{}, fmt.Errorf("no sentence with id %q", args.ID)
	}
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: describe(st)}},
	}, st, nil
}

func (s *Server) handleList(_ context.Context, _ *sdk.CallToolRequest, _ listArgs) (*sdk.CallToolResult, listResult, error) {
	b := s.catalog.Bank()
	out := listResult{Count: b.Len(), IDs: b.IDs()}
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: fmt.Sprintf("%d sentences", out.Count)}},
	}, out, nil
}

func describe(st sentence.Sentence) string {
	text := st.ID + ": " + st.Text
	if st.Romanization != "" {
		text += " (" + st.Romanization + ")"
	}
	if st.Meaning != "" {
		text += " " + st.Meaning
	}
	return text
}
