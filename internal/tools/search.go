package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/tools/duckduckgo"
)

const noSearchResults = "No search results found."

// Searcher answers a free-text query with a plain-text digest of results.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// ddgNoResults is what the DuckDuckGo client answers instead of an empty
// result set.
const ddgNoResults = "no good duckduckgo search results"

type ddgCaller interface {
	Call(ctx context.Context, input string) (string, error)
}

// DuckDuckGo is a Searcher backed by the DuckDuckGo HTML endpoint.
type DuckDuckGo struct {
	client ddgCaller
}

func NewDuckDuckGo(maxResults int) (*DuckDuckGo, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	ddg, err := duckduckgo.New(maxResults, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return &DuckDuckGo{client: ddg}, nil
}

// Search returns "" when nothing matched.
func (d *DuckDuckGo) Search(ctx context.Context, query string) (string, error) {
	res, err := d.client.Call(ctx, query)
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	if strings.Contains(strings.ToLower(res), ddgNoResults) {
		return "", nil
	}
	return res, nil
}

type SearchTool struct {
	searcher Searcher
}

func NewSearchTool(searcher Searcher) *SearchTool {
	return &SearchTool{searcher: searcher}
}

func (s *SearchTool) Name() ToolName {
	return WebSearch
}

func (s *SearchTool) Description() string {
	return "Search the web for real-time information. Use when no specific page address is known."
}

func (s *SearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query to look up",
			},
		},
		"required": []string{"query"},
	}
}

// Execute searches for the query argument, or for the mission goal when the
// plan omitted one.
func (s *SearchTool) Execute(ctx context.Context, args Args, run RunContext) (string, error) {
	query := args.String("query", "q")
	if query == "" {
		query = strings.TrimSpace(run.Goal)
	}
	if query == "" {
		return "", fmt.Errorf("%w: no query provided", ErrValidation)
	}
	res, err := s.searcher.Search(ctx, query)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(res) == "" {
		return noSearchResults, nil
	}
	return res, nil
}
