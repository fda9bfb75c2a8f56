package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rahul/mia/internal/fetch"
	"github.com/rahul/mia/internal/observability"
)

// FallbackPolicy decides when a fetched page is treated as blocked and how
// the replacement search query is phrased.
type FallbackPolicy struct {
	MaxChars     int
	BlockPhrases []string
	// MatchAny treats either signal alone (short page, block phrase) as
	// blocked. By default both are required.
	MatchAny    bool
	QueryFormat string // must contain exactly one %s for the address
}

func DefaultFallbackPolicy() FallbackPolicy {
	return FallbackPolicy{
		MaxChars:     500,
		BlockPhrases: []string{"cookie", "blocked", "verify", "robot"},
		QueryFormat:  "Latest info from %s",
	}
}

// LooksBlocked reports whether text looks like a cookie wall or a bot check
// rather than the page itself.
func (p FallbackPolicy) LooksBlocked(text string) bool {
	short := utf8.RuneCountInString(text) < p.MaxChars
	if p.MatchAny {
		return short || p.hasPhrase(text)
	}
	return short && p.hasPhrase(text)
}

func (p FallbackPolicy) hasPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range p.BlockPhrases {
		if phrase = strings.ToLower(strings.TrimSpace(phrase)); phrase != "" && strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func (p FallbackPolicy) Query(address string) string {
	return fmt.Sprintf(p.QueryFormat, address)
}

// PageIngestor indexes successfully fetched pages for later recall.
type PageIngestor interface {
	IngestPage(ctx context.Context, address string, missionID int64, text string) error
}

// Gateway is the single entry point for executing a plan step. It never
// panics and never returns an error: every outcome is a Result.
type Gateway struct {
	registry     *Registry
	policy       FallbackPolicy
	ingestor     PageIngestor
	excerptChars int
	logger       *observability.Logger
}

type GatewayOption func(*Gateway)

func WithFallbackPolicy(p FallbackPolicy) GatewayOption {
	return func(g *Gateway) { g.policy = p }
}

// WithIngestor enables best-effort ingestion of the first excerptChars
// characters of every successful page fetch.
func WithIngestor(ing PageIngestor, excerptChars int) GatewayOption {
	return func(g *Gateway) {
		g.ingestor = ing
		g.excerptChars = excerptChars
	}
}

func WithLogger(l *observability.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l }
}

func NewGateway(registry *Registry, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		registry:     registry,
		policy:       DefaultFallbackPolicy(),
		excerptChars: 5000,
		logger:       observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Registry() *Registry {
	return g.registry
}

func (g *Gateway) Invoke(ctx context.Context, tool ToolName, args Args, run RunContext) Result {
	g.logger.LogToolCall(run.MissionID, tool.String(), args)
	res := g.invoke(ctx, tool, args, run)
	observability.ToolResults.WithLabelValues(tool.String(), res.Kind.String()).Inc()
	g.logger.LogToolResult(run.MissionID, tool.String(), res.Kind.String(), utf8.RuneCountInString(res.Text))
	return res
}

func (g *Gateway) invoke(ctx context.Context, tool ToolName, args Args, run RunContext) Result {
	text, err := g.execute(ctx, tool, args, run)
	if tool == FetchPage {
		if reason, ok := g.needsFallback(text, err); ok {
			return g.fallback(ctx, args, run, reason, err)
		}
	}
	if err != nil {
		return failed(err)
	}
	if tool == FetchPage {
		g.ingest(ctx, args, run, text)
	}
	return succeeded(text)
}

func (g *Gateway) execute(ctx context.Context, tool ToolName, args Args, run RunContext) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("tool %s panicked: %v", tool, r)
		}
	}()
	h := g.registry.Get(tool)
	if h == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, tool)
	}
	return h.Execute(ctx, args, run)
}

func (g *Gateway) needsFallback(text string, err error) (string, bool) {
	switch {
	case err == nil:
		if g.policy.LooksBlocked(text) {
			return "page looks blocked", true
		}
		return "", false
	case errors.Is(err, ErrBlocked), errors.Is(err, ErrTimedOut), errors.Is(err, ErrUnreachable):
		return err.Error(), true
	}
	return "", false
}

// fallback reroutes a failed page fetch to a web search for the same address.
func (g *Gateway) fallback(ctx context.Context, args Args, run RunContext, reason string, cause error) Result {
	address := PageAddress(args)
	query := g.policy.Query(address)
	g.logger.LogFallback(run.MissionID, address, query, reason)
	observability.ToolFallbacks.Inc()

	if g.registry.Get(WebSearch) == nil {
		if cause == nil {
			cause = fmt.Errorf("%w: %s", ErrBlocked, reason)
		}
		return failed(cause)
	}
	text, err := g.execute(ctx, WebSearch, Args{"query": query}, run)
	if err != nil {
		return failed(err)
	}
	return succeeded(text)
}

func (g *Gateway) ingest(ctx context.Context, args Args, run RunContext, text string) {
	if g.ingestor == nil {
		return
	}
	address := PageAddress(args)
	excerpt := fetch.Outcome{Text: text}.Excerpt(g.excerptChars)
	if err := g.ingestor.IngestPage(ctx, address, run.MissionID, excerpt); err != nil {
		g.logger.Warn().Err(err).Int64("mission_id", run.MissionID).Str("url", address).Msg("page ingestion failed")
	}
}
