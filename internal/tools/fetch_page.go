package tools

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rahul/mia/internal/fetch"
	"github.com/rahul/mia/internal/governance"
)

// PageFetcher retrieves the visible text of a page within a budget.
type PageFetcher interface {
	Fetch(ctx context.Context, address string, budget time.Duration) fetch.Outcome
}

type FetchPageTool struct {
	fetcher PageFetcher
	budget  time.Duration
	policy  governance.PolicyEngine
}

// NewFetchPageTool wires a fetcher. policy may be nil, in which case every
// well-formed http(s) address is allowed.
func NewFetchPageTool(fetcher PageFetcher, budget time.Duration, policy governance.PolicyEngine) *FetchPageTool {
	return &FetchPageTool{fetcher: fetcher, budget: budget, policy: policy}
}

func (f *FetchPageTool) Name() ToolName {
	return FetchPage
}

func (f *FetchPageTool) Description() string {
	return "Open a web page in a headless browser and return its visible text. Use for specific URLs."
}

func (f *FetchPageTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Absolute http or https address of the page",
			},
		},
		"required": []string{"url"},
	}
}

func (f *FetchPageTool) Execute(ctx context.Context, args Args, run RunContext) (string, error) {
	address, err := ValidateAddress(PageAddress(args))
	if err != nil {
		return "", err
	}
	if f.policy != nil {
		res, err := f.policy.Evaluate(ctx, governance.Request{Tool: FetchPage.String(), Arguments: address, MissionID: run.MissionID})
		if err != nil {
			return "", fmt.Errorf("policy evaluation failed: %w", err)
		}
		if res.Effect == governance.EffectDeny {
			return "", fmt.Errorf("%w: %s", ErrValidation, res.Reason)
		}
	}

	out := f.fetcher.Fetch(ctx, address, f.budget)
	switch out.Kind {
	case fetch.Content:
		return out.Text, nil
	case fetch.Degraded:
		if out.HasText() {
			return out.Text, nil
		}
		return "", fmt.Errorf("%w: %s", ErrUnreachable, out.Reason)
	case fetch.TimedOut:
		return "", fmt.Errorf("%w: %s", ErrTimedOut, out.Reason)
	case fetch.Blocked:
		return "", fmt.Errorf("%w: %s", ErrBlocked, out.Reason)
	}
	return "", fmt.Errorf("%w: unexpected outcome %s", ErrUnreachable, out.Kind)
}

// PageAddress returns the address argument of a fetch step.
func PageAddress(args Args) string {
	return args.String("url", "link", "address")
}

// ValidateAddress accepts only absolute http(s) addresses with a host.
func ValidateAddress(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: no URL provided", ErrValidation)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: malformed URL %q", ErrValidation, raw)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		return "", fmt.Errorf("%w: URL %q is not absolute", ErrValidation, raw)
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrValidation, u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: URL %q has no host", ErrValidation, raw)
	}
	if u.User != nil {
		return "", fmt.Errorf("%w: credentials in URL are not allowed", ErrValidation)
	}
	return u.String(), nil
}
