package governance

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request is one tool call about to leave the process. Arguments is the
// value the rules inspect; for fetch_page it is the normalised address.
type Request struct {
	Tool      string
	Arguments string
	MissionID int64
}

type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates tool calls against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// rule denies calls whose arguments match re. An empty tool applies the
// rule to every tool.
type rule struct {
	tool string
	re   *regexp.Regexp
}

// DefaultPolicyEngine denies whole tools, or calls whose arguments match a
// deny rule. Rules are matched case-insensitively, first match wins.
type DefaultPolicyEngine struct {
	deniedTools map[string]bool
	rules       []rule
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{deniedTools: make(map[string]bool)}
}

// NewAddressPolicy denies fetch_page targets matching any of patterns,
// e.g. loopback or private network addresses.
func NewAddressPolicy(patterns []string) (*DefaultPolicyEngine, error) {
	e := NewDefaultPolicyEngine()
	for _, p := range patterns {
		if err := e.DenyArguments("fetch_page", p); err != nil {
			return nil, fmt.Errorf("invalid address pattern %q: %w", p, err)
		}
	}
	return e, nil
}

func (e *DefaultPolicyEngine) DenyTool(name string) {
	e.deniedTools[name] = true
}

// DenyArguments adds a deny rule for tool ("" for all tools).
func (e *DefaultPolicyEngine) DenyArguments(tool, pattern string) error {
	if !strings.HasPrefix(pattern, "(?i)") {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.rules = append(e.rules, rule{tool: tool, re: re})
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if e.deniedTools[req.Tool] {
		return Result{Effect: EffectDeny, Reason: fmt.Sprintf("tool %s is disabled", req.Tool)}, nil
	}
	for _, r := range e.rules {
		if r.tool != "" && r.tool != req.Tool {
			continue
		}
		if r.re.MatchString(req.Arguments) {
			return Result{Effect: EffectDeny, Reason: fmt.Sprintf("%s target %q is not allowed", req.Tool, req.Arguments)}, nil
		}
	}
	return Result{Effect: EffectAllow}, nil
}
