package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rahul/mia/internal/tools"
)

const DefaultIntent = "General Intelligence Gathering"

type Planner interface {
	GeneratePlan(ctx context.Context, goal string) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, pool string) (string, error)
}

type IntentAnalyzer interface {
	Identify(ctx context.Context, goal string) string
}

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, purpose, prompt string) (string, error)
}

// Analyst is the language-model-backed Planner, Synthesizer and
// IntentAnalyzer.
type Analyst struct {
	LM      Generator
	Prompts *PromptManager
	Catalog string
}

func NewAnalyst(lm Generator, prompts *PromptManager, registry *tools.Registry) *Analyst {
	return &Analyst{LM: lm, Prompts: prompts, Catalog: ToolCatalog(registry)}
}

// ToolCatalog lists the registered tools for the planner prompt.
func ToolCatalog(registry *tools.Registry) string {
	var lines []string
	for _, h := range registry.Handlers() {
		line := fmt.Sprintf("- %s: %s", h.Name(), h.Description())
		if props, ok := h.Parameters()["properties"].(map[string]any); ok {
			args := make(map[string]string, len(props))
			for k := range props {
				args[k] = "string"
			}
			if b, err := json.Marshal(args); err == nil {
				line += " Args: " + string(b)
			}
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (a *Analyst) GeneratePlan(ctx context.Context, goal string) (string, error) {
	prompt, err := a.Prompts.GetPlannerPrompt(goal, a.Catalog)
	if err != nil {
		return "", err
	}
	return a.LM.Generate(ctx, "plan", prompt)
}

func (a *Analyst) Synthesize(ctx context.Context, pool string) (string, error) {
	prompt, err := a.Prompts.GetSynthesisPrompt(pool)
	if err != nil {
		return "", err
	}
	return a.LM.Generate(ctx, "synthesis", prompt)
}

// Identify names the goal's intent in a few words, or DefaultIntent when the
// model cannot be reached.
func (a *Analyst) Identify(ctx context.Context, goal string) string {
	prompt, err := a.Prompts.GetIntentPrompt(goal)
	if err != nil {
		return DefaultIntent
	}
	out, err := a.LM.Generate(ctx, "intent", prompt)
	if err != nil {
		return DefaultIntent
	}
	return strings.TrimSpace(out)
}
