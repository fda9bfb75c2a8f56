package agent

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tmc/langchaingo/prompts"
)

//go:embed prompts/*.md
var defaultPrompts embed.FS

const (
	PlannerPrompt   = "planner.md"
	SynthesisPrompt = "synthesis.md"
	IntentPrompt    = "intent.md"
)

// PromptManager renders prompt templates. A file in Directory overrides the
// built-in template of the same name.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

func (pm *PromptManager) load(name string) (string, error) {
	if pm.Directory != "" {
		data, err := os.ReadFile(filepath.Join(pm.Directory, name))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to read prompt %s: %w", name, err)
		}
	}
	data, err := defaultPrompts.ReadFile("prompts/" + name)
	if err != nil {
		return "", fmt.Errorf("unknown prompt %s: %w", name, err)
	}
	return string(data), nil
}

// Render fills the named template with values.
func (pm *PromptManager) Render(name string, values map[string]any) (string, error) {
	text, err := pm.load(name)
	if err != nil {
		return "", err
	}
	vars := make([]string, 0, len(values))
	for k := range values {
		vars = append(vars, k)
	}
	tmpl := prompts.PromptTemplate{
		Template:       text,
		InputVariables: vars,
		TemplateFormat: prompts.TemplateFormatGoTemplate,
	}
	out, err := tmpl.Format(values)
	if err != nil {
		return "", fmt.Errorf("failed to render prompt %s: %w", name, err)
	}
	return out, nil
}

func (pm *PromptManager) GetPlannerPrompt(goal, catalog string) (string, error) {
	return pm.Render(PlannerPrompt, map[string]any{"goal": goal, "tools": catalog})
}

func (pm *PromptManager) GetSynthesisPrompt(pool string) (string, error) {
	return pm.Render(SynthesisPrompt, map[string]any{"pool": pool})
}

func (pm *PromptManager) GetIntentPrompt(goal string) (string, error) {
	return pm.Render(IntentPrompt, map[string]any{"goal": goal})
}
