package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptManager_Defaults(t *testing.T) {
	pm := NewPromptManager(t.TempDir())

	prompt, err := pm.GetPlannerPrompt("H100 hourly pricing", "- fetch_page: open a page")
	require.NoError(t, err)
	assert.Contains(t, prompt, "Mission: H100 hourly pricing")
	assert.Contains(t, prompt, "- fetch_page: open a page")
	assert.Contains(t, prompt, `{"step": 1, "tool": "fetch_page"`)

	prompt, err = pm.GetSynthesisPrompt("\n---\n$2.49/hr\n")
	require.NoError(t, err)
	assert.Contains(t, prompt, "$2.49/hr")
}

func TestPromptManager_DirectoryOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, IntentPrompt), []byte("INTENT<{{.goal}}>"), 0644))

	pm := NewPromptManager(dir)
	prompt, err := pm.GetIntentPrompt("gpu prices")
	require.NoError(t, err)
	assert.Equal(t, "INTENT<gpu prices>", prompt)

	// Files that are absent fall back to the built-in template.
	prompt, err = pm.GetSynthesisPrompt("pool")
	require.NoError(t, err)
	assert.Contains(t, prompt, "DATA POOL:")
}

func TestPromptManager_UnknownPrompt(t *testing.T) {
	_, err := NewPromptManager("").Render("missing.md", nil)
	assert.Error(t, err)
}
