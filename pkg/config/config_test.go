package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Fetch.Budget)
	assert.Equal(t, 500, cfg.Tools.Fallback.MaxChars)
	assert.Equal(t, []string{"cookie", "blocked", "verify", "robot"}, cfg.Tools.Fallback.BlockPhrases)
	assert.Equal(t, "Latest info from %s", cfg.Tools.Fallback.QueryFormat)
	assert.Equal(t, 50, cfg.Integrity.MinLength)
	assert.Equal(t, 3, cfg.LLM.MaxAttempts)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"app": {"workspace": "/srv/mia"},
		"gateways": {"telegram": {"token": "tg-token", "enabled": true, "target": "42"}},
		"providers": {"openrouter": {"api_key": "k", "model": "m", "enabled": true}},
		"fetch": {"budget": "12s"},
		"tools": {"fallback": {"max_chars": 300}}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/mia", cfg.App.Workspace)
	assert.Equal(t, 12*time.Second, cfg.Fetch.Budget)
	assert.Equal(t, 300, cfg.Tools.Fallback.MaxChars)

	tg, ok := cfg.GetTelegramConfig()
	require.True(t, ok)
	assert.Equal(t, "42", tg.Target)

	_, ok = cfg.GetDiscordConfig()
	assert.False(t, ok)

	name, p := cfg.GetDefaultProvider()
	assert.Equal(t, "openrouter", name)
	assert.Equal(t, "m", p.Model)
}

func TestValidateRejectsBadQueryFormat(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Tools.Fallback.QueryFormat = "no verb"
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MIA_FETCH_BUDGET", "20s")
	t.Setenv("MIA_TOOLS_FALLBACK_MATCH", "any")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, cfg.Fetch.Budget)
	assert.Equal(t, "any", cfg.Tools.Fallback.Match)
}

func TestValidateRejectsUnknownMatchMode(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "all", cfg.Tools.Fallback.Match)

	cfg.Tools.Fallback.Match = "some"
	assert.ErrorContains(t, cfg.Validate(), "tools.fallback.match")
}
