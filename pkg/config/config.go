package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig                 `mapstructure:"app"`
	Gateways  map[string]GatewayConfig  `mapstructure:"gateways"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Memory    MemoryConfig              `mapstructure:"memory"`
	Fetch     FetchConfig               `mapstructure:"fetch"`
	Tools     ToolsConfig               `mapstructure:"tools"`
	Integrity IntegrityConfig           `mapstructure:"integrity"`
	LLM       LLMConfig                 `mapstructure:"llm"`
	Mission   MissionConfig             `mapstructure:"mission"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Telemetry TelemetryConfig           `mapstructure:"telemetry"`
}

type AppConfig struct {
	Name       string `mapstructure:"name"`
	Workspace  string `mapstructure:"workspace"`
	PromptsDir string `mapstructure:"prompts_dir"`
}

// GatewayConfig covers both intake and notification targets. Target is the
// chat (Telegram) or channel (Discord) that receives mission reports.
type GatewayConfig struct {
	Token   string `mapstructure:"token"`
	Enabled bool   `mapstructure:"enabled"`
	Target  string `mapstructure:"target"`
}

type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
	Enabled bool   `mapstructure:"enabled"`
}

type MemoryConfig struct {
	AuditPath     string `mapstructure:"audit_path"`
	DocumentsPath string `mapstructure:"documents_path"`
}

// FetchConfig bounds every layer of a page fetch. Layer timeouts are upper
// limits; the fetcher always clamps them to what is left of Budget.
type FetchConfig struct {
	Budget          time.Duration `mapstructure:"budget"`
	StartupTimeout  time.Duration `mapstructure:"startup_timeout"`
	NavigateTimeout time.Duration `mapstructure:"navigate_timeout"`
	SettleDelay     time.Duration `mapstructure:"settle_delay"`
	ExtractTimeout  time.Duration `mapstructure:"extract_timeout"`
	ReleaseReserve  time.Duration `mapstructure:"release_reserve"`
	MinContentChars int           `mapstructure:"min_content_chars"`
	ExcerptChars    int           `mapstructure:"excerpt_chars"`
	UserAgent       string        `mapstructure:"user_agent"`
	Headless        bool          `mapstructure:"headless"`
}

type ToolsConfig struct {
	Fallback              FallbackConfig `mapstructure:"fallback"`
	SearchMaxResults      int            `mapstructure:"search_max_results"`
	DeniedAddressPatterns []string       `mapstructure:"denied_address_patterns"`
}

// FallbackConfig is the "blocked page" heuristic that reroutes a fetch to a
// web search. Match is "all" (short page that also carries a block phrase)
// or "any" (either signal alone).
type FallbackConfig struct {
	MaxChars     int      `mapstructure:"max_chars"`
	BlockPhrases []string `mapstructure:"block_phrases"`
	Match        string   `mapstructure:"match"`
	QueryFormat  string   `mapstructure:"query_format"`
}

type IntegrityConfig struct {
	MinLength int      `mapstructure:"min_length"`
	Markers   []string `mapstructure:"markers"`
	Sentinel  string   `mapstructure:"sentinel"`
}

type LLMConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	Temperature       float64       `mapstructure:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens"`
}

type MissionConfig struct {
	MaxSteps int `mapstructure:"max_steps"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Pretty     bool   `mapstructure:"pretty"`
	LLMLogPath string `mapstructure:"llm_log_path"`
}

type TelemetryConfig struct {
	MetricsAddr string `mapstructure:"metrics_addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "mia")
	v.SetDefault("app.workspace", "./workspace")
	v.SetDefault("app.prompts_dir", "./prompts")

	v.SetDefault("memory.audit_path", "./mia.db")
	v.SetDefault("memory.documents_path", "./documents.bleve")

	v.SetDefault("fetch.budget", 30*time.Second)
	v.SetDefault("fetch.startup_timeout", 10*time.Second)
	v.SetDefault("fetch.navigate_timeout", 20*time.Second)
	v.SetDefault("fetch.settle_delay", time.Second)
	v.SetDefault("fetch.extract_timeout", 5*time.Second)
	v.SetDefault("fetch.release_reserve", 500*time.Millisecond)
	v.SetDefault("fetch.min_content_chars", 100)
	v.SetDefault("fetch.excerpt_chars", 5000)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("fetch.headless", true)

	v.SetDefault("tools.fallback.max_chars", 500)
	v.SetDefault("tools.fallback.block_phrases", []string{"cookie", "blocked", "verify", "robot"})
	v.SetDefault("tools.fallback.match", "all")
	v.SetDefault("tools.fallback.query_format", "Latest info from %s")
	v.SetDefault("tools.search_max_results", 5)
	v.SetDefault("tools.denied_address_patterns", []string{
		`^[a-z]+://(localhost|127\.|0\.0\.0\.0|\[::1\])`,
		`^[a-z]+://(10\.|192\.168\.|169\.254\.|172\.(1[6-9]|2[0-9]|3[01])\.)`,
	})

	v.SetDefault("integrity.min_length", 50)
	v.SetDefault("integrity.markers", []string{"placeholder", "insert here", "no data found", "error"})
	v.SetDefault("integrity.sentinel", "Mission failed: No meaningful data gathered.")

	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.initial_backoff", 2*time.Second)
	v.SetDefault("llm.max_backoff", 10*time.Second)
	v.SetDefault("llm.request_timeout", 60*time.Second)
	v.SetDefault("llm.requests_per_minute", 30)
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 2048)

	v.SetDefault("mission.max_steps", 12)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.llm_log_path", "logs/llm.jsonl")
}

// Load reads the config file at path (JSON or YAML, by extension) and applies
// MIA_* environment overrides. A missing file is not an error when path is
// empty; defaults and environment are used instead.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("mia")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Fetch.Budget <= 0 {
		errs = append(errs, errors.New("fetch.budget must be > 0"))
	}
	if c.Fetch.ReleaseReserve < 0 || c.Fetch.ReleaseReserve >= c.Fetch.Budget {
		errs = append(errs, errors.New("fetch.release_reserve must be >= 0 and below fetch.budget"))
	}
	if c.Tools.Fallback.MaxChars < 0 {
		errs = append(errs, errors.New("tools.fallback.max_chars must be >= 0"))
	}
	if m := c.Tools.Fallback.Match; m != "all" && m != "any" {
		errs = append(errs, fmt.Errorf("tools.fallback.match must be \"all\" or \"any\", got %q", m))
	}
	if !strings.Contains(c.Tools.Fallback.QueryFormat, "%s") {
		errs = append(errs, errors.New("tools.fallback.query_format must contain %s"))
	}
	if c.LLM.MaxAttempts < 1 {
		errs = append(errs, errors.New("llm.max_attempts must be >= 1"))
	}
	if c.Mission.MaxSteps < 1 {
		errs = append(errs, errors.New("mission.max_steps must be >= 1"))
	}
	return errors.Join(errs...)
}

// GetDefaultProvider returns the first enabled provider
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for name, p := range c.Providers {
		if p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	return c.gateway("telegram")
}

// GetDiscordConfig returns discord config if enabled
func (c *Config) GetDiscordConfig() (GatewayConfig, bool) {
	return c.gateway("discord")
}

func (c *Config) gateway(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled && g.Token != "" {
		return g, true
	}
	return GatewayConfig{}, false
}
