package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rahul/mia/internal/agent"
	"github.com/rahul/mia/internal/fetch"
	"github.com/rahul/mia/internal/gateway"
	"github.com/rahul/mia/internal/governance"
	"github.com/rahul/mia/internal/integrity"
	"github.com/rahul/mia/internal/observability"
	"github.com/rahul/mia/internal/store"
	"github.com/rahul/mia/internal/tools"
	"github.com/rahul/mia/pkg/config"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

type stores struct {
	docs  *store.DocumentStore
	audit *store.AuditStore
}

func openStores(cfg *config.Config) (*stores, error) {
	docs, err := store.NewDocumentStore(cfg.Memory.DocumentsPath)
	if err != nil {
		return nil, err
	}
	audit, err := store.NewAuditStore(cfg.Memory.AuditPath)
	if err != nil {
		docs.Close()
		return nil, err
	}
	return &stores{docs: docs, audit: audit}, nil
}

func (s *stores) Close() error {
	return errors.Join(s.docs.Close(), s.audit.Close())
}

type app struct {
	*stores
	orchestrator *agent.Orchestrator
	analyst      *agent.Analyst
	broadcast    *gateway.Broadcast
	messengers   map[string]gateway.Messenger
}

func buildApp(cfg *config.Config) (*app, error) {
	st, err := openStores(cfg)
	if err != nil {
		return nil, err
	}
	a, err := wire(cfg, st)
	if err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

func wire(cfg *config.Config, st *stores) (*app, error) {
	logger := observability.NewLogger(cfg.Logging.LLMLogPath)

	policy, err := governance.NewAddressPolicy(cfg.Tools.DeniedAddressPatterns)
	if err != nil {
		return nil, err
	}

	fetcher := fetch.NewFetcher(
		fetch.NewChrome(cfg.Fetch.UserAgent, cfg.Fetch.Headless),
		fetch.NewHTTPReader(cfg.Fetch.UserAgent),
		fetch.Options{
			Budget:          cfg.Fetch.Budget,
			StartupTimeout:  cfg.Fetch.StartupTimeout,
			NavigateTimeout: cfg.Fetch.NavigateTimeout,
			SettleDelay:     cfg.Fetch.SettleDelay,
			ExtractTimeout:  cfg.Fetch.ExtractTimeout,
			ReleaseReserve:  cfg.Fetch.ReleaseReserve,
			MinContentChars: cfg.Fetch.MinContentChars,
		},
	)
	gate := integrity.NewGate(cfg.Integrity.MinLength, cfg.Integrity.Markers, cfg.Integrity.Sentinel)
	broadcast := &gateway.Broadcast{}

	// Initialize Tools
	registry := tools.NewRegistry()
	registry.Register(tools.NewFetchPageTool(fetcher, cfg.Fetch.Budget, policy))
	if ddg, err := tools.NewDuckDuckGo(cfg.Tools.SearchMaxResults); err != nil {
		log.Warn().Err(err).Msg("search tool unavailable; blocked pages will not fall back")
	} else {
		registry.Register(tools.NewSearchTool(ddg))
	}
	registry.Register(tools.NewArchiveTool(tools.NewFileArchiver(cfg.App.Workspace), gate))
	registry.Register(tools.NewNotifyTool(broadcast, gate))

	fb := cfg.Tools.Fallback
	gw := tools.NewGateway(registry,
		tools.WithFallbackPolicy(tools.FallbackPolicy{
			MaxChars:     fb.MaxChars,
			BlockPhrases: fb.BlockPhrases,
			MatchAny:     fb.Match == "any",
			QueryFormat:  fb.QueryFormat,
		}),
		tools.WithIngestor(st.docs, cfg.Fetch.ExcerptChars),
		tools.WithLogger(logger),
	)

	model, err := newModel(cfg)
	if err != nil {
		return nil, err
	}
	lm := agent.NewLanguageModel(model, agent.RetryOptions{
		MaxAttempts:    cfg.LLM.MaxAttempts,
		InitialBackoff: cfg.LLM.InitialBackoff,
		MaxBackoff:     cfg.LLM.MaxBackoff,
		RequestTimeout: cfg.LLM.RequestTimeout,
	}, cfg.LLM.RequestsPerMinute, logger)
	lm.Temperature = cfg.LLM.Temperature
	lm.MaxTokens = cfg.LLM.MaxTokens

	lastID, err := st.audit.LastMissionID(context.Background())
	if err != nil {
		return nil, err
	}

	analyst := agent.NewAnalyst(lm, agent.NewPromptManager(cfg.App.PromptsDir), registry)
	orch := agent.NewOrchestrator(agent.Deps{
		Planner:       analyst,
		Synthesizer:   analyst,
		Gateway:       gw,
		Gate:          gate,
		Sink:          store.NewDualSink(st.docs, st.audit),
		Logger:        logger,
		MaxSteps:      cfg.Mission.MaxSteps,
		LastMissionID: lastID,
	})

	a := &app{
		stores:       st,
		orchestrator: orch,
		analyst:      analyst,
		broadcast:    broadcast,
		messengers:   map[string]gateway.Messenger{},
	}
	a.connectMessengers(cfg)
	return a, nil
}

// connectMessengers creates the enabled chat gateways. Each one is a
// notification target when it has a Target configured.
func (a *app) connectMessengers(cfg *config.Config) {
	if tg, ok := cfg.GetTelegramConfig(); ok {
		m, err := gateway.NewTelegramGateway(tg.Token, a.orchestrator, a.analyst)
		if err != nil {
			log.Error().Err(err).Msg("telegram gateway unavailable")
		} else {
			a.messengers["telegram"] = m
			if tg.Target != "" {
				a.broadcast.Add("telegram", m, tg.Target)
			}
		}
	}
	if dc, ok := cfg.GetDiscordConfig(); ok {
		m, err := gateway.NewDiscordGateway(dc.Token, a.orchestrator, a.analyst)
		if err != nil {
			log.Error().Err(err).Msg("discord gateway unavailable")
		} else {
			a.messengers["discord"] = m
			if dc.Target != "" {
				a.broadcast.Add("discord", m, dc.Target)
			}
		}
	}
}

// newModel initializes the LLM using the default enabled provider. Every
// supported provider speaks the OpenAI wire protocol.
func newModel(cfg *config.Config) (llms.Model, error) {
	name, p := cfg.GetDefaultProvider()
	if name == "" {
		return nil, errors.New("no enabled provider found in config")
	}
	switch name {
	case "openai", "openrouter", "groq":
		opts := []openai.Option{
			openai.WithToken(p.APIKey),
			openai.WithModel(p.Model),
		}
		baseURL := p.BaseURL
		if baseURL == "" && name == "groq" {
			baseURL = "https://api.groq.com/openai/v1"
		}
		if baseURL != "" {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}
		return openai.New(opts...)
	default:
		return nil, fmt.Errorf("provider %s not yet implemented", name)
	}
}

func (a *app) Close() error {
	return a.stores.Close()
}

func withApp(cfg *config.Config, fn func(a *app) error) error {
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
