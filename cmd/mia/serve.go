package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rahul/mia/internal/observability"
	"github.com/rahul/mia/pkg/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func serveCMD(load func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Take missions from the enabled chat gateways until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := load()
			return withApp(cfg, func(a *app) error {
				if len(a.messengers) == 0 {
					return errors.New("no chat gateway is enabled; configure gateways.telegram or gateways.discord")
				}
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return serve(ctx, stop, cfg, a)
			})
		},
	}
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *config.Config, a *app) error {
	dashboard := cfg.Logging.Pretty && observability.IsTerminal()
	if dashboard {
		observability.PrintBanner()
		observability.InitializeTerminal()
		defer observability.CleanupTerminal()
	}

	if addr := cfg.Telemetry.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info().Str("addr", addr).Msg("metrics server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	heartbeat := observability.NewLogger("")
	go every(ctx, 30*time.Second, func() {
		observability.Heartbeat()
		heartbeat.LogHeartbeat()
	})
	if dashboard {
		go every(ctx, time.Second, observability.PrintLiveStatus)
	}

	var wg sync.WaitGroup
	for name, m := range a.messengers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Str("gateway", name).Msg("gateway started")
			if err := m.Start(ctx); err != nil {
				log.Error().Err(err).Str("gateway", name).Msg("gateway critical error")
				stop() // stop everything if a gateway dies
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	log.Info().Msg("core de-initialized")
	return nil
}

func every(ctx context.Context, d time.Duration, fn func()) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
