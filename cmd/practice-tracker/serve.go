package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dtorres47/practice-tracker/internal/config"
	"github.com/dtorres47/practice-tracker/internal/metrics"
	"github.com/dtorres47/practice-tracker/internal/relay"
	"github.com/dtorres47/practice-tracker/internal/tracker"
	"github.com/dtorres47/practice-tracker/internal/web"
	"github.com/dtorres47/practice-tracker/internal/ws"
)

const shutdownTimeout = 10 * time.Second

var port string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the form, its API and the relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&port, "port", "p", "3000", "listen port (env PORT)")
}

func serve(ctx context.Context, cfg config.Config) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	backend, closeBackend, err := openBackend(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeBackend(); err != nil {
			log.Warn().Err(err).Msg("close backend")
		}
	}()

	hub := ws.NewHub()
	defer hub.Close()

	svc := tracker.New(backend,
		tracker.WithHub(hub),
		tracker.WithMetrics(m),
		tracker.WithLocation(loc),
		tracker.WithDays(cfg.ChartDays),
	)

	deps := web.Deps{
		Service:  svc,
		Hub:      hub,
		Gatherer: reg,
		Backend:  cfg.Backend,
		MaxDays:  config.MaxChartDays(),
	}
	if cfg.ScriptURL != "" {
		deps.Relay = relay.New(cfg.ScriptURL, &http.Client{Timeout: cfg.UpstreamTimeout}, m)
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           web.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", "http://localhost:"+cfg.Port).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
