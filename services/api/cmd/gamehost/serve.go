package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"gamehost/pkg/bus"
	gos3 "gamehost/pkg/s3"
	"gamehost/pkg/telemetry"
	"gamehost/services/api"
	"gamehost/services/api/internal/config"
)

func newServeCommand(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the upload and asset HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	shutdownTelemetry, middleware, logger, err := telemetry.Init(ctx, serviceName, telemetry.Options{
		Endpoint:  cfg.OTLPEndpoint,
		LogFormat: cfg.LogFormat,
		LogLevel:  cfg.LogLevel,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "%s: telemetry shutdown error: %v\n", serviceName, err)
		}
	}()

	c, err := newCore(cfg, logger)
	if err != nil {
		return err
	}
	store := &api.Store{
		Games:    c.games,
		Resolver: c.resolver,
		Feedback: c.feedback,
	}

	if cfg.NATSURL != "" {
		b, err := bus.New(cfg.NATSURL, nats.Name(serviceName))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer b.Close()
		if err := b.EnsureStream(cfg.EventsStream, "gamehost.>"); err != nil {
			return fmt.Errorf("ensure events stream: %w", err)
		}
		store.Bus = b
	}

	if cfg.S3.Enabled() {
		client, err := gos3.NewClient(ctx, cfg.S3)
		if err != nil {
			return fmt.Errorf("init s3 client: %w", err)
		}
		store.Mirror = gos3.NewMirror(client, cfg.S3.Prefix)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := api.New(store, api.Config{
		MaxUploadBytes: cfg.MaxUploadBytes,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      cfg.RateLimit,
		RequestTimeout: cfg.RequestTimeout,
		Registry:       registry,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("init api: %w", err)
	}
	handler, err := a.Routes()
	if err != nil {
		return fmt.Errorf("build routes: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           middleware(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	logger.Info().
		Str("addr", server.Addr).
		Str("games_dir", c.games.Root()).
		Bool("events", store.Bus != nil).
		Bool("mirror", store.Mirror != nil).
		Msg("listening")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("server failed")
		return err
	}

	return nil
}
