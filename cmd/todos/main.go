package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"todostream/internal/adapter/telemetry"
	"todostream/internal/app"
	"todostream/pkg/config"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.Log)

	opts := app.Options{}
	if cfg.Telemetry.Enabled {
		tc, err := telemetry.NewContainer(ctx, telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Environment,
			MetricsAddr:    cfg.Telemetry.MetricsAddr,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telemetry init failed")
		}
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			if err := tc.Shutdown(sctx); err != nil {
				logger.Error().Err(err).Msg("telemetry shutdown failed")
			}
		}()
		opts.Telemetry = tc.NewTelemetryProbe(logger)
		opts.Metrics = tc.AppMetrics
	}

	container, err := app.NewContainer(ctx, cfg, logger, opts)
	if err != nil {
		logger.Fatal().Err(err).Msg("container init failed")
	}
	defer container.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		done <- newREPL(os.Stdin, os.Stdout, container).run(ctx)
	}()

	select {
	case <-sig:
		logger.Info().Msg("shutting down gracefully...")
		cancel()
	case err := <-done:
		if err != nil {
			logger.Error().Err(err).Msg("session ended with error")
		}
	}
}
