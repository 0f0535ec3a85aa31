package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Engine/internal/adapters/http"
	"github.com/dkeye/Engine/internal/config"
	"github.com/dkeye/Engine/internal/connector"
	"github.com/dkeye/Engine/internal/domain"
	"github.com/dkeye/Engine/internal/engine"
	"github.com/dkeye/Engine/internal/host"
	"github.com/dkeye/Engine/internal/logging"
	"github.com/dkeye/Engine/internal/telemetry"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Console logger until the configured one is ready.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	_, cleanup, err := logging.Setup(cfg.Logging, os.Stderr)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup logger")
	}
	defer cleanup()

	worker, err := domain.ParseWorkerName(cfg.Worker)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid worker name")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := telemetry.NewPrometheusCollector(reg)
	if err != nil {
		log.Error().Err(err).Msg("telemetry disabled")
	}

	var tc telemetry.Collector = telemetry.Noop()
	if collector != nil {
		tc = collector
	}
	engineHost := host.New(context.Background(), tc)
	if err := engineHost.Register(worker, engine.Factory(cfg.Engine.Interval)); err != nil {
		log.Fatal().Err(err).Msg("failed to register engine")
	}
	if cfg.Engine.Autostart {
		if err := engineHost.StartWorker(worker); err != nil {
			log.Fatal().Err(err).Msg("failed to start engine")
		}
	}

	conn := connector.New(worker)
	conn.Start(engineHost)

	limiter := router.NewCommandRateLimiter(20, 10*time.Second)
	limiter.StartCleanup(ctx, time.Minute)

	api := &router.API{
		Connector: conn,
		Host:      engineHost,
		Gatherer:  reg,
		Limiter:   limiter,
	}
	r := router.SetupRouter(ctx, cfg, api)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("worker", string(worker)).Msg("engine server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	conn.Stop(engineHost)
	engineHost.Close()
	log.Info().Msg("Server exited gracefully")
}
