// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command powerd starts the power-analysis API server.
//
// powerd turns plain-English study descriptions into sample size
// calculations for sixteen statistical tests. Without a model credential
// the calculation and catalogue endpoints still work and /ai/query
// reports that AI is disabled.
//
// Usage:
//
//	go run ./cmd/powerd
//	go run ./cmd/powerd -config power.yaml -port 9090
//
// With OpenAI:
//
//	OPENAI_API_KEY=sk-... go run ./cmd/powerd
//
// With Anthropic:
//
//	POWER_LLM__PROVIDER=anthropic POWER_LLM__MODEL=claude-haiku-4-5 \
//	  ANTHROPIC_API_KEY=sk-ant-... go run ./cmd/powerd
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/health
//
//	# Natural language query
//	curl -X POST http://localhost:8080/ai/query \
//	  -H "Content-Type: application/json" \
//	  -d '{"query": "Two groups, effect size 0.5, 80% power. How many per group?"}'
//
//	# Direct calculation
//	curl -X POST http://localhost:8080/api/v1/two_sample_t_test \
//	  -H "Content-Type: application/json" \
//	  -d '{"delta": 0.5, "sd": 1, "power": 0.8}'
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/PowerFOSS/services/power"
	"github.com/AleutianAI/PowerFOSS/services/power/config"
	"github.com/AleutianAI/PowerFOSS/services/power/coordinator"
	"github.com/AleutianAI/PowerFOSS/services/power/dispatch"
	"github.com/AleutianAI/PowerFOSS/services/power/logging"
	"github.com/AleutianAI/PowerFOSS/services/power/providers"
	"github.com/AleutianAI/PowerFOSS/services/power/providers/egress"
	badgerstore "github.com/AleutianAI/PowerFOSS/services/power/storage/badger"
	"github.com/AleutianAI/PowerFOSS/services/power/telemetry"
)

const serviceName = "powerd"

// secretsDir holds container secret files (e.g. /run/secrets/openai_api_key).
const secretsDir = "/run/secrets"

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (default $POWER_CONFIG)")
	port := flag.Int("port", 0, "Port to listen on (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "powerd: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *debug {
		cfg.Server.Debug = true
		cfg.Log.Level = "debug"
	}

	logger := logging.New(cfg.Log, serviceName, os.Stderr)
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("powerd exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run serves until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing, err := telemetry.Init(ctx, cfg.Tracing, serviceName, power.ServiceVersion)
	if err != nil {
		return fmt.Errorf("initialising tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("Tracer shutdown failed", slog.String("error", err.Error()))
		}
	}()

	db, err := openCache(cfg.Cache, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer func() {
			if err := db.Close(); err != nil {
				logger.Warn("Failed to close result cache", slog.String("error", err.Error()))
			}
		}()
	}

	coord, err := buildCoordinator(ctx, cfg, db, logger)
	if err != nil {
		return err
	}

	router := power.NewRouter(power.NewHandlers(coord), power.RouterConfig{
		ServiceName: serviceName,
		AccessLog:   cfg.Server.Debug,
		Logger:      logger,
	})

	servers := []*http.Server{{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}}
	if cfg.Server.MetricsPort != 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	logger.Info("Starting power server",
		slog.Int("port", cfg.Server.Port),
		slog.Int("metrics_port", cfg.Server.MetricsPort),
		slog.Bool("ai_enabled", coord.AIEnabled()),
		slog.String("version", power.ServiceVersion))

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serving %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down power server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutting down %s: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

// openCache opens the result cache database, or returns nil when caching
// is disabled.
func openCache(cfg config.CacheConfig, logger *slog.Logger) (*badgerstore.DB, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dbCfg := badgerstore.InMemoryConfig()
	if !cfg.InMemory {
		dbCfg = badgerstore.DefaultConfig()
		dbCfg.Path = cfg.Path
	}
	dbCfg.Logger = logger

	db, err := badgerstore.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("opening result cache: %w", err)
	}
	logger.Info("Result cache opened",
		slog.Bool("in_memory", cfg.InMemory),
		slog.String("path", cfg.Path),
		slog.Duration("ttl", cfg.TTL))
	return db, nil
}

// buildCoordinator wires the dispatcher, the model client, and the
// coordinator. db may be nil.
func buildCoordinator(ctx context.Context, cfg *config.Config, db *badgerstore.DB, logger *slog.Logger) (*coordinator.Coordinator, error) {
	dispatchOpts := dispatch.Options{Logger: logger}
	if db != nil {
		cache, err := dispatch.NewBadgerResultCache(db, cfg.Cache.TTL, logger)
		if err != nil {
			return nil, fmt.Errorf("creating result cache: %w", err)
		}
		dispatchOpts.Cache = cache
	}

	providerCfg := cfg.LLM.ProviderConfig()
	limiter := egress.NewRateLimiter(map[string]int{providerCfg.Provider: cfg.LLM.RatePerMinute}, cfg.LLM.Burst)
	guard := egress.NewGuard(limiter, logger)
	factory := providers.NewProviderFactory(egress.NewSecretManager(egress.NewEnvBackend(secretsDir)), guard, logger)

	var chat providers.ChatClient
	if factory.Configured(ctx, providerCfg) {
		chat = providers.NewLazyFromFactory(factory, providerCfg)
		logger.Info("Model provider configured",
			slog.String("provider", providerCfg.Provider),
			slog.String("model", providerCfg.Model))
	} else {
		logger.Warn("No model credential found, natural language queries are disabled",
			slog.String("provider", providerCfg.Provider),
			slog.String("env", providers.EnvKeyFor(providerCfg.Provider)))
	}

	coord, err := coordinator.New(coordinator.Options{
		Chat:       chat,
		Dispatcher: dispatch.New(dispatchOpts),
		Extract:    cfg.LLM.ExtractConfig(),
		Compose:    cfg.LLM.ComposeConfig(),
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating coordinator: %w", err)
	}
	return coord, nil
}
