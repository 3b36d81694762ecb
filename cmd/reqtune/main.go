// cmd/reqtune/main.go
package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/reqtune/reqtune/internal/analysis"
	"github.com/reqtune/reqtune/internal/api"
	"github.com/reqtune/reqtune/internal/breaker"
	"github.com/reqtune/reqtune/internal/config"
	"github.com/reqtune/reqtune/internal/engine"
	"github.com/reqtune/reqtune/internal/health"
	"github.com/reqtune/reqtune/internal/metrics"
	"github.com/reqtune/reqtune/internal/persistence"
	"github.com/reqtune/reqtune/internal/strategy"
	"github.com/reqtune/reqtune/internal/trainer"
)

func main() {
	configPath := flag.String("config", os.Getenv("REQTUNE_CONFIG"), "path to reqtune.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	collectors := metrics.NewCollectors(reg)

	store := metrics.NewStore(cfg.Analysis.MaxPoints, cfg.Analysis.EMAAlpha, logger)
	table := analysis.NewTable(cfg.Analysis.MaxHistory, store, logger)
	sampler := analysis.NewSystemSampler(table, logger)
	estimator := analysis.NewEstimator(table, store, sampler, cfg.Analysis.MaxConnections, logger)

	breakers, err := breaker.NewRegistry(breaker.Config{
		BaseThreshold:     cfg.Breaker.BaseThreshold,
		LoadSensitivity:   cfg.Breaker.LoadSensitivity,
		SuccessThreshold:  cfg.Breaker.SuccessThreshold,
		BreakDuration:     cfg.Breaker.BreakDuration,
		MaxHalfOpenProbes: cfg.Breaker.MaxHalfOpenProbes,
	}, logger)
	if err != nil {
		logger.Fatal("invalid breaker configuration", zap.Error(err))
	}

	caching := strategy.NewCaching(cfg.Strategies.MinHitRate, cfg.Strategies.MinAccessCount, logger)
	batching := strategy.NewBatching(cfg.Strategies.MinBatch, cfg.Strategies.MaxBatch,
		cfg.Strategies.BatchWindow, logger)
	learning := strategy.NewLearning(cfg.Strategies.MinSamples, cfg.Strategies.MaxLog, logger)
	circuit := strategy.NewCircuitBreaking(breakers, logger)

	registry := strategy.NewRegistry()
	registry.Register(strategy.OpCaching, caching)
	registry.Register(strategy.OpBatching, batching)
	registry.Register(strategy.OpLearning, learning)
	registry.Register(strategy.OpCircuitBreaking, circuit)

	var decisions *persistence.DecisionLog
	var decisionSink engine.DecisionSink
	if cfg.Database.Enabled {
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			logger.Fatal("database open failed", zap.Error(err))
		}
		decisions = persistence.NewDecisionLog(db, logger)
		decisionSink = decisions
		logger.Info("decision persistence enabled")
	}

	trainerCfg := trainer.DefaultConfig()
	trainerCfg.Schedule = cfg.Trainer.Schedule
	trainerCfg.MinSamples = cfg.Trainer.MinSamples
	trainerCfg.MaxSamples = cfg.Trainer.MaxSamples
	trainerCfg.MinAccuracy = cfg.Trainer.MinAccuracy
	trainerCfg.MinF1 = cfg.Trainer.MinF1
	tr := trainer.New(trainerCfg, table, collectors, logger)
	if decisions != nil {
		tr.SetStatsSink(decisions)
	}
	if err := tr.Start(); err != nil {
		logger.Fatal("trainer failed to start", zap.Error(err))
	}

	scorer, err := health.NewScorer(health.Weights{
		Performance: cfg.Health.PerformanceWeight,
		Reliability: cfg.Health.ReliabilityWeight,
		Resource:    cfg.Health.ResourceWeight,
		Freshness:   cfg.Health.FreshnessWeight,
	})
	if err != nil {
		logger.Fatal("invalid health weights", zap.Error(err))
	}

	eng, err := engine.New(engine.Options{
		ConfidenceFloor: cfg.Engine.ConfidenceFloor,
		CacheTTL:        cfg.Engine.CacheTTL,
		MaxRetries:      cfg.Engine.MaxRetries,
		RetryBaseDelay:  cfg.Engine.RetryBaseDelay,
		AnalysisRate:    rate.Limit(cfg.Engine.AnalysisRate),
		AnalysisBurst:   cfg.Engine.AnalysisBurst,
	}, engine.Deps{
		Table:      table,
		Store:      store,
		Estimator:  estimator,
		Sampler:    sampler,
		Breakers:   breakers,
		Caching:    caching,
		Batching:   batching,
		Learning:   learning,
		Registry:   registry,
		Trainer:    tr,
		Scorer:     scorer,
		Collectors: collectors,
		Decisions:  decisionSink,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("engine assembly failed", zap.Error(err))
	}
	defer func() { _ = eng.Close() }()

	var watcher *config.Watcher
	if *configPath != "" {
		watcher, err = config.NewWatcher(*configPath, func(next *config.Config) {
			if err := eng.SetConfidenceFloor(next.Engine.ConfidenceFloor); err != nil {
				logger.Warn("confidence floor update rejected", zap.Error(err))
			}
		}, logger)
		if err != nil {
			logger.Warn("config watching unavailable", zap.Error(err))
			watcher = nil
		}
	}

	server := api.NewServer(cfg, eng, reg, logger)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
		tr.Stop()
		_ = eng.Close()
		if watcher != nil {
			_ = watcher.Close()
		}
		if decisions != nil {
			// drains buffered decision events before exit
			_ = decisions.Close()
		}
		_ = logger.Sync()
		os.Exit(0)
	}()

	logger.Info("reqtune started",
		zap.Int("port", cfg.Server.Port),
		zap.String("trainer_schedule", cfg.Trainer.Schedule))

	if err := server.Start(); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if parsed, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = parsed
	}
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}
