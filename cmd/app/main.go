package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomshen124/ocr-server/internal/config"
	"github.com/tomshen124/ocr-server/internal/domain/ports/adapter"
	engineAdapter "github.com/tomshen124/ocr-server/internal/infra/adapters/engine"
	"github.com/tomshen124/ocr-server/internal/infra/callback"
	pg "github.com/tomshen124/ocr-server/internal/infra/db/postgres"
	"github.com/tomshen124/ocr-server/internal/infra/db/sqlite"
	"github.com/tomshen124/ocr-server/internal/infra/logging"
	"github.com/tomshen124/ocr-server/internal/infra/metrics"
	red "github.com/tomshen124/ocr-server/internal/infra/redis"
	"github.com/tomshen124/ocr-server/internal/infra/sched"
	"github.com/tomshen124/ocr-server/internal/infra/store"
	"github.com/tomshen124/ocr-server/internal/infra/web"
	"github.com/tomshen124/ocr-server/internal/infra/worker"
	"github.com/tomshen124/ocr-server/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logging, noop engine)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// ---- Storage: postgres primary, embedded sqlite fallback ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	if err := pg.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("postgres schema failed")
	}
	primary := pg.NewStore(pool)
	defer primary.Close()

	fallback, err := sqlite.Open(ctx, cfg.Database.FallbackPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("sqlite fallback open failed")
	}
	defer fallback.Close()

	failover := store.NewController(primary, fallback, store.Config{
		HealthInterval:  cfg.Failover.HealthInterval,
		PromoteAfter:    cfg.Failover.PromoteAfter,
		ReplayBatchSize: cfg.Failover.ReplayBatchSize,
	}, logger)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()

	ruleCache := red.NewRuleCacheDecorator(failover.Rules(), redisClient, cfg.Rules.CacheTTL)
	heartbeats := red.NewHeartbeatStore(redisClient, cfg.Watchdog.HeartbeatGrace)

	// ---- Processing pipeline ----
	admission := worker.NewAdmission(cfg.Admission.Capacity)
	dispatcher := callback.NewDispatcher(failover, cfg.Callback.MaxAttempts, cfg.Callback.Timeout,
		cfg.Callback.Backoff, 2, *logger)
	applier := usecase.NewResultApplier(failover, dispatcher, *logger)
	submitUC := usecase.NewSubmitUseCase(failover, cfg.Dedup.Threshold, *logger)
	statusUC := usecase.NewStatusUseCase(failover, admission)

	var engine adapter.ReviewEngine = adapter.NoopEngine{}
	if cfg.Engine.URL != "" {
		engine, err = engineAdapter.NewHTTPEngine(cfg.Engine.URL, cfg.Engine.Timeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("engine adapter init failed")
		}
	} else {
		logger.Warn().Msg("engine.url not set, using noop engine")
	}

	runner := worker.NewJobRunner(failover, admission, ruleCache, engine, heartbeats,
		applier, cfg.Watchdog.MaxRetries, cfg.Watchdog.HeartbeatGrace/3, *logger)
	pool2 := worker.NewPool(int(cfg.Admission.Capacity), *logger)
	resultProc := worker.NewResultProcessor(failover, applier, cfg.Results.BatchSize,
		cfg.Results.Concurrency, cfg.Results.MinPoll, cfg.Results.MaxPoll, *logger)

	watchdog := sched.NewWatchdog(failover, heartbeats, applier, cfg.Watchdog.Interval,
		cfg.Watchdog.ProcessingTimeout, cfg.Watchdog.MaxRetries, cfg.Watchdog.HeartbeatGrace,
		cfg.Watchdog.BatchSize, *logger)
	cbScanner := sched.NewCallbackScanner(failover, dispatcher, cfg.Callback.ScanEvery,
		cfg.Callback.ScanLimit, *logger)

	// ---- Background loops ----
	pool2.Start(ctx)
	go runner.Start(ctx, pool2)
	go resultProc.Run(ctx)
	go dispatcher.Run(ctx)
	go failover.RunHealthLoop(ctx)
	go func() { _ = watchdog.Run(ctx) }()
	go func() { _ = cbScanner.Run(ctx) }()
	go reportPoolStats(ctx, primary)

	// ---- HTTP ----
	srv := web.NewServer(submitUC, statusUC, dispatcher, ruleCache,
		func() string { return failover.State().String() }, *logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Router(),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	cancel()
	pool2.Stop()
	logger.Info().Msg("goodbye")
}

func reportPoolStats(ctx context.Context, primary *pg.Store) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			primary.ReportPoolStats()
		}
	}
}
