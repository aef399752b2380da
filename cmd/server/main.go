// Command server runs the hospital staff scheduling core: the HTTP surface
// of spec §6 (submit/status/list/seed/health) plus the asynq worker pool
// that drives the MILP backend in the background (spec §5).
package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/hospitalops/shiftsolver/internal/api"
	"github.com/hospitalops/shiftsolver/internal/config"
	"github.com/hospitalops/shiftsolver/internal/logger"
	"github.com/hospitalops/shiftsolver/internal/metrics"
	"github.com/hospitalops/shiftsolver/internal/orchestrator"
	"github.com/hospitalops/shiftsolver/internal/repository"
	"github.com/hospitalops/shiftsolver/internal/repository/memory"
	"github.com/hospitalops/shiftsolver/internal/repository/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog, err := logger.New(cfg.AppEnv)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer zlog.Sync()

	metricsReg := metrics.New()

	var (
		catalog  repository.CatalogStore
		registry repository.RunRegistry
		dbHealth func(context.Context) error
		pgDB     *sql.DB
	)
	if cfg.DatabaseURL != "" {
		db, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			zlog.Fatalw("connect to postgres", "error", err)
		}
		if _, err := db.ExecContext(context.Background(), postgres.Schema); err != nil {
			zlog.Fatalw("apply schema", "error", err)
		}
		pgDB = db.DB
		catalog = postgres.NewCatalogStore(pgDB)
		registry = postgres.NewRunRegistry(pgDB)
		dbHealth = db.Health
	} else {
		zlog.Info("DATABASE_URL not set, using in-memory catalog/run store")
		catalog = memory.NewCatalogStore()
		registry = memory.NewRunRegistry()
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer asynqClient.Close()
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer inspector.Close()
	redisHealth := func(context.Context) error {
		_, err := inspector.GetQueueInfo(orchestrator.Queue)
		return err
	}

	orch := orchestrator.New(catalog, registry, asynqClient, inspector, zlog, metricsReg, cfg.QueueBound)

	handlers := api.NewHandlers(orch, catalog, dbHealth, redisHealth)
	router := api.NewRouter(handlers, metricsReg)

	asynqServer := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		asynq.Config{
			Concurrency: cfg.WorkerPoolSize,
			Queues:      map[string]int{orchestrator.Queue: 1},
		},
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(orchestrator.TaskTypeSolveRun, orch.HandleSolveRun)

	// Start, not Run: Run blocks and installs its own SIGINT/SIGTERM handler
	// and shutdown sequence, which would race the explicit shutdown sequence
	// below against the same signal. Start launches the worker goroutines
	// and returns immediately, leaving shutdown ordering entirely to main().
	zlog.Infow("starting worker pool", "concurrency", cfg.WorkerPoolSize, "redis_addr", cfg.RedisAddr)
	if err := asynqServer.Start(mux); err != nil {
		zlog.Fatalw("start asynq server", "error", err)
	}

	stopStats := make(chan struct{})
	go reportQueueStats(stopStats, orch, metricsReg, zlog)

	go func() {
		zlog.Infow("starting HTTP server", "addr", cfg.ServerAddr)
		if err := router.Start(cfg.ServerAddr); err != nil && err != http.ErrServerClosed {
			zlog.Fatalw("http server stopped", "error", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM (spec §5): queued-but-unstarted
	// runs are drained and finalized as ERROR "not started"; in-flight
	// solves observe the context cancellation asynqServer.Shutdown drives
	// and finalize themselves as ERROR "cancelled" from HandleSolveRun.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	zlog.Info("shutdown signal received")
	close(stopStats)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := router.Shutdown(shutdownCtx); err != nil {
		zlog.Errorw("http shutdown", "error", err)
	}

	if err := orch.Shutdown(shutdownCtx); err != nil {
		zlog.Errorw("drain queued runs", "error", err)
	}
	asynqServer.Shutdown()

	if pgDB != nil {
		_ = pgDB.Close()
	}
	zlog.Info("shutdown complete")
}

// reportQueueStats periodically exports queue depth and oldest-wait as
// Prometheus gauges (spec §5: "queue depth and oldest-wait are observable").
func reportQueueStats(stop <-chan struct{}, o *orchestrator.Orchestrator, reg *metrics.Registry, zlog *zap.SugaredLogger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			depth, oldest, err := o.QueueStats()
			if err != nil {
				zlog.Warnw("queue stats", "error", err)
				continue
			}
			reg.SetQueueDepth(orchestrator.Queue, depth)
			reg.SetOldestQueuedAge(orchestrator.Queue, oldest)
		}
	}
}
