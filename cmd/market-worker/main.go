package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/app"
	worker "github.com/radieske/pump-rug-market-poc/internal/market-worker"
	"github.com/radieske/pump-rug-market-poc/internal/shared/config"
	"github.com/radieske/pump-rug-market-poc/internal/shared/logger"
	"github.com/radieske/pump-rug-market-poc/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Build(ctx, cfg, log, nil)
	if err != nil {
		log.Fatal("engine init", zap.Error(err))
	}
	a.Start()

	ticks := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "market_worker_markets_total", Help: "mercados processados por resultado"}, []string{"result"})
	prometheus.MustRegister(ticks)

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log, a.Checks...)

	w := &worker.Worker{
		Engine:      a.Engine,
		Interval:    cfg.WorkerInterval,
		Concurrency: cfg.WorkerConcurrency,
		Batch:       cfg.WorkerBatch,
		Log:         log,
		OnTick: func(s worker.Stats) {
			ticks.WithLabelValues("transition").Add(float64(s.Transitions))
			ticks.WithLabelValues("pass").Add(float64(s.Passes))
			ticks.WithLabelValues("skipped").Add(float64(s.Skipped))
			ticks.WithLabelValues("failed").Add(float64(s.Failed))
		},
	}

	log.Info("market-worker started",
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Int("concurrency", cfg.WorkerConcurrency),
	)
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("worker stopped with error", zap.Error(err))
	}

	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	_ = metricsSrv.Shutdown(sctx)
	if err := a.Close(5 * time.Second); err != nil {
		log.Warn("close engine deps", zap.Error(err))
	}
	log.Info("market-worker stopped")
}
