package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/pump-rug-market-poc/internal/oracle-simulator/feed"
	ohttp "github.com/radieske/pump-rug-market-poc/internal/oracle-simulator/http"
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

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	snapshots := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oracle_snapshots_served_total",
		Help: "Snapshots servidos por ativo",
	}, []string{"asset"})
	steps := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oracle_walk_steps_total",
		Help: "Passos do passeio aleatório",
	})
	prometheus.MustRegister(snapshots, steps)

	f := feed.New(cfg.OracleSeed, nil)

	// Avança o passeio de todos os ativos a cada ORACLE_STEP
	go func() {
		t := time.NewTicker(cfg.OracleStep)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				f.Step()
				steps.Inc()
			}
		}
	}()

	s := &ohttp.Server{
		Feed:       f,
		Log:        log,
		OnSnapshot: func(asset string) { snapshots.WithLabelValues(asset).Inc() },
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log)

	publicSrv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: s.Router(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("oracle simulator (public) running",
			zap.String("addr", publicSrv.Addr),
			zap.Duration("step", cfg.OracleStep),
		)
		if err := publicSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("public server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	_ = publicSrv.Shutdown(sctx)
	_ = metricsSrv.Shutdown(sctx)
}
