package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/app"
	mhttp "github.com/radieske/pump-rug-market-poc/internal/market-service/http"
	"github.com/radieske/pump-rug-market-poc/internal/market-service/odds"
	"github.com/radieske/pump-rug-market-poc/internal/shared/config"
	"github.com/radieske/pump-rug-market-poc/internal/shared/logger"
	"github.com/radieske/pump-rug-market-poc/internal/shared/metrics"
)

// tolerância do guard de slippage sobre a odd esperada pelo cliente
var slippage = decimal.RequireFromString("0.05")

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Build(ctx, cfg, log, nil)
	if err != nil {
		log.Fatal("engine init", zap.Error(err))
	}
	a.Start()

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log, a.Checks...)

	api := mhttp.NewServer(log, a.Engine, odds.NewGuard(a.Engine, slippage))
	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("market-service listening",
			zap.String("addr", apiSrv.Addr),
			zap.String("store", cfg.StoreDriver),
		)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("api", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	_ = apiSrv.Shutdown(sctx)
	_ = metricsSrv.Shutdown(sctx)
	if err := a.Close(5 * time.Second); err != nil {
		log.Warn("close engine deps", zap.Error(err))
	}
}
