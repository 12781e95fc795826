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

	lcache "github.com/radieske/pump-rug-market-poc/internal/live-service/cache"
	lhttp "github.com/radieske/pump-rug-market-poc/internal/live-service/http"
	"github.com/radieske/pump-rug-market-poc/internal/live-service/repo"
	"github.com/radieske/pump-rug-market-poc/internal/live-service/ws"
	sharedcache "github.com/radieske/pump-rug-market-poc/internal/shared/cache"
	"github.com/radieske/pump-rug-market-poc/internal/shared/config"
	"github.com/radieske/pump-rug-market-poc/internal/shared/db"
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

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	redisClient, err := sharedcache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close()

	cacheReads := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "live_cache_reads_total", Help: "leituras da visão ao vivo"}, []string{"result"})
	wsDelivered := prometheus.NewCounter(prometheus.CounterOpts{Name: "live_ws_messages_sent_total", Help: "mensagens WS entregues"})
	prometheus.MustRegister(cacheReads, wsDelivered)

	hub := ws.NewHub(func(*http.Request) bool { return true }, log)
	hub.OnBroadcast = func(n int) { wsDelivered.Add(float64(n)) }
	ws.StartRedisSubscriber(ctx, redisClient, cfg.RedisPubSubChannel, hub, log)

	api := &lhttp.API{
		ReadRepo: &repo.ReadRepo{DB: pg},
		Cache:    lcache.New(redisClient),
		WS:       http.HandlerFunc(hub.HandleWS),
		Log:      log,
		OnCache: func(hit bool) {
			if hit {
				cacheReads.WithLabelValues("hit").Inc()
				return
			}
			cacheReads.WithLabelValues("miss").Inc()
		},
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log,
		metrics.Check{Name: "postgres", Fn: pg.PingContext},
		metrics.Check{Name: "redis", Fn: sharedcache.Ping(redisClient)},
	)

	apiSrv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: api.Router(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("live-service listening", zap.String("addr", apiSrv.Addr), zap.String("channel", cfg.RedisPubSubChannel))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("api", zap.Error(err))
		}
	}()

	<-ctx.Done()
	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	_ = apiSrv.Shutdown(sctx)
	_ = metricsSrv.Shutdown(sctx)
	log.Info("live-service stopped")
}
