package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/pump-rug-market-poc/internal/event-processor/cache"
	"github.com/radieske/pump-rug-market-poc/internal/event-processor/consumer"
	"github.com/radieske/pump-rug-market-poc/internal/event-processor/pubsub"
	"github.com/radieske/pump-rug-market-poc/internal/event-processor/repository"
	sharedcache "github.com/radieske/pump-rug-market-poc/internal/shared/cache"
	"github.com/radieske/pump-rug-market-poc/internal/shared/config"
	"github.com/radieske/pump-rug-market-poc/internal/shared/db"
	"github.com/radieske/pump-rug-market-poc/internal/shared/kafka"
	"github.com/radieske/pump-rug-market-poc/internal/shared/logger"
	"github.com/radieske/pump-rug-market-poc/internal/shared/metrics"
	"github.com/radieske/pump-rug-market-poc/internal/shared/retry"
	"github.com/radieske/pump-rug-market-poc/pkg/contracts/events"
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

	// Inicializa dependências: Postgres e Redis
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	redisClient, err := sharedcache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	repo := repository.NewPostgresRepo(pg)
	if err := repo.Migrate(ctx); err != nil {
		log.Fatal("migrate event log", zap.Error(err))
	}
	rcache := cache.NewRedisCache(redisClient, cfg.LiveCacheTTL)
	broadcaster := pubsub.NewRedisBroadcaster(redisClient, cfg.RedisPubSubChannel)

	// consumer group event-processor; chave marketId mantém a ordem por mercado
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicMarketEvents, "event-processor")
	defer reader.Close()

	// Métricas Prometheus para monitoramento do processamento
	consumed := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "event_proc_messages_consumed_total", Help: "mensagens consumidas"}, []string{"type"})
	cached := prometheus.NewCounter(prometheus.CounterOpts{Name: "event_proc_cache_sets_total", Help: "sets no cache"})
	persist := prometheus.NewCounter(prometheus.CounterOpts{Name: "event_proc_db_writes_total", Help: "eventos gravados no log"})
	dupes := prometheus.NewCounter(prometheus.CounterOpts{Name: "event_proc_duplicates_total", Help: "reentregas descartadas"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "event_proc_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, cached, persist, dupes, errorsBy)

	proc := &consumer.Processor{
		Log:         log,
		Reader:      reader,
		Repo:        repo,
		Cache:       rcache,
		Persist:     retry.Policy{Attempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second, Jitter: 0.2},
		OnConsumed:  func(typ string) { consumed.WithLabelValues(typ).Inc() },
		OnCached:    func() { cached.Inc() },
		OnPersist:   func() { persist.Inc() },
		OnDuplicate: func() { dupes.Inc() },
		OnError:     func(stage string) { errorsBy.WithLabelValues(stage).Inc() },

		// Após persistir, envia update para o WebSocket via Redis Pub/Sub
		OnAfterPersist: func(ev events.Envelope) {
			bctx, bcancel := context.WithTimeout(ctx, 500*time.Millisecond)
			defer bcancel()
			if err := broadcaster.Broadcast(bctx, ev); err != nil {
				log.Warn("ws broadcast publish failed", zap.String("event_id", ev.ID), zap.Error(err))
				errorsBy.WithLabelValues("broadcast").Inc()
			}
		},
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log,
		metrics.Check{Name: "postgres", Fn: pg.PingContext},
		metrics.Check{Name: "redis", Fn: sharedcache.Ping(redisClient)},
	)
	defer metricsSrv.Close()

	log.Info("event-processor started", zap.String("topic", cfg.TopicMarketEvents))
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor stopped with error", zap.Error(err))
	}
	log.Info("event-processor stopped")
}
