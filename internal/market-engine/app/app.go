package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/events"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/metrics"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/oracle"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/service"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store/memory"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store/postgres"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/wallet"
	"github.com/radieske/pump-rug-market-poc/internal/shared/config"
	"github.com/radieske/pump-rug-market-poc/internal/shared/db"
	skafka "github.com/radieske/pump-rug-market-poc/internal/shared/kafka"
	smetrics "github.com/radieske/pump-rug-market-poc/internal/shared/metrics"
	contracts "github.com/radieske/pump-rug-market-poc/pkg/contracts/events"
)

// App monta o motor com store, carteira, oráculo e o outbox de eventos para
// o Kafka. market-service e market-worker usam a mesma montagem.
type App struct {
	Engine  *service.Engine
	Outbox  *events.Outbox
	Metrics *metrics.Engine
	Checks  []smetrics.Check

	log     *zap.Logger
	pg      *sql.DB
	writer  *kafka.Writer
	started bool
	drained chan struct{}
}

// Build conecta as dependências. reg nil usa o registry padrão do Prometheus.
func Build(ctx context.Context, cfg config.Config, log *zap.Logger, reg prometheus.Registerer) (*App, error) {
	a := &App{log: log, drained: make(chan struct{})}

	var st store.Store
	switch cfg.StoreDriver {
	case "memory":
		log.Warn("using in-memory store, state is lost on restart")
		st = memory.New()
	case "postgres":
		pg, err := db.ConnectPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.pg = pg
		ps := postgres.New(pg)
		if err := ps.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("migrate market store: %w", err)
		}
		st = ps
		a.Checks = append(a.Checks, smetrics.Check{Name: "postgres", Fn: pg.PingContext})
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	a.Metrics = metrics.New()
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a.Metrics.MustRegister(reg)

	a.Outbox = events.NewOutbox(cfg.OutboxSize, log)
	a.Outbox.OnDrop = func(contracts.Envelope) { a.Metrics.EventsDropped.Inc() }
	a.writer = skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMarketEvents)
	a.Checks = append(a.Checks, smetrics.Check{Name: "kafka", Fn: skafka.Ping(cfg.KafkaBrokers)})

	ec := cfg.Engine
	a.Engine = service.New(ec, service.Deps{
		Store:   st,
		Ledger:  wallet.New(cfg.WalletURL),
		Oracle:  oracle.New(cfg.OracleURL, ec.OracleRPS, ec.OracleBurst, ec.OracleTimeout),
		Events:  a.Outbox,
		Metrics: a.Metrics,
		Clock:   domain.SystemClock{},
		Log:     log,
	})
	return a, nil
}

// Start drena o outbox para o Kafka até Close
func (a *App) Start() {
	a.started = true
	go func() {
		defer close(a.drained)
		sink := &events.KafkaSink{W: a.writer}
		// contexto próprio: o shutdown fecha o outbox e espera o último lote
		if err := a.Outbox.Drain(context.Background(), sink, 100, 200*time.Millisecond); err != nil {
			a.log.Warn("outbox drain stopped", zap.Error(err))
		}
	}()
}

// Close fecha o outbox, espera o último lote (até timeout) e libera conexões
func (a *App) Close(timeout time.Duration) error {
	a.Outbox.Close()
	if a.started {
		select {
		case <-a.drained:
		case <-time.After(timeout):
			a.log.Warn("outbox drain timed out", zap.Int64("dropped", a.Outbox.Dropped()))
		}
	}
	err := a.writer.Close()
	if a.pg != nil {
		err = multierr.Append(err, a.pg.Close())
	}
	return err
}
