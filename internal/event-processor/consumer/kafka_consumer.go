package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/pump-rug-market-poc/internal/shared/retry"
	"github.com/radieske/pump-rug-market-poc/pkg/contracts/events"
)

// MessageReader é o subconjunto de *kafka.Reader usado pelo processor
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Repo interface {
	AppendEvent(ctx context.Context, e events.Envelope) (bool, error)
	UpsertLive(ctx context.Context, v events.MarketView) error
}

type Cache interface {
	SetLive(ctx context.Context, v events.MarketView) (bool, error)
}

// Processor consome market_events do Kafka, atualiza a visão ao vivo no
// Redis e persiste o log no Postgres. O offset só é confirmado depois da
// persistência; reentregas são descartadas pelo id do evento.
type Processor struct {
	Log     *zap.Logger
	Reader  MessageReader
	Repo    Repo
	Cache   Cache
	Persist retry.Policy // tentativas de gravação no banco

	OnConsumed     func(typ string)      // métricas (counter++)
	OnCached       func()                // métricas
	OnPersist      func()                // métricas
	OnDuplicate    func()                // métricas
	OnError        func(stage string)    // métricas por fase
	OnAfterPersist func(events.Envelope) // broadcast para o WS
}

// Run inicia o loop principal de consumo e processamento das mensagens Kafka
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.fail("read")
			if err := retry.Sleep(ctx, 500*time.Millisecond); err != nil {
				return err
			}
			continue
		}

		p.Handle(ctx, m)

		if err := p.Reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
			p.fail("commit")
		}
	}
}

// Handle processa uma mensagem. Erros são logados e contados; a mensagem
// nunca volta para a fila.
func (p *Processor) Handle(ctx context.Context, m kafka.Message) {
	var ev events.Envelope
	if err := json.Unmarshal(m.Value, &ev); err != nil || ev.ID == "" || ev.MarketID == "" {
		p.Log.Warn("invalid message", zap.ByteString("key", m.Key), zap.Error(err))
		p.fail("decode")
		return
	}
	if p.OnConsumed != nil {
		p.OnConsumed(ev.Type)
	}
	log := p.Log.With(
		zap.String("event_id", ev.ID),
		zap.String("type", ev.Type),
		zap.String("market_id", ev.MarketID),
	)

	var fresh bool
	err := retry.Do(ctx, p.Persist, func(error) bool { return ctx.Err() == nil }, func(int) error {
		var err error
		fresh, err = p.Repo.AppendEvent(ctx, ev)
		return err
	})
	if err != nil {
		log.Error("db append event failed", zap.Error(err))
		p.fail("db_append")
		return
	}
	if !fresh {
		log.Debug("duplicate event skipped")
		if p.OnDuplicate != nil {
			p.OnDuplicate()
		}
		return
	}

	if ev.Market != nil {
		// cache primeiro: falha no Redis não bloqueia a persistência
		if _, err := p.Cache.SetLive(ctx, *ev.Market); err != nil {
			log.Warn("redis set failed", zap.Error(err))
			p.fail("cache")
		} else if p.OnCached != nil {
			p.OnCached()
		}

		if err := p.Repo.UpsertLive(ctx, *ev.Market); err != nil {
			log.Warn("db upsert live failed", zap.Error(err))
			p.fail("db_upsert")
		}
	}

	if p.OnPersist != nil {
		p.OnPersist()
	}
	if p.OnAfterPersist != nil {
		p.OnAfterPersist(ev)
	}
}

func (p *Processor) fail(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}
