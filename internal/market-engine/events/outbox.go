package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	contracts "github.com/radieske/pump-rug-market-poc/pkg/contracts/events"
)

// Publisher recebe eventos do motor. Publish nunca bloqueia.
type Publisher interface {
	Publish(e contracts.Envelope)
}

// Sink grava um lote de eventos no destino (Kafka)
type Sink interface {
	Write(ctx context.Context, batch []contracts.Envelope) error
}

// Outbox é um canal com buffer entre o motor e o Sink. Cheio, o evento é
// descartado e contado; o motor segue.
type Outbox struct {
	ch      chan contracts.Envelope
	dropped atomic.Int64
	once    sync.Once
	log     *zap.Logger

	OnDrop func(contracts.Envelope) // métrica, opcional
}

func NewOutbox(size int, log *zap.Logger) *Outbox {
	if size <= 0 {
		size = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Outbox{ch: make(chan contracts.Envelope, size), log: log}
}

func (o *Outbox) Publish(e contracts.Envelope) {
	select {
	case o.ch <- e:
	default:
		o.dropped.Add(1)
		if o.OnDrop != nil {
			o.OnDrop(e)
		}
		o.log.Warn("event dropped, outbox full",
			zap.String("type", e.Type),
			zap.String("market_id", e.MarketID),
		)
	}
}

// Dropped conta os eventos descartados
func (o *Outbox) Dropped() int64 { return o.dropped.Load() }

// Close encerra o outbox; Drain termina após esvaziar o buffer
func (o *Outbox) Close() {
	o.once.Do(func() { close(o.ch) })
}

// Drain lê o outbox em lotes de até batch eventos ou a cada flush e grava no
// sink. Falha do sink é logada e o lote descartado.
func (o *Outbox) Drain(ctx context.Context, sink Sink, batch int, flush time.Duration) error {
	if batch <= 0 {
		batch = 100
	}
	if flush <= 0 {
		flush = 200 * time.Millisecond
	}
	t := time.NewTicker(flush)
	defer t.Stop()

	buf := make([]contracts.Envelope, 0, batch)
	write := func() {
		if len(buf) == 0 {
			return
		}
		if err := sink.Write(ctx, buf); err != nil {
			o.log.Error("write events", zap.Int("count", len(buf)), zap.Error(err))
		}
		buf = buf[:0]
	}

	for {
		select {
		case <-ctx.Done():
			write()
			return ctx.Err()
		case e, ok := <-o.ch:
			if !ok {
				write()
				return nil
			}
			buf = append(buf, e)
			if len(buf) >= batch {
				write()
			}
		case <-t.C:
			write()
		}
	}
}

// Discard é um Publisher que ignora tudo
type Discard struct{}

func (Discard) Publish(contracts.Envelope) {}
