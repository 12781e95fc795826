package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/matching"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/phase"
)

// Engine é o que o worker usa da fachada do motor
type Engine interface {
	ListMarketsToProcess(ctx context.Context, limit int) ([]domain.Market, error)
	CheckPhase(ctx context.Context, marketID string) (phase.Transition, error)
	RunMatchingPass(ctx context.Context, marketID string) (matching.Result, error)
}

// Stats resume um tick
type Stats struct {
	Markets     int
	Transitions int64
	Passes      int64
	Skipped     int64
	Failed      int64
}

// Worker avança fases e roda passadas de casamento periodicamente. Várias
// instâncias podem rodar juntas: mercados travados por outra são pulados.
type Worker struct {
	Engine      Engine
	Interval    time.Duration
	Concurrency int
	Batch       int
	Log         *zap.Logger

	OnTick func(Stats) // métricas, opcional
}

// Run executa ticks até o contexto ser cancelado
func (w *Worker) Run(ctx context.Context) error {
	t := time.NewTicker(w.Interval)
	defer t.Stop()
	for {
		if _, err := w.Tick(ctx); err != nil && ctx.Err() == nil {
			w.Log.Warn("worker tick failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Tick processa um lote de mercados. Falha em um mercado é logada e não
// interrompe os outros; só a listagem devolve erro.
func (w *Worker) Tick(ctx context.Context) (Stats, error) {
	markets, err := w.Engine.ListMarketsToProcess(ctx, w.Batch)
	if err != nil {
		return Stats{}, err
	}

	var transitions, passes, skipped, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	if w.Concurrency > 0 {
		g.SetLimit(w.Concurrency)
	}
	for _, m := range markets {
		g.Go(func() error {
			log := w.Log.With(zap.String("market_id", m.ID))

			tr, err := w.Engine.CheckPhase(gctx, m.ID)
			if err != nil {
				failed.Add(1)
				log.Warn("check phase failed", zap.Error(err))
				return nil
			}
			if tr.Skipped {
				skipped.Add(1)
				return nil
			}
			if tr.Changed {
				transitions.Add(1)
			}
			if tr.To != domain.PhaseBetting {
				return nil
			}

			res, err := w.Engine.RunMatchingPass(gctx, m.ID)
			switch {
			case errors.Is(err, domain.ErrMatchingClosed):
				// cutoff chegou entre o check e a passada
			case err != nil:
				failed.Add(1)
				log.Warn("matching pass failed", zap.Error(err))
			case res.Skipped:
				skipped.Add(1)
			default:
				passes.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	st := Stats{
		Markets:     len(markets),
		Transitions: transitions.Load(),
		Passes:      passes.Load(),
		Skipped:     skipped.Load(),
		Failed:      failed.Load(),
	}
	if w.OnTick != nil {
		w.OnTick(st)
	}
	return st, nil
}
