package phase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store"
	"github.com/radieske/pump-rug-market-poc/internal/shared/retry"
)

// Hooks são os efeitos colaterais disparados após a transição ser gravada.
// Todos precisam ser idempotentes: rodam de novo a cada tick enquanto o
// mercado estiver na fase correspondente.
type Hooks interface {
	// OnCutoff trava o casamento e reembolsa os remanescentes não casados
	OnCutoff(ctx context.Context, m domain.Market) error
	// OnResolve avalia o resultado, liquida e marca o mercado SETTLED
	OnResolve(ctx context.Context, m domain.Market) error
	// OnSettled reprocessa pagamentos pendentes
	OnSettled(ctx context.Context, m domain.Market) error
}

// Transition descreve o resultado de um Check
type Transition struct {
	MarketID string
	From     domain.Phase
	To       domain.Phase
	Changed  bool
	Skipped  bool // outro processo detinha o lock do mercado
}

// Scheduler avança a fase de um mercado. Só um processo por tick consegue o
// lock (FOR UPDATE SKIP LOCKED); os demais retornam Skipped sem erro.
type Scheduler struct {
	Store  store.Store
	Hooks  Hooks
	Clock  domain.Clock
	Cutoff float64
	Retry  retry.Policy // conflitos de serialização/deadlock na transição
	Log    *zap.Logger

	OnTransition func(Transition) // métricas/eventos, opcional
}

func (s *Scheduler) Check(ctx context.Context, marketID string) (Transition, error) {
	var (
		tr Transition
		m  domain.Market
	)
	err := retry.Do(ctx, s.Retry, store.IsTransient, func(int) error {
		tr, m = Transition{MarketID: marketID}, domain.Market{}
		return s.Store.InTx(ctx, func(tx store.Tx) error {
			return s.advance(ctx, tx, marketID, &tr, &m)
		})
	})
	if err != nil || tr.Skipped {
		return tr, err
	}

	if tr.Changed {
		s.log().Info("market phase changed",
			zap.String("market_id", marketID),
			zap.String("from", string(tr.From)),
			zap.String("to", string(tr.To)),
		)
		if s.OnTransition != nil {
			s.OnTransition(tr)
		}
	}

	switch m.Phase {
	case domain.PhaseObservation:
		err = s.Hooks.OnCutoff(ctx, m)
	case domain.PhaseResolved:
		// mercado pode ter pulado OBSERVATION (worker parado): reembolsa antes
		if err = s.Hooks.OnCutoff(ctx, m); err == nil {
			err = s.Hooks.OnResolve(ctx, m)
		}
	case domain.PhaseSettled:
		err = s.Hooks.OnSettled(ctx, m)
	}
	return tr, err
}

// advance grava a próxima fase dentro de tx; tr e m refletem o que foi lido
func (s *Scheduler) advance(ctx context.Context, tx store.Tx, marketID string, tr *Transition, m *domain.Market) error {
	cur, err := tx.LockMarket(ctx, marketID)
	if errors.Is(err, store.ErrRowLocked) {
		tr.Skipped = true
		return nil
	}
	if err != nil {
		return err
	}

	tr.From, tr.To = cur.Phase, cur.Phase
	*m = *cur
	if cur.Phase == domain.PhaseSettled || cur.Phase == domain.PhaseResolved {
		return nil // daqui em diante só os hooks avançam
	}

	target, err := ForMarket(*cur, s.now(), s.cutoff())
	if err != nil {
		return fmt.Errorf("market %s: %w", marketID, err)
	}
	// fase nunca regride
	if target.Rank() <= cur.Phase.Rank() {
		return nil
	}

	cur.Phase = target
	if target.Rank() >= domain.PhaseObservation.Rank() {
		cur.MatchingState = domain.MatchingLocked
	}
	cur.UpdatedAt = s.now()
	if err := tx.UpdateMarket(ctx, cur); err != nil {
		return err
	}
	tr.To, tr.Changed = target, true
	*m = *cur
	return nil
}

func (s *Scheduler) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now()
}

func (s *Scheduler) cutoff() float64 {
	if s.Cutoff == 0 {
		return DefaultCutoff
	}
	return s.Cutoff
}

func (s *Scheduler) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
