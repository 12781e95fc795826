package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/status"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store"
)

var refundable = []domain.BetStatus{domain.BetPending, domain.BetPartiallyMatched}

// RefundReport é o resultado do lote de reembolso do cutoff
type RefundReport struct {
	BatchReport
	Refunds []domain.Refund
	Changes []status.Change
}

// RefundAmount é o valor a devolver: bruto (com taxa) se nada casou,
// senão apenas o delta líquido não casado.
func RefundAmount(b domain.Bet) decimal.Decimal {
	if !b.MatchedAmount.IsPositive() {
		return b.GrossAmount
	}
	return domain.Round(b.NetAmount.Sub(b.MatchedAmount))
}

// RefundUnmatched devolve o remanescente não casado de cada aposta
// PENDING/PARTIALLY_MATCHED do mercado, em paralelo por aposta. A falha de
// uma aposta é registrada e não bloqueia as demais.
func (s *Service) RefundUnmatched(ctx context.Context, marketID string) (*RefundReport, error) {
	var ids []string
	err := s.inTx(ctx, func(tx store.Tx) error {
		var err error
		ids, err = tx.ListBetIDs(ctx, marketID, refundable)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list refundable bets of market %s: %w", marketID, err)
	}

	rep := &RefundReport{BatchReport: BatchReport{MarketID: marketID}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit(s.Cfg.RefundConcurrency))
	for _, id := range ids {
		g.Go(func() error {
			r, ch, err := s.refundBet(gctx, id)
			switch {
			case errors.Is(err, store.ErrRowLocked):
				// aposta presa por outro processo: conta como falha para
				// adiar a liquidação até o próximo tick
				rep.fail(id, "", err)
				s.log().Warn("refund deferred, bet locked",
					zap.String("market_id", marketID),
					zap.String("bet_id", id),
				)
			case err != nil:
				userID := ""
				if ch != nil {
					userID = ch.Bet.UserID
				}
				rep.fail(id, userID, err)
				s.log().Error("refund failed",
					zap.String("market_id", marketID),
					zap.String("bet_id", id),
					zap.Error(err),
				)
			case r == nil:
				rep.skipped()
			default:
				rep.processed()
				mu.Lock()
				rep.Refunds = append(rep.Refunds, *r)
				rep.Changes = append(rep.Changes, *ch)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return rep, nil
}

// refundBet grava o reembolso, credita o usuário e finaliza a aposta como
// REFUNDED na mesma transação. Retorna r nil quando não há o que fazer e
// store.ErrRowLocked quando outro processo detém a aposta.
func (s *Service) refundBet(ctx context.Context, betID string) (*domain.Refund, *status.Change, error) {
	var (
		out *domain.Refund
		chg *status.Change
	)
	err := s.inTx(ctx, func(tx store.Tx) error {
		out, chg = nil, nil
		b, err := tx.LockBet(ctx, betID)
		if errors.Is(err, store.ErrRowLocked) {
			return fmt.Errorf("refund bet %s: %w", betID, err)
		}
		if err != nil {
			return err
		}
		// já reembolsada ou casada por outra passada
		if b.Status != domain.BetPending && b.Status != domain.BetPartiallyMatched {
			return nil
		}
		chg = &status.Change{Bet: *b}

		amount := RefundAmount(*b)
		if !amount.IsPositive() {
			return nil
		}
		prior, err := tx.SumRefunds(ctx, b.ID)
		if err != nil {
			return err
		}
		if prior.Add(amount).GreaterThan(b.GrossAmount) {
			return fmt.Errorf("bet %s refund %s + %s > gross %s: %w", b.ID, prior, amount, b.GrossAmount, domain.ErrRefundExceedsStake)
		}

		now := s.now()
		ref := "refund:" + b.ID
		r := domain.Refund{
			ID:          s.newID(),
			BetID:       b.ID,
			UserID:      b.UserID,
			MarketID:    b.MarketID,
			Amount:      amount,
			Status:      domain.RefundProcessed,
			TxMarker:    ref,
			CreatedAt:   now,
			ProcessedAt: now,
		}
		if err := tx.InsertRefund(ctx, &r); err != nil {
			return err
		}
		b.RefundAmount = b.RefundAmount.Add(amount)
		b.RefundedAt = &now
		c, err := s.Tracker.Finalize(ctx, tx, b, domain.BetRefunded, "cutoff refund")
		if err != nil {
			return err
		}
		if err := s.Ledger.Adjust(ctx, b.UserID, amount, ref); err != nil {
			return fmt.Errorf("credit refund of bet %s: %w", b.ID, err)
		}
		out, chg = &r, c
		return nil
	})
	if err != nil {
		return nil, chg, err
	}
	return out, chg, nil
}
