package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store"
)

// PayoutReport é o resultado de um lote de créditos
type PayoutReport struct {
	BatchReport
	Paid []domain.Payout
}

// PayPending credita cada payout PENDING do mercado, um crédito agregado por
// usuário. Falha de um usuário não aborta os outros: o payout continua
// PENDING com Attempts/LastError e é refeito na próxima passada.
func (s *Service) PayPending(ctx context.Context, marketID string) (*PayoutReport, error) {
	var ids []string
	err := s.inTx(ctx, func(tx store.Tx) error {
		var err error
		ids, err = tx.ListPayoutIDs(ctx, marketID, domain.PayoutPending)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list pending payouts of market %s: %w", marketID, err)
	}

	rep := &PayoutReport{BatchReport: BatchReport{MarketID: marketID}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit(s.Cfg.PayoutConcurrency))
	for _, id := range ids {
		g.Go(func() error {
			p, err := s.pay(gctx, id)
			switch {
			case err != nil:
				userID, bets := "", ""
				if p != nil {
					userID, bets = p.UserID, strings.Join(p.BetIDs, ",")
				}
				rep.fail(id, userID, err)
				s.log().Error("payout credit failed",
					zap.String("market_id", marketID),
					zap.String("payout_id", id),
					zap.String("user_id", userID),
					zap.String("bet_ids", bets),
					zap.Error(err),
				)
			case p == nil:
				rep.skipped()
			default:
				rep.processed()
				mu.Lock()
				rep.Paid = append(rep.Paid, *p)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return rep, nil
}

// pay credita um payout. Em falha do ledger a tentativa é registrada no
// próprio payout e o erro volta junto com ele.
func (s *Service) pay(ctx context.Context, id string) (*domain.Payout, error) {
	var (
		out     *domain.Payout
		credErr error
	)
	err := s.inTx(ctx, func(tx store.Tx) error {
		out, credErr = nil, nil
		p, err := tx.LockPayout(ctx, id)
		if errors.Is(err, store.ErrRowLocked) {
			return nil
		}
		if err != nil {
			return err
		}
		if p.Status != domain.PayoutPending {
			return nil
		}

		p.Attempts++
		if err := s.Ledger.Adjust(ctx, p.UserID, p.Amount, "payout:"+p.ID); err != nil {
			credErr = err
			p.LastError = err.Error()
			out = p
			return tx.UpdatePayout(ctx, p)
		}
		now := s.now()
		p.Status = domain.PayoutPaid
		p.PaidAt = &now
		p.LastError = ""
		out = p
		return tx.UpdatePayout(ctx, p)
	})
	if err != nil {
		return out, err
	}
	if credErr != nil {
		return out, fmt.Errorf("credit payout %s: %w", id, credErr)
	}
	return out, nil
}
