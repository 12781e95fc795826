package settlement

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/status"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store"
)

// settleable inclui REFUNDED: aposta parcialmente casada cujo delta foi
// devolvido no cutoff ainda tem a parte casada a liquidar.
var settleable = []domain.BetStatus{domain.BetMatched, domain.BetPartiallyMatched, domain.BetRefunded}

// SettleReport é o resultado da liquidação de um mercado
type SettleReport struct {
	MarketID string
	Outcome  domain.Outcome
	Winners  int
	Losers   int
	Changes  []status.Change
	Payouts  []domain.Payout
}

// WinningAmount soma matchAmount * odds do momento do casamento em todos os
// matches da aposta.
func WinningAmount(b domain.Bet, matches []domain.Match) decimal.Decimal {
	total := decimal.Zero
	for _, m := range matches {
		if m.BetFor(b.Side) != b.ID {
			continue
		}
		total = total.Add(m.Amount.Mul(m.OddsFor(b.Side)))
	}
	return domain.Round(total)
}

// allLocked falha se SKIP LOCKED deixou de fora alguma aposta liquidável:
// liquidar sem ela marcaria o mercado SETTLED com a aposta em aberto.
func allLocked(ctx context.Context, tx store.Tx, marketID string, bets []domain.Bet) error {
	ids, err := tx.ListBetIDs(ctx, marketID, settleable)
	if err != nil {
		return fmt.Errorf("list settleable bets of market %s: %w", marketID, err)
	}
	got := make(map[string]bool, len(bets))
	for _, b := range bets {
		got[b.ID] = true
	}
	for _, id := range ids {
		if !got[id] {
			return fmt.Errorf("settle market %s: bet %s: %w", marketID, id, store.ErrRowLocked)
		}
	}
	return nil
}

// Settle marca vencedores WON e perdedores LOST (HOUSE: todos LOST) e grava
// um payout PENDING por usuário vencedor, tudo em uma transação. O crédito
// acontece depois, em PayPending.
func (s *Service) Settle(ctx context.Context, marketID string, outcome domain.Outcome) (*SettleReport, error) {
	var rep *SettleReport
	err := s.inTx(ctx, func(tx store.Tx) error {
		rep = &SettleReport{MarketID: marketID, Outcome: outcome}

		bets, err := tx.LockBetsByStatus(ctx, marketID, settleable, 0)
		if err != nil {
			return fmt.Errorf("lock bets of market %s: %w", marketID, err)
		}
		if err := allLocked(ctx, tx, marketID, bets); err != nil {
			return err
		}
		matches, err := tx.ListMatches(ctx, marketID)
		if err != nil {
			return fmt.Errorf("list matches of market %s: %w", marketID, err)
		}

		now := s.now()
		perUser := map[string]*domain.Payout{}
		for i := range bets {
			b := &bets[i]
			// sem parte casada não há o que liquidar
			if !b.MatchedAmount.IsPositive() {
				continue
			}

			to, reason := domain.BetLost, "settled: lost"
			if outcome.Wins(b.Side) {
				to, reason = domain.BetWon, "settled: won"
				b.PayoutAmount = WinningAmount(*b, matches)
			} else if outcome == domain.OutcomeHouse {
				reason = "settled: house"
			}
			b.SettledAt = &now

			ch, err := s.Tracker.Finalize(ctx, tx, b, to, reason)
			if err != nil {
				return err
			}
			rep.Changes = append(rep.Changes, *ch)

			if to != domain.BetWon {
				rep.Losers++
				continue
			}
			rep.Winners++
			if !b.PayoutAmount.IsPositive() {
				continue
			}
			p, ok := perUser[b.UserID]
			if !ok {
				p = &domain.Payout{
					ID:        s.newID(),
					MarketID:  marketID,
					UserID:    b.UserID,
					Amount:    decimal.Zero,
					Status:    domain.PayoutPending,
					CreatedAt: now,
				}
				perUser[b.UserID] = p
			}
			p.Amount = p.Amount.Add(b.PayoutAmount)
			p.BetIDs = append(p.BetIDs, b.ID)
		}

		users := make([]string, 0, len(perUser))
		for u := range perUser {
			users = append(users, u)
		}
		sort.Strings(users)
		for _, u := range users {
			p := perUser[u]
			if err := tx.InsertPayout(ctx, p); err != nil {
				return fmt.Errorf("insert payout for user %s: %w", u, err)
			}
			rep.Payouts = append(rep.Payouts, *p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log().Info("market settled",
		zap.String("market_id", marketID),
		zap.String("outcome", string(outcome)),
		zap.Int("winners", rep.Winners),
		zap.Int("losers", rep.Losers),
		zap.Int("payouts", len(rep.Payouts)),
	)
	return rep, nil
}
