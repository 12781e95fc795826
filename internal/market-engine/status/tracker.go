package status

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store"
)

// Tabela de transições durante o casamento. MATCHED é terminal aqui.
var matching = map[domain.BetStatus][]domain.BetStatus{
	domain.BetPending:          {domain.BetPartiallyMatched, domain.BetMatched},
	domain.BetPartiallyMatched: {domain.BetMatched},
	domain.BetMatched:          {},
}

// Tabela de finalização (reembolso no cutoff e liquidação)
var final = map[domain.BetStatus][]domain.BetStatus{
	domain.BetPending:          {domain.BetRefunded, domain.BetExpired},
	domain.BetPartiallyMatched: {domain.BetWon, domain.BetLost, domain.BetRefunded},
	domain.BetMatched:          {domain.BetWon, domain.BetLost},
	domain.BetRefunded:         {domain.BetWon, domain.BetLost},
}

// Derive calcula o status a partir do casado vs líquido
func Derive(matched, net decimal.Decimal) domain.BetStatus {
	switch {
	case domain.ApproxEqual(matched, net):
		return domain.BetMatched
	case matched.GreaterThan(decimal.Zero):
		return domain.BetPartiallyMatched
	default:
		return domain.BetPending
	}
}

// Validate confere uma transição da fase de casamento
func Validate(from, to domain.BetStatus) error {
	return check(matching, from, to)
}

// ValidateFinal confere uma transição de finalização
func ValidateFinal(from, to domain.BetStatus) error {
	return check(final, from, to)
}

func check(table map[domain.BetStatus][]domain.BetStatus, from, to domain.BetStatus) error {
	for _, s := range table[from] {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatusTransition, from, to)
}

// Change descreve uma transição gravada
type Change struct {
	Bet  domain.Bet
	From domain.BetStatus
	To   domain.BetStatus
}

// Tracker grava transições junto com o histórico na mesma transação
type Tracker struct {
	Clock domain.Clock
}

// Recompute deriva o status de bet após alterar MatchedAmount, persiste a
// aposta e, se houve transição, o histórico. Retorna nil se não mudou.
func (t Tracker) Recompute(ctx context.Context, tx store.Tx, bet *domain.Bet, reason string) (*Change, error) {
	next := Derive(bet.MatchedAmount, bet.NetAmount)
	if bet.MatchedAmount.GreaterThan(bet.NetAmount.Add(domain.Epsilon)) {
		return nil, fmt.Errorf("%w: bet %s matched %s > net %s", domain.ErrInvariantViolation, bet.ID, bet.MatchedAmount, bet.NetAmount)
	}

	prev := bet.Status
	now := t.now()
	bet.UpdatedAt = now
	if next == prev {
		return nil, tx.UpdateBet(ctx, bet)
	}
	if err := Validate(prev, next); err != nil {
		return nil, fmt.Errorf("bet %s: %w", bet.ID, err)
	}
	bet.Status = next
	if next == domain.BetMatched {
		bet.MatchedAt = &now
	}
	if err := t.write(ctx, tx, bet, prev, reason, now); err != nil {
		return nil, err
	}
	return &Change{Bet: *bet, From: prev, To: next}, nil
}

// Finalize aplica um status de finalização (WON, LOST, REFUNDED, ...)
func (t Tracker) Finalize(ctx context.Context, tx store.Tx, bet *domain.Bet, to domain.BetStatus, reason string) (*Change, error) {
	prev := bet.Status
	if err := ValidateFinal(prev, to); err != nil {
		return nil, fmt.Errorf("bet %s: %w", bet.ID, err)
	}
	now := t.now()
	bet.Status = to
	bet.UpdatedAt = now
	if err := t.write(ctx, tx, bet, prev, reason, now); err != nil {
		return nil, err
	}
	return &Change{Bet: *bet, From: prev, To: to}, nil
}

// Created grava o registro inicial "" -> PENDING
func (t Tracker) Created(ctx context.Context, tx store.Tx, bet *domain.Bet) error {
	return tx.InsertStatusHistory(ctx, &domain.StatusHistory{
		ID:            uuid.NewString(),
		BetID:         bet.ID,
		NewStatus:     bet.Status,
		MatchedAmount: bet.MatchedAmount,
		NetAmount:     bet.NetAmount,
		Reason:        "placed",
		CreatedAt:     t.now(),
	})
}

func (t Tracker) write(ctx context.Context, tx store.Tx, bet *domain.Bet, prev domain.BetStatus, reason string, now time.Time) error {
	if err := tx.UpdateBet(ctx, bet); err != nil {
		return err
	}
	return tx.InsertStatusHistory(ctx, &domain.StatusHistory{
		ID:            uuid.NewString(),
		BetID:         bet.ID,
		OldStatus:     prev,
		NewStatus:     bet.Status,
		MatchedAmount: bet.MatchedAmount,
		NetAmount:     bet.NetAmount,
		Reason:        reason,
		CreatedAt:     now,
	})
}

func (t Tracker) now() time.Time {
	if t.Clock == nil {
		return time.Now().UTC()
	}
	return t.Clock.Now()
}
