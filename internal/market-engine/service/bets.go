package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/events"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/odds"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/phase"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/splitter"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store"
)

type PlaceBetInput struct {
	MarketID string
	UserID   string
	Side     domain.Side
	Amount   decimal.Decimal
}

// BetDetails é a aposta com suas unidades e histórico de status
type BetDetails struct {
	Bet     domain.Bet
	Units   []domain.BetUnit
	History []domain.StatusHistory
}

// PlaceBet debita o valor bruto, grava a aposta com suas unidades em uma
// transação e, se configurado, roda uma passada de casamento. Falha terminal
// na gravação estorna o débito.
func (e *Engine) PlaceBet(ctx context.Context, in PlaceBetInput) (domain.Bet, error) {
	bet, err := e.placeBet(ctx, in)
	if err != nil {
		e.metrics.BetsRejected.WithLabelValues(rejectReason(err)).Inc()
		return domain.Bet{}, err
	}
	e.metrics.BetsPlaced.WithLabelValues(string(bet.Side)).Inc()

	if !e.cfg.MatchOnIntake {
		return bet, nil
	}
	if _, err := e.RunMatchingPass(ctx, bet.MarketID); err != nil && !errors.Is(err, domain.ErrMatchingClosed) {
		// a aposta já está aceita; a próxima passada do worker casa
		e.log.Warn("intake matching failed",
			zap.String("market_id", bet.MarketID),
			zap.String("bet_id", bet.ID),
			zap.Error(err),
		)
		return bet, nil
	}
	cur, err := e.GetBet(ctx, bet.ID)
	if err != nil {
		return bet, nil
	}
	return cur.Bet, nil
}

func (e *Engine) placeBet(ctx context.Context, in PlaceBetInput) (domain.Bet, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return domain.Bet{}, domain.ErrMissingUser
	}
	if !in.Side.Valid() {
		return domain.Bet{}, domain.ErrInvalidSide
	}
	if strings.TrimSpace(in.MarketID) == "" {
		return domain.Bet{}, fmt.Errorf("%w: market id required", domain.ErrValidation)
	}
	plan, err := splitter.Split(in.Amount, e.splitConfig())
	if err != nil {
		return domain.Bet{}, err
	}

	// checagem prévia para não debitar em mercado fechado
	m, err := e.GetMarket(ctx, in.MarketID)
	if err != nil {
		return domain.Bet{}, err
	}
	if err := e.checkBetting(m); err != nil {
		return domain.Bet{}, err
	}

	betID := e.newID()
	if err := e.ledger.Adjust(ctx, in.UserID, plan.Gross.Neg(), "bet:"+betID); err != nil {
		return domain.Bet{}, fmt.Errorf("debit bet %s: %w", betID, err)
	}

	var (
		bet    domain.Bet
		market *domain.Market
	)
	err = e.inTx(ctx, e.cfg.SplitRetry, func(tx store.Tx) error {
		cur, err := tx.GetMarketForUpdate(ctx, in.MarketID)
		if err != nil {
			return err
		}
		if err := e.checkBetting(*cur); err != nil {
			return err
		}
		now := e.now()
		q := e.quote(*cur, now)
		bet = domain.Bet{
			ID:            betID,
			MarketID:      in.MarketID,
			UserID:        in.UserID,
			Side:          in.Side,
			GrossAmount:   plan.Gross,
			Fee:           plan.Fee,
			NetAmount:     plan.Net,
			MatchedAmount: decimal.Zero,
			Odds:          q.For(in.Side),
			RefundAmount:  decimal.Zero,
			PayoutAmount:  decimal.Zero,
			Status:        domain.BetPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		bet.PotentialPayout = odds.PotentialPayout(bet.NetAmount, bet.Odds)

		if err := tx.InsertBet(ctx, &bet); err != nil {
			return err
		}
		if err := e.tracker.Created(ctx, tx, &bet); err != nil {
			return err
		}
		if _, err := e.splitter.Emit(ctx, tx, &bet, plan); err != nil {
			return err
		}

		delta := domain.MarketDelta{}
		if in.Side == domain.SidePump {
			delta.PumpPool = bet.NetAmount
		} else {
			delta.RugPool = bet.NetAmount
		}
		if market, err = tx.ApplyMarketDelta(ctx, in.MarketID, delta); err != nil {
			return err
		}
		next := e.quote(*market, now)
		if err := tx.SetMarketOdds(ctx, in.MarketID, next.Pump, next.Rug); err != nil {
			return err
		}
		market.PumpOdds, market.RugOdds = next.Pump, next.Rug
		return nil
	})
	if err != nil {
		e.compensate(ctx, in.UserID, plan.Gross, betID, err)
		return domain.Bet{}, err
	}

	e.log.Info("bet placed",
		zap.String("market_id", bet.MarketID),
		zap.String("bet_id", bet.ID),
		zap.String("user_id", bet.UserID),
		zap.String("side", string(bet.Side)),
		zap.String("gross", bet.GrossAmount.String()),
		zap.String("net", bet.NetAmount.String()),
		zap.String("odds", bet.Odds.String()),
		zap.Int("units", len(plan.Units)),
	)
	e.events.Publish(events.BetPlaced(bet, *market, e.now()))
	return bet, nil
}

// compensate devolve o débito de uma aposta que não chegou a ser gravada
func (e *Engine) compensate(ctx context.Context, userID string, gross decimal.Decimal, betID string, cause error) {
	if err := e.ledger.Adjust(context.WithoutCancel(ctx), userID, gross, "bet-rollback:"+betID); err != nil {
		e.log.Error("bet rollback credit failed",
			zap.String("bet_id", betID),
			zap.String("user_id", userID),
			zap.String("amount", gross.String()),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return
	}
	e.log.Warn("bet rolled back",
		zap.String("bet_id", betID),
		zap.String("user_id", userID),
		zap.Error(cause),
	)
}

func (e *Engine) checkBetting(m domain.Market) error {
	if m.MatchingState == domain.MatchingLocked {
		return fmt.Errorf("market %s: %w", m.ID, domain.ErrBettingClosed)
	}
	p, err := phase.ForMarket(m, e.now(), e.cfg.CutoffFraction)
	if err != nil {
		return err
	}
	if p != domain.PhaseBetting {
		return fmt.Errorf("market %s in %s: %w", m.ID, p, domain.ErrBettingClosed)
	}
	return nil
}

func (e *Engine) GetBet(ctx context.Context, id string) (BetDetails, error) {
	var out BetDetails
	err := e.inTx(ctx, e.cfg.TxRetry, func(tx store.Tx) error {
		b, err := tx.GetBet(ctx, id)
		if err != nil {
			return err
		}
		out.Bet = *b
		if out.Units, err = tx.ListUnits(ctx, id); err != nil {
			return err
		}
		out.History, err = tx.ListStatusHistory(ctx, id)
		return err
	})
	return out, err
}

// rejectReason é o rótulo de métrica para uma aposta recusada
func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrAmountBelowMinimum):
		return "below_minimum"
	case errors.Is(err, domain.ErrBetExceedsMaximum):
		return "above_maximum"
	case errors.Is(err, domain.ErrBettingClosed):
		return "betting_closed"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case store.IsTransient(err):
		return "transient"
	}
	return "error"
}
