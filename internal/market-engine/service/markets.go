package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/events"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/odds"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/outcome"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/phase"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store"
)

type CreateMarketInput struct {
	AssetRef        string
	StartTime       time.Time
	DurationMinutes int
}

// CreateMarket valida a agenda, captura o snapshot inicial do oráculo e
// grava o mercado com odds na base.
func (e *Engine) CreateMarket(ctx context.Context, in CreateMarketInput) (domain.Market, error) {
	asset := strings.TrimSpace(in.AssetRef)
	if asset == "" {
		return domain.Market{}, fmt.Errorf("%w: asset ref required", domain.ErrInvalidMarketInput)
	}
	if err := phase.Validate(in.StartTime, in.DurationMinutes, e.cfg.CutoffFraction); err != nil {
		return domain.Market{}, err
	}
	now := e.now()
	ph, err := phase.At(in.StartTime, in.DurationMinutes, now, e.cfg.CutoffFraction)
	if err != nil {
		return domain.Market{}, err
	}
	if ph.Rank() > domain.PhaseBetting.Rank() {
		return domain.Market{}, fmt.Errorf("%w: betting window already closed", domain.ErrInvalidMarketInput)
	}

	snap, err := e.oracle.FetchSnapshot(ctx, asset)
	if err != nil {
		return domain.Market{}, fmt.Errorf("initial snapshot of %s: %w", asset, err)
	}
	if err := outcome.Validate("initial", snap); err != nil {
		return domain.Market{}, err
	}

	m := domain.Market{
		ID:              e.newID(),
		AssetRef:        asset,
		StartTime:       in.StartTime.UTC(),
		DurationMinutes: in.DurationMinutes,
		Phase:           ph,
		MatchingState:   domain.MatchingOpen,
		PumpOdds:        e.cfg.Odds.Base,
		RugOdds:         e.cfg.Odds.Base,
		InitialSnapshot: snap,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.inTx(ctx, e.cfg.TxRetry, func(tx store.Tx) error {
		return tx.InsertMarket(ctx, &m)
	}); err != nil {
		return domain.Market{}, err
	}

	e.log.Info("market created",
		zap.String("market_id", m.ID),
		zap.String("asset_ref", asset),
		zap.Time("start_time", m.StartTime),
		zap.Int("duration_minutes", m.DurationMinutes),
		zap.String("phase", string(ph)),
	)
	e.events.Publish(events.PhaseChanged(m, "", ph, now))
	return m, nil
}

func (e *Engine) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	var m *domain.Market
	err := e.inTx(ctx, e.cfg.TxRetry, func(tx store.Tx) error {
		var err error
		m, err = tx.GetMarket(ctx, id)
		return err
	})
	if err != nil {
		return domain.Market{}, err
	}
	return *m, nil
}

// QuoteOdds calcula as odds correntes a partir dos pools e do tempo restante
// da janela de apostas
func (e *Engine) QuoteOdds(ctx context.Context, marketID string) (odds.Quote, error) {
	m, err := e.GetMarket(ctx, marketID)
	if err != nil {
		return odds.Quote{}, err
	}
	return e.quote(m, e.now()), nil
}

func (e *Engine) quote(m domain.Market, now time.Time) odds.Quote {
	remaining := phase.BettingRemaining(m, now, e.cfg.CutoffFraction)
	return odds.Calculate(m.PumpPool, m.RugPool, remaining, e.oddsConfig())
}

// ListMarketsToProcess devolve mercados não liquidados ou com pagamentos
// pendentes, entrada do worker
func (e *Engine) ListMarketsToProcess(ctx context.Context, limit int) ([]domain.Market, error) {
	var out []domain.Market
	err := e.inTx(ctx, e.cfg.TxRetry, func(tx store.Tx) error {
		var err error
		out, err = tx.ListMarketsToProcess(ctx, limit)
		return err
	})
	return out, err
}
