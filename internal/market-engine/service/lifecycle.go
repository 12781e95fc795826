package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/events"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/matching"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/metrics"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/outcome"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/phase"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/settlement"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store"
)

// Resolution é o resultado gravado de um mercado
type Resolution struct {
	MarketID   string
	Outcome    domain.Outcome
	FinalPrice decimal.Decimal
	Detail     *outcome.Result // nil quando o mercado já estava resolvido
}

// SettleResult junta a liquidação e o lote de pagamentos que a segue
type SettleResult struct {
	Settle  *settlement.SettleReport // nil se o mercado já estava SETTLED
	Payouts *settlement.PayoutReport
}

// RunMatchingPass casa as unidades pendentes de um mercado. Mercado travado
// por outra passada volta Skipped sem erro; fora da janela volta
// domain.ErrMatchingClosed.
func (e *Engine) RunMatchingPass(ctx context.Context, marketID string) (matching.Result, error) {
	var res matching.Result
	err := e.inTx(ctx, e.cfg.TxRetry, func(tx store.Tx) error {
		var err error
		res, err = e.matcher.Run(ctx, tx, marketID)
		return err
	})
	switch {
	case errors.Is(err, domain.ErrMatchingClosed):
		e.metrics.MatchPasses.WithLabelValues("closed").Inc()
		return res, err
	case err != nil:
		e.metrics.MatchPasses.WithLabelValues("error").Inc()
		e.log.Error("matching pass failed", zap.String("market_id", marketID), zap.Error(err))
		return res, err
	case res.Skipped:
		e.metrics.MatchPasses.WithLabelValues("skipped").Inc()
		return res, nil
	}

	e.metrics.MatchPasses.WithLabelValues("ok").Inc()
	e.metrics.Matches.Add(float64(len(res.Matches)))
	e.metrics.Splits.Add(float64(res.Splits))
	metrics.AddDecimal(e.metrics.MatchedVolume, res.Volume)

	now := e.now()
	for _, m := range res.Matches {
		e.events.Publish(events.MatchCreated(m, &res.Market, now))
	}
	for _, c := range res.Changes {
		e.events.Publish(events.StatusChanged(c, "matched", now))
	}
	if len(res.Matches) > 0 {
		e.log.Info("matching pass",
			zap.String("market_id", marketID),
			zap.Int("matches", len(res.Matches)),
			zap.Int("splits", res.Splits),
			zap.String("volume", res.Volume.String()),
		)
	}
	return res, nil
}

// CheckPhase avança a fase do mercado e dispara os efeitos do cutoff e da
// resolução
func (e *Engine) CheckPhase(ctx context.Context, marketID string) (phase.Transition, error) {
	return e.scheduler.Check(ctx, marketID)
}

func (e *Engine) onTransition(tr phase.Transition) {
	e.metrics.Phases.WithLabelValues(string(tr.To)).Inc()
	m, err := e.GetMarket(context.Background(), tr.MarketID)
	if err != nil {
		e.log.Warn("phase event without market view", zap.String("market_id", tr.MarketID), zap.Error(err))
		m = domain.Market{ID: tr.MarketID, Phase: tr.To}
	}
	e.events.Publish(events.PhaseChanged(m, tr.From, tr.To, e.now()))
}

// RefundMarket devolve o remanescente não casado das apostas abertas. Só
// roda depois do cutoff.
func (e *Engine) RefundMarket(ctx context.Context, marketID string) (*settlement.RefundReport, error) {
	m, err := e.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if err := e.requireCutoff(m); err != nil {
		return nil, err
	}

	rep, err := e.settler.RefundUnmatched(ctx, marketID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	for _, r := range rep.Refunds {
		metrics.AddDecimal(e.metrics.RefundVolume, r.Amount)
		e.events.Publish(events.RefundProcessed(r, now))
	}
	for _, c := range rep.Changes {
		e.events.Publish(events.StatusChanged(c, "cutoff refund", now))
	}
	e.metrics.Refunds.WithLabelValues("ok").Add(float64(rep.Processed))
	e.metrics.Refunds.WithLabelValues("failed").Add(float64(len(rep.Failed)))
	if rep.Processed > 0 || len(rep.Failed) > 0 {
		e.log.Info("cutoff refunds",
			zap.String("market_id", marketID),
			zap.Int("processed", rep.Processed),
			zap.Int("skipped", rep.Skipped),
			zap.Int("failed", len(rep.Failed)),
		)
	}
	return rep, nil
}

func (e *Engine) requireCutoff(m domain.Market) error {
	if m.MatchingState == domain.MatchingLocked || m.Phase.Rank() >= domain.PhaseObservation.Rank() {
		return nil
	}
	p, err := phase.ForMarket(m, e.now(), e.cfg.CutoffFraction)
	if err != nil {
		return err
	}
	if p.Rank() < domain.PhaseObservation.Rank() {
		return fmt.Errorf("market %s in %s: %w", m.ID, p, domain.ErrInvalidPhase)
	}
	return nil
}

// ResolveMarket busca o snapshot final, avalia o resultado e grava. Dados
// incompletos do oráculo voltam como domain.ErrOracleData e nada é gravado.
// Chamadas repetidas devolvem o resultado já gravado.
func (e *Engine) ResolveMarket(ctx context.Context, marketID string) (Resolution, error) {
	m, err := e.GetMarket(ctx, marketID)
	if err != nil {
		return Resolution{}, err
	}
	if m.Outcome != "" {
		return resolutionOf(m), nil
	}
	p, err := phase.ForMarket(m, e.now(), e.cfg.CutoffFraction)
	if err != nil {
		return Resolution{}, err
	}
	if p.Rank() < domain.PhaseResolved.Rank() {
		return Resolution{}, fmt.Errorf("market %s in %s: %w", marketID, p, domain.ErrInvalidPhase)
	}

	final, err := e.oracle.FetchSnapshot(ctx, m.AssetRef)
	if err != nil {
		return Resolution{}, fmt.Errorf("final snapshot of market %s: %w", marketID, err)
	}
	res, err := e.evaluator.Evaluate(m.InitialSnapshot, final)
	if err != nil {
		e.log.Warn("market resolution deferred",
			zap.String("market_id", marketID),
			zap.String("asset_ref", m.AssetRef),
			zap.Error(err),
		)
		return Resolution{}, fmt.Errorf("market %s: %w", marketID, err)
	}

	var (
		cur     *domain.Market
		already bool
	)
	err = e.inTx(ctx, e.cfg.TxRetry, func(tx store.Tx) error {
		var err error
		if cur, err = tx.GetMarketForUpdate(ctx, marketID); err != nil {
			return err
		}
		if cur.Outcome != "" {
			already = true
			return nil
		}
		now := e.now()
		cur.FinalSnapshot = &final
		cur.FinalPrice = decimal.NewNullDecimal(res.FinalPrice)
		cur.Outcome = res.Outcome
		cur.ResolvedAt = &now
		cur.MatchingState = domain.MatchingLocked
		if cur.Phase.Rank() < domain.PhaseResolved.Rank() {
			cur.Phase = domain.PhaseResolved
		}
		cur.UpdatedAt = now
		return tx.UpdateMarket(ctx, cur)
	})
	if err != nil {
		return Resolution{}, err
	}
	if already {
		return resolutionOf(*cur), nil
	}

	e.log.Info("market resolved",
		zap.String("market_id", marketID),
		zap.String("outcome", string(res.Outcome)),
		zap.String("liquidity_change", res.LiquidityChange.String()),
		zap.String("price_change_pct", res.PriceChangePct.String()),
		zap.String("combined_movement", res.CombinedMovement.String()),
		zap.String("final_price", res.FinalPrice.String()),
	)
	e.events.Publish(events.MarketResolved(*cur, e.now()))

	out := resolutionOf(*cur)
	out.Detail = &res
	return out, nil
}

func resolutionOf(m domain.Market) Resolution {
	return Resolution{MarketID: m.ID, Outcome: m.Outcome, FinalPrice: m.FinalPrice.Decimal}
}

// SettleMarket reembolsa remanescentes, resolve se preciso, liquida as
// apostas casadas, marca o mercado SETTLED e credita os pagamentos. Com o
// mercado já SETTLED apenas reprocessa pagamentos pendentes.
func (e *Engine) SettleMarket(ctx context.Context, marketID string) (SettleResult, error) {
	m, err := e.GetMarket(ctx, marketID)
	if err != nil {
		return SettleResult{}, err
	}
	if m.Phase == domain.PhaseSettled {
		rep, err := e.payPending(ctx, marketID)
		return SettleResult{Payouts: rep}, err
	}

	res, err := e.ResolveMarket(ctx, marketID)
	if err != nil {
		return SettleResult{}, err
	}
	refunds, err := e.RefundMarket(ctx, marketID)
	if err != nil {
		return SettleResult{}, err
	}
	if err := refunds.Err(); err != nil {
		return SettleResult{}, fmt.Errorf("market %s has unrefunded bets: %w", marketID, err)
	}

	rep, err := e.settler.Settle(ctx, marketID, res.Outcome)
	if err != nil {
		return SettleResult{}, err
	}

	var cur *domain.Market
	err = e.inTx(ctx, e.cfg.TxRetry, func(tx store.Tx) error {
		var err error
		if cur, err = tx.GetMarketForUpdate(ctx, marketID); err != nil {
			return err
		}
		now := e.now()
		cur.Phase = domain.PhaseSettled
		cur.SettledAt = &now
		cur.UpdatedAt = now
		return tx.UpdateMarket(ctx, cur)
	})
	if err != nil {
		return SettleResult{Settle: rep}, err
	}

	e.metrics.Settlements.WithLabelValues(string(res.Outcome)).Inc()
	now := e.now()
	for _, c := range rep.Changes {
		e.events.Publish(events.StatusChanged(c, "settled", now))
	}
	e.events.Publish(events.MarketSettled(*cur, now))

	pay, err := e.payPending(ctx, marketID)
	return SettleResult{Settle: rep, Payouts: pay}, err
}

func (e *Engine) payPending(ctx context.Context, marketID string) (*settlement.PayoutReport, error) {
	rep, err := e.settler.PayPending(ctx, marketID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	for _, p := range rep.Paid {
		e.events.Publish(events.PayoutCredited(p, now))
	}
	e.metrics.Payouts.WithLabelValues("paid").Add(float64(len(rep.Paid)))
	e.metrics.Payouts.WithLabelValues("failed").Add(float64(len(rep.Failed)))
	return rep, nil
}
