package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/events"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/matching"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/metrics"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/odds"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/outcome"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/phase"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/settlement"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/splitter"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/status"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store"
	"github.com/radieske/pump-rug-market-poc/internal/shared/config"
	"github.com/radieske/pump-rug-market-poc/internal/shared/retry"
)

// Oracle fornece snapshots de liquidez/preço de um ativo
type Oracle interface {
	FetchSnapshot(ctx context.Context, assetRef string) (domain.Snapshot, error)
}

// Deps são os colaboradores externos do motor
type Deps struct {
	Store   store.Store
	Ledger  settlement.Ledger
	Oracle  Oracle
	Events  events.Publisher // nil descarta
	Metrics *metrics.Engine  // nil usa coletores não registrados
	Clock   domain.Clock
	Log     *zap.Logger
	NewID   func() string
}

// Engine é a fachada do ciclo de vida de apostas: colocação, casamento,
// fases, resolução, reembolso e liquidação.
type Engine struct {
	cfg     config.Engine
	store   store.Store
	ledger  settlement.Ledger
	oracle  Oracle
	events  events.Publisher
	metrics *metrics.Engine
	clock   domain.Clock
	log     *zap.Logger
	newID   func() string

	tracker   status.Tracker
	splitter  *splitter.Splitter
	matcher   *matching.Engine
	settler   *settlement.Service
	scheduler *phase.Scheduler
	evaluator outcome.Evaluator
}

func New(cfg config.Engine, d Deps) *Engine {
	e := &Engine{
		cfg:     cfg,
		store:   d.Store,
		ledger:  d.Ledger,
		oracle:  d.Oracle,
		events:  d.Events,
		metrics: d.Metrics,
		clock:   d.Clock,
		log:     d.Log,
		newID:   d.NewID,
	}
	if e.events == nil {
		e.events = events.Discard{}
	}
	if e.metrics == nil {
		e.metrics = metrics.New()
	}
	if e.clock == nil {
		e.clock = domain.SystemClock{}
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}

	e.tracker = status.Tracker{Clock: e.clock}
	e.splitter = &splitter.Splitter{NewID: e.newID, Clock: e.clock}
	e.matcher = &matching.Engine{
		Cfg: matching.Config{
			MinUnit:    cfg.MinUnitSize,
			Cutoff:     cfg.CutoffFraction,
			BatchLimit: cfg.MatchBatchLimit,
			Odds:       e.oddsConfig(),
		},
		Tracker: e.tracker,
		Clock:   e.clock,
		NewID:   e.newID,
		Log:     e.log.Named("matching"),
	}
	e.settler = &settlement.Service{
		Store:   e.store,
		Ledger:  e.ledger,
		Tracker: e.tracker,
		Clock:   e.clock,
		Cfg: settlement.Config{
			RefundConcurrency: cfg.RefundConcurrency,
			PayoutConcurrency: cfg.PayoutConcurrency,
			TxRetry:           cfg.TxRetry,
		},
		Log:   e.log.Named("settlement"),
		NewID: e.newID,
	}
	e.scheduler = &phase.Scheduler{
		Store:        e.store,
		Hooks:        hooks{e: e},
		Clock:        e.clock,
		Cutoff:       cfg.CutoffFraction,
		Retry:        cfg.TxRetry,
		Log:          e.log.Named("phase"),
		OnTransition: e.onTransition,
	}
	e.evaluator = outcome.Evaluator{Cfg: outcome.Config{
		LiquidityWeight: cfg.Outcome.LiquidityWeight,
		PriceWeight:     cfg.Outcome.PriceWeight,
		PumpThreshold:   cfg.Outcome.PumpThreshold,
		RugThreshold:    cfg.Outcome.RugThreshold,
		LiquidityFloor:  cfg.Outcome.LiquidityFloor,
	}}
	return e
}

func (e *Engine) oddsConfig() odds.Config {
	return odds.Config{
		Base:      e.cfg.Odds.Base,
		Min:       e.cfg.Odds.Min,
		Max:       e.cfg.Odds.Max,
		TimeBonus: e.cfg.Odds.TimeBonus,
	}
}

func (e *Engine) splitConfig() splitter.Config {
	return splitter.Config{
		FeeRate:  e.cfg.FeeRate,
		UnitSize: e.cfg.UnitSize,
		MinBet:   e.cfg.MinBetAmount,
		MaxBet:   e.cfg.MaxBetAmount,
		MaxUnits: e.cfg.MaxUnitsPerBet,
	}
}

// inTx repete fn em conflitos de serialização/deadlock conforme p
func (e *Engine) inTx(ctx context.Context, p retry.Policy, fn func(tx store.Tx) error) error {
	return retry.Do(ctx, p, store.IsTransient, func(attempt int) error {
		if attempt > 0 {
			e.metrics.TxRetries.Inc()
		}
		return e.store.InTx(ctx, fn)
	})
}

func (e *Engine) now() time.Time { return e.clock.Now() }

// hooks liga o Scheduler aos lotes de reembolso e liquidação
type hooks struct {
	e *Engine
}

// OnCutoff falha se algum reembolso falhou, o que adia a liquidação para o
// próximo tick
func (h hooks) OnCutoff(ctx context.Context, m domain.Market) error {
	rep, err := h.e.RefundMarket(ctx, m.ID)
	if err != nil {
		return err
	}
	return rep.Err()
}

func (h hooks) OnResolve(ctx context.Context, m domain.Market) error {
	_, err := h.e.SettleMarket(ctx, m.ID)
	return err
}

func (h hooks) OnSettled(ctx context.Context, m domain.Market) error {
	rep, err := h.e.payPending(ctx, m.ID)
	if err != nil {
		return err
	}
	return rep.Err()
}
