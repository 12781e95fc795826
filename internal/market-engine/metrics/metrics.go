package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Engine agrupa os coletores do motor de mercado
type Engine struct {
	BetsPlaced    *prometheus.CounterVec // side
	BetsRejected  *prometheus.CounterVec // reason
	Matches       prometheus.Counter
	MatchedVolume prometheus.Counter
	Splits        prometheus.Counter
	MatchPasses   *prometheus.CounterVec // result: ok|skipped|closed|error
	Refunds       *prometheus.CounterVec // result: ok|failed
	RefundVolume  prometheus.Counter
	Settlements   *prometheus.CounterVec // outcome
	Payouts       *prometheus.CounterVec // result: paid|failed
	Phases        *prometheus.CounterVec // to
	EventsDropped prometheus.Counter
	TxRetries     prometheus.Counter
}

func New() *Engine {
	return &Engine{
		BetsPlaced:    prometheus.NewCounterVec(prometheus.CounterOpts{Name: "market_bets_placed_total", Help: "apostas aceitas"}, []string{"side"}),
		BetsRejected:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "market_bets_rejected_total", Help: "apostas rejeitadas"}, []string{"reason"}),
		Matches:       prometheus.NewCounter(prometheus.CounterOpts{Name: "market_matches_total", Help: "pares PUMP/RUG criados"}),
		MatchedVolume: prometheus.NewCounter(prometheus.CounterOpts{Name: "market_matched_volume_total", Help: "volume casado por lado"}),
		Splits:        prometheus.NewCounter(prometheus.CounterOpts{Name: "market_unit_splits_total", Help: "unidades divididas no casamento"}),
		MatchPasses:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "market_match_passes_total", Help: "passadas de casamento"}, []string{"result"}),
		Refunds:       prometheus.NewCounterVec(prometheus.CounterOpts{Name: "market_refunds_total", Help: "reembolsos no cutoff"}, []string{"result"}),
		RefundVolume:  prometheus.NewCounter(prometheus.CounterOpts{Name: "market_refund_volume_total", Help: "valor reembolsado"}),
		Settlements:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "market_settlements_total", Help: "mercados liquidados"}, []string{"outcome"}),
		Payouts:       prometheus.NewCounterVec(prometheus.CounterOpts{Name: "market_payouts_total", Help: "créditos de pagamento"}, []string{"result"}),
		Phases:        prometheus.NewCounterVec(prometheus.CounterOpts{Name: "market_phase_transitions_total", Help: "transições de fase"}, []string{"to"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{Name: "market_events_dropped_total", Help: "eventos descartados com outbox cheio"}),
		TxRetries:     prometheus.NewCounter(prometheus.CounterOpts{Name: "market_tx_retries_total", Help: "transações repetidas por conflito"}),
	}
}

// MustRegister registra todos os coletores em reg
func (e *Engine) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		e.BetsPlaced, e.BetsRejected, e.Matches, e.MatchedVolume, e.Splits,
		e.MatchPasses, e.Refunds, e.RefundVolume, e.Settlements, e.Payouts,
		e.Phases, e.EventsDropped, e.TxRetries,
	)
}

// AddDecimal soma um valor monetário a um contador
func AddDecimal(c prometheus.Counter, d decimal.Decimal) {
	if f, _ := d.Float64(); f > 0 {
		c.Add(f)
	}
}
