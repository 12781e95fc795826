package events

import "time"

// Tipos publicados no tópico "market_events"
const (
	TypeBetPlaced          = "bet_placed"
	TypeBetStatusChanged   = "bet_status_changed"
	TypeMatchCreated       = "match_created"
	TypeMarketPhaseChanged = "market_phase_changed"
	TypeRefundProcessed    = "refund_processed"
	TypeMarketResolved     = "market_resolved"
	TypePayoutCredited     = "payout_credited"
	TypeMarketSettled      = "market_settled"
)

// Envelope carrega um evento do motor. Só o campo do tipo correspondente vem
// preenchido; Market traz a visão ao vivo do mercado quando disponível.
// A chave Kafka é o MarketID.
type Envelope struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	MarketID string    `json:"market_id"`
	Ts       time.Time `json:"ts"`

	Market *MarketView   `json:"market,omitempty"`
	Bet    *BetView      `json:"bet,omitempty"`
	Status *StatusChange `json:"status,omitempty"`
	Match  *MatchView    `json:"match,omitempty"`
	Phase  *PhaseChange  `json:"phase,omitempty"`
	Refund *RefundView   `json:"refund,omitempty"`
	Payout *PayoutView   `json:"payout,omitempty"`
}
