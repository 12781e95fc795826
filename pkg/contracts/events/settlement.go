package events

import "github.com/shopspring/decimal"

type MatchView struct {
	MatchID   string          `json:"match_id"`
	PumpBetID string          `json:"pump_bet_id"`
	RugBetID  string          `json:"rug_bet_id"`
	Amount    decimal.Decimal `json:"amount"`
	PumpOdds  decimal.Decimal `json:"pump_odds"`
	RugOdds   decimal.Decimal `json:"rug_odds"`
}

type RefundView struct {
	RefundID string          `json:"refund_id"`
	BetID    string          `json:"bet_id"`
	UserID   string          `json:"user_id"`
	Amount   decimal.Decimal `json:"amount"`
}

type PayoutView struct {
	PayoutID string          `json:"payout_id"`
	UserID   string          `json:"user_id"`
	Amount   decimal.Decimal `json:"amount"`
	BetIDs   []string        `json:"bet_ids"`
	Status   string          `json:"status"`
}
