package events

import "github.com/shopspring/decimal"

type BetView struct {
	BetID           string          `json:"bet_id"`
	UserID          string          `json:"user_id"`
	Side            string          `json:"side"`
	GrossAmount     decimal.Decimal `json:"gross_amount"`
	NetAmount       decimal.Decimal `json:"net_amount"`
	MatchedAmount   decimal.Decimal `json:"matched_amount"`
	Odds            decimal.Decimal `json:"odds"`
	PotentialPayout decimal.Decimal `json:"potential_payout"`
	Status          string          `json:"status"`
}

// StatusChange acompanha bet_status_changed
type StatusChange struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}
