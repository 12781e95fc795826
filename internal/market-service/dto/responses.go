package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type MarketResponse struct {
	ID              string           `json:"id"`
	AssetRef        string           `json:"assetRef"`
	StartTime       time.Time        `json:"startTime"`
	EndTime         time.Time        `json:"endTime"`
	DurationMinutes int              `json:"durationMinutes"`
	Phase           string           `json:"phase"`
	MatchingState   string           `json:"matchingState"`
	PumpPool        decimal.Decimal  `json:"pumpPool"`
	RugPool         decimal.Decimal  `json:"rugPool"`
	PumpMatched     decimal.Decimal  `json:"pumpMatched"`
	RugMatched      decimal.Decimal  `json:"rugMatched"`
	PumpOdds        decimal.Decimal  `json:"pumpOdds"`
	RugOdds         decimal.Decimal  `json:"rugOdds"`
	Outcome         string           `json:"outcome,omitempty"`
	FinalPrice      *decimal.Decimal `json:"finalPrice,omitempty"`
}

type OddsResponse struct {
	MarketID string          `json:"marketId"`
	Pump     decimal.Decimal `json:"pump"`
	Rug      decimal.Decimal `json:"rug"`
}

type BetResponse struct {
	BetID           string          `json:"betId"`
	MarketID        string          `json:"marketId"`
	UserID          string          `json:"userId"`
	Side            string          `json:"side"`
	GrossAmount     decimal.Decimal `json:"grossAmount"`
	Fee             decimal.Decimal `json:"fee"`
	NetAmount       decimal.Decimal `json:"netAmount"`
	MatchedAmount   decimal.Decimal `json:"matchedAmount"`
	Odds            decimal.Decimal `json:"odds"`
	PotentialPayout decimal.Decimal `json:"potentialPayout"`
	RefundAmount    decimal.Decimal `json:"refundAmount"`
	PayoutAmount    decimal.Decimal `json:"payoutAmount"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
}

type UnitResponse struct {
	UnitID     string          `json:"unitId"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status"`
	PeerUnitID string          `json:"peerUnitId,omitempty"`
}

type HistoryResponse struct {
	From          string          `json:"from,omitempty"`
	To            string          `json:"to"`
	MatchedAmount decimal.Decimal `json:"matchedAmount"`
	Reason        string          `json:"reason"`
	At            time.Time       `json:"at"`
}

type BetDetailsResponse struct {
	BetResponse
	Units   []UnitResponse    `json:"units"`
	History []HistoryResponse `json:"history"`
}

type MatchPassResponse struct {
	MarketID string          `json:"marketId"`
	Skipped  bool            `json:"skipped"`
	Matches  int             `json:"matches"`
	Splits   int             `json:"splits"`
	Volume   decimal.Decimal `json:"volume"`
	Odds     OddsResponse    `json:"odds"`
}

type PhaseResponse struct {
	MarketID string `json:"marketId"`
	From     string `json:"from"`
	To       string `json:"to"`
	Changed  bool   `json:"changed"`
	Skipped  bool   `json:"skipped"`
}

type ResolutionResponse struct {
	MarketID         string           `json:"marketId"`
	Outcome          string           `json:"outcome"`
	FinalPrice       decimal.Decimal  `json:"finalPrice"`
	LiquidityChange  *decimal.Decimal `json:"liquidityChange,omitempty"`
	PriceChangePct   *decimal.Decimal `json:"priceChangePct,omitempty"`
	CombinedMovement *decimal.Decimal `json:"combinedMovement,omitempty"`
}

type FailureResponse struct {
	ID     string `json:"id"`
	UserID string `json:"userId,omitempty"`
	Error  string `json:"error"`
}

type BatchResponse struct {
	MarketID  string            `json:"marketId"`
	Processed int               `json:"processed"`
	Skipped   int               `json:"skipped"`
	Failed    []FailureResponse `json:"failed,omitempty"`
}

type SettlementResponse struct {
	MarketID string         `json:"marketId"`
	Outcome  string         `json:"outcome,omitempty"`
	Winners  int            `json:"winners"`
	Losers   int            `json:"losers"`
	Payouts  *BatchResponse `json:"payouts,omitempty"`
}

type ErrorResponse struct {
	Error       string        `json:"error"`
	CurrentOdds *OddsResponse `json:"currentOdds,omitempty"`
}
