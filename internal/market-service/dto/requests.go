package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateMarketRequest struct {
	AssetRef        string    `json:"assetRef" validate:"required"`
	StartTime       time.Time `json:"startTime" validate:"required"`
	DurationMinutes int       `json:"durationMinutes" validate:"required,gt=0"`
}

type PlaceBetRequest struct {
	UserID string          `json:"userId" validate:"required"`
	Side   string          `json:"side" validate:"required,oneof=PUMP RUG"`
	Amount decimal.Decimal `json:"amount"`
	// odds que o cliente viu; divergência acima da tolerância retorna 409
	ExpectedOdds *decimal.Decimal `json:"expectedOdds,omitempty"`
}
