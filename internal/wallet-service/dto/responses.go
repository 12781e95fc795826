package dto

import "github.com/shopspring/decimal"

type WalletResponse struct {
	UserID   string          `json:"userId"`
	WalletID string          `json:"walletId"`
	Balance  decimal.Decimal `json:"balance"`
}

type AdjustResponse struct {
	WalletResponse
	Applied bool `json:"applied"` // false quando a ref já tinha sido aplicada
}
