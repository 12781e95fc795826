package dto

import "github.com/shopspring/decimal"

type DepositRequest struct {
	UserID      string          `json:"userId"`
	Amount      decimal.Decimal `json:"amount"`
	ExternalRef string          `json:"external_ref,omitempty"` // opcional p/ idempotência simples
}

// AdjustRequest credita (amount > 0) ou debita (amount < 0) o saldo.
// external_ref é obrigatório: a mesma ref aplicada duas vezes é ignorada.
type AdjustRequest struct {
	UserID      string          `json:"userId"`
	Amount      decimal.Decimal `json:"amount"`
	ExternalRef string          `json:"external_ref"` // ex: bet:<id>, refund:<betId>, payout:<id>
	Reason      string          `json:"reason,omitempty"`
}
