package domain

import (
	"errors"
	"fmt"
)

// Categorias. Os erros específicos abaixo embrulham uma delas com %w.
var (
	ErrValidation         = errors.New("validation failed")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrOracleData         = errors.New("oracle data unavailable")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
)

// Validação: rejeitadas de forma síncrona, não retentáveis
var (
	ErrInvalidSide        = fmt.Errorf("%w: side must be PUMP or RUG", ErrValidation)
	ErrInvalidAmount      = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrAmountBelowMinimum = fmt.Errorf("%w: amount below minimum", ErrValidation)
	ErrBetExceedsMaximum  = fmt.Errorf("%w: bet exceeds maximum size", ErrValidation)
	ErrMissingUser        = fmt.Errorf("%w: user id required", ErrValidation)
	ErrInvalidMarketInput = fmt.Errorf("%w: invalid market schedule", ErrValidation)
	ErrInsufficientFunds  = fmt.Errorf("%w: insufficient funds", ErrValidation)
)

var (
	ErrMarketNotFound = fmt.Errorf("market %w", ErrNotFound)
	ErrBetNotFound    = fmt.Errorf("bet %w", ErrNotFound)

	ErrBettingClosed  = fmt.Errorf("%w: market is not accepting bets", ErrConflict)
	ErrMatchingClosed = fmt.Errorf("%w: matching window closed", ErrConflict)
	ErrInvalidPhase   = fmt.Errorf("%w: operation not allowed in current phase", ErrConflict)
)

// Invariantes: abortam e fazem rollback, nunca são corrigidas silenciosamente
var (
	ErrUnitSumMismatch         = fmt.Errorf("%w: unit sum does not match net amount", ErrInvariantViolation)
	ErrInvalidStatusTransition = fmt.Errorf("%w: invalid status transition", ErrInvariantViolation)
	ErrRefundExceedsStake      = fmt.Errorf("%w: refund total exceeds gross amount", ErrInvariantViolation)
	ErrMatchAmount             = fmt.Errorf("%w: match amount exceeds unit amount", ErrInvariantViolation)
)

// Dados externos: resolução deve ser refeita quando houver dados novos
var (
	ErrIncompleteSnapshot = fmt.Errorf("%w: incomplete snapshot", ErrOracleData)
	ErrOracleUnavailable  = fmt.Errorf("%w: oracle request failed", ErrOracleData)
)

// FieldError detalha qual campo do snapshot está ausente ou inválido
type FieldError struct {
	Which string // "initial" | "final"
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s snapshot: missing or invalid %s", e.Which, e.Field)
}

func (e *FieldError) Unwrap() error { return ErrIncompleteSnapshot }
