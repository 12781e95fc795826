package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
)

var (
	// ErrRowLocked: a linha está travada por outro processo (SKIP LOCKED)
	ErrRowLocked = errors.New("row locked by another transaction")
	// ErrTransient: falha de serialização, deadlock ou conexão
	ErrTransient = errors.New("transient store error")
)

// IsTransient indica se a operação pode ser repetida
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

// Store abre transações. Toda mutação multi-linha acontece dentro de InTx;
// fn retornando erro faz rollback de tudo.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx reúne as operações do ledger dentro de uma transação
type Tx interface {
	// Mercados
	InsertMarket(ctx context.Context, m *domain.Market) error
	GetMarket(ctx context.Context, id string) (*domain.Market, error)
	// LockMarket usa FOR UPDATE SKIP LOCKED: retorna ErrRowLocked se outro processo detém a linha
	LockMarket(ctx context.Context, id string) (*domain.Market, error)
	// GetMarketForUpdate espera pelo lock (FOR UPDATE)
	GetMarketForUpdate(ctx context.Context, id string) (*domain.Market, error)
	UpdateMarket(ctx context.Context, m *domain.Market) error
	ApplyMarketDelta(ctx context.Context, id string, d domain.MarketDelta) (*domain.Market, error)
	SetMarketOdds(ctx context.Context, id string, pump, rug decimal.Decimal) error
	ListMarketsToProcess(ctx context.Context, limit int) ([]domain.Market, error)

	// Apostas
	InsertBet(ctx context.Context, b *domain.Bet) error
	GetBet(ctx context.Context, id string) (*domain.Bet, error)
	// LockBet: FOR UPDATE SKIP LOCKED, ErrRowLocked se contendida
	LockBet(ctx context.Context, id string) (*domain.Bet, error)
	// LockBetsByStatus: FOR UPDATE SKIP LOCKED, ordenado por created_at
	LockBetsByStatus(ctx context.Context, marketID string, statuses []domain.BetStatus, limit int) ([]domain.Bet, error)
	ListBetIDs(ctx context.Context, marketID string, statuses []domain.BetStatus) ([]string, error)
	UpdateBet(ctx context.Context, b *domain.Bet) error

	// Unidades
	InsertUnit(ctx context.Context, u *domain.BetUnit) error
	LockPendingUnits(ctx context.Context, betIDs []string) ([]domain.BetUnit, error)
	ListUnits(ctx context.Context, betID string) ([]domain.BetUnit, error)
	UpdateUnit(ctx context.Context, u *domain.BetUnit) error

	// Matches
	InsertMatch(ctx context.Context, m *domain.Match) error
	ListMatches(ctx context.Context, marketID string) ([]domain.Match, error)

	// Reembolsos
	InsertRefund(ctx context.Context, r *domain.Refund) error
	SumRefunds(ctx context.Context, betID string) (decimal.Decimal, error)

	// Histórico de status (append-only)
	InsertStatusHistory(ctx context.Context, h *domain.StatusHistory) error
	ListStatusHistory(ctx context.Context, betID string) ([]domain.StatusHistory, error)

	// Pagamentos
	InsertPayout(ctx context.Context, p *domain.Payout) error
	ListPayoutIDs(ctx context.Context, marketID string, status domain.PayoutStatus) ([]string, error)
	LockPayout(ctx context.Context, id string) (*domain.Payout, error)
	UpdatePayout(ctx context.Context, p *domain.Payout) error
}
