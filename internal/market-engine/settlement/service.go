package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/status"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store"
	"github.com/radieske/pump-rug-market-poc/internal/shared/retry"
)

// Ledger é o RPC de saldo externo. amount com sinal: positivo credita,
// negativo debita. ref é a chave de idempotência.
type Ledger interface {
	Adjust(ctx context.Context, userID string, amount decimal.Decimal, ref string) error
}

type Config struct {
	RefundConcurrency int
	PayoutConcurrency int
	TxRetry           retry.Policy
}

// Service executa os lotes de reembolso, liquidação e pagamento de um mercado
type Service struct {
	Store   store.Store
	Ledger  Ledger
	Tracker status.Tracker
	Clock   domain.Clock
	Cfg     Config
	Log     *zap.Logger
	NewID   func() string
}

// inTx executa fn em uma transação, repetindo conflitos de serialização
func (s *Service) inTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return retry.Do(ctx, s.Cfg.TxRetry, store.IsTransient, func(int) error {
		return s.Store.InTx(ctx, fn)
	})
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now()
}

func (s *Service) newID() string {
	if s.NewID == nil {
		return uuid.NewString()
	}
	return s.NewID()
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func limit(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
