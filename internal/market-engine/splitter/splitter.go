package splitter

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store"
)

type Config struct {
	FeeRate  decimal.Decimal
	UnitSize decimal.Decimal
	MinBet   decimal.Decimal
	MaxBet   decimal.Decimal
	MaxUnits int
}

// Plan é o resultado do cálculo de taxa e fatiamento de uma aposta
type Plan struct {
	Gross decimal.Decimal
	Fee   decimal.Decimal
	Net   decimal.Decimal
	Units []decimal.Decimal
}

// Split calcula fee = round(gross*feeRate, 6), net = round(gross-fee, 6) e
// fatia net em unidades de min(restante, UnitSize).
func Split(gross decimal.Decimal, cfg Config) (Plan, error) {
	if !gross.IsPositive() {
		return Plan{}, domain.ErrInvalidAmount
	}
	if gross.LessThan(cfg.MinBet) {
		return Plan{}, fmt.Errorf("%w: %s < %s", domain.ErrAmountBelowMinimum, gross, cfg.MinBet)
	}
	if cfg.MaxBet.IsPositive() && gross.GreaterThan(cfg.MaxBet) {
		return Plan{}, fmt.Errorf("%w: %s > %s", domain.ErrBetExceedsMaximum, gross, cfg.MaxBet)
	}

	fee := domain.Round(gross.Mul(cfg.FeeRate))
	net := domain.Round(gross.Sub(fee))

	var units []decimal.Decimal
	remaining := net
	for !remaining.LessThan(domain.Epsilon) {
		if len(units) == cfg.MaxUnits {
			return Plan{}, fmt.Errorf("%w: more than %d units", domain.ErrBetExceedsMaximum, cfg.MaxUnits)
		}
		u := decimal.Min(remaining, cfg.UnitSize)
		units = append(units, u)
		remaining = remaining.Sub(u)
	}

	if err := Verify(units, net); err != nil {
		return Plan{}, err
	}
	return Plan{Gross: gross, Fee: fee, Net: net, Units: units}, nil
}

// Verify confere que a soma das unidades é igual ao líquido dentro de Epsilon
func Verify(units []decimal.Decimal, net decimal.Decimal) error {
	sum := domain.Sum(units...)
	if !domain.ApproxEqual(sum, net) {
		return fmt.Errorf("%w: units=%s net=%s", domain.ErrUnitSumMismatch, sum, net)
	}
	return nil
}

// Splitter persiste as unidades de uma aposta
type Splitter struct {
	NewID func() string
	Clock domain.Clock
}

// Emit insere cada unidade individualmente na transação tx e confere a soma
// ao final; qualquer erro aborta a transação inteira do chamador.
func (s *Splitter) Emit(ctx context.Context, tx store.Tx, bet *domain.Bet, plan Plan) ([]domain.BetUnit, error) {
	now := s.now()
	units := make([]domain.BetUnit, 0, len(plan.Units))
	emitted := make([]decimal.Decimal, 0, len(plan.Units))

	for i, amt := range plan.Units {
		u := domain.BetUnit{
			ID:        s.NewID(),
			BetID:     bet.ID,
			MarketID:  bet.MarketID,
			Side:      bet.Side,
			Amount:    amt,
			Status:    domain.UnitPending,
			CreatedAt: now,
		}
		if err := tx.InsertUnit(ctx, &u); err != nil {
			return nil, fmt.Errorf("insert unit %d of bet %s: %w", i, bet.ID, err)
		}
		units = append(units, u)
		emitted = append(emitted, u.Amount)
	}

	if err := Verify(emitted, bet.NetAmount); err != nil {
		return nil, fmt.Errorf("bet %s: %w", bet.ID, err)
	}
	return units, nil
}

func (s *Splitter) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now()
}
