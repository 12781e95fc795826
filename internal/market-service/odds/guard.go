package odds

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	engineodds "github.com/radieske/pump-rug-market-poc/internal/market-engine/odds"
)

// ErrOddsChanged: as odds correntes divergem das vistas pelo cliente
var ErrOddsChanged = fmt.Errorf("%w: odds changed", domain.ErrConflict)

type Quoter interface {
	QuoteOdds(ctx context.Context, marketID string) (engineodds.Quote, error)
}

// Guard compara as odds que o cliente viu com as correntes
type Guard struct {
	Quoter    Quoter
	Tolerance decimal.Decimal // diferença absoluta aceita
}

func NewGuard(q Quoter, tolerance decimal.Decimal) *Guard {
	return &Guard{Quoter: q, Tolerance: tolerance}
}

// Check retorna ErrOddsChanged junto com a cotação corrente quando
// |corrente - esperada| > Tolerance. expected nil desliga a checagem.
func (g *Guard) Check(ctx context.Context, marketID string, side domain.Side, expected *decimal.Decimal) (engineodds.Quote, error) {
	if expected == nil {
		return engineodds.Quote{}, nil
	}
	q, err := g.Quoter.QuoteOdds(ctx, marketID)
	if err != nil {
		return engineodds.Quote{}, err
	}
	cur := q.For(side)
	if cur.Sub(*expected).Abs().GreaterThan(g.Tolerance) {
		return q, fmt.Errorf("%w: expected %s, current %s", ErrOddsChanged, expected, cur)
	}
	return q, nil
}

func IsOddsChanged(err error) bool { return errors.Is(err, ErrOddsChanged) }
