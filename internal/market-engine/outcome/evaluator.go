package outcome

import (
	"github.com/shopspring/decimal"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
)

// divisionPrecision para as razões (liquidez, preço) antes da comparação
const divisionPrecision = 12

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

type Config struct {
	LiquidityWeight decimal.Decimal // 0.7
	PriceWeight     decimal.Decimal // 0.3
	PumpThreshold   decimal.Decimal // 1.15
	RugThreshold    decimal.Decimal // 0.85
	LiquidityFloor  decimal.Decimal // 0.1
}

// Result carrega o resultado e os números que o produziram
type Result struct {
	Outcome          domain.Outcome
	LiquidityChange  decimal.Decimal
	PriceChangePct   decimal.Decimal
	CombinedMovement decimal.Decimal
	FinalPrice       decimal.Decimal
}

type Evaluator struct {
	Cfg Config
}

// Evaluate compara o snapshot inicial com o final:
//
//	liquidityChange  = final.liquidity / initial.liquidity
//	priceChangePct   = (final.price - initial.price) / initial.price * 100
//	combinedMovement = wL*liquidityChange + wP*(1 + priceChangePct/100)
//
// liquidityChange <= floor é RUG independente do preço.
func (e Evaluator) Evaluate(initial, final domain.Snapshot) (Result, error) {
	if err := Validate("initial", initial); err != nil {
		return Result{}, err
	}
	if err := Validate("final", final); err != nil {
		return Result{}, err
	}

	liq := final.Liquidity.DivRound(*initial.Liquidity, divisionPrecision)
	pct := final.Price.Sub(*initial.Price).DivRound(*initial.Price, divisionPrecision).Mul(hundred)
	combined := e.Cfg.LiquidityWeight.Mul(liq).
		Add(e.Cfg.PriceWeight.Mul(one.Add(pct.Div(hundred))))

	res := Result{
		LiquidityChange:  liq,
		PriceChangePct:   pct,
		CombinedMovement: combined,
		FinalPrice:       *final.Price,
	}
	switch {
	case liq.LessThanOrEqual(e.Cfg.LiquidityFloor):
		res.Outcome = domain.OutcomeRug
	case combined.GreaterThanOrEqual(e.Cfg.PumpThreshold):
		res.Outcome = domain.OutcomePump
	case combined.LessThanOrEqual(e.Cfg.RugThreshold):
		res.Outcome = domain.OutcomeRug
	default:
		res.Outcome = domain.OutcomeHouse
	}
	return res, nil
}

// Validate exige todos os campos; liquidez e preço iniciais precisam ser
// positivos para servir de divisor.
func Validate(which string, s domain.Snapshot) error {
	switch {
	case s.Liquidity == nil || s.Liquidity.IsNegative():
		return &domain.FieldError{Which: which, Field: "liquidity"}
	case s.Price == nil || s.Price.IsNegative():
		return &domain.FieldError{Which: which, Field: "price"}
	case s.MarketCap == nil || s.MarketCap.IsNegative():
		return &domain.FieldError{Which: which, Field: "marketCap"}
	case s.BuyCount == nil || *s.BuyCount < 0:
		return &domain.FieldError{Which: which, Field: "buyCount"}
	case s.SellCount == nil || *s.SellCount < 0:
		return &domain.FieldError{Which: which, Field: "sellCount"}
	case s.Timestamp == nil || s.Timestamp.IsZero():
		return &domain.FieldError{Which: which, Field: "timestamp"}
	}
	if which == "initial" {
		if !s.Liquidity.IsPositive() {
			return &domain.FieldError{Which: which, Field: "liquidity"}
		}
		if !s.Price.IsPositive() {
			return &domain.FieldError{Which: which, Field: "price"}
		}
	}
	return nil
}
