package odds

import (
	"github.com/shopspring/decimal"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
)

// Places é a precisão das odds publicadas
const Places int32 = 4

type Config struct {
	Base      decimal.Decimal
	Min       decimal.Decimal
	Max       decimal.Decimal
	TimeBonus decimal.Decimal
}

// Quote traz o multiplicador corrente de cada lado
type Quote struct {
	Pump decimal.Decimal `json:"pump"`
	Rug  decimal.Decimal `json:"rug"`
}

func (q Quote) For(s domain.Side) decimal.Decimal {
	if s == domain.SidePump {
		return q.Pump
	}
	return q.Rug
}

// Calculate deriva as odds do desequilíbrio entre os pools:
//
//	raw(side) = (pump + rug) / pool(side)
//	odds      = clamp(raw * (1 + timeBonus*remaining), min, max)
//
// Pools vazios usam Base; lado vazio contra lado com volume usa Max.
// remaining é a fração [0,1] da janela de apostas ainda aberta.
func Calculate(pumpPool, rugPool decimal.Decimal, remaining float64, cfg Config) Quote {
	switch {
	case remaining < 0:
		remaining = 0
	case remaining > 1:
		remaining = 1
	}
	bonus := decimal.NewFromInt(1).Add(cfg.TimeBonus.Mul(decimal.NewFromFloat(remaining)))
	total := pumpPool.Add(rugPool)

	return Quote{
		Pump: cfg.finish(cfg.raw(pumpPool, total).Mul(bonus)),
		Rug:  cfg.finish(cfg.raw(rugPool, total).Mul(bonus)),
	}
}

func (c Config) raw(side, total decimal.Decimal) decimal.Decimal {
	switch {
	case !total.IsPositive():
		return c.Base
	case !side.IsPositive():
		return c.Max
	}
	return total.DivRound(side, 12)
}

func (c Config) finish(v decimal.Decimal) decimal.Decimal {
	if c.Min.IsPositive() && v.LessThan(c.Min) {
		v = c.Min
	}
	if c.Max.IsPositive() && v.GreaterThan(c.Max) {
		v = c.Max
	}
	return v.Round(Places)
}

// PotentialPayout é net * odds arredondado na escala monetária
func PotentialPayout(net, odds decimal.Decimal) decimal.Decimal {
	return domain.Round(net.Mul(odds))
}
