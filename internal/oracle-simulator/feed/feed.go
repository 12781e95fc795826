package feed

import (
	"errors"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
)

// Scenario enviesa o passeio aleatório de um ativo
type Scenario string

const (
	ScenarioFlat     Scenario = "flat"
	ScenarioPump     Scenario = "pump"
	ScenarioRug      Scenario = "rug"
	ScenarioBlackout Scenario = "blackout" // snapshot sem liquidez, simula dado incompleto
)

var ErrUnknownScenario = errors.New("unknown scenario")

func ParseScenario(s string) (Scenario, error) {
	switch sc := Scenario(strings.ToLower(strings.TrimSpace(s))); sc {
	case ScenarioFlat, ScenarioPump, ScenarioRug, ScenarioBlackout:
		return sc, nil
	}
	return "", ErrUnknownScenario
}

// drift por passo: multiplicador de preço e de liquidez
type drift struct {
	price, liquidity float64
}

var drifts = map[Scenario]drift{
	ScenarioFlat:     {price: 1, liquidity: 1},
	ScenarioPump:     {price: 1.03, liquidity: 1.02},
	ScenarioRug:      {price: 0.95, liquidity: 0.7},
	ScenarioBlackout: {price: 1, liquidity: 1},
}

const noise = 0.005 // desvio do ruído por passo

type asset struct {
	liquidity decimal.Decimal
	price     decimal.Decimal
	supply    decimal.Decimal
	buys      int64
	sells     int64
	scenario  Scenario
}

// Feed mantém um passeio aleatório por ativo. Ativos são criados no primeiro
// acesso com liquidez 1_000_000 e preço 1.
type Feed struct {
	mu     sync.Mutex
	rnd    *rand.Rand
	assets map[string]*asset
	now    func() time.Time
}

func New(seed uint64, now func() time.Time) *Feed {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Feed{
		rnd:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		assets: map[string]*asset{},
		now:    now,
	}
}

func (f *Feed) get(ref string) *asset {
	a, ok := f.assets[ref]
	if !ok {
		a = &asset{
			liquidity: decimal.NewFromInt(1_000_000),
			price:     decimal.NewFromInt(1),
			supply:    decimal.NewFromInt(5_000_000),
			buys:      100,
			sells:     100,
			scenario:  ScenarioFlat,
		}
		f.assets[ref] = a
	}
	return a
}

// Snapshot retorna o estado corrente do ativo
func (f *Feed) Snapshot(ref string) domain.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.get(ref)

	liq, price := a.liquidity, a.price
	mc := domain.Round(a.price.Mul(a.supply))
	buys, sells := a.buys, a.sells
	ts := f.now()
	s := domain.Snapshot{Liquidity: &liq, Price: &price, MarketCap: &mc, BuyCount: &buys, SellCount: &sells, Timestamp: &ts}
	if a.scenario == ScenarioBlackout {
		s.Liquidity = nil
	}
	return s
}

func (f *Feed) SetScenario(ref string, sc Scenario) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.get(ref).scenario = sc
}

// Assets lista os ativos conhecidos em ordem alfabética
func (f *Feed) Assets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.assets))
	for ref := range f.assets {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}

// Step avança um passo do passeio em todos os ativos
func (f *Feed) Step() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.assets {
		d := drifts[a.scenario]
		a.price = f.walk(a.price, d.price)
		a.liquidity = f.walk(a.liquidity, d.liquidity)

		trades := 5 + f.rnd.Int64N(20)
		switch a.scenario {
		case ScenarioPump:
			a.buys += trades
			a.sells += trades / 4
		case ScenarioRug:
			a.buys += trades / 4
			a.sells += trades
		default:
			a.buys += trades / 2
			a.sells += trades - trades/2
		}
	}
}

// walk aplica drift*(1+N(0,noise)) e mantém o valor positivo
func (f *Feed) walk(v decimal.Decimal, drift float64) decimal.Decimal {
	m := drift * (1 + f.rnd.NormFloat64()*noise)
	next := domain.Round(v.Mul(decimal.NewFromFloat(m)))
	if !next.IsPositive() {
		return domain.Epsilon
	}
	return next
}
