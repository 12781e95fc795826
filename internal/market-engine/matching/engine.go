package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/odds"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/phase"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/status"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store"
)

// eligible são os status que ainda têm unidades a casar
var eligible = []domain.BetStatus{domain.BetPending, domain.BetPartiallyMatched}

type Config struct {
	MinUnit    decimal.Decimal // menor unidade casável
	Cutoff     float64         // fração da duração em que o casamento fecha
	BatchLimit int
	Odds       odds.Config
}

// Engine pareia unidades PUMP x RUG de um mercado em uma única passada
type Engine struct {
	Cfg     Config
	Tracker status.Tracker
	Clock   domain.Clock
	NewID   func() string
	Log     *zap.Logger
}

// Result resume uma passada
type Result struct {
	MarketID string
	Skipped  bool // mercado travado por outra passada
	Matches  []domain.Match
	Splits   int
	Volume   decimal.Decimal // volume casado por lado
	Changes  []status.Change
	Odds     odds.Quote
	Market   domain.Market
}

// slot é uma unidade em memória durante a passada
type slot struct {
	unit  domain.BetUnit
	dirty bool
}

func (s *slot) open(min decimal.Decimal) bool {
	return s.unit.Status == domain.UnitPending && !s.unit.Amount.LessThan(min)
}

// Run executa a passada dentro de tx. Apostas e unidades são obtidas com
// FOR UPDATE SKIP LOCKED; tudo que a passada grava (splits, matches,
// agregados do mercado e status) vai no mesmo commit.
func (e *Engine) Run(ctx context.Context, tx store.Tx, marketID string) (Result, error) {
	res := Result{MarketID: marketID, Volume: decimal.Zero}

	m, err := tx.LockMarket(ctx, marketID)
	if errors.Is(err, store.ErrRowLocked) {
		res.Skipped = true
		return res, nil
	}
	if err != nil {
		return res, err
	}
	now := e.now()
	if err := e.checkEligible(*m, now); err != nil {
		return res, err
	}

	quote := odds.Calculate(m.PumpPool, m.RugPool, phase.BettingRemaining(*m, now, e.Cfg.Cutoff), e.Cfg.Odds)
	res.Odds = quote

	bets, err := tx.LockBetsByStatus(ctx, marketID, eligible, e.Cfg.BatchLimit)
	if err != nil {
		return res, fmt.Errorf("lock bets of market %s: %w", marketID, err)
	}
	if len(bets) == 0 {
		return res, e.finish(ctx, tx, m, &res)
	}

	byID := make(map[string]*domain.Bet, len(bets))
	ids := make([]string, 0, len(bets))
	for i := range bets {
		byID[bets[i].ID] = &bets[i]
		ids = append(ids, bets[i].ID)
	}
	units, err := tx.LockPendingUnits(ctx, ids)
	if err != nil {
		return res, fmt.Errorf("lock units of market %s: %w", marketID, err)
	}

	pumps, rugs := e.pools(bets, units)
	touched := map[string]bool{}
	var created []*slot

	for i := 0; i < len(pumps); i++ {
		p := pumps[i]
		if !p.open(e.Cfg.MinUnit) {
			continue
		}
		r := firstOpen(rugs, e.Cfg.MinUnit)
		if r == nil {
			break
		}

		amount := decimal.Min(p.unit.Amount, r.unit.Amount)
		larger, rest := e.remainder(p, r, amount)
		if larger != nil {
			// divide a unidade maior: parte casada + sobra que volta ao pool
			larger.unit.Amount = amount
			larger.dirty = true
			left := &slot{unit: domain.BetUnit{
				ID:        e.newID(),
				BetID:     larger.unit.BetID,
				MarketID:  larger.unit.MarketID,
				Side:      larger.unit.Side,
				Amount:    rest,
				Status:    domain.UnitPending,
				CreatedAt: now,
			}}
			created = append(created, left)
			if left.unit.Side == domain.SidePump {
				pumps = append(pumps, left)
			} else {
				rugs = append(rugs, left)
			}
			res.Splits++
			e.log().Debug("unit split",
				zap.String("market_id", marketID),
				zap.String("unit_id", larger.unit.ID),
				zap.String("matched", amount.String()),
				zap.String("left", rest.String()),
			)
		}

		match, err := e.pair(p, r, amount, quote, now)
		if err != nil {
			return res, err
		}
		res.Matches = append(res.Matches, match)
		res.Volume = res.Volume.Add(amount)

		pb, rb := byID[p.unit.BetID], byID[r.unit.BetID]
		pb.MatchedAmount = pb.MatchedAmount.Add(amount)
		rb.MatchedAmount = rb.MatchedAmount.Add(amount)
		touched[pb.ID], touched[rb.ID] = true, true
	}

	if err := e.persist(ctx, tx, pumps, rugs, created, res.Matches); err != nil {
		return res, err
	}
	if res.Volume.IsPositive() {
		if _, err := tx.ApplyMarketDelta(ctx, marketID, domain.MarketDelta{
			PumpMatched: res.Volume,
			RugMatched:  res.Volume,
		}); err != nil {
			return res, fmt.Errorf("apply matched volume to market %s: %w", marketID, err)
		}
	}
	for _, b := range bets {
		if !touched[b.ID] {
			continue
		}
		ch, err := e.Tracker.Recompute(ctx, tx, byID[b.ID], "matched")
		if err != nil {
			return res, err
		}
		if ch != nil {
			res.Changes = append(res.Changes, *ch)
		}
	}
	return res, e.finish(ctx, tx, m, &res)
}

func (e *Engine) checkEligible(m domain.Market, now time.Time) error {
	if m.MatchingState == domain.MatchingLocked {
		return fmt.Errorf("market %s: %w", m.ID, domain.ErrMatchingClosed)
	}
	p, err := phase.ForMarket(m, now, e.Cfg.Cutoff)
	if err != nil {
		return err
	}
	if p != domain.PhaseBetting {
		return fmt.Errorf("market %s in %s: %w", m.ID, p, domain.ErrMatchingClosed)
	}
	return nil
}

// pools agrupa as unidades por lado, apostas ordenadas por líquido decrescente
func (e *Engine) pools(bets []domain.Bet, units []domain.BetUnit) (pumps, rugs []*slot) {
	order := make([]domain.Bet, len(bets))
	copy(order, bets)
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].NetAmount.GreaterThan(order[j].NetAmount)
	})

	byBet := map[string][]*slot{}
	for _, u := range units {
		byBet[u.BetID] = append(byBet[u.BetID], &slot{unit: u})
	}
	for _, b := range order {
		switch b.Side {
		case domain.SidePump:
			pumps = append(pumps, byBet[b.ID]...)
		case domain.SideRug:
			rugs = append(rugs, byBet[b.ID]...)
		}
	}
	return pumps, rugs
}

func firstOpen(pool []*slot, min decimal.Decimal) *slot {
	for _, s := range pool {
		if s.open(min) {
			return s
		}
	}
	return nil
}

// remainder decide se a unidade maior é dividida. Retorna nil quando as
// unidades são iguais ou quando a sobra ficaria abaixo do mínimo; nesse
// caso o par é casado inteiro pelo menor valor e o excedente da maior
// fica como delta não casado da aposta.
func (e *Engine) remainder(p, r *slot, amount decimal.Decimal) (*slot, decimal.Decimal) {
	larger := p
	if r.unit.Amount.GreaterThan(p.unit.Amount) {
		larger = r
	}
	rest := larger.unit.Amount.Sub(amount)
	if domain.IsDust(rest) || rest.LessThan(e.Cfg.MinUnit) {
		return nil, decimal.Zero
	}
	return larger, rest
}

func (e *Engine) pair(p, r *slot, amount decimal.Decimal, q odds.Quote, now time.Time) (domain.Match, error) {
	if amount.GreaterThan(p.unit.Amount) || amount.GreaterThan(r.unit.Amount) || !amount.IsPositive() {
		return domain.Match{}, fmt.Errorf("%w: %s vs units %s/%s", domain.ErrMatchAmount, amount, p.unit.Amount, r.unit.Amount)
	}
	for _, s := range []*slot{p, r} {
		s.unit.Status = domain.UnitMatched
		s.unit.MatchedAt = &now
		s.dirty = true
	}
	p.unit.PeerUnitID, r.unit.PeerUnitID = r.unit.ID, p.unit.ID

	return domain.Match{
		ID:         e.newID(),
		MarketID:   p.unit.MarketID,
		PumpUnitID: p.unit.ID,
		RugUnitID:  r.unit.ID,
		PumpBetID:  p.unit.BetID,
		RugBetID:   r.unit.BetID,
		Amount:     amount,
		PumpOdds:   q.Pump,
		RugOdds:    q.Rug,
		CreatedAt:  now,
	}, nil
}

// persist grava unidades alteradas, sobras de split e matches
func (e *Engine) persist(ctx context.Context, tx store.Tx, pumps, rugs, created []*slot, matches []domain.Match) error {
	isNew := make(map[*slot]bool, len(created))
	for _, s := range created {
		isNew[s] = true
		u := s.unit
		if err := tx.InsertUnit(ctx, &u); err != nil {
			return fmt.Errorf("insert split unit of bet %s: %w", u.BetID, err)
		}
	}
	for _, pool := range [][]*slot{pumps, rugs} {
		for _, s := range pool {
			// sobras já foram inseridas com o estado final
			if !s.dirty || isNew[s] {
				continue
			}
			u := s.unit
			if err := tx.UpdateUnit(ctx, &u); err != nil {
				return fmt.Errorf("update unit %s: %w", u.ID, err)
			}
		}
	}
	for i := range matches {
		if err := tx.InsertMatch(ctx, &matches[i]); err != nil {
			return fmt.Errorf("insert match %s: %w", matches[i].ID, err)
		}
	}
	return nil
}

// finish publica as odds correntes no mercado
func (e *Engine) finish(ctx context.Context, tx store.Tx, m *domain.Market, res *Result) error {
	if err := tx.SetMarketOdds(ctx, m.ID, res.Odds.Pump, res.Odds.Rug); err != nil {
		return fmt.Errorf("set odds of market %s: %w", m.ID, err)
	}
	cur, err := tx.GetMarket(ctx, m.ID)
	if err != nil {
		return err
	}
	res.Market = *cur
	return nil
}

func (e *Engine) now() time.Time {
	if e.Clock == nil {
		return time.Now().UTC()
	}
	return e.Clock.Now()
}

func (e *Engine) newID() string {
	if e.NewID == nil {
		return uuid.NewString()
	}
	return e.NewID()
}

func (e *Engine) log() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}
