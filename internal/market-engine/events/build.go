package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/status"
	contracts "github.com/radieske/pump-rug-market-poc/pkg/contracts/events"
)

func New(typ, marketID string, ts time.Time) contracts.Envelope {
	return contracts.Envelope{ID: uuid.NewString(), Type: typ, MarketID: marketID, Ts: ts}
}

func MarketView(m domain.Market, ts time.Time) *contracts.MarketView {
	v := &contracts.MarketView{
		ID:            m.ID,
		AssetRef:      m.AssetRef,
		Phase:         string(m.Phase),
		MatchingState: string(m.MatchingState),
		StartTime:     m.StartTime,
		EndTime:       m.EndTime(),
		PumpPool:      m.PumpPool,
		RugPool:       m.RugPool,
		PumpMatched:   m.PumpMatched,
		RugMatched:    m.RugMatched,
		PumpOdds:      m.PumpOdds,
		RugOdds:       m.RugOdds,
		Outcome:       string(m.Outcome),
		UpdatedAt:     ts,
		Version:       ts.UnixMilli(),
	}
	if m.FinalPrice.Valid {
		p := m.FinalPrice.Decimal
		v.FinalPrice = &p
	}
	return v
}

func BetView(b domain.Bet) *contracts.BetView {
	return &contracts.BetView{
		BetID:           b.ID,
		UserID:          b.UserID,
		Side:            string(b.Side),
		GrossAmount:     b.GrossAmount,
		NetAmount:       b.NetAmount,
		MatchedAmount:   b.MatchedAmount,
		Odds:            b.Odds,
		PotentialPayout: b.PotentialPayout,
		Status:          string(b.Status),
	}
}

func BetPlaced(b domain.Bet, m domain.Market, ts time.Time) contracts.Envelope {
	e := New(contracts.TypeBetPlaced, b.MarketID, ts)
	e.Bet = BetView(b)
	e.Market = MarketView(m, ts)
	return e
}

func StatusChanged(c status.Change, reason string, ts time.Time) contracts.Envelope {
	e := New(contracts.TypeBetStatusChanged, c.Bet.MarketID, ts)
	e.Bet = BetView(c.Bet)
	e.Status = &contracts.StatusChange{From: string(c.From), To: string(c.To), Reason: reason}
	return e
}

func MatchCreated(m domain.Match, market *domain.Market, ts time.Time) contracts.Envelope {
	e := New(contracts.TypeMatchCreated, m.MarketID, ts)
	e.Match = &contracts.MatchView{
		MatchID:   m.ID,
		PumpBetID: m.PumpBetID,
		RugBetID:  m.RugBetID,
		Amount:    m.Amount,
		PumpOdds:  m.PumpOdds,
		RugOdds:   m.RugOdds,
	}
	if market != nil {
		e.Market = MarketView(*market, ts)
	}
	return e
}

func PhaseChanged(m domain.Market, from, to domain.Phase, ts time.Time) contracts.Envelope {
	e := New(contracts.TypeMarketPhaseChanged, m.ID, ts)
	e.Phase = &contracts.PhaseChange{From: string(from), To: string(to)}
	e.Market = MarketView(m, ts)
	return e
}

func RefundProcessed(r domain.Refund, ts time.Time) contracts.Envelope {
	e := New(contracts.TypeRefundProcessed, r.MarketID, ts)
	e.Refund = &contracts.RefundView{RefundID: r.ID, BetID: r.BetID, UserID: r.UserID, Amount: r.Amount}
	return e
}

func MarketResolved(m domain.Market, ts time.Time) contracts.Envelope {
	e := New(contracts.TypeMarketResolved, m.ID, ts)
	e.Market = MarketView(m, ts)
	return e
}

func PayoutCredited(p domain.Payout, ts time.Time) contracts.Envelope {
	e := New(contracts.TypePayoutCredited, p.MarketID, ts)
	e.Payout = &contracts.PayoutView{
		PayoutID: p.ID,
		UserID:   p.UserID,
		Amount:   p.Amount,
		BetIDs:   append([]string(nil), p.BetIDs...),
		Status:   string(p.Status),
	}
	return e
}

func MarketSettled(m domain.Market, ts time.Time) contracts.Envelope {
	e := New(contracts.TypeMarketSettled, m.ID, ts)
	e.Market = MarketView(m, ts)
	return e
}
