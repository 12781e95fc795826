package settlement_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/settlement"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/status"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store/memory"
	"github.com/radieske/pump-rug-market-poc/internal/shared/retry"
)

var T = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// ledger falso: deduplica por ref como o wallet-service
type ledger struct {
	mu     sync.Mutex
	refs   map[string]decimal.Decimal
	byUser map[string]decimal.Decimal
	fail   map[string]error
}

func newLedger() *ledger {
	return &ledger{refs: map[string]decimal.Decimal{}, byUser: map[string]decimal.Decimal{}, fail: map[string]error{}}
}

func (l *ledger) Adjust(_ context.Context, userID string, amount decimal.Decimal, ref string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fail[userID]; err != nil {
		return err
	}
	if _, dup := l.refs[ref]; dup {
		return nil
	}
	l.refs[ref] = amount
	l.byUser[userID] = l.byUser[userID].Add(amount)
	return nil
}

func (l *ledger) setFail(userID string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.fail, userID)
		return
	}
	l.fail[userID] = err
}

func (l *ledger) balance(userID string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.byUser[userID]
}

func setup(t *testing.T) (*settlement.Service, *memory.Store, *ledger) {
	t.Helper()
	s := memory.New()
	require.NoError(t, s.InTx(context.Background(), func(tx store.Tx) error {
		return tx.InsertMarket(context.Background(), &domain.Market{
			ID: "m1", StartTime: T, DurationMinutes: 10, Phase: domain.PhaseObservation,
		})
	}))
	l := newLedger()
	clock := fixedClock{T.Add(6 * time.Minute)}
	svc := &settlement.Service{
		Store:   s,
		Ledger:  l,
		Tracker: status.Tracker{Clock: clock},
		Clock:   clock,
		Cfg: settlement.Config{
			RefundConcurrency: 4,
			PayoutConcurrency: 4,
			TxRetry:           retry.Policy{Attempts: 3},
		},
	}
	return svc, s, l
}

func bet(id, user string, side domain.Side, gross, fee, matched string, st domain.BetStatus) domain.Bet {
	g, f := d(gross), d(fee)
	return domain.Bet{
		ID: id, MarketID: "m1", UserID: user, Side: side,
		GrossAmount: g, Fee: f, NetAmount: g.Sub(f), MatchedAmount: d(matched),
		Status: st, CreatedAt: T,
	}
}

func seed(t *testing.T, s *memory.Store, bets []domain.Bet, matches []domain.Match) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		for i := range bets {
			if err := tx.InsertBet(ctx, &bets[i]); err != nil {
				return err
			}
		}
		for i := range matches {
			if err := tx.InsertMatch(ctx, &matches[i]); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestRefundUnmatched_PartialAndFull(t *testing.T) {
	svc, s, l := setup(t)
	seed(t, s, []domain.Bet{
		bet("partial", "u1", domain.SidePump, "2", "0", "1", domain.BetPartiallyMatched),
		bet("pending", "u2", domain.SideRug, "1", "0.01", "0", domain.BetPending),
		bet("matched", "u3", domain.SideRug, "1", "0", "1", domain.BetMatched),
	}, nil)

	rep, err := svc.RefundUnmatched(context.Background(), "m1")
	require.NoError(t, err)
	require.NoError(t, rep.Err())
	assert.Equal(t, 2, rep.Processed)
	assert.Len(t, rep.Changes, 2)

	refunds := map[string]decimal.Decimal{}
	for _, r := range s.Refunds() {
		refunds[r.BetID] = r.Amount
		assert.Equal(t, domain.RefundProcessed, r.Status)
		assert.Equal(t, "refund:"+r.BetID, r.TxMarker)
	}
	require.Len(t, refunds, 2)
	assert.True(t, refunds["partial"].Equal(d("1")), "só o delta não casado")
	assert.True(t, refunds["pending"].Equal(d("1")), "bruto, com taxa")

	p, _ := s.Bet("partial")
	assert.Equal(t, domain.BetRefunded, p.Status)
	assert.True(t, p.RefundAmount.Equal(d("1")))
	assert.NotNil(t, p.RefundedAt)
	m, _ := s.Bet("matched")
	assert.Equal(t, domain.BetMatched, m.Status)

	assert.True(t, l.balance("u1").Equal(d("1")))
	assert.True(t, l.balance("u2").Equal(d("1")))

	h := s.History("partial")
	require.Len(t, h, 1)
	assert.Equal(t, domain.BetPartiallyMatched, h[0].OldStatus)
	assert.Equal(t, domain.BetRefunded, h[0].NewStatus)
}

func TestRefundUnmatched_IsIdempotent(t *testing.T) {
	svc, s, l := setup(t)
	seed(t, s, []domain.Bet{bet("b1", "u1", domain.SidePump, "2", "0", "1", domain.BetPartiallyMatched)}, nil)

	_, err := svc.RefundUnmatched(context.Background(), "m1")
	require.NoError(t, err)
	rep, err := svc.RefundUnmatched(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Processed)
	assert.Len(t, s.Refunds(), 1)
	assert.True(t, l.balance("u1").Equal(d("1")))
}

func TestRefundUnmatched_IsolatesFailures(t *testing.T) {
	svc, s, l := setup(t)
	seed(t, s, []domain.Bet{
		bet("b1", "u1", domain.SidePump, "1", "0", "0", domain.BetPending),
		bet("b2", "u2", domain.SidePump, "1", "0", "0", domain.BetPending),
		bet("b3", "u3", domain.SideRug, "1", "0", "0", domain.BetPending),
	}, nil)
	l.setFail("u2", errors.New("wallet down"))

	rep, err := svc.RefundUnmatched(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Processed)
	require.Len(t, rep.Failed, 1)
	assert.Equal(t, "b2", rep.Failed[0].ID)
	assert.True(t, rep.Partial())
	assert.Error(t, rep.Err())

	b2, _ := s.Bet("b2")
	assert.Equal(t, domain.BetPending, b2.Status, "reembolso desfeito junto com o crédito")
	assert.Len(t, s.Refunds(), 2)

	l.setFail("u2", nil)
	rep, err = svc.RefundUnmatched(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed)
	assert.True(t, l.balance("u2").Equal(d("1")))
}

func TestRefundUnmatched_NeverExceedsGross(t *testing.T) {
	svc, s, _ := setup(t)
	seed(t, s, []domain.Bet{bet("b1", "u1", domain.SidePump, "1", "0", "0", domain.BetPending)}, nil)
	ctx := context.Background()
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertRefund(ctx, &domain.Refund{ID: "r0", BetID: "b1", Amount: d("0.5"), Status: domain.RefundProcessed})
	}))

	rep, err := svc.RefundUnmatched(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, rep.Failed, 1)
	assert.ErrorIs(t, rep.Failed[0].Err, domain.ErrRefundExceedsStake)
	assert.Len(t, s.Refunds(), 1)
}

func TestRefundAmount(t *testing.T) {
	assert.True(t, settlement.RefundAmount(bet("b", "u", domain.SidePump, "2.5", "0.025", "0", domain.BetPending)).Equal(d("2.5")))
	assert.True(t, settlement.RefundAmount(bet("b", "u", domain.SidePump, "2.5", "0.025", "1.5", domain.BetPartiallyMatched)).Equal(d("0.975")))
}

func settleFixture(t *testing.T) (*settlement.Service, *memory.Store, *ledger) {
	svc, s, l := setup(t)
	seed(t, s, []domain.Bet{
		bet("A", "u1", domain.SidePump, "1", "0", "1", domain.BetMatched),
		bet("B", "u1", domain.SidePump, "1", "0", "0.5", domain.BetRefunded),
		bet("C", "u2", domain.SideRug, "1", "0", "1", domain.BetMatched),
		bet("D", "u3", domain.SideRug, "0.5", "0", "0.5", domain.BetMatched),
		bet("E", "u4", domain.SidePump, "1", "0", "0", domain.BetRefunded),
	}, []domain.Match{
		{ID: "x1", MarketID: "m1", PumpBetID: "A", RugBetID: "C", Amount: d("0.6"), PumpOdds: d("1.8"), RugOdds: d("2.2")},
		{ID: "x2", MarketID: "m1", PumpBetID: "A", RugBetID: "C", Amount: d("0.4"), PumpOdds: d("2"), RugOdds: d("2")},
		{ID: "x3", MarketID: "m1", PumpBetID: "B", RugBetID: "D", Amount: d("0.5"), PumpOdds: d("2"), RugOdds: d("2")},
	})
	return svc, s, l
}

func TestSettle_PumpWinnersAggregatedPerUser(t *testing.T) {
	svc, s, l := settleFixture(t)
	ctx := context.Background()

	rep, err := svc.Settle(ctx, "m1", domain.OutcomePump)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Winners)
	assert.Equal(t, 2, rep.Losers)
	require.Len(t, rep.Payouts, 1)
	assert.Equal(t, "u1", rep.Payouts[0].UserID)
	assert.True(t, rep.Payouts[0].Amount.Equal(d("2.88")), rep.Payouts[0].Amount.String())
	assert.ElementsMatch(t, []string{"A", "B"}, rep.Payouts[0].BetIDs)

	a, _ := s.Bet("A")
	assert.Equal(t, domain.BetWon, a.Status)
	assert.True(t, a.PayoutAmount.Equal(d("1.88")))
	c, _ := s.Bet("C")
	assert.Equal(t, domain.BetLost, c.Status)
	e, _ := s.Bet("E")
	assert.Equal(t, domain.BetRefunded, e.Status, "sem parte casada")

	// crédito só acontece no PayPending
	assert.True(t, l.balance("u1").IsZero())
	prep, err := svc.PayPending(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, prep.Processed)
	assert.True(t, l.balance("u1").Equal(d("2.88")))

	ps := s.Payouts("m1")
	require.Len(t, ps, 1)
	assert.Equal(t, domain.PayoutPaid, ps[0].Status)
	assert.Equal(t, 1, ps[0].Attempts)
	assert.NotNil(t, ps[0].PaidAt)

	// segunda passada não repete nada
	rep, err = svc.Settle(ctx, "m1", domain.OutcomePump)
	require.NoError(t, err)
	assert.Empty(t, rep.Payouts)
	prep, err = svc.PayPending(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 0, prep.Processed)
	assert.True(t, l.balance("u1").Equal(d("2.88")))
}

func TestSettle_HouseTakesAll(t *testing.T) {
	svc, s, _ := settleFixture(t)
	rep, err := svc.Settle(context.Background(), "m1", domain.OutcomeHouse)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Winners)
	assert.Equal(t, 4, rep.Losers)
	assert.Empty(t, rep.Payouts)
	for _, id := range []string{"A", "B", "C", "D"} {
		b, _ := s.Bet(id)
		assert.Equal(t, domain.BetLost, b.Status, id)
	}
}

func TestSettle_RugWinners(t *testing.T) {
	svc, _, _ := settleFixture(t)
	rep, err := svc.Settle(context.Background(), "m1", domain.OutcomeRug)
	require.NoError(t, err)
	require.Len(t, rep.Payouts, 2)
	got := map[string]decimal.Decimal{}
	for _, p := range rep.Payouts {
		got[p.UserID] = p.Amount
	}
	// C: 0.6*2.2 + 0.4*2 = 2.12; D: 0.5*2 = 1
	assert.True(t, got["u2"].Equal(d("2.12")))
	assert.True(t, got["u3"].Equal(d("1")))
}

func TestPayPending_IsolatesUserFailures(t *testing.T) {
	svc, s, l := settleFixture(t)
	ctx := context.Background()
	_, err := svc.Settle(ctx, "m1", domain.OutcomeRug)
	require.NoError(t, err)

	l.setFail("u2", errors.New("wallet timeout"))
	rep, err := svc.PayPending(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed)
	require.Len(t, rep.Failed, 1)
	assert.Equal(t, "u2", rep.Failed[0].UserID)

	for _, p := range s.Payouts("m1") {
		switch p.UserID {
		case "u2":
			assert.Equal(t, domain.PayoutPending, p.Status)
			assert.Equal(t, 1, p.Attempts)
			assert.Equal(t, "wallet timeout", p.LastError)
		case "u3":
			assert.Equal(t, domain.PayoutPaid, p.Status)
		}
	}

	l.setFail("u2", nil)
	rep, err = svc.PayPending(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed)
	assert.True(t, l.balance("u2").Equal(d("2.12")))
	assert.True(t, l.balance("u3").Equal(d("1")))
}

func TestWinningAmount(t *testing.T) {
	b := bet("A", "u1", domain.SidePump, "1", "0", "1", domain.BetMatched)
	ms := []domain.Match{
		{PumpBetID: "A", RugBetID: "C", Amount: d("0.333333"), PumpOdds: d("1.3333")},
		{PumpBetID: "Z", RugBetID: "C", Amount: d("1"), PumpOdds: d("5")},
	}
	assert.True(t, settlement.WinningAmount(b, ms).Equal(d("0.444433")))
}
