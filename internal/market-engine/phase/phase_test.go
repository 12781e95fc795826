package phase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/phase"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store/memory"
	"github.com/radieske/pump-rug-market-poc/internal/shared/retry"
)

var T = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestAt_TenMinuteMarket(t *testing.T) {
	cases := []struct {
		at   time.Duration
		want domain.Phase
	}{
		{-time.Second, domain.PhaseNotStarted},
		{0, domain.PhaseBetting},
		{4*time.Minute + 59*time.Second, domain.PhaseBetting},
		{5 * time.Minute, domain.PhaseBetting},
		{5*time.Minute + time.Second, domain.PhaseObservation},
		{9*time.Minute + 59*time.Second, domain.PhaseObservation},
		{10 * time.Minute, domain.PhaseResolved},
		{10*time.Minute + time.Second, domain.PhaseResolved},
	}
	for _, c := range cases {
		got, err := phase.At(T, 10, T.Add(c.at), 0.5)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "at +%s", c.at)
	}
}

func TestAt_InvalidInput(t *testing.T) {
	_, err := phase.At(time.Time{}, 10, T, 0.5)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = phase.At(T, 0, T, 0.5)
	assert.ErrorIs(t, err, domain.ErrInvalidMarketInput)

	_, err = phase.At(T, -5, T, 0.5)
	assert.ErrorIs(t, err, domain.ErrInvalidMarketInput)

	_, err = phase.At(T, 10, T, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidMarketInput)
}

func TestAt_MonotonicInTime(t *testing.T) {
	for _, dur := range []int{1, 7, 10, 60} {
		prev := -1
		for s := -120; s <= dur*60+120; s += 7 {
			p, err := phase.At(T, dur, T.Add(time.Duration(s)*time.Second), 0.5)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, p.Rank(), prev, "dur %d at %ds", dur, s)
			prev = p.Rank()
		}
	}
}

func TestBettingRemaining(t *testing.T) {
	m := domain.Market{StartTime: T, DurationMinutes: 10}
	assert.Equal(t, 1.0, phase.BettingRemaining(m, T.Add(-time.Minute), 0.5))
	assert.InDelta(t, 0.5, phase.BettingRemaining(m, T.Add(150*time.Second), 0.5), 1e-9)
	assert.Equal(t, 0.0, phase.BettingRemaining(m, T.Add(6*time.Minute), 0.5))
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type hooks struct {
	calls []string
}

func (h *hooks) OnCutoff(_ context.Context, m domain.Market) error {
	h.calls = append(h.calls, "cutoff:"+string(m.Phase))
	return nil
}

func (h *hooks) OnResolve(_ context.Context, m domain.Market) error {
	h.calls = append(h.calls, "resolve:"+string(m.Phase))
	return nil
}

func (h *hooks) OnSettled(_ context.Context, m domain.Market) error {
	h.calls = append(h.calls, "settled")
	return nil
}

func newScheduler(t *testing.T) (*phase.Scheduler, *memory.Store, *clock, *hooks) {
	t.Helper()
	s := memory.New()
	require.NoError(t, s.InTx(context.Background(), func(tx store.Tx) error {
		return tx.InsertMarket(context.Background(), &domain.Market{
			ID: "m1", StartTime: T, DurationMinutes: 10,
			Phase: domain.PhaseNotStarted, MatchingState: domain.MatchingOpen,
		})
	}))
	c := &clock{now: T.Add(-time.Minute)}
	h := &hooks{}
	return &phase.Scheduler{Store: s, Hooks: h, Clock: c, Cutoff: 0.5}, s, c, h
}

func TestScheduler_DrivesLifecycle(t *testing.T) {
	sch, s, c, h := newScheduler(t)
	ctx := context.Background()

	tr, err := sch.Check(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, tr.Changed)

	c.Set(T.Add(4*time.Minute + 59*time.Second))
	tr, err = sch.Check(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, tr.Changed)
	assert.Equal(t, domain.PhaseBetting, tr.To)
	assert.Empty(t, h.calls)

	c.Set(T.Add(5*time.Minute + time.Second))
	tr, err = sch.Check(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseObservation, tr.To)
	m, _ := s.Market("m1")
	assert.Equal(t, domain.MatchingLocked, m.MatchingState)
	assert.Equal(t, []string{"cutoff:OBSERVATION"}, h.calls)

	// tick repetido na mesma fase: sem mudança, hook idempotente roda de novo
	tr, err = sch.Check(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, tr.Changed)

	c.Set(T.Add(10*time.Minute + time.Second))
	tr, err = sch.Check(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseResolved, tr.To)
	assert.Equal(t, []string{"cutoff:OBSERVATION", "cutoff:OBSERVATION", "cutoff:RESOLVED", "resolve:RESOLVED"}, h.calls)
}

func TestScheduler_LockedMarketIsNoOp(t *testing.T) {
	sch, s, c, h := newScheduler(t)
	c.Set(T.Add(6 * time.Minute))
	s.HoldLock("m1", true)

	tr, err := sch.Check(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, tr.Skipped)
	assert.Empty(t, h.calls)

	m, _ := s.Market("m1")
	assert.Equal(t, domain.PhaseNotStarted, m.Phase)
}

func TestScheduler_NeverRegresses(t *testing.T) {
	sch, s, c, _ := newScheduler(t)
	ctx := context.Background()

	c.Set(T.Add(6 * time.Minute))
	_, err := sch.Check(ctx, "m1")
	require.NoError(t, err)

	c.Set(T.Add(time.Minute)) // relógio voltou
	tr, err := sch.Check(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, tr.Changed)
	m, _ := s.Market("m1")
	assert.Equal(t, domain.PhaseObservation, m.Phase)
}

func TestScheduler_SettledRetriesPayouts(t *testing.T) {
	sch, s, c, h := newScheduler(t)
	ctx := context.Background()
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		m, _ := tx.GetMarket(ctx, "m1")
		m.Phase = domain.PhaseSettled
		return tx.UpdateMarket(ctx, m)
	}))
	c.Set(T.Add(time.Hour))

	_, err := sch.Check(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"settled"}, h.calls)
}

func TestScheduler_UnknownMarket(t *testing.T) {
	sch, _, _, _ := newScheduler(t)
	_, err := sch.Check(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
}

func TestScheduler_RetriesTransientStoreErrors(t *testing.T) {
	sch, s, c, _ := newScheduler(t)
	sch.Retry = retry.Policy{Attempts: 3}
	c.Set(T.Add(time.Minute))
	s.InjectFault("UpdateMarket", 0, store.ErrTransient, 1)

	tr, err := sch.Check(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, tr.Changed)
	assert.Equal(t, domain.PhaseNotStarted, tr.From)
	assert.Equal(t, domain.PhaseBetting, tr.To)
	m, _ := s.Market("m1")
	assert.Equal(t, domain.PhaseBetting, m.Phase)
	assert.Equal(t, 3, s.TxCount(), "insert + falha + repetição")
}

func TestScheduler_ExhaustedRetriesSurface(t *testing.T) {
	sch, s, c, h := newScheduler(t)
	sch.Retry = retry.Policy{Attempts: 2}
	c.Set(T.Add(6 * time.Minute))
	s.InjectFault("UpdateMarket", 0, store.ErrTransient, 0)

	_, err := sch.Check(context.Background(), "m1")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrTransient)
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.Empty(t, h.calls)
	m, _ := s.Market("m1")
	assert.Equal(t, domain.PhaseNotStarted, m.Phase)
}
