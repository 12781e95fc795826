package consumer_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/pump-rug-market-poc/internal/event-processor/consumer"
	"github.com/radieske/pump-rug-market-poc/internal/shared/retry"
	"github.com/radieske/pump-rug-market-poc/pkg/contracts/events"
)

var T = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

type fakeRepo struct {
	seen     map[string]bool
	live     map[string]events.MarketView
	failures int
}

func (r *fakeRepo) AppendEvent(_ context.Context, e events.Envelope) (bool, error) {
	if r.failures > 0 {
		r.failures--
		return false, errors.New("connection reset")
	}
	if r.seen[e.ID] {
		return false, nil
	}
	r.seen[e.ID] = true
	return true, nil
}

func (r *fakeRepo) UpsertLive(_ context.Context, v events.MarketView) error {
	if cur, ok := r.live[v.ID]; ok && cur.Version > v.Version {
		return nil
	}
	r.live[v.ID] = v
	return nil
}

type fakeCache struct {
	views map[string]events.MarketView
	err   error
}

func (c *fakeCache) SetLive(_ context.Context, v events.MarketView) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	c.views[v.ID] = v
	return true, nil
}

func envelope(id, typ string, version int64) events.Envelope {
	e := events.Envelope{ID: id, Type: typ, MarketID: "m1", Ts: T}
	e.Market = &events.MarketView{
		ID: "m1", AssetRef: "SOL", Phase: "BETTING",
		PumpOdds: decimal.RequireFromString("1.8"), RugOdds: decimal.RequireFromString("2.2"),
		Version: version,
	}
	return e
}

func message(t *testing.T, offset int64, e events.Envelope) kafka.Message {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(e.MarketID), Value: b, Offset: offset}
}

type probe struct {
	consumed  []string
	errors    []string
	persisted int
	dupes     int
	broadcast []string
}

func newProcessor(r consumer.MessageReader, repo *fakeRepo, c *fakeCache, pr *probe) *consumer.Processor {
	return &consumer.Processor{
		Log:            zap.NewNop(),
		Reader:         r,
		Repo:           repo,
		Cache:          c,
		Persist:        retry.Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		OnConsumed:     func(typ string) { pr.consumed = append(pr.consumed, typ) },
		OnPersist:      func() { pr.persisted++ },
		OnDuplicate:    func() { pr.dupes++ },
		OnError:        func(stage string) { pr.errors = append(pr.errors, stage) },
		OnAfterPersist: func(e events.Envelope) { pr.broadcast = append(pr.broadcast, e.ID) },
	}
}

func TestProcessor_CachesPersistsAndCommits(t *testing.T) {
	r := &fakeReader{}
	repo := &fakeRepo{seen: map[string]bool{}, live: map[string]events.MarketView{}}
	c := &fakeCache{views: map[string]events.MarketView{}}
	pr := &probe{}

	r.msgs = []kafka.Message{
		message(t, 1, envelope("e1", events.TypeBetPlaced, 10)),
		message(t, 2, envelope("e2", events.TypeMatchCreated, 20)),
		message(t, 3, envelope("e1", events.TypeBetPlaced, 10)), // reentrega
		{Offset: 4, Value: []byte("not json")},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := newProcessor(r, repo, c, pr).Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, []int64{1, 2, 3, 4}, r.committed)
	assert.Equal(t, []string{events.TypeBetPlaced, events.TypeMatchCreated, events.TypeBetPlaced}, pr.consumed)
	assert.Equal(t, 2, pr.persisted)
	assert.Equal(t, 1, pr.dupes)
	assert.Equal(t, []string{"decode"}, pr.errors)
	assert.Equal(t, []string{"e1", "e2"}, pr.broadcast)
	assert.EqualValues(t, 20, c.views["m1"].Version)
	assert.EqualValues(t, 20, repo.live["m1"].Version)
}

func TestProcessor_RetriesTransientDBFailure(t *testing.T) {
	repo := &fakeRepo{seen: map[string]bool{}, live: map[string]events.MarketView{}, failures: 2}
	pr := &probe{}
	p := newProcessor(&fakeReader{}, repo, &fakeCache{views: map[string]events.MarketView{}}, pr)

	p.Handle(context.Background(), message(t, 1, envelope("e1", events.TypeMarketResolved, 5)))
	assert.Equal(t, 1, pr.persisted)
	assert.Empty(t, pr.errors)
}

func TestProcessor_DBFailureSkipsBroadcast(t *testing.T) {
	repo := &fakeRepo{seen: map[string]bool{}, live: map[string]events.MarketView{}, failures: 10}
	pr := &probe{}
	p := newProcessor(&fakeReader{}, repo, &fakeCache{views: map[string]events.MarketView{}}, pr)

	p.Handle(context.Background(), message(t, 1, envelope("e1", events.TypeMarketSettled, 5)))
	assert.Equal(t, []string{"db_append"}, pr.errors)
	assert.Zero(t, pr.persisted)
	assert.Empty(t, pr.broadcast)
}

func TestProcessor_CacheFailureDoesNotBlockPersistence(t *testing.T) {
	repo := &fakeRepo{seen: map[string]bool{}, live: map[string]events.MarketView{}}
	pr := &probe{}
	c := &fakeCache{views: map[string]events.MarketView{}, err: errors.New("redis down")}
	p := newProcessor(&fakeReader{}, repo, c, pr)

	p.Handle(context.Background(), message(t, 1, envelope("e1", events.TypeMarketPhaseChanged, 5)))
	assert.Equal(t, []string{"cache"}, pr.errors)
	assert.Equal(t, 1, pr.persisted)
	assert.Contains(t, repo.live, "m1")
	assert.Equal(t, []string{"e1"}, pr.broadcast)
}

func TestProcessor_EventWithoutMarketViewIsLoggedOnly(t *testing.T) {
	repo := &fakeRepo{seen: map[string]bool{}, live: map[string]events.MarketView{}}
	pr := &probe{}
	p := newProcessor(&fakeReader{}, repo, &fakeCache{views: map[string]events.MarketView{}}, pr)

	e := events.Envelope{ID: "e9", Type: events.TypeRefundProcessed, MarketID: "m1", Ts: T,
		Refund: &events.RefundView{RefundID: "r1", BetID: "b1", UserID: "u1", Amount: decimal.RequireFromString("1.98")}}
	p.Handle(context.Background(), message(t, 1, e))

	assert.True(t, repo.seen["e9"])
	assert.Empty(t, repo.live)
	assert.Equal(t, []string{"e9"}, pr.broadcast)
}
