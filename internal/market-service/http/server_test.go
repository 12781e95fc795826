package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/service"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store/memory"
	"github.com/radieske/pump-rug-market-poc/internal/market-service/dto"
	"github.com/radieske/pump-rug-market-poc/internal/market-service/odds"
	"github.com/radieske/pump-rug-market-poc/internal/shared/config"
)

var T = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type wallet struct{}

func (wallet) Adjust(context.Context, string, decimal.Decimal, string) error { return nil }

type oracle struct{}

func (oracle) FetchSnapshot(context.Context, string) (domain.Snapshot, error) {
	l, p, mc := decimal.NewFromInt(1000), decimal.NewFromInt(1), decimal.NewFromInt(50000)
	b, s := int64(3), int64(2)
	ts := T
	return domain.Snapshot{Liquidity: &l, Price: &p, MarketCap: &mc, BuyCount: &b, SellCount: &s, Timestamp: &ts}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *clock) {
	t.Helper()
	c := &clock{now: T.Add(-time.Minute)}
	cfg := config.DefaultEngine()
	cfg.TxRetry.BaseDelay = 0
	eng := service.New(cfg, service.Deps{Store: memory.New(), Ledger: wallet{}, Oracle: oracle{}, Clock: c})
	srv := NewServer(zap.NewNop(), eng, odds.NewGuard(eng, decimal.RequireFromString("0.01")))
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, c
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	res, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func decodeBody[V any](t *testing.T, res *http.Response) V {
	t.Helper()
	var v V
	require.NoError(t, json.NewDecoder(res.Body).Decode(&v))
	return v
}

func createMarket(t *testing.T, ts *httptest.Server) dto.MarketResponse {
	t.Helper()
	res := post(t, ts.URL+"/v1/markets", dto.CreateMarketRequest{AssetRef: "SOL", StartTime: T, DurationMinutes: 10})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	return decodeBody[dto.MarketResponse](t, res)
}

func TestCreateAndGetMarket(t *testing.T) {
	ts, _ := newTestServer(t)
	m := createMarket(t, ts)
	assert.Equal(t, "NOT_STARTED", m.Phase)

	res, err := http.Get(ts.URL + "/v1/markets/" + m.ID)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	got := decodeBody[dto.MarketResponse](t, res)
	assert.Equal(t, "SOL", got.AssetRef)

	res2, err := http.Get(ts.URL + "/v1/markets/nope")
	require.NoError(t, err)
	defer res2.Body.Close()
	assert.Equal(t, http.StatusNotFound, res2.StatusCode)
}

func TestCreateMarket_InvalidPayload(t *testing.T) {
	ts, _ := newTestServer(t)
	res := post(t, ts.URL+"/v1/markets", map[string]any{"assetRef": "SOL", "durationMinutes": 0})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	body := decodeBody[dto.ErrorResponse](t, res)
	assert.Contains(t, body.Error, "startTime")
}

func TestPlaceBet(t *testing.T) {
	ts, c := newTestServer(t)
	m := createMarket(t, ts)
	c.set(T.Add(time.Minute))

	res := post(t, ts.URL+"/v1/markets/"+m.ID+"/bets", map[string]any{"userId": "u1", "side": "PUMP", "amount": "2.5"})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	b := decodeBody[dto.BetResponse](t, res)
	assert.Equal(t, "PENDING", b.Status)
	assert.True(t, b.NetAmount.Equal(decimal.RequireFromString("2.475")))

	res2, err := http.Get(ts.URL + "/v1/bets/" + b.BetID)
	require.NoError(t, err)
	defer res2.Body.Close()
	details := decodeBody[dto.BetDetailsResponse](t, res2)
	assert.Len(t, details.Units, 3)
	require.Len(t, details.History, 1)
	assert.Equal(t, "placed", details.History[0].Reason)
}

func TestPlaceBet_Rejections(t *testing.T) {
	ts, c := newTestServer(t)
	m := createMarket(t, ts)
	url := ts.URL + "/v1/markets/" + m.ID + "/bets"

	res := post(t, url, map[string]any{"userId": "u1", "side": "PUMP", "amount": "1"})
	assert.Equal(t, http.StatusConflict, res.StatusCode, "antes do início")

	c.set(T.Add(time.Minute))
	res = post(t, url, map[string]any{"userId": "u1", "side": "UP", "amount": "1"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = post(t, url, map[string]any{"userId": "u1", "side": "RUG", "amount": "0.01"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = post(t, url, map[string]any{"userId": "u1", "side": "RUG", "amount": "1", "expectedOdds": "9.5"})
	require.Equal(t, http.StatusConflict, res.StatusCode)
	body := decodeBody[dto.ErrorResponse](t, res)
	require.NotNil(t, body.CurrentOdds)
	assert.True(t, body.CurrentOdds.Rug.IsPositive())
}

func TestLifecycleEndpoints(t *testing.T) {
	ts, c := newTestServer(t)
	m := createMarket(t, ts)
	base := ts.URL + "/v1/markets/" + m.ID

	c.set(T.Add(time.Minute))
	res := post(t, base+"/match", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res = post(t, base+"/resolve", nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode, "mercado ainda aberto")

	res = post(t, base+"/refunds", nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	c.set(T.Add(11 * time.Minute))
	res = post(t, base+"/match", nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode, "após o cutoff")

	res = post(t, base+"/check-phase", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	tr := decodeBody[dto.PhaseResponse](t, res)
	assert.True(t, tr.Changed)
	assert.Equal(t, "RESOLVED", tr.To)

	res = post(t, base+"/settlement", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res2, err := http.Get(base)
	require.NoError(t, err)
	defer res2.Body.Close()
	got := decodeBody[dto.MarketResponse](t, res2)
	assert.Equal(t, "SETTLED", got.Phase)
	assert.Equal(t, "HOUSE", got.Outcome)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrInsufficientFunds, http.StatusConflict},
		{domain.ErrAmountBelowMinimum, http.StatusBadRequest},
		{domain.ErrBetNotFound, http.StatusNotFound},
		{domain.ErrBettingClosed, http.StatusConflict},
		{odds.ErrOddsChanged, http.StatusConflict},
		{domain.ErrIncompleteSnapshot, http.StatusBadGateway},
		{domain.ErrUnitSumMismatch, http.StatusInternalServerError},
		{fmt.Errorf("x: %w", domain.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("settle market m1: %w", store.ErrRowLocked), http.StatusConflict},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, statusFor(c.err), c.err.Error())
	}
}
