package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/pump-rug-market-poc/pkg/contracts/events"
)

const mid = "6f1c2a4e-1b7d-4d1e-9a55-3f0f3c9e2a10"

type fakeRepo struct {
	views  map[string]events.MarketView
	log    []events.Envelope
	phase  string
	limit  int
	failed bool
}

func (r *fakeRepo) ListMarkets(_ context.Context, phase string, limit int) ([]events.MarketView, error) {
	r.phase, r.limit = phase, limit
	out := []events.MarketView{}
	for _, v := range r.views {
		if phase == "" || v.Phase == phase {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetMarket(_ context.Context, id string) (*events.MarketView, error) {
	if r.failed {
		return nil, errors.New("db down")
	}
	v, ok := r.views[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &v, nil
}

func (r *fakeRepo) ListEvents(_ context.Context, id string, limit int) ([]events.Envelope, error) {
	r.limit = limit
	return r.log, nil
}

type fakeCache struct {
	views map[string]events.MarketView
	err   error
	sets  int
}

func (c *fakeCache) GetMarket(_ context.Context, id string) (*events.MarketView, bool, error) {
	if c.err != nil {
		return nil, false, c.err
	}
	v, ok := c.views[id]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (c *fakeCache) SetMarket(_ context.Context, v events.MarketView, _ time.Duration) error {
	c.sets++
	c.views[v.ID] = v
	return nil
}

func view(phase string, version int64) events.MarketView {
	return events.MarketView{
		ID: mid, AssetRef: "SOL", Phase: phase,
		PumpOdds: decimal.RequireFromString("1.8"), RugOdds: decimal.RequireFromString("2.2"),
		Version: version,
	}
}

func do(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestGetMarket_CacheHit(t *testing.T) {
	repo := &fakeRepo{views: map[string]events.MarketView{mid: view("BETTING", 1)}}
	c := &fakeCache{views: map[string]events.MarketView{mid: view("OBSERVATION", 2)}}
	var hits []bool
	api := &API{ReadRepo: repo, Cache: c, OnCache: func(hit bool) { hits = append(hits, hit) }}

	rec := do(t, api.Router(), "/v1/markets/"+mid)
	require.Equal(t, http.StatusOK, rec.Code)
	var got events.MarketView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "OBSERVATION", got.Phase)
	assert.Equal(t, []bool{true}, hits)
	assert.Zero(t, c.sets)
}

func TestGetMarket_MissFallsBackAndRefills(t *testing.T) {
	repo := &fakeRepo{views: map[string]events.MarketView{mid: view("BETTING", 1)}}
	c := &fakeCache{views: map[string]events.MarketView{}}
	api := &API{ReadRepo: repo, Cache: c}

	rec := do(t, api.Router(), "/v1/markets/"+mid)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, c.sets)
	assert.Contains(t, c.views, mid)
}

func TestGetMarket_CacheErrorStillServesFromDB(t *testing.T) {
	repo := &fakeRepo{views: map[string]events.MarketView{mid: view("BETTING", 1)}}
	c := &fakeCache{views: map[string]events.MarketView{}, err: errors.New("redis down")}
	api := &API{ReadRepo: repo, Cache: c}

	rec := do(t, api.Router(), "/v1/markets/"+mid)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetMarket_Errors(t *testing.T) {
	repo := &fakeRepo{views: map[string]events.MarketView{}}
	api := &API{ReadRepo: repo, Cache: &fakeCache{views: map[string]events.MarketView{}}}
	h := api.Router()

	assert.Equal(t, http.StatusBadRequest, do(t, h, "/v1/markets/not-a-uuid").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, "/v1/markets/"+mid).Code)

	repo.failed = true
	assert.Equal(t, http.StatusInternalServerError, do(t, h, "/v1/markets/"+mid).Code)
}

func TestListMarkets_FilterAndLimit(t *testing.T) {
	repo := &fakeRepo{views: map[string]events.MarketView{mid: view("BETTING", 1)}}
	api := &API{ReadRepo: repo, Cache: &fakeCache{views: map[string]events.MarketView{}}}
	h := api.Router()

	rec := do(t, h, "/v1/markets?phase=SETTLED&limit=5000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "SETTLED", repo.phase)
	assert.Equal(t, maxLimit, repo.limit)
	assert.JSONEq(t, `[]`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(t, h, "/v1/markets?limit=-1").Code)
}

func TestListEvents(t *testing.T) {
	repo := &fakeRepo{log: []events.Envelope{
		{ID: "e1", Type: events.TypeBetPlaced, MarketID: mid},
		{ID: "e2", Type: events.TypeMatchCreated, MarketID: mid},
	}}
	api := &API{ReadRepo: repo, Cache: &fakeCache{views: map[string]events.MarketView{}}}

	rec := do(t, api.Router(), "/v1/markets/"+mid+"/events")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []events.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, events.TypeMatchCreated, got[1].Type)
	assert.Equal(t, defaultLimit, repo.limit)
}
