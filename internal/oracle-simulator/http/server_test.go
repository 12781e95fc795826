package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/oracle"
	"github.com/radieske/pump-rug-market-poc/internal/oracle-simulator/feed"
)

func TestOracleClientAgainstSimulator(t *testing.T) {
	var served []string
	s := &Server{
		Feed:       feed.New(1, func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }),
		OnSnapshot: func(a string) { served = append(served, a) },
	}
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	c := oracle.New(srv.URL, 0, 1, time.Second)
	snap, err := c.FetchSnapshot(context.Background(), "sol")
	require.NoError(t, err)
	require.NotNil(t, snap.Liquidity)
	assert.Equal(t, "1000000", snap.Liquidity.String())
	assert.Equal(t, []string{"SOL"}, served)

	res, err := http.Post(srv.URL+"/oracle/assets/sol/scenario", "application/json", strings.NewReader(`{"scenario":"blackout"}`))
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	snap, err = c.FetchSnapshot(context.Background(), "SOL")
	require.NoError(t, err)
	assert.Nil(t, snap.Liquidity)
}

func TestSetScenario_Rejections(t *testing.T) {
	s := &Server{Feed: feed.New(1, nil)}
	h := s.Router()

	for _, body := range []string{`{"scenario":"moon"}`, `not json`} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/oracle/assets/SOL/scenario", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestSnapshotShape(t *testing.T) {
	s := &Server{Feed: feed.New(1, nil)}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oracle/snapshot/BONK", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	for _, k := range []string{"liquidity", "price", "marketCap", "buyCount", "sellCount", "timestamp"} {
		assert.Contains(t, rec.Body.String(), `"`+k+`"`)
	}
}
