package oracle_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/oracle"
)

func TestFetchSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oracle/snapshot/SOL", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"liquidity":"1000000","price":"1.25","marketCap":"5000000","buyCount":10,"sellCount":4,"timestamp":"2026-03-01T12:00:00Z"}`))
	}))
	defer srv.Close()

	c := oracle.New(srv.URL, 0, 1, time.Second)
	s, err := c.FetchSnapshot(context.Background(), "SOL")
	require.NoError(t, err)
	require.NotNil(t, s.Liquidity)
	assert.Equal(t, "1000000", s.Liquidity.String())
	assert.Equal(t, "1.25", s.Price.String())
	assert.EqualValues(t, 10, *s.BuyCount)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), s.Timestamp.UTC())
}

func TestFetchSnapshot_MissingFieldsAreNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"price":"1.25"}`))
	}))
	defer srv.Close()

	s, err := oracle.New(srv.URL, 0, 1, time.Second).FetchSnapshot(context.Background(), "SOL")
	require.NoError(t, err)
	assert.Nil(t, s.Liquidity)
	assert.Nil(t, s.Timestamp)
}

func TestFetchSnapshot_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := oracle.New(srv.URL, 0, 1, time.Second).FetchSnapshot(context.Background(), "SOL")
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
	assert.ErrorIs(t, err, domain.ErrOracleData)
}

func TestFetchSnapshot_RespectsRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := oracle.New(srv.URL, 1, 1, time.Second)
	_, err := c.FetchSnapshot(context.Background(), "SOL")
	require.NoError(t, err)

	// o segundo pedido precisaria esperar ~1s; com prazo curto falha
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.FetchSnapshot(ctx, "SOL")
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
}
