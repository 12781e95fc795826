package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/pump-rug-market-poc/internal/shared/config"
)

func echo(name string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, name+" "+r.URL.Path)
	}))
}

func TestRouter_ForwardsByPrefix(t *testing.T) {
	market, wallet, live := echo("market"), echo("wallet"), echo("live")
	defer market.Close()
	defer wallet.Close()
	defer live.Close()

	gw := httptest.NewServer(router(config.Config{MarketURL: market.URL, WalletURL: wallet.URL, LiveURL: live.URL}))
	defer gw.Close()

	cases := map[string]string{
		"/api/v1/markets":         "market /v1/markets",
		"/api/v1/markets/m1/odds": "market /v1/markets/m1/odds",
		"/api/v1/bets/b1":         "market /v1/bets/b1",
		"/api/wallet":             "wallet /wallet",
		"/api/wallet/deposit":     "wallet /wallet/deposit",
		"/api/live/v1/markets":    "live /v1/markets",
	}
	for path, want := range cases {
		res, err := http.Get(gw.URL + path)
		require.NoError(t, err)
		b, _ := io.ReadAll(res.Body)
		res.Body.Close()
		assert.Equal(t, want, string(b), path)
		assert.Equal(t, "*", res.Header.Get("Access-Control-Allow-Origin"))
	}
}

func TestRouter_Preflight(t *testing.T) {
	rec := httptest.NewRecorder()
	router(config.Config{MarketURL: "http://x", WalletURL: "http://y", LiveURL: "http://z"}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/markets", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
