package wallet_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/wallet"
	walletdto "github.com/radieske/pump-rug-market-poc/internal/wallet-service/dto"
)

func TestAdjust_SendsSignedAmount(t *testing.T) {
	var got walletdto.AdjustRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wallet/adjust", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	err := wallet.New(srv.URL).Adjust(context.Background(), "u1", decimal.RequireFromString("-2.5"), "bet:b1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "-2.5", got.Amount.String())
	assert.Equal(t, "bet:b1", got.ExternalRef)
	assert.Equal(t, "bet", got.Reason)
}

func TestAdjust_ConflictIsInsufficientFunds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient funds", http.StatusConflict)
	}))
	defer srv.Close()

	err := wallet.New(srv.URL).Adjust(context.Background(), "u1", decimal.RequireFromString("-100"), "bet:b1")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAdjust_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "db down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := wallet.New(srv.URL).Adjust(context.Background(), "u1", decimal.NewFromInt(1), "payout:p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 500")
	assert.NotErrorIs(t, err, domain.ErrInsufficientFunds)
}
