package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	walletdto "github.com/radieske/pump-rug-market-poc/internal/wallet-service/dto"
)

// Client chama o wallet-service. Implementa settlement.Ledger.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(base string) *Client {
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: 2 * time.Second},
	}
}

// Adjust aplica um crédito (amount > 0) ou débito (amount < 0) idempotente
// por ref. Saldo insuficiente volta como domain.ErrInsufficientFunds.
func (c *Client) Adjust(ctx context.Context, userID string, amount decimal.Decimal, ref string) error {
	body, _ := json.Marshal(walletdto.AdjustRequest{
		UserID:      userID,
		Amount:      amount,
		ExternalRef: ref,
		Reason:      reason(ref),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/wallet/adjust", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("wallet adjust %s: %w", ref, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusConflict:
		return fmt.Errorf("user %s: %w", userID, domain.ErrInsufficientFunds)
	case res.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("wallet adjust http %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// reason é o prefixo da ref: bet, bet-rollback, refund, payout
func reason(ref string) string {
	if i := strings.IndexByte(ref, ':'); i > 0 {
		return ref[:i]
	}
	return "adjust"
}
