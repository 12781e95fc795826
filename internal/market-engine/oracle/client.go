package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
)

// Client consulta o feed de preço/liquidez (oracle-simulator ou provedor real)
// respeitando um limite de requisições por segundo
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Limiter *rate.Limiter
}

func New(base string, rps float64, burst int, timeout time.Duration) *Client {
	if burst <= 0 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Inf, burst)
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: timeout},
		Limiter: lim,
	}
}

// FetchSnapshot busca o snapshot corrente de assetRef. Falhas de rede e
// respostas não-2xx viram domain.ErrOracleUnavailable; campos ausentes são
// verificados por quem consome.
func (c *Client) FetchSnapshot(ctx context.Context, assetRef string) (domain.Snapshot, error) {
	if err := c.Limiter.Wait(ctx); err != nil {
		return domain.Snapshot{}, fmt.Errorf("%w: %v", domain.ErrOracleUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/oracle/snapshot/"+url.PathEscape(assetRef), nil)
	if err != nil {
		return domain.Snapshot{}, err
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("%w: %v", domain.ErrOracleUnavailable, err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return domain.Snapshot{}, fmt.Errorf("%w: oracle snapshot %s http %d", domain.ErrOracleUnavailable, assetRef, res.StatusCode)
	}

	var out domain.Snapshot
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return domain.Snapshot{}, fmt.Errorf("%w: decode snapshot %s: %v", domain.ErrIncompleteSnapshot, assetRef, err)
	}
	return out, nil
}
