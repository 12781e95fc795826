package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/radieske/pump-rug-market-poc/pkg/contracts/events"
)

type ReadRepo struct {
	DB *sql.DB
}

// ListMarkets retorna as visões correntes, filtrando por fase quando informada
func (r *ReadRepo) ListMarkets(ctx context.Context, phase string, limit int) ([]events.MarketView, error) {
	const q = `
		SELECT view
		FROM market_live
		WHERE ($1 = '' OR phase = $1)
		ORDER BY updated_at DESC
		LIMIT $2;
	`
	rows, err := r.DB.QueryContext(ctx, q, phase, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []events.MarketView{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var v events.MarketView
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetMarket retorna sql.ErrNoRows quando o mercado ainda não tem visão
func (r *ReadRepo) GetMarket(ctx context.Context, marketID string) (*events.MarketView, error) {
	const q = `SELECT view FROM market_live WHERE market_id = $1;`
	var raw []byte
	if err := r.DB.QueryRowContext(ctx, q, marketID).Scan(&raw); err != nil {
		return nil, err
	}
	var v events.MarketView
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListEvents devolve o log de eventos do mercado em ordem de emissão
func (r *ReadRepo) ListEvents(ctx context.Context, marketID string, limit int) ([]events.Envelope, error) {
	const q = `
		SELECT payload
		FROM market_event_log
		WHERE market_id = $1
		ORDER BY ts, stored_at
		LIMIT $2;
	`
	rows, err := r.DB.QueryContext(ctx, q, marketID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []events.Envelope{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e events.Envelope
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
