package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/radieske/pump-rug-market-poc/pkg/contracts/events"
)

//go:embed schema.sql
var schema string

// PostgresRepo persiste o log de eventos e a visão corrente dos mercados
type PostgresRepo struct {
	DB *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{DB: db}
}

func (r *PostgresRepo) Migrate(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, schema)
	return err
}

// AppendEvent grava o evento no log. Reentrega do mesmo id é ignorada e
// retorna false.
func (r *PostgresRepo) AppendEvent(ctx context.Context, e events.Envelope) (bool, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("marshal event %s: %w", e.ID, err)
	}
	const q = `
		INSERT INTO market_event_log (event_id, market_id, type, payload, ts)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (event_id) DO NOTHING
	`
	res, err := r.DB.ExecContext(ctx, q, e.ID, e.MarketID, e.Type, payload, e.Ts)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpsertLive atualiza market_live só quando a versão recebida não é mais
// velha que a gravada
func (r *PostgresRepo) UpsertLive(ctx context.Context, v events.MarketView) error {
	view, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal market view %s: %w", v.ID, err)
	}
	const q = `
		INSERT INTO market_live
		  (market_id, asset_ref, phase, pump_odds, rug_odds, view, version, updated_at)
		VALUES
		  ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (market_id) DO UPDATE SET
		  asset_ref  = EXCLUDED.asset_ref,
		  phase      = EXCLUDED.phase,
		  pump_odds  = EXCLUDED.pump_odds,
		  rug_odds   = EXCLUDED.rug_odds,
		  view       = EXCLUDED.view,
		  version    = EXCLUDED.version,
		  updated_at = EXCLUDED.updated_at
		WHERE market_live.version <= EXCLUDED.version
	`
	_, err = r.DB.ExecContext(ctx, q,
		v.ID, v.AssetRef, v.Phase, v.PumpOdds, v.RugOdds,
		view, v.Version, v.UpdatedAt,
	)
	return err
}
