package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store"
)

const marketCols = `id, asset_ref, start_time, duration_minutes, phase, matching_state,
	pump_pool, rug_pool, pump_matched, rug_matched, pump_odds, rug_odds,
	initial_snapshot, final_snapshot, final_price, outcome,
	created_at, updated_at, resolved_at, settled_at`

func scanMarket(r rowScanner) (*domain.Market, error) {
	var (
		m                domain.Market
		initial, final   []byte
		outcome          sql.NullString
		phase, matchingS string
	)
	if err := r.Scan(
		&m.ID, &m.AssetRef, &m.StartTime, &m.DurationMinutes, &phase, &matchingS,
		&m.PumpPool, &m.RugPool, &m.PumpMatched, &m.RugMatched, &m.PumpOdds, &m.RugOdds,
		&initial, &final, &m.FinalPrice, &outcome,
		&m.CreatedAt, &m.UpdatedAt, &m.ResolvedAt, &m.SettledAt,
	); err != nil {
		return nil, err
	}
	m.Phase = domain.Phase(phase)
	m.MatchingState = domain.MatchingState(matchingS)
	m.Outcome = domain.Outcome(outcome.String)

	s, err := decodeSnapshot(initial)
	if err != nil {
		return nil, fmt.Errorf("decode initial snapshot of market %s: %w", m.ID, err)
	}
	if s != nil {
		m.InitialSnapshot = *s
	}
	if m.FinalSnapshot, err = decodeSnapshot(final); err != nil {
		return nil, fmt.Errorf("decode final snapshot of market %s: %w", m.ID, err)
	}
	return &m, nil
}

func (t *tx) InsertMarket(ctx context.Context, m *domain.Market) error {
	initial, err := encodeSnapshot(&m.InitialSnapshot)
	if err != nil {
		return err
	}
	final, err := encodeSnapshot(m.FinalSnapshot)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `INSERT INTO markets(`+marketCols+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		m.ID, m.AssetRef, m.StartTime, m.DurationMinutes, string(m.Phase), string(m.MatchingState),
		m.PumpPool, m.RugPool, m.PumpMatched, m.RugMatched, m.PumpOdds, m.RugOdds,
		initial, final, m.FinalPrice, nullString(string(m.Outcome)),
		m.CreatedAt, m.UpdatedAt, m.ResolvedAt, m.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert market %s: %w", m.ID, err)
	}
	return nil
}

func (t *tx) GetMarket(ctx context.Context, id string) (*domain.Market, error) {
	m, err := scanMarket(t.tx.QueryRowContext(ctx, `SELECT `+marketCols+` FROM markets WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMarketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// LockMarket: sem linha pode ser mercado inexistente ou travado por outro
// processo; a segunda consulta separa os dois casos.
func (t *tx) LockMarket(ctx context.Context, id string) (*domain.Market, error) {
	m, err := scanMarket(t.tx.QueryRowContext(ctx, `SELECT `+marketCols+` FROM markets WHERE id=$1 FOR UPDATE SKIP LOCKED`, id))
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("postgres: lock market %s: %w", id, err)
	}
	var one int
	err = t.tx.QueryRowContext(ctx, `SELECT 1 FROM markets WHERE id=$1`, id).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, domain.ErrMarketNotFound
	case err != nil:
		return nil, fmt.Errorf("postgres: lock market %s: %w", id, err)
	}
	return nil, store.ErrRowLocked
}

func (t *tx) GetMarketForUpdate(ctx context.Context, id string) (*domain.Market, error) {
	m, err := scanMarket(t.tx.QueryRowContext(ctx, `SELECT `+marketCols+` FROM markets WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMarketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get market for update %s: %w", id, err)
	}
	return m, nil
}

func (t *tx) UpdateMarket(ctx context.Context, m *domain.Market) error {
	final, err := encodeSnapshot(m.FinalSnapshot)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `UPDATE markets SET
		phase=$2, matching_state=$3, pump_odds=$4, rug_odds=$5,
		final_snapshot=$6, final_price=$7, outcome=$8,
		updated_at=$9, resolved_at=$10, settled_at=$11
		WHERE id=$1`,
		m.ID, string(m.Phase), string(m.MatchingState), m.PumpOdds, m.RugOdds,
		final, m.FinalPrice, nullString(string(m.Outcome)),
		m.UpdatedAt, m.ResolvedAt, m.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMarketNotFound
	}
	return nil
}

// ApplyMarketDelta incrementa os agregados no próprio UPDATE, sem ler antes
func (t *tx) ApplyMarketDelta(ctx context.Context, id string, d domain.MarketDelta) (*domain.Market, error) {
	m, err := scanMarket(t.tx.QueryRowContext(ctx, `UPDATE markets SET
		pump_pool = pump_pool + $2, rug_pool = rug_pool + $3,
		pump_matched = pump_matched + $4, rug_matched = rug_matched + $5,
		updated_at = now()
		WHERE id=$1 RETURNING `+marketCols,
		id, d.PumpPool, d.RugPool, d.PumpMatched, d.RugMatched,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMarketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: apply delta to market %s: %w", id, err)
	}
	return m, nil
}

func (t *tx) SetMarketOdds(ctx context.Context, id string, pump, rug decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE markets SET pump_odds=$2, rug_odds=$3, updated_at=now() WHERE id=$1`, id, pump, rug)
	if err != nil {
		return fmt.Errorf("postgres: set odds of market %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMarketNotFound
	}
	return nil
}

// ListMarketsToProcess lista mercados não liquidados ou com pagamento pendente
func (t *tx) ListMarketsToProcess(ctx context.Context, limit int) ([]domain.Market, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+marketCols+` FROM markets m
		WHERE m.phase <> 'SETTLED'
		   OR EXISTS (SELECT 1 FROM payouts p WHERE p.market_id = m.id AND p.status = 'PENDING')
		ORDER BY m.start_time
		LIMIT $1`, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets to process: %w", err)
	}
	defer rows.Close()

	var out []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
