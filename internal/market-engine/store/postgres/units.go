package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
)

const unitCols = `id, bet_id, market_id, side, amount, status, peer_unit_id, created_at, matched_at`

func scanUnits(rows *sql.Rows) ([]domain.BetUnit, error) {
	defer rows.Close()
	var out []domain.BetUnit
	for rows.Next() {
		var (
			u            domain.BetUnit
			side, status string
			peer         sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.BetID, &u.MarketID, &side, &u.Amount, &status, &peer, &u.CreatedAt, &u.MatchedAt); err != nil {
			return nil, err
		}
		u.Side = domain.Side(side)
		u.Status = domain.UnitStatus(status)
		u.PeerUnitID = peer.String
		out = append(out, u)
	}
	return out, rows.Err()
}

func (t *tx) InsertUnit(ctx context.Context, u *domain.BetUnit) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO bet_units(`+unitCols+`) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		u.ID, u.BetID, u.MarketID, string(u.Side), u.Amount, string(u.Status), nullString(u.PeerUnitID), u.CreatedAt, u.MatchedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert unit %s: %w", u.ID, err)
	}
	return nil
}

func (t *tx) LockPendingUnits(ctx context.Context, betIDs []string) ([]domain.BetUnit, error) {
	if len(betIDs) == 0 {
		return nil, nil
	}
	rows, err := t.tx.QueryContext(ctx, `SELECT `+unitCols+` FROM bet_units
		WHERE bet_id = ANY($1::uuid[]) AND status = 'PENDING'
		ORDER BY seq
		FOR UPDATE SKIP LOCKED`, pq.Array(betIDs))
	if err != nil {
		return nil, fmt.Errorf("postgres: lock pending units: %w", err)
	}
	return scanUnits(rows)
}

func (t *tx) ListUnits(ctx context.Context, betID string) ([]domain.BetUnit, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+unitCols+` FROM bet_units WHERE bet_id=$1 ORDER BY seq`, betID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list units of bet %s: %w", betID, err)
	}
	return scanUnits(rows)
}

func (t *tx) UpdateUnit(ctx context.Context, u *domain.BetUnit) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE bet_units SET amount=$2, status=$3, peer_unit_id=$4, matched_at=$5 WHERE id=$1`,
		u.ID, u.Amount, string(u.Status), nullString(u.PeerUnitID), u.MatchedAt)
	if err != nil {
		return fmt.Errorf("postgres: update unit %s: %w", u.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("postgres: update unit %s: %w", u.ID, domain.ErrNotFound)
	}
	return nil
}
