package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store"
)

const betCols = `id, market_id, user_id, side, gross_amount, fee, net_amount, matched_amount,
	odds, potential_payout, refund_amount, payout_amount, status,
	created_at, updated_at, matched_at, settled_at, refunded_at`

func scanBet(r rowScanner) (*domain.Bet, error) {
	var (
		b            domain.Bet
		side, status string
	)
	if err := r.Scan(
		&b.ID, &b.MarketID, &b.UserID, &side, &b.GrossAmount, &b.Fee, &b.NetAmount, &b.MatchedAmount,
		&b.Odds, &b.PotentialPayout, &b.RefundAmount, &b.PayoutAmount, &status,
		&b.CreatedAt, &b.UpdatedAt, &b.MatchedAt, &b.SettledAt, &b.RefundedAt,
	); err != nil {
		return nil, err
	}
	b.Side = domain.Side(side)
	b.Status = domain.BetStatus(status)
	return &b, nil
}

func scanBets(rows *sql.Rows) ([]domain.Bet, error) {
	defer rows.Close()
	var out []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (t *tx) InsertBet(ctx context.Context, b *domain.Bet) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO bets(`+betCols+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		b.ID, b.MarketID, b.UserID, string(b.Side), b.GrossAmount, b.Fee, b.NetAmount, b.MatchedAmount,
		b.Odds, b.PotentialPayout, b.RefundAmount, b.PayoutAmount, string(b.Status),
		b.CreatedAt, b.UpdatedAt, b.MatchedAt, b.SettledAt, b.RefundedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert bet %s: %w", b.ID, err)
	}
	return nil
}

func (t *tx) GetBet(ctx context.Context, id string) (*domain.Bet, error) {
	b, err := scanBet(t.tx.QueryRowContext(ctx, `SELECT `+betCols+` FROM bets WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get bet %s: %w", id, err)
	}
	return b, nil
}

func (t *tx) LockBet(ctx context.Context, id string) (*domain.Bet, error) {
	b, err := scanBet(t.tx.QueryRowContext(ctx, `SELECT `+betCols+` FROM bets WHERE id=$1 FOR UPDATE SKIP LOCKED`, id))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("postgres: lock bet %s: %w", id, err)
	}
	var one int
	err = t.tx.QueryRowContext(ctx, `SELECT 1 FROM bets WHERE id=$1`, id).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, domain.ErrBetNotFound
	case err != nil:
		return nil, fmt.Errorf("postgres: lock bet %s: %w", id, err)
	}
	return nil, store.ErrRowLocked
}

// LockBetsByStatus trava as apostas em ordem de chegada; linhas presas por
// outra passada ficam de fora
func (t *tx) LockBetsByStatus(ctx context.Context, marketID string, statuses []domain.BetStatus, limit int) ([]domain.Bet, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+betCols+` FROM bets
		WHERE market_id=$1 AND status = ANY($2)
		ORDER BY seq
		LIMIT $3
		FOR UPDATE SKIP LOCKED`,
		marketID, pq.Array(statusStrings(statuses)), limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("postgres: lock bets of market %s: %w", marketID, err)
	}
	return scanBets(rows)
}

func (t *tx) ListBetIDs(ctx context.Context, marketID string, statuses []domain.BetStatus) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id FROM bets WHERE market_id=$1 AND status = ANY($2) ORDER BY seq`,
		marketID, pq.Array(statusStrings(statuses)))
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets of market %s: %w", marketID, err)
	}
	return scanIDs(rows)
}

func (t *tx) UpdateBet(ctx context.Context, b *domain.Bet) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE bets SET
		matched_amount=$2, potential_payout=$3, refund_amount=$4, payout_amount=$5, status=$6,
		updated_at=$7, matched_at=$8, settled_at=$9, refunded_at=$10
		WHERE id=$1`,
		b.ID, b.MatchedAmount, b.PotentialPayout, b.RefundAmount, b.PayoutAmount, string(b.Status),
		b.UpdatedAt, b.MatchedAt, b.SettledAt, b.RefundedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update bet %s: %w", b.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrBetNotFound
	}
	return nil
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
