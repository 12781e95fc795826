package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store"
)

// Matches

func (t *tx) InsertMatch(ctx context.Context, m *domain.Match) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO matches(id, market_id, pump_unit_id, rug_unit_id, pump_bet_id, rug_bet_id, amount, pump_odds, rug_odds, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		m.ID, m.MarketID, m.PumpUnitID, m.RugUnitID, m.PumpBetID, m.RugBetID, m.Amount, m.PumpOdds, m.RugOdds, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert match %s: %w", m.ID, err)
	}
	return nil
}

func (t *tx) ListMatches(ctx context.Context, marketID string) ([]domain.Match, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id, market_id, pump_unit_id, rug_unit_id, pump_bet_id, rug_bet_id, amount, pump_odds, rug_odds, created_at
		FROM matches WHERE market_id=$1 ORDER BY seq`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list matches of market %s: %w", marketID, err)
	}
	defer rows.Close()

	var out []domain.Match
	for rows.Next() {
		var m domain.Match
		if err := rows.Scan(&m.ID, &m.MarketID, &m.PumpUnitID, &m.RugUnitID, &m.PumpBetID, &m.RugBetID, &m.Amount, &m.PumpOdds, &m.RugOdds, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Reembolsos

func (t *tx) InsertRefund(ctx context.Context, r *domain.Refund) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO refunds(id, bet_id, user_id, market_id, amount, status, tx_marker, created_at, processed_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		r.ID, r.BetID, r.UserID, r.MarketID, r.Amount, string(r.Status), r.TxMarker, r.CreatedAt, r.ProcessedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert refund %s: %w", r.ID, err)
	}
	return nil
}

func (t *tx) SumRefunds(ctx context.Context, betID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := t.tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount), 0) FROM refunds WHERE bet_id=$1`, betID).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("postgres: sum refunds of bet %s: %w", betID, err)
	}
	return total, nil
}

// Histórico

func (t *tx) InsertStatusHistory(ctx context.Context, h *domain.StatusHistory) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO bet_status_history(id, bet_id, old_status, new_status, matched_amount, net_amount, reason, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		h.ID, h.BetID, nullString(string(h.OldStatus)), string(h.NewStatus), h.MatchedAmount, h.NetAmount, h.Reason, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert status history of bet %s: %w", h.BetID, err)
	}
	return nil
}

func (t *tx) ListStatusHistory(ctx context.Context, betID string) ([]domain.StatusHistory, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id, bet_id, old_status, new_status, matched_amount, net_amount, reason, created_at
		FROM bet_status_history WHERE bet_id=$1 ORDER BY seq`, betID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list status history of bet %s: %w", betID, err)
	}
	defer rows.Close()

	var out []domain.StatusHistory
	for rows.Next() {
		var (
			h    domain.StatusHistory
			oldS sql.NullString
			newS string
		)
		if err := rows.Scan(&h.ID, &h.BetID, &oldS, &newS, &h.MatchedAmount, &h.NetAmount, &h.Reason, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.OldStatus = domain.BetStatus(oldS.String)
		h.NewStatus = domain.BetStatus(newS)
		out = append(out, h)
	}
	return out, rows.Err()
}

// Pagamentos

func (t *tx) InsertPayout(ctx context.Context, p *domain.Payout) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO payouts(id, market_id, user_id, amount, bet_ids, status, attempts, last_error, created_at, paid_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.MarketID, p.UserID, p.Amount, pq.Array(p.BetIDs), string(p.Status), p.Attempts, nullString(p.LastError), p.CreatedAt, p.PaidAt)
	if err != nil {
		return fmt.Errorf("postgres: insert payout %s: %w", p.ID, err)
	}
	return nil
}

func (t *tx) ListPayoutIDs(ctx context.Context, marketID string, status domain.PayoutStatus) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id FROM payouts WHERE market_id=$1 AND status=$2 ORDER BY seq`, marketID, string(status))
	if err != nil {
		return nil, fmt.Errorf("postgres: list payouts of market %s: %w", marketID, err)
	}
	return scanIDs(rows)
}

func (t *tx) LockPayout(ctx context.Context, id string) (*domain.Payout, error) {
	var (
		p       domain.Payout
		status  string
		lastErr sql.NullString
	)
	err := t.tx.QueryRowContext(ctx, `SELECT id, market_id, user_id, amount, bet_ids, status, attempts, last_error, created_at, paid_at
		FROM payouts WHERE id=$1 FOR UPDATE SKIP LOCKED`, id).
		Scan(&p.ID, &p.MarketID, &p.UserID, &p.Amount, pq.Array(&p.BetIDs), &status, &p.Attempts, &lastErr, &p.CreatedAt, &p.PaidAt)
	if errors.Is(err, sql.ErrNoRows) {
		// ausente ou travado por outro worker: o chamador pula nos dois casos
		return nil, store.ErrRowLocked
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: lock payout %s: %w", id, err)
	}
	p.Status = domain.PayoutStatus(status)
	p.LastError = lastErr.String
	return &p, nil
}

func (t *tx) UpdatePayout(ctx context.Context, p *domain.Payout) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE payouts SET status=$2, attempts=$3, last_error=$4, paid_at=$5 WHERE id=$1`,
		p.ID, string(p.Status), p.Attempts, nullString(p.LastError), p.PaidAt)
	if err != nil {
		return fmt.Errorf("postgres: update payout %s: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("postgres: payout %s: %w", p.ID, domain.ErrNotFound)
	}
	return nil
}
