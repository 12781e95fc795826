package repo

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schema string

// Postgres implementa operações de carteira em banco
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// Migrate cria as tabelas se não existirem
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

// GetOrCreateWallet retorna o walletId e saldo de um usuário, criando a carteira se não existir
func (p *Postgres) GetOrCreateWallet(ctx context.Context, userID string) (walletID string, balance decimal.Decimal, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", decimal.Zero, err
	}
	defer tx.Rollback()

	if walletID, balance, err = ensureWallet(ctx, tx, userID, false); err != nil {
		return "", decimal.Zero, err
	}
	if err = tx.Commit(); err != nil {
		return "", decimal.Zero, err
	}
	return walletID, balance, nil
}

// Deposit é um crédito positivo; sem ref não há idempotência
func (p *Postgres) Deposit(ctx context.Context, userID string, amount decimal.Decimal, externalRef string) (walletID string, newBalance decimal.Decimal, err error) {
	if !amount.IsPositive() {
		return "", decimal.Zero, ErrInvalidAmount
	}
	ref := ""
	if externalRef != "" {
		ref = "deposit:" + externalRef
	}
	walletID, newBalance, _, err = p.Adjust(ctx, userID, amount, ref, "deposit")
	return walletID, newBalance, err
}

// Adjust aplica um valor com sinal sobre o saldo com lock pessimista na
// carteira. A mesma (carteira, ref) só é aplicada uma vez: na repetição
// retorna applied=false e o saldo atual. Débito que deixaria saldo negativo
// falha com ErrInsufficientFunds.
func (p *Postgres) Adjust(ctx context.Context, userID string, amount decimal.Decimal, externalRef, reason string) (walletID string, newBalance decimal.Decimal, applied bool, err error) {
	if amount.IsZero() {
		return "", decimal.Zero, false, ErrInvalidAmount
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", decimal.Zero, false, err
	}
	defer tx.Rollback()

	walletID, balance, err := ensureWallet(ctx, tx, userID, true)
	if err != nil {
		return "", decimal.Zero, false, err
	}

	if externalRef != "" {
		var exists int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM wallet_ledger WHERE wallet_id=$1 AND external_ref=$2`, walletID, externalRef).Scan(&exists)
		if err == nil {
			return walletID, balance, false, nil // idempotente
		} else if !errors.Is(err, sql.ErrNoRows) {
			return "", decimal.Zero, false, err
		}
	}

	newBalance = balance.Add(amount)
	if newBalance.IsNegative() {
		return "", decimal.Zero, false, fmt.Errorf("%w: balance %s, debit %s", ErrInsufficientFunds, balance, amount.Neg())
	}

	if _, err = tx.ExecContext(ctx, `UPDATE wallets SET balance = $1, version = version + 1 WHERE id=$2`, newBalance, walletID); err != nil {
		return "", decimal.Zero, false, err
	}

	op := "CREDIT"
	if amount.IsNegative() {
		op = "DEBIT"
	}
	var ref any
	if externalRef != "" {
		ref = externalRef
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO wallet_ledger(wallet_id, operation_type, amount, description, external_ref) VALUES($1,$2,$3,$4,$5)`,
		walletID, op, amount.Abs(), reason, ref); err != nil {
		return "", decimal.Zero, false, err
	}

	if err = tx.Commit(); err != nil {
		return "", decimal.Zero, false, err
	}
	return walletID, newBalance, true, nil
}

// ensureWallet busca (ou cria) a carteira; forUpdate trava a linha
func ensureWallet(ctx context.Context, tx *sql.Tx, userID string, forUpdate bool) (string, decimal.Decimal, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO wallets(id, user_id, balance, version) VALUES($1,$2,0,1) ON CONFLICT (user_id) DO NOTHING`,
		uuid.NewString(), userID); err != nil {
		return "", decimal.Zero, err
	}

	q := `SELECT id, balance FROM wallets WHERE user_id=$1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	var id string
	var bal decimal.Decimal
	if err := tx.QueryRowContext(ctx, q, userID).Scan(&id, &bal); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", decimal.Zero, ErrNotFound
		}
		return "", decimal.Zero, err
	}
	return id, bal, nil
}
