package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/octobees/leads-discovery/internal/service/credits"
)

// PGXCreditsRepository keeps balances in credit_accounts and an audit trail
// in credit_transactions. Accounts are opened lazily with the default balance.
type PGXCreditsRepository struct {
	pool           pgxPool
	defaultCredits int
}

// NewPGXCreditsRepository wires a pgx backed credit ledger.
func NewPGXCreditsRepository(pool pgxPool, defaultCredits int) *PGXCreditsRepository {
	if defaultCredits < 0 {
		defaultCredits = 0
	}
	return &PGXCreditsRepository{pool: pool, defaultCredits: defaultCredits}
}

var _ credits.Ledger = (*PGXCreditsRepository)(nil)

// Balance implements credits.Ledger.
func (r *PGXCreditsRepository) Balance(ctx context.Context, principalID string) (int, error) {
	var balance int
	err := r.pool.QueryRow(ctx, `SELECT balance FROM credit_accounts WHERE principal_id = $1`, principalID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.defaultCredits, nil
		}
		return 0, eris.Wrap(err, "query credit balance")
	}
	return balance, nil
}

// Debit implements credits.Ledger. The account row is locked for the
// duration of the check and the update.
func (r *PGXCreditsRepository) Debit(ctx context.Context, principalID string, amount int, reason string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return eris.Wrap(err, "start debit tx")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
        INSERT INTO credit_accounts (principal_id, balance)
        VALUES ($1, $2)
        ON CONFLICT (principal_id) DO NOTHING
    `, principalID, r.defaultCredits); err != nil {
		return eris.Wrap(err, "open credit account")
	}

	var balance int
	if err := tx.QueryRow(ctx, `SELECT balance FROM credit_accounts WHERE principal_id = $1 FOR UPDATE`, principalID).Scan(&balance); err != nil {
		return eris.Wrap(err, "lock credit account")
	}
	if balance < amount {
		return credits.ErrInsufficientCredits
	}

	if _, err := tx.Exec(ctx, `
        UPDATE credit_accounts
        SET balance = balance - $2, updated_at = NOW()
        WHERE principal_id = $1
    `, principalID, amount); err != nil {
		return eris.Wrap(err, "update credit balance")
	}

	if _, err := tx.Exec(ctx, `
        INSERT INTO credit_transactions (id, principal_id, amount, reason)
        VALUES ($1, $2, $3, $4)
    `, uuid.New(), principalID, -amount, reason); err != nil {
		return eris.Wrap(err, "record credit transaction")
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "commit debit tx")
	}
	return nil
}
