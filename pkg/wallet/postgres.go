package wallet

import (
	"context"
	"database/sql"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/apperror"
)

// Postgres is a Wallet backed by the wallets and wallet_entries tables
type Postgres struct {
	db *sql.DB
}

// NewPostgres returns a Postgres-backed wallet
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Debit removes amount from the player's bankroll and records a ledger entry.
// Fails without mutation if the balance would go negative.
func (p *Postgres) Debit(ctx context.Context, playerID string, amount int64) error {
	return p.adjust(ctx, playerID, -amount)
}

// Credit adds amount to the player's bankroll and records a ledger entry
func (p *Postgres) Credit(ctx context.Context, playerID string, amount int64) error {
	return p.adjust(ctx, playerID, amount)
}

func (p *Postgres) adjust(ctx context.Context, playerID string, delta int64) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	const query = `
UPDATE wallets
SET balance = balance + $2,
    updated = (NOW() AT TIME ZONE 'UTC')
WHERE player_id = $1
  AND balance + $2 >= 0
RETURNING balance`

	var balance int64
	row := tx.QueryRowContext(ctx, query, playerID, delta)
	if err := row.Scan(&balance); err != nil {
		rollback(tx)
		if err == sql.ErrNoRows {
			return p.noRowsError(ctx, playerID)
		}

		return err
	}

	const query2 = `
INSERT INTO wallet_entries (player_id, amount, balance_after)
VALUES ($1, $2, $3)`
	if _, err := tx.ExecContext(ctx, query2, playerID, delta, balance); err != nil {
		rollback(tx)
		return err
	}

	return tx.Commit()
}

// noRowsError distinguishes a missing wallet from an overdraft
func (p *Postgres) noRowsError(ctx context.Context, playerID string) error {
	const query = `SELECT COUNT(*) FROM wallets WHERE player_id = $1`

	var count int
	if err := p.db.QueryRowContext(ctx, query, playerID).Scan(&count); err != nil {
		return err
	}

	if count == 0 {
		return apperror.NotFound("wallet not found")
	}

	return ErrInsufficientFunds
}

// Balance returns the player's current bankroll
func (p *Postgres) Balance(ctx context.Context, playerID string) (int64, error) {
	const query = `SELECT balance FROM wallets WHERE player_id = $1`

	var balance int64
	row := p.db.QueryRowContext(ctx, query, playerID)
	if err := row.Scan(&balance); err != nil {
		if err == sql.ErrNoRows {
			return 0, apperror.NotFound("wallet not found")
		}

		return 0, err
	}

	return balance, nil
}

func rollback(tx *sql.Tx) {
	_ = tx.Rollback()
}
