package budget

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/mbd888/spendgate/internal/money"
)

// PostgresStore implements Store with PostgreSQL. All arithmetic runs inside
// transactions with the identity row locked, so the check-and-reserve
// invariant holds even across multiple processes sharing the database.
type PostgresStore struct {
	db          *sql.DB
	spendWindow time.Duration
	orderWindow time.Duration
}

// NewPostgresStore creates a PostgreSQL-backed budget store.
func NewPostgresStore(db *sql.DB, spendWindow, orderWindow time.Duration) *PostgresStore {
	return &PostgresStore{db: db, spendWindow: spendWindow, orderWindow: orderWindow}
}

// Migrate creates the budget tables.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS spend_windows (
			identity          VARCHAR(42) PRIMARY KEY,
			window_started_at TIMESTAMPTZ NOT NULL,
			committed         NUMERIC(20,6) NOT NULL DEFAULT 0,
			CONSTRAINT chk_committed_nonneg CHECK (committed >= 0)
		);

		CREATE TABLE IF NOT EXISTS budget_reservations (
			ref        VARCHAR(36) PRIMARY KEY,
			identity   VARCHAR(42) NOT NULL,
			amount     NUMERIC(20,6) NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_reservations_identity ON budget_reservations(identity);

		CREATE TABLE IF NOT EXISTS order_attempts (
			identity     VARCHAR(42) NOT NULL,
			attempted_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_attempts_identity ON order_attempts(identity, attempted_at DESC);
	`)
	return err
}

// lockWindow loads the identity's window row FOR UPDATE inside tx, creating
// it if absent and applying the lazy-reset rule.
func (p *PostgresStore) lockWindow(ctx context.Context, tx *sql.Tx, identity string, now time.Time) (*big.Int, time.Time, error) {
	var committedStr string
	var startedAt time.Time

	err := tx.QueryRowContext(ctx, `
		SELECT committed, window_started_at FROM spend_windows
		WHERE identity = $1 FOR UPDATE`, identity).Scan(&committedStr, &startedAt)

	if errors.Is(err, sql.ErrNoRows) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO spend_windows (identity, window_started_at, committed)
			VALUES ($1, $2, 0)`, identity, now); err != nil {
			return nil, time.Time{}, err
		}
		return new(big.Int), now, nil
	}
	if err != nil {
		return nil, time.Time{}, err
	}

	if now.Sub(startedAt) >= p.spendWindow {
		if _, err := tx.ExecContext(ctx, `
			UPDATE spend_windows SET committed = 0, window_started_at = $2
			WHERE identity = $1`, identity, now); err != nil {
			return nil, time.Time{}, err
		}
		return new(big.Int), now, nil
	}

	committed, ok := money.Parse(committedStr)
	if !ok {
		return nil, time.Time{}, fmt.Errorf("corrupt committed amount %q for %s", committedStr, identity)
	}
	return committed, startedAt, nil
}

func (p *PostgresStore) reservedSum(ctx context.Context, tx *sql.Tx, identity string) (*big.Int, error) {
	var sumStr string
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM budget_reservations
		WHERE identity = $1`, identity).Scan(&sumStr)
	if err != nil {
		return nil, err
	}
	sum, ok := money.Parse(sumStr)
	if !ok {
		return nil, fmt.Errorf("corrupt reservation sum %q for %s", sumStr, identity)
	}
	return sum, nil
}

func (p *PostgresStore) Window(ctx context.Context, identity string, now time.Time) (*Snapshot, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	committed, startedAt, err := p.lockWindow(ctx, tx, identity, now)
	if err != nil {
		return nil, err
	}
	reserved, err := p.reservedSum(ctx, tx, identity)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &Snapshot{
		Identity:        identity,
		WindowStartedAt: startedAt,
		Committed:       money.Format(committed),
		Reserved:        money.Format(reserved),
	}, nil
}

func (p *PostgresStore) Reserve(ctx context.Context, identity string, amount, ceiling *big.Int, ref string, now time.Time) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	committed, _, err := p.lockWindow(ctx, tx, identity, now)
	if err != nil {
		return err
	}
	reserved, err := p.reservedSum(ctx, tx, identity)
	if err != nil {
		return err
	}

	projected := new(big.Int).Add(committed, reserved)
	projected.Add(projected, amount)
	if projected.Cmp(ceiling) > 0 {
		return ErrLimitExceeded
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO budget_reservations (ref, identity, amount, created_at)
		VALUES ($1, $2, $3, $4)`, ref, identity, money.Format(amount), now); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) Commit(ctx context.Context, identity, ref string, now time.Time) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, _, err := p.lockWindow(ctx, tx, identity, now); err != nil {
		return err
	}

	var amountStr string
	err = tx.QueryRowContext(ctx, `
		DELETE FROM budget_reservations WHERE ref = $1 AND identity = $2
		RETURNING amount`, ref, identity).Scan(&amountStr)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUnknownReservation
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE spend_windows SET committed = committed + $2
		WHERE identity = $1`, identity, amountStr); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) Release(ctx context.Context, identity, ref string) error {
	result, err := p.db.ExecContext(ctx, `
		DELETE FROM budget_reservations WHERE ref = $1 AND identity = $2`, ref, identity)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUnknownReservation
	}
	return nil
}

func (p *PostgresStore) RecordAttempt(ctx context.Context, identity string, at time.Time) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Prune on access; keeps the table bounded without a background sweeper.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM order_attempts WHERE identity = $1 AND attempted_at < $2`,
		identity, at.Add(-p.orderWindow)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO order_attempts (identity, attempted_at) VALUES ($1, $2)`,
		identity, at); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) CountAttempts(ctx context.Context, identity string, since time.Time) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM order_attempts
		WHERE identity = $1 AND attempted_at >= $2`, identity, since).Scan(&count)
	return count, err
}

var _ Store = (*PostgresStore)(nil)
