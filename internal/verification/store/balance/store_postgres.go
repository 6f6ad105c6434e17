package balance

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	dErrors "trustgate/pkg/domain-errors"
	"trustgate/pkg/requestcontext"
)

// Schema creates the balances table.
const Schema = `
CREATE TABLE IF NOT EXISTS account_balances (
	account_id uuid PRIMARY KEY,
	credits    integer NOT NULL DEFAULT 0 CHECK (credits >= 0),
	updated_at timestamptz NOT NULL
)`

// PostgresStore persists credit balances. CompareAndSwap is a conditional
// UPDATE checking the read-time value, so a racing writer shows up as zero
// rows affected rather than a lost update.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema applies the table definition.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure account_balances schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, accountID uuid.UUID) (int, error) {
	var credits int
	err := s.pool.QueryRow(ctx,
		`SELECT credits FROM account_balances WHERE account_id = $1`,
		accountID,
	).Scan(&credits)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, dErrors.New(dErrors.CodeProfileNotFound, "no balance record for account")
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return credits, nil
}

func (s *PostgresStore) CompareAndSwap(ctx context.Context, accountID uuid.UUID, expected, next int) (bool, error) {
	now := requestcontext.Now(ctx)

	tag, err := s.pool.Exec(ctx,
		`UPDATE account_balances SET credits = $3, updated_at = $4
		 WHERE account_id = $1 AND credits = $2`,
		accountID, expected, next, now,
	)
	if err != nil {
		return false, fmt.Errorf("swap balance: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Increment(ctx context.Context, accountID uuid.UUID, amount int) error {
	now := requestcontext.Now(ctx)

	tag, err := s.pool.Exec(ctx,
		`UPDATE account_balances SET credits = credits + $2, updated_at = $3
		 WHERE account_id = $1`,
		accountID, amount, now,
	)
	if err != nil {
		return fmt.Errorf("increment balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dErrors.New(dErrors.CodeProfileNotFound, "no balance record for account")
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, accountID uuid.UUID) error {
	now := requestcontext.Now(ctx)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO account_balances (account_id, credits, updated_at)
		 VALUES ($1, 0, $2)
		 ON CONFLICT (account_id) DO NOTHING`,
		accountID, now,
	)
	if err != nil {
		return fmt.Errorf("create balance record: %w", err)
	}
	return nil
}
