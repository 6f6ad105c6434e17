package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	dErrors "trustgate/pkg/domain-errors"
)

// Schema creates the accounts table.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id            uuid PRIMARY KEY,
	email         text NOT NULL UNIQUE,
	password_hash bytea NOT NULL,
	created_at    timestamptz NOT NULL
)`

// uniqueViolation is the postgres error code for duplicate keys.
const uniqueViolation = "23505"

// PostgresAccountStore persists accounts in PostgreSQL.
type PostgresAccountStore struct {
	pool *pgxpool.Pool
}

func NewPostgresAccountStore(pool *pgxpool.Pool) *PostgresAccountStore {
	return &PostgresAccountStore{pool: pool}
}

// EnsureSchema applies the table definition.
func (s *PostgresAccountStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure accounts schema: %w", err)
	}
	return nil
}

func (s *PostgresAccountStore) Create(ctx context.Context, account Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, email, password_hash, created_at)
		 VALUES ($1, $2, $3, $4)`,
		account.ID, strings.ToLower(account.Email), account.PasswordHash, account.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return dErrors.New(dErrors.CodeConflict, "email already registered")
	}
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *PostgresAccountStore) FindByEmail(ctx context.Context, email string) (Account, error) {
	var account Account
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM accounts WHERE email = $1`,
		strings.ToLower(email),
	).Scan(&account.ID, &account.Email, &account.PasswordHash, &account.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, dErrors.New(dErrors.CodeNotFound, "account not found")
	}
	if err != nil {
		return Account{}, fmt.Errorf("find account by email: %w", err)
	}
	return account, nil
}

func (s *PostgresAccountStore) FindByID(ctx context.Context, id uuid.UUID) (Account, error) {
	var account Account
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM accounts WHERE id = $1`,
		id,
	).Scan(&account.ID, &account.Email, &account.PasswordHash, &account.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, dErrors.New(dErrors.CodeNotFound, "account not found")
	}
	if err != nil {
		return Account{}, fmt.Errorf("find account by id: %w", err)
	}
	return account, nil
}
