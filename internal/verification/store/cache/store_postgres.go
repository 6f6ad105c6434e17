package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	c "trustgate/internal/verification/config"
	"trustgate/internal/verification/models"
	"trustgate/pkg/requestcontext"
)

// Schema creates the verification cache table. Integration tests and dev
// bootstrapping apply it; production uses migrations.
const Schema = `
CREATE TABLE IF NOT EXISTS verification_cache (
	key        text PRIMARY KEY,
	status     text NOT NULL,
	report     jsonb,
	fetched_at timestamptz,
	updated_at timestamptz NOT NULL
)`

// PostgresStore persists verification records in PostgreSQL. The claim
// check-and-set is a single INSERT .. ON CONFLICT .. WHERE statement, so
// it is atomic on the database side and holds across replicas.
type PostgresStore struct {
	pool   *pgxpool.Pool
	config *c.Config
}

func NewPostgres(pool *pgxpool.Pool, config *c.Config) *PostgresStore {
	if config == nil {
		config = c.DefaultConfig()
	}
	return &PostgresStore{pool: pool, config: config}
}

// EnsureSchema applies the table definition.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure verification_cache schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Lookup(ctx context.Context, key string) (models.CacheResult, error) {
	now := requestcontext.Now(ctx)

	var (
		status    string
		report    []byte
		fetchedAt *time.Time
		updatedAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT status, report, fetched_at, updated_at FROM verification_cache WHERE key = $1`,
		key,
	).Scan(&status, &report, &fetchedAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.CacheResult{State: models.CacheAbsent}, nil
	}
	if err != nil {
		return models.CacheResult{}, fmt.Errorf("lookup verification record: %w", err)
	}

	switch models.Status(status) {
	case models.StatusError:
		return models.CacheResult{State: models.CacheAbsent}, nil
	case models.StatusPending:
		if now.Sub(updatedAt) >= s.config.PendingTTL {
			return models.CacheResult{State: models.CacheAbsent, Report: report}, nil
		}
		return models.CacheResult{State: models.CachePending, Report: report}, nil
	case models.StatusCompleted:
		if fetchedAt != nil && now.Sub(*fetchedAt) < s.config.FreshnessWindow {
			return models.CacheResult{State: models.CacheFresh, Report: report}, nil
		}
		return models.CacheResult{State: models.CacheStale, Report: report}, nil
	default:
		return models.CacheResult{}, fmt.Errorf("verification record %q has unknown status %q", key, status)
	}
}

func (s *PostgresStore) ClaimPending(ctx context.Context, key string) (bool, error) {
	now := requestcontext.Now(ctx)
	pendingCutoff := now.Add(-s.config.PendingTTL)
	freshCutoff := now.Add(-s.config.FreshnessWindow)

	// The conflict branch intentionally leaves report/fetched_at alone:
	// a stale payload stays readable while the refresh runs.
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO verification_cache (key, status, report, fetched_at, updated_at)
		VALUES ($1, 'pending', NULL, NULL, $2)
		ON CONFLICT (key) DO UPDATE SET status = 'pending', updated_at = $2
		WHERE verification_cache.status = 'error'
		   OR (verification_cache.status = 'pending' AND verification_cache.updated_at <= $3)
		   OR (verification_cache.status = 'completed' AND verification_cache.fetched_at <= $4)`,
		key, now, pendingCutoff, freshCutoff,
	)
	if err != nil {
		return false, fmt.Errorf("claim verification record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Store(ctx context.Context, key string, report json.RawMessage) error {
	now := requestcontext.Now(ctx)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO verification_cache (key, status, report, fetched_at, updated_at)
		VALUES ($1, 'completed', $2, $3, $3)
		ON CONFLICT (key) DO UPDATE
		SET status = 'completed', report = $2, fetched_at = $3, updated_at = $3`,
		key, report, now,
	)
	if err != nil {
		return fmt.Errorf("store verification record: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkError(ctx context.Context, key string) error {
	now := requestcontext.Now(ctx)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO verification_cache (key, status, report, fetched_at, updated_at)
		VALUES ($1, 'error', NULL, NULL, $2)
		ON CONFLICT (key) DO UPDATE
		SET status = 'error', report = NULL, updated_at = $2`,
		key, now,
	)
	if err != nil {
		return fmt.Errorf("mark verification record error: %w", err)
	}
	return nil
}
