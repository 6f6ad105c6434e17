package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	c "trustgate/internal/verification/config"
	"trustgate/internal/verification/models"
	"trustgate/pkg/requestcontext"
)

// InMemoryStore holds verification records in a mutex-guarded map.
// ClaimPending's check-and-set runs entirely under the store lock, which
// gives the single-process atomicity guarantee; multi-replica deployments
// must use the postgres store instead.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]*models.Record
	config  *c.Config
}

func New(config *c.Config) *InMemoryStore {
	if config == nil {
		config = c.DefaultConfig()
	}
	return &InMemoryStore{
		records: make(map[string]*models.Record),
		config:  config,
	}
}

func (s *InMemoryStore) Lookup(ctx context.Context, key string) (models.CacheResult, error) {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.classify(s.records[key], now), nil
}

func (s *InMemoryStore) ClaimPending(ctx context.Context, key string) (bool, error) {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.records[key]
	if rec != nil && rec.Status == models.StatusPending && now.Sub(rec.UpdatedAt) < s.config.PendingTTL {
		return false, nil
	}

	next := &models.Record{
		Key:       key,
		Status:    models.StatusPending,
		UpdatedAt: now,
	}
	if rec != nil && rec.Status == models.StatusCompleted {
		// Keep the stale payload so claim losers can serve it while
		// the refresh is in flight.
		next.Report = rec.Report
		next.FetchedAt = rec.FetchedAt
	}
	s.records[key] = next
	return true, nil
}

func (s *InMemoryStore) Store(ctx context.Context, key string, report json.RawMessage) error {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = &models.Record{
		Key:       key,
		Status:    models.StatusCompleted,
		Report:    report,
		FetchedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (s *InMemoryStore) MarkError(ctx context.Context, key string) error {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = &models.Record{
		Key:       key,
		Status:    models.StatusError,
		UpdatedAt: now,
	}
	return nil
}

// classify maps a record to the coordinator's view of the cache.
// Must be called while holding s.mu.
func (s *InMemoryStore) classify(rec *models.Record, now time.Time) models.CacheResult {
	switch {
	case rec == nil, rec.Status == models.StatusError:
		return models.CacheResult{State: models.CacheAbsent}
	case rec.Status == models.StatusPending:
		if now.Sub(rec.UpdatedAt) >= s.config.PendingTTL {
			// A crashed fetch must not wedge the key forever.
			return models.CacheResult{State: models.CacheAbsent, Report: rec.Report}
		}
		return models.CacheResult{State: models.CachePending, Report: rec.Report}
	case now.Sub(rec.FetchedAt) < s.config.FreshnessWindow:
		return models.CacheResult{State: models.CacheFresh, Report: rec.Report}
	default:
		return models.CacheResult{State: models.CacheStale, Report: rec.Report}
	}
}
