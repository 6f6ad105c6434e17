package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	c "trustgate/internal/verification/config"
	"trustgate/pkg/requestcontext"
)

const (
	firstKeyPrefix  = "quota:first:"
	eventsKeyPrefix = "quota:events:"
)

// RedisLedger shares the free-quota window across replicas via Redis.
// Reads and writes are not transactional with each other: the quota is a
// best-effort allowance, so a rare extra lookup under heavy racing is
// tolerated in exchange for avoiding distributed locks.
type RedisLedger struct {
	client *redis.Client
	config *c.Config
}

func NewRedis(client *redis.Client, config *c.Config) *RedisLedger {
	if config == nil {
		config = c.DefaultConfig()
	}
	return &RedisLedger{client: client, config: config}
}

func (l *RedisLedger) Remaining(ctx context.Context, address string) (int, error) {
	now := requestcontext.Now(ctx)

	first, ok, err := l.firstEvent(ctx, address)
	if err != nil {
		return 0, err
	}
	if !ok {
		return l.config.MaxFreeLookups, nil
	}
	if now.Sub(first) >= l.config.ResetWindow {
		if err := l.clear(ctx, address); err != nil {
			return 0, err
		}
		return l.config.MaxFreeLookups, nil
	}

	count, err := l.pruneAndCount(ctx, address, now)
	if err != nil {
		return 0, err
	}
	remaining := l.config.MaxFreeLookups - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (l *RedisLedger) TimeUntilReset(ctx context.Context, address string) (*time.Duration, error) {
	now := requestcontext.Now(ctx)

	first, ok, err := l.firstEvent(ctx, address)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	age := now.Sub(first)
	if age >= l.config.ResetWindow {
		if err := l.clear(ctx, address); err != nil {
			return nil, err
		}
		return nil, nil
	}

	count, err := l.pruneAndCount(ctx, address, now)
	if err != nil {
		return nil, err
	}
	if count < l.config.MaxFreeLookups {
		return nil, nil
	}
	d := l.config.ResetWindow - age
	return &d, nil
}

func (l *RedisLedger) RecordEvent(ctx context.Context, address string) (bool, error) {
	now := requestcontext.Now(ctx)

	first, ok, err := l.firstEvent(ctx, address)
	if err != nil {
		return false, err
	}
	if !ok || now.Sub(first) >= l.config.ResetWindow {
		return true, l.openWindow(ctx, address, now)
	}

	count, err := l.pruneAndCount(ctx, address, now)
	if err != nil {
		return false, err
	}
	if count >= l.config.MaxFreeLookups {
		return false, nil
	}

	err = l.client.ZAdd(ctx, eventsKeyPrefix+address, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.NewString(),
	}).Err()
	if err != nil {
		return false, fmt.Errorf("record quota event: %w", err)
	}
	return true, nil
}

func (l *RedisLedger) firstEvent(ctx context.Context, address string) (time.Time, bool, error) {
	raw, err := l.client.Get(ctx, firstKeyPrefix+address).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read quota window: %w", err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse quota window start: %w", err)
	}
	return time.UnixMilli(ms), true, nil
}

func (l *RedisLedger) openWindow(ctx context.Context, address string, now time.Time) error {
	pipe := l.client.TxPipeline()
	pipe.Del(ctx, eventsKeyPrefix+address)
	// The key TTL doubles as the whole-window discard: Redis drops the
	// entry once ResetWindow has elapsed since firstEvent.
	pipe.Set(ctx, firstKeyPrefix+address, strconv.FormatInt(now.UnixMilli(), 10), l.config.ResetWindow)
	pipe.ZAdd(ctx, eventsKeyPrefix+address, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.NewString(),
	})
	pipe.Expire(ctx, eventsKeyPrefix+address, l.config.ResetWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("open quota window: %w", err)
	}
	return nil
}

func (l *RedisLedger) pruneAndCount(ctx context.Context, address string, now time.Time) (int, error) {
	key := eventsKeyPrefix + address
	cutoff := now.Add(-l.config.ResetWindow).UnixMilli()
	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
	card := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("prune quota events: %w", err)
	}
	return int(card.Val()), nil
}

func (l *RedisLedger) clear(ctx context.Context, address string) error {
	if err := l.client.Del(ctx, firstKeyPrefix+address, eventsKeyPrefix+address).Err(); err != nil {
		return fmt.Errorf("clear quota window: %w", err)
	}
	return nil
}
