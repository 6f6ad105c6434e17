// Package ports defines the interfaces the verification coordinator
// depends on. Stores come in memory and postgres/redis flavors; the
// coordinator only ever sees these contracts.
package ports

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"trustgate/internal/audit"
	"trustgate/internal/verification/models"
)

// QuotaLedger tracks the rolling free-lookup allowance per caller address.
// State is best-effort: losing it on restart is accepted, the free tier is
// a growth lever rather than a security boundary.
type QuotaLedger interface {
	// Remaining returns how many free lookups the address has left in
	// the current window, in [0, MaxFreeLookups].
	Remaining(ctx context.Context, address string) (int, error)
	// TimeUntilReset returns how long until the window reopens, or nil
	// when quota is currently available (or no window exists).
	TimeUntilReset(ctx context.Context, address string) (*time.Duration, error)
	// RecordEvent consumes one free lookup. Returns false without
	// mutating when the window is already full.
	RecordEvent(ctx context.Context, address string) (bool, error)
}

// BalanceStore persists per-account credits. Decrements go through an
// explicit compare-and-swap so a racing writer surfaces as a conflict
// instead of a silent double charge.
type BalanceStore interface {
	// Get returns the current credit balance. Missing accounts fail
	// with CodeProfileNotFound.
	Get(ctx context.Context, accountID uuid.UUID) (int, error)
	// CompareAndSwap sets the balance to next only if it still equals
	// expected. Returns false when another writer won the race.
	CompareAndSwap(ctx context.Context, accountID uuid.UUID, expected, next int) (bool, error)
	// Increment adds credits unconditionally. Payment-confirmation path
	// only; amount must be positive.
	Increment(ctx context.Context, accountID uuid.UUID, amount int) error
	// Create initializes a zero balance for a new account.
	Create(ctx context.Context, accountID uuid.UUID) error
}

// CacheStore persists verification records keyed by normalized username.
// ClaimPending is the single serialization point preventing duplicate
// concurrent upstream fetches; implementations must make the check-and-set
// atomic under concurrent callers.
type CacheStore interface {
	Lookup(ctx context.Context, key string) (models.CacheResult, error)
	// ClaimPending marks the key pending and returns true for exactly
	// one concurrent caller. Absent, error, stale-completed and expired
	// pending records are all claimable.
	ClaimPending(ctx context.Context, key string) (bool, error)
	// Store upserts a completed record. Safe to call without a prior
	// pending claim.
	Store(ctx context.Context, key string, report json.RawMessage) error
	// MarkError clears the record so the next caller retries
	// immediately.
	MarkError(ctx context.Context, key string) error
}

// ProfileProvider fetches raw account metadata from the upstream source.
type ProfileProvider interface {
	Fetch(ctx context.Context, username string) (models.Profile, error)
}

// ResultNotifier pushes completed reports to callers waiting on a pending
// key. Advisory: polling the lookup endpoint is the fallback.
type ResultNotifier interface {
	PublishResult(ctx context.Context, key string, report json.RawMessage) error
}

// AuditPublisher records audit events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// LogAudit logs an action and mirrors it to the audit publisher when one
// is configured. Fields must be alternating key/value string pairs.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher AuditPublisher, action string, fields ...string) {
	attrs := make([]any, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, f)
	}
	if logger != nil {
		logger.WarnContext(ctx, action, attrs...)
	}
	if publisher == nil {
		return
	}

	event := audit.Event{Action: action}
	if len(fields) > 1 {
		event.Fields = make(map[string]string, len(fields)/2)
		for i := 0; i+1 < len(fields); i += 2 {
			switch fields[i] {
			case "key":
				event.Key = fields[i+1]
			default:
				event.Fields[fields[i]] = fields[i+1]
			}
		}
	}
	_ = publisher.Emit(ctx, event)
}
