// Package notify pushes completed verification results to callers that
// were told PENDING, so they can resolve without polling. Delivery is
// best-effort and advisory; the lookup endpoint remains the source of
// truth.
package notify

import (
	"context"
	"encoding/json"
)

// Subscriber hands out per-key result streams. The returned cancel func
// must be called when the caller stops listening.
type Subscriber interface {
	Subscribe(ctx context.Context, key string) (<-chan json.RawMessage, func(), error)
}
