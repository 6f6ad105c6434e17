package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is a structured audit record. Race-condition failures and funding
// anomalies are rare but must be diagnosable post hoc, so events carry the
// key, caller identity and stage alongside free-form fields.
type Event struct {
	ID        uuid.UUID         `json:"id"`
	Action    string            `json:"action"`
	Timestamp time.Time         `json:"timestamp"`
	RequestID string            `json:"request_id,omitempty"`
	Address   string            `json:"address,omitempty"`
	AccountID string            `json:"account_id,omitempty"`
	Key       string            `json:"key,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Store is an append-only sink for audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}
