package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"trustgate/pkg/requestcontext"
)

// Publisher captures structured audit events. It is append-only and writes
// through a Store so tests can swap sinks easily.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// Emit stamps missing identity fields from the context and appends the
// event.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.Address == "" {
		event.Address = requestcontext.ClientIP(ctx)
	}
	if event.AccountID == "" {
		if id, ok := requestcontext.AccountID(ctx); ok {
			event.AccountID = id.String()
		}
	}
	return p.store.Append(ctx, event)
}
