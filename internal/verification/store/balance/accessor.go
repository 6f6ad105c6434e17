// Package balance tracks per-account paid credits. The Accessor layers
// the decrement protocol over a raw store: read, refuse on empty, then
// conditional write that fails on concurrent modification instead of
// double charging.
package balance

import (
	"context"

	"github.com/google/uuid"

	"trustgate/internal/verification/ports"
	dErrors "trustgate/pkg/domain-errors"
)

type Accessor struct {
	store ports.BalanceStore
}

func NewAccessor(store ports.BalanceStore) *Accessor {
	return &Accessor{store: store}
}

// Get returns the account's current credit balance.
func (a *Accessor) Get(ctx context.Context, accountID uuid.UUID) (int, error) {
	return a.store.Get(ctx, accountID)
}

// Decrement spends one credit. Fails with CodeInsufficientCredits when the
// balance is already empty, and with CodeConflict when another writer beat
// this one; callers surface the conflict instead of retrying, so a race
// can never charge twice.
func (a *Accessor) Decrement(ctx context.Context, accountID uuid.UUID) error {
	current, err := a.store.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if current <= 0 {
		return dErrors.New(dErrors.CodeInsufficientCredits, "credit balance is empty")
	}

	ok, err := a.store.CompareAndSwap(ctx, accountID, current, current-1)
	if err != nil {
		return err
	}
	if !ok {
		return dErrors.New(dErrors.CodeConflict, "balance modified concurrently")
	}
	return nil
}

// Increment grants credits after a confirmed payment.
func (a *Accessor) Increment(ctx context.Context, accountID uuid.UUID, amount int) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "credit amount must be a positive integer")
	}
	return a.store.Increment(ctx, accountID, amount)
}

// Create initializes a zero balance for a new account.
func (a *Accessor) Create(ctx context.Context, accountID uuid.UUID) error {
	return a.store.Create(ctx, accountID)
}
