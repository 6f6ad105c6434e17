// Package billing grants paid credits from confirmed checkouts. The
// webhook is the only caller of Balance.Increment; everything else in the
// system only ever spends.
package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"trustgate/internal/verification/store/balance"
	dErrors "trustgate/pkg/domain-errors"
)

type Service struct {
	balances *balance.Accessor
	secret   []byte
	packList []CreditPack
	packs    map[string]CreditPack
	logger   *slog.Logger

	// processed dedupes webhook deliveries; payment providers retry, and
	// a replayed event must not credit twice.
	mu        sync.Mutex
	processed map[string]struct{}
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithPacks(packs []CreditPack) Option {
	return func(s *Service) {
		s.packList = packs
		s.packs = make(map[string]CreditPack, len(packs))
		for _, p := range packs {
			s.packs[p.ID] = p
		}
	}
}

func New(balances *balance.Accessor, webhookSecret string, opts ...Option) (*Service, error) {
	if balances == nil {
		return nil, fmt.Errorf("balance accessor is required")
	}

	svc := &Service{
		balances:  balances,
		secret:    []byte(webhookSecret),
		processed: make(map[string]struct{}),
	}
	WithPacks(DefaultPacks)(svc)

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Packs lists the purchasable credit bundles.
func (s *Service) Packs() []CreditPack {
	out := make([]CreditPack, len(s.packList))
	copy(out, s.packList)
	return out
}

// VerifySignature checks the webhook HMAC over the raw body.
func (s *Service) VerifySignature(body []byte, signature string) bool {
	if len(s.secret) == 0 || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// HandleCheckout credits the purchased pack to the account. Replayed
// events are acknowledged without crediting again.
func (s *Service) HandleCheckout(ctx context.Context, event CheckoutEvent) error {
	if event.EventID == "" {
		return dErrors.New(dErrors.CodeValidation, "event_id is required")
	}
	if event.AccountID == uuid.Nil {
		return dErrors.New(dErrors.CodeValidation, "account_id is required")
	}
	pack, ok := s.packs[event.PackID]
	if !ok {
		return dErrors.Newf(dErrors.CodeValidation, "unknown credit pack %q", event.PackID)
	}

	s.mu.Lock()
	if _, seen := s.processed[event.EventID]; seen {
		s.mu.Unlock()
		if s.logger != nil {
			s.logger.InfoContext(ctx, "duplicate checkout event ignored", "event_id", event.EventID)
		}
		return nil
	}
	s.processed[event.EventID] = struct{}{}
	s.mu.Unlock()

	if err := s.balances.Increment(ctx, event.AccountID, pack.Credits); err != nil {
		// Allow the provider's retry to succeed once the cause clears.
		s.mu.Lock()
		delete(s.processed, event.EventID)
		s.mu.Unlock()
		return err
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "credits granted",
			"event_id", event.EventID,
			"account_id", event.AccountID,
			"pack", pack.ID,
			"credits", pack.Credits,
		)
	}
	return nil
}

// Balance reads the caller's current credits.
func (s *Service) Balance(ctx context.Context, accountID uuid.UUID) (int, error) {
	return s.balances.Get(ctx, accountID)
}
