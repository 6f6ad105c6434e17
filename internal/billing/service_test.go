package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"trustgate/internal/verification/store/balance"
	dErrors "trustgate/pkg/domain-errors"
)

const testSecret = "webhook-test-secret"

type BillingServiceSuite struct {
	suite.Suite
	balances *balance.InMemoryStore
	service  *Service
	ctx      context.Context
}

func TestBillingServiceSuite(t *testing.T) {
	suite.Run(t, new(BillingServiceSuite))
}

func (s *BillingServiceSuite) SetupTest() {
	s.balances = balance.New()
	s.ctx = context.Background()

	var err error
	s.service, err = New(balance.NewAccessor(s.balances), testSecret)
	s.Require().NoError(err)
}

func (s *BillingServiceSuite) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// TestVerifySignature verifies the HMAC check over the raw body.
func (s *BillingServiceSuite) TestVerifySignature() {
	body := []byte(`{"event_id":"evt_1"}`)

	s.Run("accepts a correct signature", func() {
		s.True(s.service.VerifySignature(body, s.sign(body)))
	})

	s.Run("rejects a wrong signature", func() {
		s.False(s.service.VerifySignature(body, s.sign([]byte("tampered"))))
	})

	s.Run("rejects an empty signature", func() {
		s.False(s.service.VerifySignature(body, ""))
	})

	s.Run("rejects everything when no secret is configured", func() {
		unsecured, err := New(balance.NewAccessor(s.balances), "")
		s.Require().NoError(err)
		s.False(unsecured.VerifySignature(body, s.sign(body)))
	})
}

// TestHandleCheckout verifies crediting, validation, and replay handling.
func (s *BillingServiceSuite) TestHandleCheckout() {
	accountID := uuid.New()
	s.Require().NoError(s.balances.Create(s.ctx, accountID))

	s.Run("credits the purchased pack", func() {
		err := s.service.HandleCheckout(s.ctx, CheckoutEvent{
			EventID:   "evt_1",
			AccountID: accountID,
			PackID:    "starter",
		})
		s.Require().NoError(err)

		bal, err := s.balances.Get(s.ctx, accountID)
		s.Require().NoError(err)
		s.Equal(10, bal)
	})

	s.Run("replayed event is acknowledged without crediting again", func() {
		err := s.service.HandleCheckout(s.ctx, CheckoutEvent{
			EventID:   "evt_1",
			AccountID: accountID,
			PackID:    "starter",
		})
		s.Require().NoError(err)

		bal, err := s.balances.Get(s.ctx, accountID)
		s.Require().NoError(err)
		s.Equal(10, bal)
	})

	s.Run("unknown pack is rejected", func() {
		err := s.service.HandleCheckout(s.ctx, CheckoutEvent{
			EventID:   "evt_2",
			AccountID: accountID,
			PackID:    "mega-deluxe",
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("missing event id is rejected", func() {
		err := s.service.HandleCheckout(s.ctx, CheckoutEvent{
			AccountID: accountID,
			PackID:    "starter",
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("missing account id is rejected", func() {
		err := s.service.HandleCheckout(s.ctx, CheckoutEvent{
			EventID: "evt_3",
			PackID:  "starter",
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("failed grant releases the dedupe slot for retries", func() {
		missing := uuid.New() // no balance row yet

		event := CheckoutEvent{EventID: "evt_4", AccountID: missing, PackID: "standard"}
		err := s.service.HandleCheckout(s.ctx, event)
		s.Require().Error(err)

		// The provider retries after the account's balance row exists.
		s.Require().NoError(s.balances.Create(s.ctx, missing))
		s.Require().NoError(s.service.HandleCheckout(s.ctx, event))

		bal, err := s.balances.Get(s.ctx, missing)
		s.Require().NoError(err)
		s.Equal(50, bal)
	})
}

// TestPacks verifies the catalog is stable and copied.
func (s *BillingServiceSuite) TestPacks() {
	packs := s.service.Packs()
	s.Require().Len(packs, 3)
	s.Equal("starter", packs[0].ID)
	s.Equal("standard", packs[1].ID)
	s.Equal("bulk", packs[2].ID)

	packs[0].Credits = 9999
	s.Equal(10, s.service.Packs()[0].Credits, "callers must not mutate the catalog")
}
