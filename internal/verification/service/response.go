package service

import (
	"context"
	"encoding/json"

	"trustgate/internal/verification/models"
	dErrors "trustgate/pkg/domain-errors"
	"trustgate/pkg/requestcontext"
)

// The response assembler is a strict read-and-format step: it recomputes
// quota metadata from the current ledger state and never mutates cache,
// ledger, or balances. Every coordinator exit path funnels through it so
// all responses share one shape.

func (s *Service) assemble(ctx context.Context, report json.RawMessage, cached, pending bool) *models.LookupResponse {
	resp := &models.LookupResponse{
		Report:  report,
		Cached:  cached,
		Pending: pending,
	}
	status, err := s.Quota(ctx)
	if err != nil {
		// Quota metadata is advisory on the success path; the report
		// still goes out.
		s.log().ErrorContext(ctx, "quota metadata read failed", "error", err)
		return resp
	}
	resp.RemainingFreeLookups = &status.RemainingFreeLookups
	resp.NextResetTime = status.NextResetTime
	return resp
}

// Quota is the read-only quota check: remaining free lookups and the next
// reset time for the caller's address, with no side effects.
func (s *Service) Quota(ctx context.Context) (*models.QuotaStatus, error) {
	address := requestcontext.ClientIP(ctx)

	remaining, err := s.ledger.Remaining(ctx, address)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "quota read failed")
	}

	status := &models.QuotaStatus{RemainingFreeLookups: remaining}
	until, err := s.ledger.TimeUntilReset(ctx, address)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "quota reset read failed")
	}
	if until != nil {
		ms := requestcontext.Now(ctx).Add(*until).UnixMilli()
		status.NextResetTime = &ms
	}
	return status, nil
}
