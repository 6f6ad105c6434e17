// Package service contains the verification coordinator: the state
// machine that, for each lookup, decides between serving cache, claiming
// the fetch, or telling the caller to wait, while keeping funding
// deductions at-most-once.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"trustgate/internal/provider"
	"trustgate/internal/verification/config"
	"trustgate/internal/verification/metrics"
	"trustgate/internal/verification/models"
	"trustgate/internal/verification/ports"
	"trustgate/internal/verification/store/balance"
	dErrors "trustgate/pkg/domain-errors"
	"trustgate/pkg/requestcontext"
)

// ScoreFunc turns a fetched profile into a report. Pure: the coordinator
// assumes identical input yields identical output.
type ScoreFunc func(models.Profile, time.Time) models.Report

type Service struct {
	cache    ports.CacheStore
	ledger   ports.QuotaLedger
	balance  *balance.Accessor
	provider ports.ProfileProvider
	score    ScoreFunc

	notifier ports.ResultNotifier
	audit    ports.AuditPublisher
	logger   *slog.Logger
	metrics  *metrics.Metrics
	config   *config.Config
	tracer   trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithNotifier(notifier ports.ResultNotifier) Option {
	return func(s *Service) {
		s.notifier = notifier
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

func New(cache ports.CacheStore, ledger ports.QuotaLedger, bal *balance.Accessor, prov ports.ProfileProvider, score ScoreFunc, opts ...Option) (*Service, error) {
	if cache == nil {
		return nil, fmt.Errorf("cache store is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("quota ledger is required")
	}
	if bal == nil {
		return nil, fmt.Errorf("balance accessor is required")
	}
	if prov == nil {
		return nil, fmt.Errorf("profile provider is required")
	}
	if score == nil {
		return nil, fmt.Errorf("score function is required")
	}

	svc := &Service{
		cache:    cache,
		ledger:   ledger,
		balance:  bal,
		provider: prov,
		score:    score,
		config:   config.DefaultConfig(),
		tracer:   otel.Tracer("trustgate/verification"),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Lookup runs the full coordinator state machine for one request. Caller
// identity (network address, optional account) comes from the request
// context.
func (s *Service) Lookup(ctx context.Context, rawUsername string) (*models.LookupResponse, error) {
	key := models.NormalizeUsername(rawUsername)
	if key == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "username is required")
	}

	ctx, span := s.tracer.Start(ctx, "verification.lookup",
		trace.WithAttributes(attribute.String("verification.key", key)))
	defer span.End()

	// Step 1: a fresh cache hit is always free. No quota or balance is
	// touched on this path, so nobody can be charged twice for the same
	// fresh answer.
	cached, err := s.cache.Lookup(ctx, key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "cache lookup failed")
	}
	if cached.State == models.CacheFresh {
		s.metrics.CacheHit("fresh")
		s.metrics.Lookup("cache_fresh")
		span.SetAttributes(attribute.String("verification.outcome", "cache_fresh"))
		return s.assemble(ctx, cached.Report, true, false), nil
	}

	// Step 2: settle the funding source up front, but consume nothing
	// until the fetch succeeds.
	useQuota, err := s.pickFunding(ctx)
	if err != nil {
		s.metrics.Lookup("funding_rejected")
		span.SetAttributes(attribute.String("verification.outcome", "funding_rejected"))
		return nil, err
	}

	// Step 3: exactly one concurrent caller per key wins the claim.
	claimed, err := s.cache.ClaimPending(ctx, key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "claim failed")
	}
	if !claimed {
		s.metrics.ClaimConflict()
		return s.loseClaim(ctx, span, key)
	}

	// Step 4: fetch upstream within a bounded timeout so a hung provider
	// cannot hold the claim past PendingTTL anyway.
	fetchCtx, cancel := context.WithTimeout(ctx, s.config.ProviderTimeout)
	start := time.Now()
	profile, fetchErr := s.provider.Fetch(fetchCtx, key)
	cancel()
	s.metrics.ObserveFetch(time.Since(start))
	if fetchErr != nil {
		if markErr := s.cache.MarkError(ctx, key); markErr != nil {
			s.log().ErrorContext(ctx, "mark error failed", "key", key, "error", markErr)
		}
		span.SetAttributes(attribute.String("verification.outcome", "upstream_error"))
		return nil, s.mapProviderError(ctx, key, fetchErr)
	}

	// Step 5: score, store, and wake any waiters. The write happens
	// before funding is consumed so a deduction failure never discards a
	// fetched result.
	report := s.score(profile, requestcontext.Now(ctx))
	payload, err := json.Marshal(report)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode report failed")
	}
	if err := s.cache.Store(ctx, key, payload); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "store report failed")
	}
	if s.notifier != nil {
		if err := s.notifier.PublishResult(ctx, key, payload); err != nil {
			s.log().WarnContext(ctx, "result notification failed", "key", key, "error", err)
		}
	}

	// Step 6: consume funding, at most once.
	if err := s.consumeFunding(ctx, key, useQuota); err != nil {
		span.SetAttributes(attribute.String("verification.outcome", "funding_failed"))
		return nil, err
	}

	s.metrics.Lookup("fetched")
	span.SetAttributes(attribute.String("verification.outcome", "fetched"))
	return s.assemble(ctx, payload, false, false), nil
}

// loseClaim handles step 3's losing branch: serve stale data when any
// exists, otherwise signal PENDING.
func (s *Service) loseClaim(ctx context.Context, span trace.Span, key string) (*models.LookupResponse, error) {
	again, err := s.cache.Lookup(ctx, key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "cache lookup failed")
	}
	if len(again.Report) > 0 {
		s.metrics.CacheHit("stale")
		s.metrics.Lookup("stale_while_pending")
		span.SetAttributes(attribute.String("verification.outcome", "stale_while_pending"))
		return s.assemble(ctx, again.Report, true, true), nil
	}
	s.metrics.Lookup("pending")
	span.SetAttributes(attribute.String("verification.outcome", "pending"))
	return nil, dErrors.New(dErrors.CodePending, "verification already in progress; retry shortly")
}

// pickFunding decides quota-first, then balance. Returns true when the
// free quota will pay.
func (s *Service) pickFunding(ctx context.Context) (bool, error) {
	address := requestcontext.ClientIP(ctx)

	remaining, err := s.ledger.Remaining(ctx, address)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "quota check failed")
	}
	if remaining > 0 {
		return true, nil
	}

	accountID, authed := requestcontext.AccountID(ctx)
	if !authed {
		return false, dErrors.New(dErrors.CodeAuthRequired, "free lookups exhausted; sign in to use credits")
	}

	bal, err := s.balance.Get(ctx, accountID)
	if err != nil {
		return false, err
	}
	if bal <= 0 {
		return false, dErrors.New(dErrors.CodeInsufficientCredits, "no credits remaining")
	}
	return false, nil
}

// consumeFunding deducts after a successful fetch. Both failure branches
// are races: the fetch already happened and stays cached for others, so
// they are logged loudly and surfaced as failures for this caller only.
func (s *Service) consumeFunding(ctx context.Context, key string, useQuota bool) error {
	address := requestcontext.ClientIP(ctx)

	if useQuota {
		ok, err := s.ledger.RecordEvent(ctx, address)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "record quota event failed")
		}
		if !ok {
			s.metrics.FundingFailure("quota")
			ports.LogAudit(ctx, s.logger, s.audit, "free_quota_exhausted_post_fetch",
				"key", key,
				"address", address,
				"stage", "consume_funding",
			)
			return dErrors.New(dErrors.CodeFreeLookupLimitExceeded, "free lookup limit reached")
		}
		return nil
	}

	accountID, _ := requestcontext.AccountID(ctx)
	if err := s.balance.Decrement(ctx, accountID); err != nil {
		s.metrics.FundingFailure("balance")
		ports.LogAudit(ctx, s.logger, s.audit, "credit_deduction_failed",
			"key", key,
			"account_id", accountID.String(),
			"stage", "consume_funding",
			"cause", err.Error(),
		)
		return dErrors.Wrap(err, dErrors.CodeCreditDeductionFailed, "could not charge credit for completed lookup")
	}
	return nil
}

// mapProviderError folds upstream failures into the caller-facing
// taxonomy. Rate limits pass through as retryable; everything else is a
// uniform "account not found" so upstream diagnostics never leak, with
// the real cause logged here.
func (s *Service) mapProviderError(ctx context.Context, key string, err error) error {
	if errors.Is(err, provider.ErrRateLimited) {
		s.metrics.Lookup("upstream_rate_limited")
		return dErrors.Wrap(err, dErrors.CodeRateLimitExceeded, "upstream rate limit hit; try again later")
	}

	s.log().ErrorContext(ctx, "upstream fetch failed",
		"key", key,
		"stage", "fetch",
		"error", err,
	)
	s.metrics.Lookup("upstream_error")
	return dErrors.Wrap(err, dErrors.CodeAccountNotFound, "account not found")
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
