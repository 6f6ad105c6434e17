package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"trustgate/internal/provider"
	"trustgate/internal/scoring"
	"trustgate/internal/verification/config"
	"trustgate/internal/verification/models"
	"trustgate/internal/verification/notify"
	"trustgate/internal/verification/store/balance"
	"trustgate/internal/verification/store/cache"
	"trustgate/internal/verification/store/quota"
	dErrors "trustgate/pkg/domain-errors"
	"trustgate/pkg/requestcontext"
)

// =============================================================================
// Coordinator Test Suite
// =============================================================================
// The coordinator's guarantees are all about ordering and races: funding is
// decided before the fetch and consumed only after it succeeds, at most one
// caller fetches per key, and cached answers are never charged for. These are
// exercised here against the real in-memory stores rather than mocks, with a
// stub upstream so fetch counts and failures are controllable.

// stubProvider counts fetches and can fail, or block until released.
type stubProvider struct {
	mu      sync.Mutex
	calls   int
	profile models.Profile
	err     error
	gate    chan struct{}
}

func (p *stubProvider) Fetch(ctx context.Context, username string) (models.Profile, error) {
	p.mu.Lock()
	p.calls++
	gate := p.gate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.Profile{}, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return models.Profile{}, p.err
	}
	profile := p.profile
	profile.Username = username
	return profile, nil
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type ServiceSuite struct {
	suite.Suite
	cache    *cache.InMemoryStore
	ledger   *quota.InMemoryLedger
	balances *balance.InMemoryStore
	provider *stubProvider
	notifier *notify.MemoryNotifier
	service  *Service
	config   *config.Config
	start    time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.config = config.DefaultConfig()
	s.cache = cache.New(s.config)
	s.ledger = quota.New(s.config)
	s.balances = balance.New()
	s.provider = &stubProvider{
		profile: models.Profile{
			CreatedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			Verified:  true,
			Followers: 5000,
			Following: 1000,
			Posts:     500,
			Favorites: 300,
		},
	}
	s.notifier = notify.NewMemory()
	s.start = time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	var err error
	s.service, err = New(s.cache, s.ledger, balance.NewAccessor(s.balances), s.provider, scoring.Score,
		WithConfig(s.config),
		WithNotifier(s.notifier),
	)
	s.Require().NoError(err)
}

// anon builds a request context for an unauthenticated caller at addr,
// with the clock pinned to start+offset.
func (s *ServiceSuite) anon(addr string, offset time.Duration) context.Context {
	ctx := requestcontext.WithTime(context.Background(), s.start.Add(offset))
	return requestcontext.WithClientIP(ctx, addr)
}

// authed builds a request context for a signed-in caller.
func (s *ServiceSuite) authed(addr string, accountID uuid.UUID, offset time.Duration) context.Context {
	return requestcontext.WithAccountID(s.anon(addr, offset), accountID)
}

// exhaustQuota burns the address's free allowance on throwaway keys.
func (s *ServiceSuite) exhaustQuota(addr string) {
	ctx := s.anon(addr, 0)
	for i := 0; i < s.config.MaxFreeLookups; i++ {
		ok, err := s.ledger.RecordEvent(ctx, addr)
		s.Require().NoError(err)
		s.Require().True(ok)
	}
}

// =============================================================================
// Input Handling
// =============================================================================

func (s *ServiceSuite) TestInvalidInput() {
	for _, raw := range []string{"", "   ", "@", " @ "} {
		_, err := s.service.Lookup(s.anon("1.1.1.1", 0), raw)
		s.Require().Error(err, "input %q", raw)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	}
	s.Equal(0, s.provider.callCount(), "rejected input must not reach upstream")
}

// TestKeyNormalization verifies alias spellings share one cache entry and
// one upstream fetch.
func (s *ServiceSuite) TestKeyNormalization() {
	first, err := s.service.Lookup(s.anon("1.1.1.2", 0), "@Alice")
	s.Require().NoError(err)

	second, err := s.service.Lookup(s.anon("1.1.1.2", time.Minute), "  ALICE ")
	s.Require().NoError(err)

	s.Equal(1, s.provider.callCount())
	s.True(second.Cached)
	s.Equal([]byte(first.Report), []byte(second.Report))
}

// =============================================================================
// Cache Behavior
// =============================================================================

// TestFreshnessIdempotence verifies repeat lookups inside the freshness
// window serve identical bytes and never touch funding.
func (s *ServiceSuite) TestFreshnessIdempotence() {
	addr := "2.2.2.1"

	first, err := s.service.Lookup(s.anon(addr, 0), "bob")
	s.Require().NoError(err)
	s.False(first.Cached)
	s.Require().NotNil(first.RemainingFreeLookups)
	s.Equal(s.config.MaxFreeLookups-1, *first.RemainingFreeLookups)

	for i := 1; i <= 3; i++ {
		resp, err := s.service.Lookup(s.anon(addr, time.Duration(i)*time.Hour), "bob")
		s.Require().NoError(err)
		s.True(resp.Cached)
		s.Equal([]byte(first.Report), []byte(resp.Report), "cached bytes must be identical")
	}

	s.Equal(1, s.provider.callCount())
	remaining, err := s.ledger.Remaining(s.anon(addr, 3*time.Hour), addr)
	s.Require().NoError(err)
	s.Equal(s.config.MaxFreeLookups, remaining, "cache hits are free; the window reset restored the one spent event")
}

// TestFreshCacheIgnoresFunding verifies a fresh hit is served even when
// the caller has neither quota nor credits.
func (s *ServiceSuite) TestFreshCacheIgnoresFunding() {
	addr := "2.2.2.2"

	_, err := s.service.Lookup(s.anon(addr, 0), "carol")
	s.Require().NoError(err)
	s.exhaustQuota(addr)

	resp, err := s.service.Lookup(s.anon(addr, time.Minute), "carol")
	s.Require().NoError(err)
	s.True(resp.Cached)
	s.Equal(1, s.provider.callCount())
}

// TestStaleTriggersRefetch verifies a record past the freshness window is
// fetched again, with fresh funding.
func (s *ServiceSuite) TestStaleTriggersRefetch() {
	addr := "2.2.2.3"

	_, err := s.service.Lookup(s.anon(addr, 0), "dave")
	s.Require().NoError(err)

	resp, err := s.service.Lookup(s.anon(addr, s.config.FreshnessWindow+time.Minute), "dave")
	s.Require().NoError(err)
	s.False(resp.Cached)
	s.Equal(2, s.provider.callCount())
}

// =============================================================================
// Funding
// =============================================================================

// TestQuotaThenAuthRequired verifies the free tier runs out after
// MaxFreeLookups distinct fetches and anonymous callers are then told to
// sign in, with a concrete reset time.
func (s *ServiceSuite) TestQuotaThenAuthRequired() {
	addr := "3.3.3.1"
	names := []string{"e1", "e2", "e3", "e4"}

	for i := 0; i < s.config.MaxFreeLookups; i++ {
		resp, err := s.service.Lookup(s.anon(addr, time.Duration(i)*time.Minute), names[i])
		s.Require().NoError(err)
		s.Require().NotNil(resp.RemainingFreeLookups)
		s.Equal(s.config.MaxFreeLookups-i-1, *resp.RemainingFreeLookups)
	}

	_, err := s.service.Lookup(s.anon(addr, 10*time.Minute), names[3])
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeAuthRequired))
	s.Equal(s.config.MaxFreeLookups, s.provider.callCount(), "the rejected lookup must not fetch")

	status, err := s.service.Quota(s.anon(addr, 10*time.Minute))
	s.Require().NoError(err)
	s.Equal(0, status.RemainingFreeLookups)
	s.Require().NotNil(status.NextResetTime)
	s.Equal(s.start.Add(s.config.ResetWindow).UnixMilli(), *status.NextResetTime)
}

// TestBalanceFunding verifies signed-in callers fall back to credits once
// quota is gone, and the credit is spent only after a successful fetch.
func (s *ServiceSuite) TestBalanceFunding() {
	addr := "3.3.3.2"
	accountID := uuid.New()
	s.balances.Seed(accountID, 2)
	s.exhaustQuota(addr)

	resp, err := s.service.Lookup(s.authed(addr, accountID, time.Minute), "frank")
	s.Require().NoError(err)
	s.False(resp.Cached)

	bal, err := s.balances.Get(context.Background(), accountID)
	s.Require().NoError(err)
	s.Equal(1, bal)
}

// TestInsufficientCredits verifies a signed-in caller with no credits and
// no quota is refused before any fetch.
func (s *ServiceSuite) TestInsufficientCredits() {
	addr := "3.3.3.3"
	accountID := uuid.New()
	s.balances.Seed(accountID, 0)
	s.exhaustQuota(addr)

	_, err := s.service.Lookup(s.authed(addr, accountID, time.Minute), "grace")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientCredits))
	s.Equal(0, s.provider.callCount())
}

// TestFailedFetchConsumesNothing verifies an upstream failure leaves both
// quota and balance untouched.
func (s *ServiceSuite) TestFailedFetchConsumesNothing() {
	addr := "3.3.3.4"
	s.provider.err = provider.ErrNotFound

	_, err := s.service.Lookup(s.anon(addr, 0), "henry")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeAccountNotFound))

	remaining, err := s.ledger.Remaining(s.anon(addr, 0), addr)
	s.Require().NoError(err)
	s.Equal(s.config.MaxFreeLookups, remaining, "failed fetches are free")
}

// =============================================================================
// Claim Arbitration
// =============================================================================

// TestClaimLoserGetsPending verifies a caller arriving while another
// fetch is in flight is told PENDING when no stale data exists.
func (s *ServiceSuite) TestClaimLoserGetsPending() {
	addr := "4.4.4.1"
	ctx := s.anon(addr, 0)

	claimed, err := s.cache.ClaimPending(ctx, "ivan")
	s.Require().NoError(err)
	s.Require().True(claimed)

	_, err = s.service.Lookup(ctx, "ivan")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodePending))
	s.Equal(0, s.provider.callCount(), "the loser must not fetch")
}

// TestStaleServedWhilePending verifies a caller arriving during a refresh
// of an existing record gets the stale payload immediately.
func (s *ServiceSuite) TestStaleServedWhilePending() {
	addr := "4.4.4.2"

	first, err := s.service.Lookup(s.anon(addr, 0), "judy")
	s.Require().NoError(err)

	// A refresher has claimed the now-stale record.
	later := s.anon(addr, s.config.FreshnessWindow+time.Minute)
	claimed, err := s.cache.ClaimPending(later, "judy")
	s.Require().NoError(err)
	s.Require().True(claimed)

	resp, err := s.service.Lookup(later, "judy")
	s.Require().NoError(err)
	s.True(resp.Cached)
	s.True(resp.Pending)
	s.Equal([]byte(first.Report), []byte(resp.Report))
	s.Equal(1, s.provider.callCount())
}

// TestConcurrentFirstLookups verifies N simultaneous lookups of an
// uncached key produce exactly one upstream fetch and at most one funding
// charge; every other caller gets PENDING.
func (s *ServiceSuite) TestConcurrentFirstLookups() {
	const goroutines = 10
	addr := "4.4.4.3"
	s.provider.gate = make(chan struct{})

	var wg sync.WaitGroup
	var served, pending atomic.Int32

	start := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.service.Lookup(s.anon(addr, 0), "kate")
			switch {
			case err == nil:
				served.Add(1)
			case dErrors.HasCode(err, dErrors.CodePending):
				pending.Add(1)
			}
		}()
	}
	close(start)

	// Let the losers drain before releasing the winner's fetch.
	time.Sleep(50 * time.Millisecond)
	close(s.provider.gate)
	wg.Wait()

	s.Equal(int32(1), served.Load(), "exactly one caller completes the fetch")
	s.Equal(int32(goroutines-1), pending.Load())
	s.Equal(1, s.provider.callCount())

	remaining, err := s.ledger.Remaining(s.anon(addr, 0), addr)
	s.Require().NoError(err)
	s.Equal(s.config.MaxFreeLookups-1, remaining, "one fetch, one charge")
}

// =============================================================================
// Upstream Failure Mapping
// =============================================================================

func (s *ServiceSuite) TestProviderErrorMapping() {
	s.Run("rate limit passes through as retryable", func() {
		s.provider.err = provider.ErrRateLimited

		_, err := s.service.Lookup(s.anon("5.5.5.1", 0), "leo")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeRateLimitExceeded))
	})

	s.Run("other failures collapse to account not found", func() {
		s.provider.err = provider.ErrUnavailable

		_, err := s.service.Lookup(s.anon("5.5.5.2", 0), "mia")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAccountNotFound))
	})

	s.Run("failed key is retried immediately", func() {
		s.provider.err = provider.ErrUnavailable
		_, err := s.service.Lookup(s.anon("5.5.5.3", 0), "nina")
		s.Require().Error(err)

		s.provider.err = nil
		resp, err := s.service.Lookup(s.anon("5.5.5.3", time.Second), "nina")
		s.Require().NoError(err)
		s.False(resp.Cached)
	})
}

// =============================================================================
// Funding Races
// =============================================================================

// racingLedger reports quota available but refuses the consume, modeling
// another replica winning the last free slot mid-lookup.
type racingLedger struct{}

func (racingLedger) Remaining(context.Context, string) (int, error) { return 1, nil }

func (racingLedger) TimeUntilReset(context.Context, string) (*time.Duration, error) {
	return nil, nil
}

func (racingLedger) RecordEvent(context.Context, string) (bool, error) { return false, nil }

// TestQuotaConsumeRace verifies losing the quota slot after a successful
// fetch surfaces as FREE_LOOKUP_LIMIT_EXCEEDED while the result stays
// cached for everyone else.
func (s *ServiceSuite) TestQuotaConsumeRace() {
	svc, err := New(s.cache, racingLedger{}, balance.NewAccessor(s.balances), s.provider, scoring.Score,
		WithConfig(s.config))
	s.Require().NoError(err)

	ctx := s.anon("6.6.6.1", 0)
	_, err = svc.Lookup(ctx, "oscar")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeFreeLookupLimitExceeded))

	// The fetched result survived the funding failure.
	res, err := s.cache.Lookup(ctx, "oscar")
	s.Require().NoError(err)
	s.Equal(models.CacheFresh, res.State)
}

// contestedBalanceStore reports credits but loses every compare-and-swap,
// modeling a concurrent spender.
type contestedBalanceStore struct{}

func (contestedBalanceStore) Get(context.Context, uuid.UUID) (int, error) { return 1, nil }
func (contestedBalanceStore) CompareAndSwap(context.Context, uuid.UUID, int, int) (bool, error) {
	return false, nil
}
func (contestedBalanceStore) Increment(context.Context, uuid.UUID, int) error { return nil }
func (contestedBalanceStore) Create(context.Context, uuid.UUID) error         { return nil }

// TestCreditDeductionRace verifies a lost balance race after a successful
// fetch surfaces as CREDIT_DEDUCTION_FAILED while the result stays cached.
func (s *ServiceSuite) TestCreditDeductionRace() {
	addr := "6.6.6.2"
	s.exhaustQuota(addr)

	svc, err := New(s.cache, s.ledger, balance.NewAccessor(contestedBalanceStore{}), s.provider, scoring.Score,
		WithConfig(s.config))
	s.Require().NoError(err)

	ctx := s.authed(addr, uuid.New(), time.Minute)
	_, err = svc.Lookup(ctx, "pam")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeCreditDeductionFailed))

	res, err := s.cache.Lookup(ctx, "pam")
	s.Require().NoError(err)
	s.Equal(models.CacheFresh, res.State)
}

// =============================================================================
// Notifications
// =============================================================================

// TestResultNotification verifies waiters subscribed to a key receive the
// completed report.
func (s *ServiceSuite) TestResultNotification() {
	ctx := s.anon("7.7.7.1", 0)

	results, cancel, err := s.notifier.Subscribe(ctx, "quinn")
	s.Require().NoError(err)
	defer cancel()

	resp, err := s.service.Lookup(ctx, "quinn")
	s.Require().NoError(err)

	select {
	case report := <-results:
		s.Equal([]byte(resp.Report), []byte(report))
	case <-time.After(time.Second):
		s.Fail("no notification received")
	}
}
