package cache

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	c "trustgate/internal/verification/config"
	"trustgate/internal/verification/models"
	"trustgate/pkg/requestcontext"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store  *InMemoryStore
	config *c.Config
	start  time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.config = c.DefaultConfig()
	s.store = New(s.config)
	s.start = time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
}

func (s *InMemoryStoreSuite) at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.start.Add(offset))
}

// TestLookupClassification walks a record through every cache state.
func (s *InMemoryStoreSuite) TestLookupClassification() {
	key := "alice"
	report := json.RawMessage(`{"score":80}`)

	s.Run("unknown key is absent", func() {
		res, err := s.store.Lookup(s.at(0), key)
		s.Require().NoError(err)
		s.Equal(models.CacheAbsent, res.State)
		s.Nil(res.Report)
	})

	s.Run("stored record is fresh within the window", func() {
		s.Require().NoError(s.store.Store(s.at(0), key, report))

		res, err := s.store.Lookup(s.at(s.config.FreshnessWindow-time.Second), key)
		s.Require().NoError(err)
		s.Equal(models.CacheFresh, res.State)
		s.Equal(report, res.Report)
	})

	s.Run("record turns stale exactly at the window boundary", func() {
		res, err := s.store.Lookup(s.at(s.config.FreshnessWindow), key)
		s.Require().NoError(err)
		s.Equal(models.CacheStale, res.State)
		s.Equal(report, res.Report, "stale records keep their payload")
	})

	s.Run("error record is absent", func() {
		s.Require().NoError(s.store.MarkError(s.at(0), key))

		res, err := s.store.Lookup(s.at(0), key)
		s.Require().NoError(err)
		s.Equal(models.CacheAbsent, res.State)
	})
}

// TestClaimPending verifies the claim transitions for every prior state.
func (s *InMemoryStoreSuite) TestClaimPending() {
	report := json.RawMessage(`{"score":55}`)

	s.Run("absent key is claimable", func() {
		claimed, err := s.store.ClaimPending(s.at(0), "absent")
		s.Require().NoError(err)
		s.True(claimed)
	})

	s.Run("live pending claim blocks a second claim", func() {
		claimed, err := s.store.ClaimPending(s.at(time.Second), "absent")
		s.Require().NoError(err)
		s.False(claimed)
	})

	s.Run("expired pending claim is reclaimable", func() {
		claimed, err := s.store.ClaimPending(s.at(time.Second+s.config.PendingTTL), "absent")
		s.Require().NoError(err)
		s.True(claimed, "a crashed fetch must not wedge the key")
	})

	s.Run("error record is claimable immediately", func() {
		s.Require().NoError(s.store.MarkError(s.at(0), "errored"))

		claimed, err := s.store.ClaimPending(s.at(0), "errored")
		s.Require().NoError(err)
		s.True(claimed)
	})

	s.Run("claiming a completed record keeps the stale payload", func() {
		s.Require().NoError(s.store.Store(s.at(0), "refresh", report))

		at := s.at(s.config.FreshnessWindow + time.Minute)
		claimed, err := s.store.ClaimPending(at, "refresh")
		s.Require().NoError(err)
		s.Require().True(claimed)

		res, err := s.store.Lookup(at, "refresh")
		s.Require().NoError(err)
		s.Equal(models.CachePending, res.State)
		s.Equal(report, res.Report, "claim losers serve this while the refresh runs")
	})
}

// TestConcurrentClaims verifies exactly one of many simultaneous callers
// wins the claim.
func (s *InMemoryStoreSuite) TestConcurrentClaims() {
	const goroutines = 50
	ctx := s.at(0)

	var wg sync.WaitGroup
	var winners atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := s.store.ClaimPending(ctx, "contested")
			s.Require().NoError(err)
			if claimed {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), winners.Load(), "exactly one caller wins the claim")
}

// TestStoreAndRetry verifies completion and error paths release the key.
func (s *InMemoryStoreSuite) TestStoreAndRetry() {
	key := "bob"
	report := json.RawMessage(`{"score":42}`)

	s.Run("store completes a pending claim", func() {
		claimed, err := s.store.ClaimPending(s.at(0), key)
		s.Require().NoError(err)
		s.Require().True(claimed)

		s.Require().NoError(s.store.Store(s.at(time.Second), key, report))

		res, err := s.store.Lookup(s.at(time.Second), key)
		s.Require().NoError(err)
		s.Equal(models.CacheFresh, res.State)
		s.Equal(report, res.Report)
	})

	s.Run("store is idempotent", func() {
		s.Require().NoError(s.store.Store(s.at(2*time.Second), key, report))

		res, err := s.store.Lookup(s.at(2*time.Second), key)
		s.Require().NoError(err)
		s.Equal(models.CacheFresh, res.State)
		s.Equal(report, res.Report)
	})

	s.Run("mark error makes the next claim succeed", func() {
		s.Require().NoError(s.store.MarkError(s.at(3*time.Second), key))

		claimed, err := s.store.ClaimPending(s.at(3*time.Second), key)
		s.Require().NoError(err)
		s.True(claimed)
	})
}
