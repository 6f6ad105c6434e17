package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type MemoryNotifierSuite struct {
	suite.Suite
	notifier *MemoryNotifier
	ctx      context.Context
}

func TestMemoryNotifierSuite(t *testing.T) {
	suite.Run(t, new(MemoryNotifierSuite))
}

func (s *MemoryNotifierSuite) SetupTest() {
	s.notifier = NewMemory()
	s.ctx = context.Background()
}

func (s *MemoryNotifierSuite) receive(ch <-chan json.RawMessage) json.RawMessage {
	select {
	case report := <-ch:
		return report
	case <-time.After(time.Second):
		s.FailNow("no notification received")
		return nil
	}
}

// TestFanout verifies every subscriber on a key receives the result and
// other keys stay quiet.
func (s *MemoryNotifierSuite) TestFanout() {
	report := json.RawMessage(`{"score":60}`)

	first, cancelFirst, err := s.notifier.Subscribe(s.ctx, "alice")
	s.Require().NoError(err)
	defer cancelFirst()

	second, cancelSecond, err := s.notifier.Subscribe(s.ctx, "alice")
	s.Require().NoError(err)
	defer cancelSecond()

	other, cancelOther, err := s.notifier.Subscribe(s.ctx, "bob")
	s.Require().NoError(err)
	defer cancelOther()

	s.Require().NoError(s.notifier.PublishResult(s.ctx, "alice", report))

	s.Equal(report, s.receive(first))
	s.Equal(report, s.receive(second))
	select {
	case <-other:
		s.Fail("unrelated key must not be notified")
	default:
	}
}

// TestCancel verifies a cancelled subscription stops receiving.
func (s *MemoryNotifierSuite) TestCancel() {
	ch, cancel, err := s.notifier.Subscribe(s.ctx, "carol")
	s.Require().NoError(err)
	cancel()

	s.Require().NoError(s.notifier.PublishResult(s.ctx, "carol", json.RawMessage(`{}`)))

	select {
	case <-ch:
		s.Fail("cancelled subscriber must not be notified")
	default:
	}
}

// TestPublishWithoutSubscribers verifies publishing to a quiet key is a
// no-op rather than an error.
func (s *MemoryNotifierSuite) TestPublishWithoutSubscribers() {
	s.Require().NoError(s.notifier.PublishResult(s.ctx, "nobody", json.RawMessage(`{}`)))
}

// TestSlowSubscriberDropsInsteadOfBlocking verifies a subscriber that
// never drains only loses messages past its buffer; the publisher never
// stalls.
func (s *MemoryNotifierSuite) TestSlowSubscriberDropsInsteadOfBlocking() {
	ch, cancel, err := s.notifier.Subscribe(s.ctx, "dan")
	s.Require().NoError(err)
	defer cancel()

	s.Require().NoError(s.notifier.PublishResult(s.ctx, "dan", json.RawMessage(`{"n":1}`)))
	s.Require().NoError(s.notifier.PublishResult(s.ctx, "dan", json.RawMessage(`{"n":2}`)))

	s.Equal(json.RawMessage(`{"n":1}`), s.receive(ch))
	select {
	case <-ch:
		s.Fail("second publish should have been dropped")
	default:
	}
}
