package balance

import (
	"context"
	"sync"

	"github.com/google/uuid"

	dErrors "trustgate/pkg/domain-errors"
)

// InMemoryStore keeps credit balances in a mutex-guarded map. The
// compare-and-swap runs under the lock, matching the conditional-update
// semantics of the postgres store.
type InMemoryStore struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int
}

func New() *InMemoryStore {
	return &InMemoryStore{balances: make(map[uuid.UUID]int)}
}

func (s *InMemoryStore) Get(_ context.Context, accountID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bal, ok := s.balances[accountID]
	if !ok {
		return 0, dErrors.New(dErrors.CodeProfileNotFound, "no balance record for account")
	}
	return bal, nil
}

func (s *InMemoryStore) CompareAndSwap(_ context.Context, accountID uuid.UUID, expected, next int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bal, ok := s.balances[accountID]
	if !ok || bal != expected {
		return false, nil
	}
	s.balances[accountID] = next
	return true, nil
}

func (s *InMemoryStore) Increment(_ context.Context, accountID uuid.UUID, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.balances[accountID]; !ok {
		return dErrors.New(dErrors.CodeProfileNotFound, "no balance record for account")
	}
	s.balances[accountID] += amount
	return nil
}

func (s *InMemoryStore) Create(_ context.Context, accountID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.balances[accountID]; !ok {
		s.balances[accountID] = 0
	}
	return nil
}

// Seed sets a balance directly. Test helper.
func (s *InMemoryStore) Seed(accountID uuid.UUID, credits int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[accountID] = credits
}
