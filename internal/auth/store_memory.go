package auth

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	dErrors "trustgate/pkg/domain-errors"
)

// AccountStore persists registered accounts.
type AccountStore interface {
	Create(ctx context.Context, account Account) error
	FindByEmail(ctx context.Context, email string) (Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (Account, error)
}

// InMemoryAccountStore keeps accounts in a map, keyed by lowercased email.
type InMemoryAccountStore struct {
	mu      sync.Mutex
	byEmail map[string]Account
	byID    map[uuid.UUID]Account
}

func NewInMemoryAccountStore() *InMemoryAccountStore {
	return &InMemoryAccountStore{
		byEmail: make(map[string]Account),
		byID:    make(map[uuid.UUID]Account),
	}
}

func (s *InMemoryAccountStore) Create(_ context.Context, account Account) error {
	email := strings.ToLower(account.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[email]; exists {
		return dErrors.New(dErrors.CodeConflict, "email already registered")
	}
	s.byEmail[email] = account
	s.byID[account.ID] = account
	return nil
}

func (s *InMemoryAccountStore) FindByEmail(_ context.Context, email string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return Account{}, dErrors.New(dErrors.CodeNotFound, "account not found")
	}
	return account, nil
}

func (s *InMemoryAccountStore) FindByID(_ context.Context, id uuid.UUID) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return Account{}, dErrors.New(dErrors.CodeNotFound, "account not found")
	}
	return account, nil
}
