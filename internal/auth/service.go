package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"trustgate/internal/verification/store/balance"
	dErrors "trustgate/pkg/domain-errors"
)

const minPasswordLength = 8

// Service handles registration and login. Registration also creates the
// zero-credit balance row so every authenticated caller has a balance
// record from day one.
type Service struct {
	accounts AccountStore
	balances *balance.Accessor
	tokens   *TokenService
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(accounts AccountStore, balances *balance.Accessor, tokens *TokenService, opts ...Option) (*Service, error) {
	if accounts == nil {
		return nil, fmt.Errorf("account store is required")
	}
	if balances == nil {
		return nil, fmt.Errorf("balance accessor is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token service is required")
	}

	svc := &Service{
		accounts: accounts,
		balances: balances,
		tokens:   tokens,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

func (s *Service) Register(ctx context.Context, email, password string) (Account, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return Account{}, dErrors.New(dErrors.CodeValidation, "a valid email is required")
	}
	if len(password) < minPasswordLength {
		return Account{}, dErrors.Newf(dErrors.CodeValidation, "password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, dErrors.Wrap(err, dErrors.CodeInternal, "hash password")
	}

	account := Account{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return Account{}, err
	}
	if err := s.balances.Create(ctx, account.ID); err != nil {
		return Account{}, dErrors.Wrap(err, dErrors.CodeInternal, "initialize balance")
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "account registered", "account_id", account.ID)
	}
	return account, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (TokenResponse, error) {
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		// Uniform failure: do not reveal whether the email exists.
		return TokenResponse{}, dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
	}
	if bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(password)) != nil {
		return TokenResponse{}, dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
	}

	token, err := s.tokens.Generate(account.ID)
	if err != nil {
		return TokenResponse{}, dErrors.Wrap(err, dErrors.CodeInternal, "issue token")
	}
	return TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokens.TTL().Seconds()),
	}, nil
}
