package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/gatehouse-iam/gatehouse/internal/shared"
	"github.com/gatehouse-iam/gatehouse/internal/users"
)

// UserDirectory is the slice of the user service the auth flows need.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (users.User, error)
	Register(ctx context.Context, input users.RegisterInput) (users.User, error)
}

// Comparer checks a plaintext password against a stored hash.
type Comparer interface {
	Compare(hash, plaintext string) error
}

// Session describes an issued bearer token.
type Session struct {
	Token     string
	User      users.User
	ExpiresAt time.Time
}

// Service wraps authentication business rules.
type Service struct {
	users  UserDirectory
	hasher Comparer
	tokens *TokenStore
	repo   Repository
	logger *slog.Logger
}

// NewService constructs a new Service.
func NewService(directory UserDirectory, hasher Comparer, tokens *TokenStore, repo Repository, logger *slog.Logger) *Service {
	return &Service{users: directory, hasher: hasher, tokens: tokens, repo: repo, logger: logger}
}

// Register creates a new account. Uniqueness and role checks live in the
// user service; this is a thin pass-through so the HTTP surface stays in one
// place.
func (s *Service) Register(ctx context.Context, input users.RegisterInput) (users.User, error) {
	return s.users.Register(ctx, input)
}

// Login validates credentials and issues a bearer token. Every failure mode
// collapses into ErrInvalidCredentials so callers cannot probe for accounts.
func (s *Service) Login(ctx context.Context, email, password, ip, ua string) (Session, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return Session{}, shared.ErrInvalidCredentials
	}
	if user.Deleted() {
		return Session{}, shared.ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return Session{}, shared.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}
	expiresAt := time.Now().Add(s.tokens.TTL())
	if s.repo != nil {
		if err := s.repo.CreateSession(ctx, token, user.ID, expiresAt, ip, ua); err != nil {
			s.logger.Warn("record session", slog.Any("error", err))
		}
	}
	return Session{Token: token, User: user, ExpiresAt: expiresAt}, nil
}

// Logout revokes the token and removes its session record.
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.tokens.Revoke(ctx, token); err != nil {
		return err
	}
	if s.repo != nil {
		if err := s.repo.DeleteSession(ctx, token); err != nil {
			s.logger.Warn("remove session", slog.Any("error", err))
		}
	}
	return nil
}
