package auth

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultTokenTTL = 30 * 24 * time.Hour

// Service implements registration, login, and password management on top of
// a UserStore.
type Service struct {
	users    UserStore
	now      func() time.Time
	tokenTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithTokenTTL overrides the lifetime of issued identity assertions.
func WithTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the identity service.
func NewService(users UserStore, opts ...ServiceOption) *Service {
	s := &Service{
		users:    users,
		now:      time.Now,
		tokenTTL: defaultTokenTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a new account with a hashed password.
func (s *Service) Register(ctx context.Context, email, password, firstName, lastName string) (*User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		JoinDate:     s.now().UTC(),
		Enabled:      true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies credentials and issues a signed identity assertion.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return "", err
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	if !user.Enabled {
		return "", ErrInvalidCredentials
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return "", ErrInvalidCredentials
	}
	token, err := GenerateToken(user.ID, user.Email, s.tokenTTL)
	if err != nil {
		return "", err
	}
	_ = s.users.RecordLogin(ctx, user.ID)
	return token, nil
}

// ChangePassword rotates the password for the authenticated email.
func (s *Service) ChangePassword(ctx context.Context, email, oldPassword, newPassword, repeatPassword string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if strings.TrimSpace(newPassword) != strings.TrimSpace(repeatPassword) {
		return fmt.Errorf("%w: new password and repeat password should be same", ErrInvalidInput)
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return ErrInvalidCredentials
	}
	if err := VerifyPassword(user.PasswordHash, oldPassword); err != nil {
		return fmt.Errorf("%w: old password is incorrect", ErrInvalidCredentials)
	}
	hash, err := HashPassword(strings.TrimSpace(newPassword))
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, user.ID, hash)
}

// Profile returns the caller-visible account details for the email.
func (s *Service) Profile(ctx context.Context, email string) (*Profile, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return &Profile{
		Email:           user.Email,
		FullName:        strings.TrimSpace(user.FirstName + " " + user.LastName),
		ProfileImageURL: user.ProfileImageURL,
	}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: email format is incorrect", ErrInvalidInput)
	}
	return email, nil
}
