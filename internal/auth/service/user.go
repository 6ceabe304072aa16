package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskpadhq/taskpad/internal/auth/domain"
	"github.com/taskpadhq/taskpad/internal/auth/store"
	"github.com/taskpadhq/taskpad/pkg/cryptox"
	"github.com/taskpadhq/taskpad/pkg/idx"
)

// ErrInvalidCredentials covers unknown username and wrong password
// alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// UserService owns accounts and credential verification.
type UserService struct {
	Store store.Store
}

// VerifyCredentials checks a username/password pair, returning the
// matching user.
func (s *UserService) VerifyCredentials(ctx context.Context, username, password string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn a hash anyway so unknown usernames cost the same as
			// wrong passwords.
			_, _ = cryptox.HashPassword(password)
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, fmt.Errorf("verify password: %w", err)
	}
	return u, nil
}

// GetUser loads a user by id.
func (s *UserService) GetUser(ctx context.Context, id string) (domain.User, error) {
	return s.Store.Users().GetUserByID(ctx, id)
}

// CreateUser registers an account with a hashed password.
func (s *UserService) CreateUser(ctx context.Context, username, password string) (domain.User, error) {
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	u := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}
