// Package directory is the user and invitation-code store behind the
// admin API's registration and login endpoints.  The relay core never
// consults it: LOGIN on the control port trusts the name it is given.
package directory

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"sharerelay/internal/errors"
)

// User is a registered account.  The password hash never leaves the
// store.
type User struct {
	ID       int64     `json:"id"`
	Username string    `json:"username"`
	Created  time.Time `json:"created"`
}

// Store persists users and invitation codes.
//
// Authenticate returns errors.ErrInvalidCredentials for an unknown
// user or a wrong password.  Register returns errors.ErrUserExists and
// AddInvitationCode errors.ErrInvitationExists on duplicates.
type Store interface {
	Authenticate(ctx context.Context, username, password string) (*User, error)
	Register(ctx context.Context, username, password string) (*User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)

	// ValidateInvitationCode reports whether code was issued for username.
	ValidateInvitationCode(ctx context.Context, code, username string) (bool, error)
	// IsInvitationCodeUsed reports whether the user a code was issued
	// for has registered.
	IsInvitationCodeUsed(ctx context.Context, code string) (bool, error)
	AddInvitationCode(ctx context.Context, code, username string) error

	HealthCheck(ctx context.Context) error
	Close() error
}

// bcryptCost is lowered by tests.
var bcryptCost = bcrypt.DefaultCost //nolint:gochecknoglobals

func hashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func checkPassword(hash, password string) error {
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return errors.ErrInvalidCredentials
	}
	return nil
}
