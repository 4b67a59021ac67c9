package directory

import (
	"context"
	"fmt"

	"sharerelay/internal/errors"
	"sharerelay/util"
)

// Invitation is a code issued for one username.  Code is what was
// stored; Plain is the INV- code it was derived from when a seed was
// used, otherwise the same as Code.
type Invitation struct {
	Username string `json:"username"`
	Code     string `json:"code"`
	Plain    string `json:"plain"`
	Seeded   bool   `json:"seeded"`
}

// Service applies the registration rules on top of a Store.
type Service struct {
	store  Store
	seed   string
	logger *util.Logger
}

// NewService wraps store.  seed is the default invitation seed; it may
// be empty.
func NewService(store Store, seed string, logger *util.Logger) *Service {
	return &Service{store: store, seed: seed, logger: logger.Named("directory")}
}

// Store returns the underlying store.
func (s *Service) Store() Store { return s.store }

// Register creates an account.  Checks run in a fixed order and the
// first failure is returned: every field present, password matches
// confirm, code issued for this username, code not yet used, username
// free.
func (s *Service) Register(ctx context.Context, username, password, confirm, code string) (*User, error) {
	if username == "" || password == "" || confirm == "" || code == "" {
		return nil, errors.ErrMissingField
	}
	if password != confirm {
		return nil, errors.ErrPasswordMismatch
	}

	ok, err := s.store.ValidateInvitationCode(ctx, code, username)
	if err != nil {
		return nil, fmt.Errorf("validate invitation code: %w", err)
	}
	if !ok {
		return nil, errors.ErrInvitationInvalid
	}

	used, err := s.store.IsInvitationCodeUsed(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("check invitation code: %w", err)
	}
	if used {
		return nil, errors.ErrInvitationUsed
	}

	exists, err := s.store.UsernameExists(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if exists {
		return nil, errors.ErrUserExists
	}

	u, err := s.store.Register(ctx, username, password)
	if err != nil {
		return nil, err
	}
	s.logger.Infow("user registered", "user", username, "id", u.ID)
	return u, nil
}

// Authenticate checks a username and password.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	if username == "" || password == "" {
		return nil, errors.ErrInvalidCredentials
	}
	u, err := s.store.Authenticate(ctx, username, password)
	if err != nil {
		s.logger.Debugw("authentication failed", "user", username, "error", err)
		return nil, err
	}
	return u, nil
}

// UsernameExists reports whether username is registered.
func (s *Service) UsernameExists(ctx context.Context, username string) (bool, error) {
	return s.store.UsernameExists(ctx, username)
}

// ValidateInvitationCode reports whether code was issued for username.
func (s *Service) ValidateInvitationCode(ctx context.Context, code, username string) (bool, error) {
	return s.store.ValidateInvitationCode(ctx, code, username)
}

// IsInvitationCodeUsed reports whether code has been redeemed.
func (s *Service) IsInvitationCodeUsed(ctx context.Context, code string) (bool, error) {
	return s.store.IsInvitationCodeUsed(ctx, code)
}

// Invite generates and stores a code for username.  A non-empty seed
// (or the service default when seed is empty) stores the ENC- form.
func (s *Service) Invite(ctx context.Context, username, seed string) (*Invitation, error) {
	if username == "" {
		return nil, errors.ErrMissingField
	}
	if seed == "" {
		seed = s.seed
	}

	// A collision on eight hex digits is unlikely but not impossible.
	for tries := 0; tries < 3; tries++ {
		inv := &Invitation{Username: username, Plain: GenerateInvitationCode()}
		inv.Code = inv.Plain
		if seed != "" {
			inv.Code = EncryptInvitationCode(inv.Plain, seed)
			inv.Seeded = true
		}
		err := s.store.AddInvitationCode(ctx, inv.Code, username)
		if errors.Is(err, errors.ErrInvitationExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.logger.Infow("invitation issued", "user", username, "seeded", inv.Seeded)
		return inv, nil
	}
	return nil, errors.ErrInvitationExists
}

// Ready reports whether the backing store is reachable.
func (s *Service) Ready(ctx context.Context) error {
	return s.store.HealthCheck(ctx)
}

// Close releases the backing store.
func (s *Service) Close() error { return s.store.Close() }
