package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharerelay/internal/errors"
	"sharerelay/util"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(NewMemoryStore(), "", util.NopLogger())
}

func TestService_RegisterOrder(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	require.NoError(t, svc.Store().AddInvitationCode(ctx, "INV-00000001", "alice"))
	require.NoError(t, svc.Store().AddInvitationCode(ctx, "INV-00000002", "taken"))
	_, err := svc.Store().Register(ctx, "taken", "pw")
	require.NoError(t, err)
	require.NoError(t, svc.Store().AddInvitationCode(ctx, "INV-00000003", "bob"))
	_, err = svc.Store().Register(ctx, "bob", "pw")
	require.NoError(t, err)

	tests := []struct {
		name                    string
		user, pw, confirm, code string
		want                    error
	}{
		{"missing user", "", "pw", "pw", "INV-00000001", errors.ErrMissingField},
		{"missing code", "alice", "pw", "pw", "", errors.ErrMissingField},
		{"mismatch beats bad code", "alice", "pw", "px", "INV-BOGUS", errors.ErrPasswordMismatch},
		{"wrong user for code", "mallory", "pw", "pw", "INV-00000001", errors.ErrInvitationInvalid},
		{"unknown code", "alice", "pw", "pw", "INV-FFFFFFFF", errors.ErrInvitationInvalid},
		{"used code", "taken", "pw", "pw", "INV-00000002", errors.ErrInvitationUsed},
		{"used code for existing user", "bob", "pw", "pw", "INV-00000003", errors.ErrInvitationUsed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.user, tt.pw, tt.confirm, tt.code)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	u, err := svc.Register(ctx, "alice", "pw", "pw", "INV-00000001")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	_, err = svc.Register(ctx, "alice", "pw", "pw", "INV-00000001")
	assert.ErrorIs(t, err, errors.ErrInvitationUsed)
}

// A username may exist without having redeemed this code, e.g. when it
// was created directly on the store.
func TestService_RegisterUsernameTaken(t *testing.T) {
	ctx := context.Background()
	store := &usedNeverStore{MemoryStore: NewMemoryStore()}
	svc := NewService(store, "", util.NopLogger())

	require.NoError(t, store.AddInvitationCode(ctx, "INV-0000000A", "gina"))
	_, err := store.Register(ctx, "gina", "pw")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "gina", "pw", "pw", "INV-0000000A")
	assert.ErrorIs(t, err, errors.ErrUserExists)
}

type usedNeverStore struct{ *MemoryStore }

func (usedNeverStore) IsInvitationCodeUsed(context.Context, string) (bool, error) { return false, nil }

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	_, err := svc.Store().Register(ctx, "hank", "pw")
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "hank", "pw")
	assert.NoError(t, err)
	_, err = svc.Authenticate(ctx, "hank", "")
	assert.ErrorIs(t, err, errors.ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "hank", "nope")
	assert.ErrorIs(t, err, errors.ErrInvalidCredentials)
}

func TestService_Invite(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), "default-seed", util.NopLogger())

	inv, err := svc.Invite(ctx, "ivy", "")
	require.NoError(t, err)
	assert.True(t, inv.Seeded)
	assert.Equal(t, EncryptInvitationCode(inv.Plain, "default-seed"), inv.Code)

	ok, err := svc.ValidateInvitationCode(ctx, inv.Code, "ivy")
	require.NoError(t, err)
	assert.True(t, ok)

	inv2, err := svc.Invite(ctx, "ivy", "explicit")
	require.NoError(t, err)
	assert.Equal(t, EncryptInvitationCode(inv2.Plain, "explicit"), inv2.Code)

	_, err = svc.Register(ctx, "ivy", "pw", "pw", inv.Code)
	require.NoError(t, err)
	used, err := svc.IsInvitationCodeUsed(ctx, inv.Code)
	require.NoError(t, err)
	assert.True(t, used)

	_, err = svc.Invite(ctx, "", "")
	assert.ErrorIs(t, err, errors.ErrMissingField)
}

func TestService_InviteUnseeded(t *testing.T) {
	svc := newTestService(t)
	inv, err := svc.Invite(context.Background(), "jo", "")
	require.NoError(t, err)
	assert.False(t, inv.Seeded)
	assert.Equal(t, inv.Plain, inv.Code)
	assert.NoError(t, svc.Ready(context.Background()))
}
