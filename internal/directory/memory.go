package directory

import (
	"context"
	"sync"
	"time"

	"sharerelay/internal/errors"
)

type memUser struct {
	User
	hash string
}

// MemoryStore keeps everything in process memory.  It is the default
// backend and the fallback when Redis is unreachable.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]*memUser
	codes  map[string]string // code → username
	nextID int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*memUser),
		codes: make(map[string]string),
	}
}

func (s *MemoryStore) Authenticate(_ context.Context, username, password string) (*User, error) {
	s.mu.RLock()
	u, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.ErrInvalidCredentials
	}
	if err := checkPassword(u.hash, password); err != nil {
		return nil, err
	}
	out := u.User
	return &out, nil
}

func (s *MemoryStore) Register(_ context.Context, username, password string) (*User, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return nil, errors.ErrUserExists
	}
	s.nextID++
	u := &memUser{
		User: User{ID: s.nextID, Username: username, Created: time.Now().UTC()},
		hash: hash,
	}
	s.users[username] = u
	out := u.User
	return &out, nil
}

func (s *MemoryStore) UsernameExists(_ context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[username]
	return ok, nil
}

func (s *MemoryStore) ValidateInvitationCode(_ context.Context, code, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.codes[code]
	return ok && owner == username, nil
}

func (s *MemoryStore) IsInvitationCodeUsed(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.codes[code]
	if !ok {
		return false, nil
	}
	_, registered := s.users[owner]
	return registered, nil
}

func (s *MemoryStore) AddInvitationCode(_ context.Context, code, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[code]; ok {
		return errors.ErrInvitationExists
	}
	s.codes[code] = username
	return nil
}

func (s *MemoryStore) HealthCheck(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
