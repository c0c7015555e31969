package accounts

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a process-local Store for tests and tooling.
type MemoryStore struct {
	mu         sync.RWMutex
	accounts   map[string]Account
	profiles   map[string]Profile // keyed by account id
	profileErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]Account),
		profiles: make(map[string]Profile),
	}
}

// SetProfileError makes the next profile inserts fail with err, rolling back
// the account created alongside.
func (s *MemoryStore) SetProfileError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profileErr = err
}

// DropProfile deletes the profile but keeps the account.
func (s *MemoryStore) DropProfile(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, accountID)
}

func (s *MemoryStore) Counts() (accounts, profiles int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts), len(s.profiles)
}

func (s *MemoryStore) findByUsername(username string) (Account, bool) {
	for _, a := range s.accounts {
		if strings.EqualFold(a.Username, username) {
			return a, true
		}
	}
	return Account{}, false
}

func (s *MemoryStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.findByUsername(username)
	return ok, nil
}

func (s *MemoryStore) CreateAccount(ctx context.Context, account *Account, profile *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.findByUsername(account.Username); ok {
		return ErrUsernameTaken
	}
	if s.profileErr != nil {
		return s.profileErr
	}
	now := time.Now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.AccountID = account.ID
	s.accounts[account.ID] = *account
	s.profiles[account.ID] = *profile
	return nil
}

func (s *MemoryStore) FindAccountByUsername(ctx context.Context, username string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.findByUsername(username)
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) FindAccountByID(ctx context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) FindProfile(ctx context.Context, accountID string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[accountID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) UpdateLastLogin(ctx context.Context, accountID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	a.LastLogin = &at
	s.accounts[accountID] = a
	return nil
}

func (s *MemoryStore) SetStaff(ctx context.Context, accountID string, staff bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	a.IsStaff = staff
	s.accounts[accountID] = a
	return nil
}

func (s *MemoryStore) DeleteAccount(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[accountID]; !ok {
		return ErrNotFound
	}
	delete(s.accounts, accountID)
	delete(s.profiles, accountID)
	return nil
}

func (s *MemoryStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Profile, 0, len(s.profiles))
	for id, p := range s.profiles {
		p.Account = s.accounts[id]
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Account.Username < out[j].Account.Username
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
