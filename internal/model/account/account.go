package account

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when no account matches a username.
var ErrNotFound = errors.New("account not found")

// Account is an operator allowed to call the advisory API.
type Account struct {
	Username       string `json:"username"`
	FullName       string `json:"full_name,omitempty"`
	Email          string `json:"email,omitempty"`
	HashedPassword string `json:"-"`
	Disabled       bool   `json:"disabled"`
}

// Store resolves accounts by username.
type Store interface {
	FindByUsername(ctx context.Context, username string) (Account, error)
}

// MemoryStore implements Store with an in-memory map, suitable for single-node deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Account
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied accounts.
func NewMemoryStore(items ...Account) *MemoryStore {
	s := &MemoryStore{items: make(map[string]Account, len(items))}
	for _, item := range items {
		s.items[item.Username] = item
	}
	return s
}

// Add inserts or replaces an account.
func (s *MemoryStore) Add(a Account) {
	s.mu.Lock()
	s.items[a.Username] = a
	s.mu.Unlock()
}

// FindByUsername looks up an account by username.
func (s *MemoryStore) FindByUsername(_ context.Context, username string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[username]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}
