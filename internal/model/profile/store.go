package profile

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no profile exists for an id.
var ErrNotFound = errors.New("profile not found")

// Store persists profiles. Implementations must make AppendHistory an atomic
// per-profile push so concurrent chats against one profile never lose turns.
type Store interface {
	// Create assigns a fresh id and stores the profile.
	Create(ctx context.Context, p Profile) (Profile, error)
	Get(ctx context.Context, id string) (Profile, error)
	List(ctx context.Context) ([]Profile, error)
	// Put replaces the editable fields of an existing profile. The id and the
	// conversation history are left untouched.
	Put(ctx context.Context, p Profile) error
	AppendHistory(ctx context.Context, id string, turn ConversationTurn) (ConversationTurn, error)
	AppendSpending(ctx context.Context, id string, entries []SpendingEntry) error
}

// MemoryStore implements Store with an in-process map.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Profile
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Profile)}
}

func (s *MemoryStore) Create(_ context.Context, p Profile) (Profile, error) {
	p = p.Clone()
	p.ID = uuid.NewString()
	p.ConversationHistory = []ConversationTurn{}

	s.mu.Lock()
	s.items[p.ID] = p
	s.mu.Unlock()

	return p.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.items[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context) ([]Profile, error) {
	s.mu.RLock()
	out := make([]Profile, 0, len(s.items))
	for _, p := range s.items {
		out = append(out, p.Clone())
	}
	s.mu.RUnlock()

	SortByName(out)
	return out, nil
}

func (s *MemoryStore) Put(_ context.Context, p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.items[p.ID]
	if !ok {
		return ErrNotFound
	}
	updated := p.Clone()
	updated.ConversationHistory = existing.ConversationHistory
	s.items[p.ID] = updated
	return nil
}

func (s *MemoryStore) AppendHistory(_ context.Context, id string, turn ConversationTurn) (ConversationTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.items[id]
	if !ok {
		return ConversationTurn{}, ErrNotFound
	}
	turn = NextTurn(p.ConversationHistory, turn)
	p.ConversationHistory = append(p.ConversationHistory, turn)
	s.items[id] = p
	return turn, nil
}

func (s *MemoryStore) AppendSpending(_ context.Context, id string, entries []SpendingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	p.SpendingData = append(p.SpendingData, entries...)
	s.items[id] = p
	return nil
}

// SortByName orders profiles by name, then id.
func SortByName(items []Profile) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].ID < items[j].ID
	})
}
