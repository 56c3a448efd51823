package users

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory user store for demo/development.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]*User  // by ID
	usernames map[string]string // username → ID
}

// NewMemoryStore creates a new in-memory user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]*User),
		usernames: make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.usernames[u.Username]; exists {
		return ErrUsernameTaken
	}

	cp := *u
	m.users[u.ID] = &cp
	m.usernames[u.Username] = u.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) GetByUsername(_ context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.usernames[username]
	if !ok {
		return nil, ErrNotFound
	}
	u := m.users[id]
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) Update(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	if prev.Username != u.Username {
		if _, exists := m.usernames[u.Username]; exists {
			return ErrUsernameTaken
		}
		delete(m.usernames, prev.Username)
		m.usernames[u.Username] = u.ID
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStore) List(_ context.Context, limit, offset int) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

var _ Store = (*MemoryStore)(nil)
