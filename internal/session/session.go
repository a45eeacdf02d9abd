// Package session holds the logged-in user's identity in a small key-value
// store, read by the page controllers.
package session

import (
	"encoding/json"
	"fmt"
	"sync"
)

// UserKey is the key holding the JSON encoded User
const UserKey = "user"

// UserType distinguishes employees from administrators
type UserType string

const (
	Employee UserType = "Employee"
	Admin    UserType = "Admin"
)

// User is the identity written at login
type User struct {
	Type  UserType `json:"type"`
	Email string   `json:"email,omitempty"`
}

// Store is a string key-value store
type Store interface {
	GetItem(key string) (string, bool)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// CurrentUser decodes the user held by s. A missing or unreadable entry is
// reported as no user.
func CurrentUser(s Store) (User, bool) {
	if s == nil {
		return User{}, false
	}
	raw, ok := s.GetItem(UserKey)
	if !ok || raw == "" {
		return User{}, false
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return User{}, false
	}
	return u, true
}

// SetUser stores u under UserKey
func SetUser(s Store, u User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshaling user: %w", err)
	}
	return s.SetItem(UserKey, string(data))
}

// MemoryStore is an in-memory Store safe for concurrent use
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemoryStore constructs a MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]string)}
}

func (m *MemoryStore) GetItem(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok
}

func (m *MemoryStore) SetItem(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *MemoryStore) RemoveItem(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}
