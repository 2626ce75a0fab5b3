// Package storage is the client's persisted key/value area. Keys are stored
// independently so that partial presence can be detected at boot.
package storage

import (
	"context"
	"sync"
)

// Persisted keys.
const (
	KeyToken         = "token"
	KeyUser          = "user"
	KeyTokenExpiry   = "tokenExpiry"
	KeyNotifications = "notifications"
)

// SessionKeys are the keys that together make up one persisted session.
var SessionKeys = []string{KeyToken, KeyUser, KeyTokenExpiry}

// Store persists string values by key.
type Store interface {
	// Get returns the value and whether the key was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes keys; missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}

// Memory is a process-local Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}
