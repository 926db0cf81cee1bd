// Package tokenstore persists the session's access and refresh tokens between
// runs. It mirrors the two-key storage the console has always used: "token"
// for the access token and "refresh" for the refresh token.
package tokenstore

import (
	"sync"
)

const (
	TokenKey   = "token"
	RefreshKey = "refresh"
)

type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(keys ...string) error
}

// Memory is a process-local Store, used when no session file is configured
// and in tests.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok && v != ""
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) Delete(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}
