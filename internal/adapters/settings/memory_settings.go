// Package settings provides SettingsStore adapters for the cross-context
// shared settings surface.
package settings

import (
	"context"
	"sync"

	"github.com/devscan/linkshield/internal/core"
)

// MemoryStore is an in-process SettingsStore. The host process persists the
// interesting keys (server URL, session id) across restarts by re-seeding the
// store from its own storage at startup.
type MemoryStore struct {
	mu        sync.RWMutex
	policy    core.UserPolicy
	serverURL string
	sessionID string
}

// NewMemoryStore creates a store seeded with the given policy.
func NewMemoryStore(policy core.UserPolicy) *MemoryStore {
	return &MemoryStore{policy: policy}
}

// Policy returns the current user policy.
func (s *MemoryStore) Policy(ctx context.Context) (core.UserPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy, nil
}

// SetPolicy replaces the user policy.
func (s *MemoryStore) SetPolicy(ctx context.Context, policy core.UserPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = policy
	return nil
}

// ServerURL returns the last known healthy backend URL, or "".
func (s *MemoryStore) ServerURL(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serverURL, nil
}

// SetServerURL records the healthy backend URL.
func (s *MemoryStore) SetServerURL(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverURL = url
	return nil
}

// SessionID returns the active scan session id, or "".
func (s *MemoryStore) SessionID(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID, nil
}

// SetSessionID records the active scan session id.
func (s *MemoryStore) SetSessionID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = id
	return nil
}
