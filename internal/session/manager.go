// Package session owns the scan-session lifecycle: lazily created, shared
// through settings storage, replaced on engine restart, never explicitly
// destroyed.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/devscan/linkshield/internal/core"
)

// Manager implements core.SessionManager.
type Manager struct {
	mu       sync.Mutex
	scanner  core.ScannerClient
	settings core.SettingsStore
	logger   *zap.Logger
}

// NewManager creates a session manager.
func NewManager(scanner core.ScannerClient, settings core.SettingsStore, logger *zap.Logger) *Manager {
	return &Manager{
		scanner:  scanner,
		settings: settings,
		logger:   logger,
	}
}

// Current returns the active session id, creating one when none exists. An
// empty id with nil error means the engine runs sessionless; analyses still
// work, they just lose backend correlation.
func (m *Manager) Current(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, err := m.settings.SessionID(ctx); err == nil && id != "" {
		return id, nil
	}

	return m.createLocked(ctx)
}

// Create forces a new scan session, replacing any stored one.
func (m *Manager) Create(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(ctx)
}

func (m *Manager) createLocked(ctx context.Context) (string, error) {
	id, err := m.scanner.CreateSession(ctx)
	if err != nil {
		// Continue without a session rather than blocking analysis.
		m.logger.Error("failed to create scan session", zap.Error(err))
		if serr := m.settings.SetSessionID(ctx, ""); serr != nil {
			m.logger.Warn("failed to clear stored session id", zap.Error(serr))
		}
		return "", nil
	}

	if err := m.settings.SetSessionID(ctx, id); err != nil {
		m.logger.Warn("failed to persist session id", zap.Error(err))
	}

	m.logger.Info("created scan session", zap.String("session_id", id))
	return id, nil
}
