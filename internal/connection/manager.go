// Package connection discovers and health-checks the scanner service
// endpoint, failing over across a small set of candidate base URLs.
package connection

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devscan/linkshield/internal/core"
)

const (
	healthCheckInterval = 5 * time.Minute
	healthCheckTimeout  = 5 * time.Second
	probeTimeout        = 3 * time.Second
)

// Manager maintains the current scanner base URL and its health state. It
// implements backend.BaseURLProvider.
type Manager struct {
	mu              sync.Mutex
	serverURL       string
	lastHealthCheck time.Time
	isHealthy       bool

	candidates []string
	settings   core.SettingsStore
	httpClient *http.Client
	logger     *zap.Logger
}

// Info is a snapshot of connection state for diagnostics.
type Info struct {
	ServerURL       string
	IsHealthy       bool
	LastHealthCheck time.Time
	NextHealthCheck time.Time
}

// NewManager creates a connection manager over the given candidate base
// URLs, probed in order.
func NewManager(candidates []string, settings core.SettingsStore, logger *zap.Logger) *Manager {
	return &Manager{
		candidates: candidates,
		settings:   settings,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// EnsureConnection returns a healthy base URL, re-validating health when the
// last check is older than the revalidation window and searching candidates
// when the current endpoint is unhealthy.
func (m *Manager) EnsureConnection(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.serverURL == "" {
		if stored, err := m.settings.ServerURL(ctx); err == nil && stored != "" {
			m.serverURL = stored
		}
	}

	if time.Since(m.lastHealthCheck) > healthCheckInterval {
		m.healthCheckLocked(ctx)
	}

	if !m.isHealthy {
		if _, err := m.findServerLocked(ctx); err != nil {
			return "", err
		}
	}

	return m.serverURL, nil
}

// HealthCheck probes the current endpoint and records the result.
func (m *Manager) HealthCheck(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthCheckLocked(ctx)
}

func (m *Manager) healthCheckLocked(ctx context.Context) bool {
	if m.serverURL == "" {
		return false
	}

	m.isHealthy = m.probe(ctx, m.serverURL, healthCheckTimeout)
	m.lastHealthCheck = time.Now()

	if m.isHealthy {
		m.logger.Debug("server health check ok", zap.String("server_url", m.serverURL))
	} else {
		m.logger.Warn("server health check failed", zap.String("server_url", m.serverURL))
	}
	return m.isHealthy
}

// FindServer probes the candidate list in order and adopts the first
// endpoint that answers, persisting it to settings. Returns
// core.ErrNoServerFound when no candidate responds.
func (m *Manager) FindServer(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findServerLocked(ctx)
}

func (m *Manager) findServerLocked(ctx context.Context) (string, error) {
	m.logger.Info("searching for scanner server", zap.Int("candidates", len(m.candidates)))

	for _, candidate := range m.candidates {
		if !m.probe(ctx, candidate, probeTimeout) {
			m.logger.Debug("server not found at candidate", zap.String("url", candidate))
			continue
		}

		m.serverURL = candidate
		m.isHealthy = true
		m.lastHealthCheck = time.Now()

		if err := m.settings.SetServerURL(ctx, candidate); err != nil {
			m.logger.Warn("failed to persist server url", zap.Error(err))
		}
		m.logger.Info("found scanner server", zap.String("server_url", candidate))
		return candidate, nil
	}

	m.isHealthy = false
	return "", core.ErrNoServerFound
}

func (m *Manager) probe(ctx context.Context, baseURL string, timeout time.Duration) bool {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(pctx, http.MethodGet, fmt.Sprintf("%s/api/health", baseURL), nil)
	if err != nil {
		return false
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// ConnectionInfo reports the current connection state.
func (m *Manager) ConnectionInfo() Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Info{
		ServerURL:       m.serverURL,
		IsHealthy:       m.isHealthy,
		LastHealthCheck: m.lastHealthCheck,
		NextHealthCheck: m.lastHealthCheck.Add(healthCheckInterval),
	}
}
