package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devscan/linkshield/internal/core"
)

// MemoryCache is the in-memory implementation of core.VerdictCache. It keeps
// two tiers: a global map and per-session maps; session lookups win when a
// session id is supplied. A background sweep removes expired entries and
// empty session maps.
type MemoryCache struct {
	entries     map[string]*core.VerdictRecord
	sessions    map[string]map[string]*core.VerdictRecord
	mu          sync.RWMutex
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewMemoryCache creates a new in-memory verdict cache and starts its
// cleanup task.
func NewMemoryCache(logger *zap.Logger, cleanupFreq time.Duration) *MemoryCache {
	c := &MemoryCache{
		entries:     make(map[string]*core.VerdictRecord),
		sessions:    make(map[string]map[string]*core.VerdictRecord),
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	go c.startCleanupTask()

	return c
}

// Get retrieves a valid record for a URL key. The session-scoped entry takes
// priority when sessionID is non-empty. Expired entries are never returned.
func (c *MemoryCache) Get(ctx context.Context, key, sessionID string) (*core.VerdictRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()

	if sessionID != "" {
		if sessionMap, ok := c.sessions[sessionID]; ok {
			if rec, ok := sessionMap[key]; ok && !rec.Expired(now) {
				return rec, nil
			}
		}
	}

	if rec, ok := c.entries[key]; ok && !rec.Expired(now) {
		return rec, nil
	}

	return nil, core.ErrCacheMiss
}

// Set stores a record under the URL key, and under the record's session when
// it carries one.
func (c *MemoryCache) Set(ctx context.Context, key string, record *core.VerdictRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = record

	if record.SessionID != "" {
		sessionMap, ok := c.sessions[record.SessionID]
		if !ok {
			sessionMap = make(map[string]*core.VerdictRecord)
			c.sessions[record.SessionID] = sessionMap
		}
		sessionMap[key] = record
	}

	c.logger.Debug("cached verdict",
		zap.String("url", key),
		zap.String("verdict", string(record.Verdict)),
		zap.Duration("ttl", record.TTL))

	return nil
}

// Cleanup removes expired entries from both tiers and drops emptied session
// maps.
func (c *MemoryCache) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	expired := 0

	for key, rec := range c.entries {
		if rec.Expired(now) {
			delete(c.entries, key)
			expired++
		}
	}

	for sessionID, sessionMap := range c.sessions {
		for key, rec := range sessionMap {
			if rec.Expired(now) {
				delete(sessionMap, key)
				expired++
			}
		}
		if len(sessionMap) == 0 {
			delete(c.sessions, sessionID)
		}
	}

	if expired > 0 {
		c.logger.Debug("cleaned up expired cache entries", zap.Int("expired_count", expired))
	}
	return nil
}

// Clear drops all entries from both tiers.
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*core.VerdictRecord)
	c.sessions = make(map[string]map[string]*core.VerdictRecord)
	return nil
}

// Stats reports cache occupancy.
func (c *MemoryCache) Stats(ctx context.Context) core.CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := 0
	for _, sessionMap := range c.sessions {
		total += len(sessionMap)
	}

	return core.CacheStats{
		GlobalEntries:       len(c.entries),
		Sessions:            len(c.sessions),
		TotalSessionEntries: total,
	}
}

// startCleanupTask runs the periodic sweep until Stop is called.
func (c *MemoryCache) startCleanupTask() {
	ticker := time.NewTicker(c.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Cleanup(context.Background()); err != nil {
				c.logger.Error("failed to clean up cache", zap.Error(err))
			}
		case <-c.stopCh:
			return
		}
	}
}

// Stop terminates the background cleanup task.
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}
