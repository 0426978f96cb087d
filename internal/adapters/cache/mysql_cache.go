package cache

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/devscan/linkshield/internal/core"
)

// MySQLCache is a core.VerdictCache backed by MySQL, for deployments where
// several engine instances share one verdict store.
type MySQLCache struct {
	db          *sql.DB
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewMySQLCache connects to MySQL and ensures the cache table exists.
func NewMySQLCache(dsn string, logger *zap.Logger, cleanupFreq time.Duration) (*MySQLCache, error) {
	// Timestamps must come back as time.Time.
	if !strings.Contains(dsn, "parseTime=") {
		if strings.Contains(dsn, "?") {
			dsn += "&parseTime=true"
		} else {
			dsn += "?parseTime=true"
		}
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS verdict_cache (
			url VARCHAR(700) NOT NULL,
			session_id VARCHAR(64) NOT NULL DEFAULT '',
			verdict VARCHAR(16) NOT NULL,
			anomaly_risk_level VARCHAR(64),
			confidence_score VARCHAR(64),
			created_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			PRIMARY KEY (url, session_id),
			INDEX idx_verdict_expires_at (expires_at)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	c := &MySQLCache{
		db:          db,
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	go c.startCleanupTask()

	return c, nil
}

// Get retrieves a valid record, preferring the session-scoped row.
func (c *MySQLCache) Get(ctx context.Context, key, sessionID string) (*core.VerdictRecord, error) {
	if sessionID != "" {
		if rec, err := c.getRow(ctx, key, sessionID); err == nil {
			return rec, nil
		}
	}
	return c.getRow(ctx, key, "")
}

func (c *MySQLCache) getRow(ctx context.Context, key, sessionID string) (*core.VerdictRecord, error) {
	var (
		verdict, anomaly, confidence string
		createdAt, expiresAt         time.Time
	)

	err := c.db.QueryRowContext(ctx, `
		SELECT verdict, COALESCE(anomaly_risk_level, ''), COALESCE(confidence_score, ''), created_at, expires_at
		FROM verdict_cache
		WHERE url = ? AND session_id = ? AND expires_at > ?
	`, key, sessionID, time.Now()).Scan(&verdict, &anomaly, &confidence, &createdAt, &expiresAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.ErrCacheMiss
		}
		c.logger.Error("failed to query verdict cache", zap.Error(err), zap.String("url", key))
		return nil, core.ErrCacheMiss
	}

	return &core.VerdictRecord{
		Verdict:          core.Verdict(verdict),
		AnomalyRiskLevel: anomaly,
		ConfidenceScore:  confidence,
		Timestamp:        createdAt,
		TTL:              expiresAt.Sub(createdAt),
		SessionID:        sessionID,
	}, nil
}

// Set stores a record globally and, when it carries a session, under that
// session too.
func (c *MySQLCache) Set(ctx context.Context, key string, record *core.VerdictRecord) error {
	expiresAt := record.Timestamp.Add(record.TTL)

	if err := c.setRow(ctx, key, "", record, expiresAt); err != nil {
		return err
	}
	if record.SessionID != "" {
		return c.setRow(ctx, key, record.SessionID, record, expiresAt)
	}
	return nil
}

func (c *MySQLCache) setRow(ctx context.Context, key, sessionID string, record *core.VerdictRecord, expiresAt time.Time) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO verdict_cache
			(url, session_id, verdict, anomaly_risk_level, confidence_score, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			verdict = VALUES(verdict),
			anomaly_risk_level = VALUES(anomaly_risk_level),
			confidence_score = VALUES(confidence_score),
			created_at = VALUES(created_at),
			expires_at = VALUES(expires_at)
	`, key, sessionID, string(record.Verdict), record.AnomalyRiskLevel, record.ConfidenceScore,
		record.Timestamp, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to store verdict cache entry: %w", err)
	}
	return nil
}

// Cleanup removes expired rows.
func (c *MySQLCache) Cleanup(ctx context.Context) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM verdict_cache WHERE expires_at <= ?`, time.Now())
	if err != nil {
		return fmt.Errorf("failed to clean up verdict cache: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		c.logger.Debug("cleaned up expired cache entries", zap.Int64("expired_count", n))
	}
	return nil
}

// Clear drops all rows.
func (c *MySQLCache) Clear(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM verdict_cache`)
	if err != nil {
		return fmt.Errorf("failed to clear verdict cache: %w", err)
	}
	return nil
}

// Stats reports cache occupancy.
func (c *MySQLCache) Stats(ctx context.Context) core.CacheStats {
	var stats core.CacheStats
	now := time.Now()

	_ = c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM verdict_cache WHERE session_id = '' AND expires_at > ?`, now).
		Scan(&stats.GlobalEntries)
	_ = c.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT session_id) FROM verdict_cache WHERE session_id != '' AND expires_at > ?`, now).
		Scan(&stats.Sessions)
	_ = c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM verdict_cache WHERE session_id != '' AND expires_at > ?`, now).
		Scan(&stats.TotalSessionEntries)

	return stats
}

func (c *MySQLCache) startCleanupTask() {
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

// Stop terminates the cleanup task and closes the connection pool.
func (c *MySQLCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		if err := c.db.Close(); err != nil {
			c.logger.Error("failed to close cache database", zap.Error(err))
		}
	})
}
