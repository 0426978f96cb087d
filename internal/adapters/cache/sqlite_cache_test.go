package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devscan/linkshield/internal/core"
)

func newTestSQLiteCache(t *testing.T) *SQLiteCache {
	t.Helper()
	c, err := NewSQLiteCache(filepath.Join(t.TempDir(), "verdicts.db"), zap.NewNop(), time.Hour)
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c
}

func TestSQLiteCacheSetGet(t *testing.T) {
	c := newTestSQLiteCache(t)
	ctx := context.Background()

	rec := &core.VerdictRecord{
		Verdict:          core.VerdictAnomalous,
		AnomalyRiskLevel: "high",
		ConfidenceScore:  "0.88",
		Timestamp:        time.Now(),
		TTL:              time.Minute,
	}
	require.NoError(t, c.Set(ctx, "example.com/page", rec))

	got, err := c.Get(ctx, "example.com/page", "")
	require.NoError(t, err)
	assert.Equal(t, core.VerdictAnomalous, got.Verdict)
	assert.Equal(t, "high", got.AnomalyRiskLevel)
	assert.Equal(t, "0.88", got.ConfidenceScore)
}

func TestSQLiteCacheExpiredRowIsMiss(t *testing.T) {
	c := newTestSQLiteCache(t)
	ctx := context.Background()

	rec := &core.VerdictRecord{
		Verdict:   core.VerdictSafe,
		Timestamp: time.Now().Add(-2 * time.Minute),
		TTL:       time.Minute,
	}
	require.NoError(t, c.Set(ctx, "example.com", rec))

	_, err := c.Get(ctx, "example.com", "")
	assert.ErrorIs(t, err, core.ErrCacheMiss)
}

func TestSQLiteCacheSessionTier(t *testing.T) {
	c := newTestSQLiteCache(t)
	ctx := context.Background()

	global := &core.VerdictRecord{Verdict: core.VerdictSafe, Timestamp: time.Now(), TTL: time.Minute}
	require.NoError(t, c.Set(ctx, "example.com", global))

	scoped := &core.VerdictRecord{Verdict: core.VerdictMalicious, Timestamp: time.Now(), TTL: time.Minute, SessionID: "sess-1"}
	require.NoError(t, c.Set(ctx, "example.com", scoped))

	got, err := c.Get(ctx, "example.com", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, core.VerdictMalicious, got.Verdict)
	assert.Equal(t, "sess-1", got.SessionID)

	// A different session falls through to the global row.
	got, err = c.Get(ctx, "example.com", "sess-2")
	require.NoError(t, err)
	assert.Empty(t, got.SessionID)
}

func TestSQLiteCacheCleanup(t *testing.T) {
	c := newTestSQLiteCache(t)
	ctx := context.Background()

	stale := &core.VerdictRecord{Verdict: core.VerdictSafe, Timestamp: time.Now().Add(-time.Hour), TTL: time.Minute}
	fresh := &core.VerdictRecord{Verdict: core.VerdictSafe, Timestamp: time.Now(), TTL: time.Hour}
	require.NoError(t, c.Set(ctx, "stale.example", stale))
	require.NoError(t, c.Set(ctx, "fresh.example", fresh))

	require.NoError(t, c.Cleanup(ctx))

	stats := c.Stats(ctx)
	assert.Equal(t, 1, stats.GlobalEntries)
}

func TestSQLiteCachePersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "verdicts.db")
	ctx := context.Background()

	first, err := NewSQLiteCache(dbPath, zap.NewNop(), time.Hour)
	require.NoError(t, err)
	rec := &core.VerdictRecord{Verdict: core.VerdictMalicious, Timestamp: time.Now(), TTL: time.Hour}
	require.NoError(t, first.Set(ctx, "bad.example", rec))
	first.Stop()

	second, err := NewSQLiteCache(dbPath, zap.NewNop(), time.Hour)
	require.NoError(t, err)
	t.Cleanup(second.Stop)

	got, err := second.Get(ctx, "bad.example", "")
	require.NoError(t, err)
	assert.Equal(t, core.VerdictMalicious, got.Verdict)
}
