package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devscan/linkshield/internal/core"
)

func newTestCache(t *testing.T) *MemoryCache {
	t.Helper()
	c := NewMemoryCache(zap.NewNop(), time.Hour)
	t.Cleanup(c.Stop)
	return c
}

func record(verdict core.Verdict, ttl time.Duration, sessionID string) *core.VerdictRecord {
	return &core.VerdictRecord{
		Verdict:   verdict,
		Timestamp: time.Now(),
		TTL:       ttl,
		SessionID: sessionID,
	}
}

func TestMemoryCacheSetGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "example.com/page", record(core.VerdictSafe, time.Minute, "")))

	rec, err := c.Get(ctx, "example.com/page", "")
	require.NoError(t, err)
	assert.Equal(t, core.VerdictSafe, rec.Verdict)
}

func TestMemoryCacheMiss(t *testing.T) {
	c := newTestCache(t)

	_, err := c.Get(context.Background(), "nope", "")
	assert.ErrorIs(t, err, core.ErrCacheMiss)
}

func TestMemoryCacheExpiredEntryIsMiss(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	rec := record(core.VerdictSafe, time.Minute, "")
	rec.Timestamp = time.Now().Add(-2 * time.Minute)
	require.NoError(t, c.Set(ctx, "example.com", rec))

	_, err := c.Get(ctx, "example.com", "")
	assert.ErrorIs(t, err, core.ErrCacheMiss)
}

func TestMemoryCacheMaliciousOutlivesDefault(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	age := core.DefaultVerdictTTL + time.Minute

	safe := record(core.VerdictSafe, core.TTLFor(core.VerdictSafe), "")
	safe.Timestamp = time.Now().Add(-age)
	malicious := record(core.VerdictMalicious, core.TTLFor(core.VerdictMalicious), "")
	malicious.Timestamp = time.Now().Add(-age)

	require.NoError(t, c.Set(ctx, "safe.example", safe))
	require.NoError(t, c.Set(ctx, "bad.example", malicious))

	_, err := c.Get(ctx, "safe.example", "")
	assert.ErrorIs(t, err, core.ErrCacheMiss)

	rec, err := c.Get(ctx, "bad.example", "")
	require.NoError(t, err)
	assert.Equal(t, core.VerdictMalicious, rec.Verdict)
}

func TestMemoryCacheSessionTierWins(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "example.com", record(core.VerdictSafe, time.Minute, "")))
	require.NoError(t, c.Set(ctx, "example.com", record(core.VerdictMalicious, time.Minute, "session-1")))

	rec, err := c.Get(ctx, "example.com", "session-1")
	require.NoError(t, err)
	assert.Equal(t, core.VerdictMalicious, rec.Verdict)

	// Without the session the global tier answers; the session write is the
	// more recent global record too.
	rec, err = c.Get(ctx, "example.com", "other-session")
	require.NoError(t, err)
	assert.Equal(t, core.VerdictMalicious, rec.Verdict)
}

func TestMemoryCacheCleanup(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	stale := record(core.VerdictSafe, time.Minute, "session-1")
	stale.Timestamp = time.Now().Add(-2 * time.Minute)
	require.NoError(t, c.Set(ctx, "stale.example", stale))
	require.NoError(t, c.Set(ctx, "fresh.example", record(core.VerdictSafe, time.Hour, "")))

	require.NoError(t, c.Cleanup(ctx))

	stats := c.Stats(ctx)
	assert.Equal(t, 1, stats.GlobalEntries)
	assert.Equal(t, 0, stats.Sessions)
	assert.Equal(t, 0, stats.TotalSessionEntries)
}

func TestMemoryCacheClear(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a.example", record(core.VerdictSafe, time.Hour, "s")))
	require.NoError(t, c.Clear(ctx))

	stats := c.Stats(ctx)
	assert.Equal(t, 0, stats.GlobalEntries)
	assert.Equal(t, 0, stats.Sessions)
}
