package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devscan/linkshield/internal/adapters/settings"
	"github.com/devscan/linkshield/internal/core"
)

type sessionScanner struct {
	ids   []string
	err   error
	calls int
}

func (s *sessionScanner) CreateSession(ctx context.Context) (string, error) {
	if s.err != nil {
		s.calls++
		return "", s.err
	}
	id := s.ids[s.calls%len(s.ids)]
	s.calls++
	return id, nil
}

func (s *sessionScanner) AnalyzeSingle(ctx context.Context, req core.AnalysisRequest) (*core.ScanOutcome, error) {
	return nil, nil
}

func (s *sessionScanner) ScanLinksBulk(ctx context.Context, sessionID string, links []string) ([]core.BulkResult, error) {
	return nil, nil
}

func (s *sessionScanner) Unshorten(ctx context.Context, shortURL string) (string, error) {
	return "", nil
}

func (s *sessionScanner) ExtractLinks(ctx context.Context, pageURL string) ([]string, error) {
	return nil, nil
}

func TestCurrentCreatesWhenAbsent(t *testing.T) {
	scanner := &sessionScanner{ids: []string{"sess-1"}}
	store := settings.NewMemoryStore(core.UserPolicy{})
	m := NewManager(scanner, store, zap.NewNop())

	id, err := m.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sess-1", id)

	stored, err := store.SessionID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sess-1", stored)
}

func TestCurrentReturnsStoredWithoutRoundTrip(t *testing.T) {
	scanner := &sessionScanner{ids: []string{"sess-2"}}
	store := settings.NewMemoryStore(core.UserPolicy{})
	require.NoError(t, store.SetSessionID(context.Background(), "existing"))
	m := NewManager(scanner, store, zap.NewNop())

	id, err := m.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "existing", id)
	assert.Equal(t, 0, scanner.calls)
}

func TestCreateReplacesStoredSession(t *testing.T) {
	scanner := &sessionScanner{ids: []string{"fresh"}}
	store := settings.NewMemoryStore(core.UserPolicy{})
	require.NoError(t, store.SetSessionID(context.Background(), "stale"))
	m := NewManager(scanner, store, zap.NewNop())

	id, err := m.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", id)
}

func TestCreateFailureRunsSessionless(t *testing.T) {
	scanner := &sessionScanner{err: errors.New("backend down")}
	store := settings.NewMemoryStore(core.UserPolicy{})
	require.NoError(t, store.SetSessionID(context.Background(), "stale"))
	m := NewManager(scanner, store, zap.NewNop())

	id, err := m.Create(context.Background())
	require.NoError(t, err)
	assert.Empty(t, id)

	// The stale id was cleared so later calls retry creation.
	stored, _ := store.SessionID(context.Background())
	assert.Empty(t, stored)
}
