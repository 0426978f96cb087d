package urlid

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeUnshortener struct {
	expanded string
	err      error
	calls    int
}

func (f *fakeUnshortener) Unshorten(ctx context.Context, shortURL string) (string, error) {
	f.calls++
	return f.expanded, f.err
}

func TestResolveDecodesPercentEncoding(t *testing.T) {
	r := NewResolver(nil, zap.NewNop())

	id := r.Resolve(context.Background(), "https://example.com/a%20b")
	assert.Equal(t, "https://example.com/a b", id.URL)
	assert.Equal(t, "https://example.com/a%20b", id.Original)
	assert.False(t, id.BrowserInternal)
}

func TestResolveKeepsRawOnBadEncoding(t *testing.T) {
	r := NewResolver(nil, zap.NewNop())

	id := r.Resolve(context.Background(), "https://example.com/bad%zz")
	assert.Equal(t, "https://example.com/bad%zz", id.URL)
}

func TestResolveExpandsShortenerOnce(t *testing.T) {
	// The expanded URL is itself a shortener; the hop must not chain.
	u := &fakeUnshortener{expanded: "https://t.co/abc"}
	r := NewResolver(u, zap.NewNop())

	id := r.Resolve(context.Background(), "https://bit.ly/xyz")
	assert.Equal(t, "https://t.co/abc", id.URL)
	assert.True(t, id.Unshortened)
	assert.Equal(t, 1, u.calls)
}

func TestResolveNonShortenerSkipsExpansion(t *testing.T) {
	u := &fakeUnshortener{expanded: "https://other.example"}
	r := NewResolver(u, zap.NewNop())

	id := r.Resolve(context.Background(), "https://example.com/page")
	assert.Equal(t, "https://example.com/page", id.URL)
	assert.False(t, id.Unshortened)
	assert.Equal(t, 0, u.calls)
}

func TestResolveUnshortenFailureFallsBack(t *testing.T) {
	u := &fakeUnshortener{err: errors.New("backend down")}
	r := NewResolver(u, zap.NewNop())

	id := r.Resolve(context.Background(), "https://bit.ly/xyz")
	assert.Equal(t, "https://bit.ly/xyz", id.URL)
	assert.True(t, id.Unshortened)
}

func TestResolveIsIdempotent(t *testing.T) {
	u := &fakeUnshortener{expanded: "https://example.com/full"}
	r := NewResolver(u, zap.NewNop())

	first := r.Resolve(context.Background(), "https://bit.ly/xyz")
	second := r.Resolve(context.Background(), first.URL)
	require.Equal(t, first.URL, second.URL)
	assert.Equal(t, 1, u.calls)
}

func TestIsBrowserInternal(t *testing.T) {
	tests := []struct {
		url      string
		internal bool
	}{
		{"chrome://settings", true},
		{"chrome-extension://abc/page.html", true},
		{"about:blank", true},
		{"javascript:void(0)", true},
		{"mailto:a@example.com", true},
		{"#anchor", true},
		{"", true},
		{"  ", true},
		{"https://example.com", false},
		{"http://example.com/path", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.internal, IsBrowserInternal(tt.url), tt.url)
	}
}

func TestCacheKeyNormalization(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://www.Example.com/Path/", "example.com/path"},
		{"http://example.com", "example.com"},
		{"HTTPS://EXAMPLE.COM///", "example.com"},
		{"https://example.com/a%20b", "example.com/a b"},
		{"example.com/page", "example.com/page"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CacheKey(tt.raw), tt.raw)
	}
}

func TestCacheKeyEquatesProtocolVariants(t *testing.T) {
	assert.Equal(t, CacheKey("https://www.example.com/p"), CacheKey("http://example.com/p/"))
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://www.example.com/path", "example.com"},
		{"http://sub.example.com", "sub.example.com"},
		{"example.com/page", "example.com"},
		// WHATWG parsing skips extra slashes, so a relative path yields its
		// first segment as a pseudo-host.
		{"/inbox/link", "inbox"},
		// Invalid host plus leading slashes defeats both the parser and the
		// fallback scan.
		{"//bad host/inbox", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractDomain(tt.raw), tt.raw)
	}
}
