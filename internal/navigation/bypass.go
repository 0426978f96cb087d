package navigation

import (
	"sync"
	"time"
)

const (
	proceedOnceTTL    = 60 * time.Second
	allowMaliciousTTL = 60 * time.Second
	safeBypassTTL     = 10 * time.Minute
)

// BypassList holds the three short-lived allow sets consulted before a
// navigation is analyzed: explicit one-time user bypasses, explicit "allow
// anyway" grants for flagged URLs, and recently confirmed safe URLs.
type BypassList struct {
	mu             sync.Mutex
	proceedOnce    map[string]time.Time
	allowMalicious map[string]time.Time
	safeBypass     map[string]time.Time
}

// NewBypassList creates empty bypass sets.
func NewBypassList() *BypassList {
	return &BypassList{
		proceedOnce:    make(map[string]time.Time),
		allowMalicious: make(map[string]time.Time),
		safeBypass:     make(map[string]time.Time),
	}
}

// AllowOnce grants a one-time bypass for a URL the user chose to proceed to.
func (b *BypassList) AllowOnce(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.proceedOnce[url] = time.Now().Add(proceedOnceTTL)
}

// AllowMalicious grants an "allow anyway" bypass for a flagged URL.
func (b *BypassList) AllowMalicious(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allowMalicious[url] = time.Now().Add(allowMaliciousTTL)
}

// MarkSafe registers a URL that just passed analysis, so immediate follow-up
// navigations skip a redundant re-scan.
func (b *BypassList) MarkSafe(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.safeBypass[url] = time.Now().Add(safeBypassTTL)
}

// ShouldBypass reports whether any bypass set currently covers the URL.
// Expired entries are reaped lazily.
func (b *BypassList) ShouldBypass(url string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	return b.validLocked(b.proceedOnce, url, now) ||
		b.validLocked(b.allowMalicious, url, now) ||
		b.validLocked(b.safeBypass, url, now)
}

func (b *BypassList) validLocked(set map[string]time.Time, url string, now time.Time) bool {
	deadline, ok := set[url]
	if !ok {
		return false
	}
	if now.After(deadline) {
		delete(set, url)
		return false
	}
	return true
}
