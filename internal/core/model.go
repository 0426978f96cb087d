package core

import (
	"time"
)

// Verdict is the closed set of outcomes a link analysis can produce.
type Verdict string

const (
	// VerdictSafe means the scanner cleared the link.
	VerdictSafe Verdict = "safe"
	// VerdictMalicious means the scanner flagged the link as dangerous.
	VerdictMalicious Verdict = "malicious"
	// VerdictAnomalous means the scanner found the link suspicious but not
	// conclusively malicious.
	VerdictAnomalous Verdict = "anomalous"
	// VerdictScanFailed means no trustworthy verdict could be obtained.
	// It is never cached, so the link stays retryable.
	VerdictScanFailed Verdict = "scan_failed"
	// VerdictScanning is the transient in-flight placeholder. It exists only
	// in per-page state and is never written to a cache.
	VerdictScanning Verdict = "scanning"
)

// Cacheable reports whether a verdict may be written to the verdict cache.
// Transient and failed outcomes must stay uncached so they can be retried.
func (v Verdict) Cacheable() bool {
	switch v {
	case VerdictSafe, VerdictMalicious, VerdictAnomalous:
		return true
	default:
		return false
	}
}

// Risky reports whether a verdict should trigger a warning flow.
func (v Verdict) Risky() bool {
	return v == VerdictMalicious || v == VerdictAnomalous
}

// Default TTLs for cached verdicts. A stale "safe" is more dangerous to keep
// around than a stale "malicious", so malicious entries live longer.
const (
	DefaultVerdictTTL   = 5 * time.Minute
	MaliciousVerdictTTL = 10 * time.Minute
)

// TTLFor returns the cache TTL appropriate for a verdict.
func TTLFor(v Verdict) time.Duration {
	if v == VerdictMalicious {
		return MaliciousVerdictTTL
	}
	return DefaultVerdictTTL
}

// VerdictRecord is the authoritative cached result of a completed analysis.
type VerdictRecord struct {
	Verdict          Verdict
	AnomalyRiskLevel string
	ConfidenceScore  string
	Timestamp        time.Time
	TTL              time.Duration
	SessionID        string
}

// Expired reports whether the record has outlived its TTL at the given time.
func (r *VerdictRecord) Expired(now time.Time) bool {
	return now.Sub(r.Timestamp) >= r.TTL
}

// URLIdentity is the canonical form of an observed URL, used as the cache
// and dedup key. Two raw URLs with the same identity are the same resource
// as far as caching and dedup are concerned.
type URLIdentity struct {
	// URL is the resolved canonical URL string.
	URL string
	// Original is the raw URL as observed, before decoding and unshortening.
	Original string
	// Unshortened is true when a shortener hop was expanded during resolution.
	Unshortened bool
	// BrowserInternal is true for URLs that must never be analyzed or cached
	// (about:, chrome:, data:, bare anchors and the like).
	BrowserInternal bool
}

// AnalysisRequest describes one link to analyze.
type AnalysisRequest struct {
	URL       string
	Domain    string
	SessionID string
	TabID     int
}

// AnalysisResult is the outcome of one analysis round trip, cached or live.
type AnalysisResult struct {
	Verdict   Verdict
	SessionID string
	Record    *VerdictRecord
	// FromCache is true when the verdict was served without a network call.
	FromCache bool
}

// ScanSession groups a browsing session's scan requests for backend
// correlation and cache partitioning.
type ScanSession struct {
	SessionID  string
	CreatedAt  time.Time
	ClientInfo string
}

// UserPolicy is the snapshot of user settings that navigation and click
// decisions depend on. Readers may observe slightly stale values.
type UserPolicy struct {
	EnableBlocking          bool
	ShowWarningsOnly        bool
	StrictMaliciousBlocking bool
}

// NavigationAction is what the interception state machine decided to do with
// a navigation.
type NavigationAction int

const (
	// ActionProceed lets the navigation through unimpeded.
	ActionProceed NavigationAction = iota
	// ActionRedirectScanning sends the tab to the scanning placeholder page.
	ActionRedirectScanning
	// ActionRedirectWarning sends the tab to a warning page.
	ActionRedirectWarning
	// ActionNotifyScanFailed keeps the tab on the scanning page and notifies
	// it that the scan could not complete.
	ActionNotifyScanFailed
)

// WarningVariant selects which warning page a risky navigation lands on.
type WarningVariant string

const (
	// WarningStandard is the default malicious warning with a bypass option.
	WarningStandard WarningVariant = "standard"
	// WarningStrict is the no-bypass malicious warning, used when the user
	// enabled strict malicious blocking.
	WarningStrict WarningVariant = "strict"
	// WarningAnomalous is the warning page for anomalous verdicts.
	WarningAnomalous WarningVariant = "anomalous"
)

// NavigationDecision is derived from (verdict, policy); it is never stored.
type NavigationDecision struct {
	Action  NavigationAction
	Variant WarningVariant
}

// CacheStats is a point-in-time snapshot of verdict cache occupancy.
type CacheStats struct {
	GlobalEntries       int
	Sessions            int
	TotalSessionEntries int
}
