package core

import (
	"context"
)

// IdentityResolver turns raw observed URLs into canonical identities.
// Resolution never fails; on parse or decode errors the raw string is kept.
type IdentityResolver interface {
	Resolve(ctx context.Context, rawURL string) URLIdentity
}

// VerdictCache stores authoritative verdict records with TTL expiry.
// Implementations must never return expired entries. Callers are trusted not
// to write transient verdicts (scanning, scan_failed); see Verdict.Cacheable.
type VerdictCache interface {
	// Get returns the record for a URL key, preferring the session-scoped
	// entry when sessionID is non-empty. Returns ErrCacheMiss when absent
	// or expired.
	Get(ctx context.Context, key, sessionID string) (*VerdictRecord, error)

	// Set stores a record under the URL key, and additionally under the
	// record's session when it carries one.
	Set(ctx context.Context, key string, record *VerdictRecord) error

	// Cleanup removes expired entries.
	Cleanup(ctx context.Context) error

	// Clear drops all entries.
	Clear(ctx context.Context) error

	// Stats reports cache occupancy for diagnostics.
	Stats(ctx context.Context) CacheStats
}

// ScannerClient is the remote classification service. The adapter owns the
// HTTP contract and the duck-typed verdict shapes; only normalized outcomes
// cross this port.
type ScannerClient interface {
	// AnalyzeSingle submits one link for analysis and returns the matched,
	// normalized outcome. Returns ErrNoVerdictMatch when the response holds
	// no verdict for the link under any matching strategy.
	AnalyzeSingle(ctx context.Context, req AnalysisRequest) (*ScanOutcome, error)

	// ScanLinksBulk is the legacy index-aligned bulk path.
	ScanLinksBulk(ctx context.Context, sessionID string, links []string) ([]BulkResult, error)

	// CreateSession registers a new scan session with the backend.
	CreateSession(ctx context.Context) (string, error)

	// Unshorten expands a shortener URL through the backend.
	Unshorten(ctx context.Context, shortURL string) (string, error)

	// ExtractLinks asks the backend for the outbound links of a page.
	// Best-effort and informational only.
	ExtractLinks(ctx context.Context, pageURL string) ([]string, error)
}

// ScanOutcome is one link's analysis result as normalized at the scanner
// adapter boundary.
type ScanOutcome struct {
	Verdict          Verdict
	AnomalyRiskLevel string
	ConfidenceScore  string
	Explanation      string
	Tip              string
	// SessionID is the session the backend associated with the request,
	// when it reported one.
	SessionID string
	// MatchStrategy names the URL-matching strategy that located the
	// verdict in the response, for diagnosing backend URL-identity drift.
	MatchStrategy string
}

// BulkResult is one entry of the legacy bulk scan response, index-aligned
// with the request links.
type BulkResult struct {
	IsMalicious  bool    `json:"isMalicious"`
	AnomalyScore float64 `json:"anomalyScore"`
}

// Analyzer runs the full analysis pipeline (cache, live call, verdict
// mapping, cache write) for one link.
type Analyzer interface {
	AnalyzeLink(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error)
}

// VerdictDeliverer pushes a resolved verdict to the page context that asked
// for it, with acknowledgment and retry.
type VerdictDeliverer interface {
	Deliver(ctx context.Context, tabID int, url string, verdict Verdict, record *VerdictRecord) error
}

// PageAck is the page context's response to a verdict message.
type PageAck struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// PageMessenger is the raw transport to a page context. Delivery retry
// policy lives above it.
type PageMessenger interface {
	// SendVerdict sends one verdict message and waits for the page ack.
	SendVerdict(ctx context.Context, tabID int, url string, verdict Verdict, record *VerdictRecord) (*PageAck, error)

	// NotifyScanFailed tells the scanning-page context that analysis could
	// not complete, with a human-readable reason.
	NotifyScanFailed(ctx context.Context, tabID int, url, reason string) error
}

// TabController drives top-level tab navigation from the engine side.
type TabController interface {
	// NavigateTab points an existing tab at a URL.
	NavigateTab(ctx context.Context, tabID int, url string) error

	// OpenTab opens a new tab next to the opener and returns its id.
	OpenTab(ctx context.Context, openerTabID int, url string) (int, error)
}

// SettingsStore is the cross-context shared settings surface. Values are
// eventually consistent; readers must tolerate staleness.
type SettingsStore interface {
	Policy(ctx context.Context) (UserPolicy, error)
	ServerURL(ctx context.Context) (string, error)
	SetServerURL(ctx context.Context, url string) error
	SessionID(ctx context.Context) (string, error)
	SetSessionID(ctx context.Context, id string) error
}

// SessionManager owns the lazy scan-session bootstrap.
type SessionManager interface {
	// Current returns the active session id, creating one if absent.
	// An empty id with nil error means the engine runs sessionless.
	Current(ctx context.Context) (string, error)

	// Create forces a new session.
	Create(ctx context.Context) (string, error)
}
