package core

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// flaggedWindow is how long a malicious or anomalous identity stays in the
// recently-flagged set consulted by the navigation interceptor, so a user
// who just saw a warning is not re-prompted for the same URL.
const flaggedWindow = 60 * time.Second

// CacheEventRecorder receives cache hit/miss events for diagnostics.
type CacheEventRecorder interface {
	RecordCacheEvent(hit bool)
}

// AnalysisService is the analysis request dispatcher: it funnels cache
// checks, the live scanner call, verdict-record creation and verdict
// delivery for one link at a time.
type AnalysisService struct {
	scanner    ScannerClient
	cache      VerdictCache
	deliverer  VerdictDeliverer
	settings   SettingsStore
	recorder   CacheEventRecorder
	logger     *zap.Logger
	legacyBulk bool

	flaggedMu sync.Mutex
	flagged   map[string]time.Time
}

// NewAnalysisService creates the dispatcher. recorder may be nil.
func NewAnalysisService(
	scanner ScannerClient,
	cache VerdictCache,
	deliverer VerdictDeliverer,
	settings SettingsStore,
	recorder CacheEventRecorder,
	logger *zap.Logger,
) *AnalysisService {
	return &AnalysisService{
		scanner:   scanner,
		cache:     cache,
		deliverer: deliverer,
		settings:  settings,
		recorder:  recorder,
		logger:    logger,
		flagged:   make(map[string]time.Time),
	}
}

// UseLegacyBulk switches live scans to the legacy bulk endpoint, for
// backends that predate the single-link analyze route.
func (s *AnalysisService) UseLegacyBulk(enabled bool) {
	s.legacyBulk = enabled
}

// AnalyzeLink resolves a verdict for one link: cache first, then a live
// scanner round trip. Successful non-failed verdicts are cached with the
// TTL policy; scan_failed and transient states never are, so the link stays
// retryable. The verdict is delivered to the requesting tab either way;
// delivery failures are best-effort and never change the outcome.
func (s *AnalysisService) AnalyzeLink(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error) {
	if rec, err := s.cache.Get(ctx, req.URL, req.SessionID); err == nil {
		s.recordCacheEvent(true)
		s.logger.Debug("cache hit",
			zap.String("url", req.URL),
			zap.String("verdict", string(rec.Verdict)))

		s.deliver(ctx, req.TabID, req.URL, rec.Verdict, rec)
		return &AnalysisResult{
			Verdict:   rec.Verdict,
			SessionID: req.SessionID,
			Record:    rec,
			FromCache: true,
		}, nil
	}
	s.recordCacheEvent(false)

	outcome, err := s.scan(ctx, req)
	if err != nil {
		if errors.Is(err, ErrNoVerdictMatch) {
			// The scan completed but the response held nothing for this
			// URL. Fail closed without caching, leaving the link retryable.
			s.deliver(ctx, req.TabID, req.URL, VerdictScanFailed, nil)
			return &AnalysisResult{Verdict: VerdictScanFailed, SessionID: req.SessionID}, nil
		}

		s.logger.Error("link analysis failed",
			zap.String("url", req.URL),
			zap.Error(err))
		s.deliver(ctx, req.TabID, req.URL, VerdictScanFailed, nil)
		return nil, err
	}

	sessionID := req.SessionID
	if outcome.SessionID != "" {
		sessionID = outcome.SessionID
		if outcome.SessionID != req.SessionID {
			if err := s.settings.SetSessionID(ctx, outcome.SessionID); err != nil {
				s.logger.Warn("failed to persist session id from response", zap.Error(err))
			}
		}
	}

	record := &VerdictRecord{
		Verdict:          outcome.Verdict,
		AnomalyRiskLevel: outcome.AnomalyRiskLevel,
		ConfidenceScore:  outcome.ConfidenceScore,
		Timestamp:        time.Now(),
		TTL:              TTLFor(outcome.Verdict),
		SessionID:        sessionID,
	}

	if outcome.Verdict.Cacheable() {
		if err := s.cache.Set(ctx, req.URL, record); err != nil {
			s.logger.Error("failed to cache verdict", zap.Error(err), zap.String("url", req.URL))
		}
	}

	if outcome.Verdict.Risky() {
		s.markFlagged(req.URL)
	}

	s.logger.Info("verdict resolved",
		zap.String("url", req.URL),
		zap.String("verdict", string(outcome.Verdict)),
		zap.String("match_strategy", outcome.MatchStrategy))

	s.deliver(ctx, req.TabID, req.URL, outcome.Verdict, record)

	return &AnalysisResult{
		Verdict:   outcome.Verdict,
		SessionID: sessionID,
		Record:    record,
	}, nil
}

// scan performs the live round trip, using the legacy bulk endpoint when
// configured to.
func (s *AnalysisService) scan(ctx context.Context, req AnalysisRequest) (*ScanOutcome, error) {
	if !s.legacyBulk {
		return s.scanner.AnalyzeSingle(ctx, req)
	}

	results, err := s.scanner.ScanLinksBulk(ctx, req.SessionID, []string{req.URL})
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, ErrMalformedResponse
	}

	verdict := VerdictSafe
	if results[0].IsMalicious {
		verdict = VerdictMalicious
	}
	return &ScanOutcome{
		Verdict:          verdict,
		AnomalyRiskLevel: strconv.FormatFloat(results[0].AnomalyScore, 'f', -1, 64),
		MatchStrategy:    "bulk_index",
	}, nil
}

// RecentlyFlagged reports whether a URL identity was flagged malicious or
// anomalous within the re-prompt suppression window.
func (s *AnalysisService) RecentlyFlagged(url string) bool {
	s.flaggedMu.Lock()
	defer s.flaggedMu.Unlock()

	at, ok := s.flagged[url]
	if !ok {
		return false
	}
	if time.Since(at) >= flaggedWindow {
		delete(s.flagged, url)
		return false
	}
	return true
}

func (s *AnalysisService) markFlagged(url string) {
	s.flaggedMu.Lock()
	defer s.flaggedMu.Unlock()

	now := time.Now()
	for u, at := range s.flagged {
		if now.Sub(at) >= flaggedWindow {
			delete(s.flagged, u)
		}
	}
	s.flagged[url] = now
}

func (s *AnalysisService) deliver(ctx context.Context, tabID int, url string, verdict Verdict, record *VerdictRecord) {
	if s.deliverer == nil || tabID < 0 {
		return
	}
	if err := s.deliverer.Deliver(ctx, tabID, url, verdict, record); err != nil {
		s.logger.Warn("verdict delivery failed",
			zap.String("url", url),
			zap.Int("tab_id", tabID),
			zap.Error(err))
	}
}

func (s *AnalysisService) recordCacheEvent(hit bool) {
	if s.recorder != nil {
		s.recorder.RecordCacheEvent(hit)
	}
}
