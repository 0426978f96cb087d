// Package navigation implements the top-level navigation interception state
// machine: resolve the target's identity, check bypasses, park the tab on a
// scanning page, obtain a verdict and route the tab to its final
// destination. Every error on the analysis path collapses to scan_failed —
// uncertainty is never treated as safe.
package navigation

import (
	"context"
	neturl "net/url"
	"strings"

	whatwg "github.com/nlnwa/whatwg-url/url"
	"go.uber.org/zap"

	"github.com/devscan/linkshield/internal/core"
	"github.com/devscan/linkshield/internal/urlid"
)

// searchEngineHosts are result-page hosts whose outbound navigations are not
// intercepted: search engines vet their own result links and intercepting
// them doubles every search click.
var searchEngineHosts = []string{
	"google.com", "bing.com", "yahoo.com", "duckduckgo.com", "baidu.com",
}

var navParser = whatwg.NewParser(whatwg.WithPercentEncodeSinglePercentSign())

// FlagChecker reports whether a URL was flagged risky within the re-prompt
// suppression window. The analysis service implements this.
type FlagChecker interface {
	RecentlyFlagged(url string) bool
}

// Interceptor drives the navigation interception state machine for one
// engine process.
type Interceptor struct {
	resolver  core.IdentityResolver
	analyzer  core.Analyzer
	flags     FlagChecker
	sessions  core.SessionManager
	scanner   core.ScannerClient
	tabs      core.TabController
	messenger core.PageMessenger
	settings  core.SettingsStore
	bypass    *BypassList
	pages     Pages
	logger    *zap.Logger
}

// NewInterceptor wires the state machine's collaborators.
func NewInterceptor(
	resolver core.IdentityResolver,
	analyzer core.Analyzer,
	flags FlagChecker,
	sessions core.SessionManager,
	scanner core.ScannerClient,
	tabs core.TabController,
	messenger core.PageMessenger,
	settings core.SettingsStore,
	bypass *BypassList,
	pages Pages,
	logger *zap.Logger,
) *Interceptor {
	return &Interceptor{
		resolver:  resolver,
		analyzer:  analyzer,
		flags:     flags,
		sessions:  sessions,
		scanner:   scanner,
		tabs:      tabs,
		messenger: messenger,
		settings:  settings,
		bypass:    bypass,
		pages:     pages,
		logger:    logger,
	}
}

// Bypass exposes the bypass sets for the message front-end (allowOnce,
// allowLinkBypass).
func (i *Interceptor) Bypass() *BypassList {
	return i.bypass
}

// ShouldIntercept is the pre-filter applied before the state machine runs.
// Search-engine result pages (including their AI/image/news tab variants),
// navigations initiated from a search engine, and internal pages are left
// alone.
func (i *Interceptor) ShouldIntercept(rawURL, initiator string) bool {
	u, err := navParser.Parse(rawURL)
	if err != nil {
		return false
	}

	proto := strings.ToLower(u.Protocol())
	if strings.HasPrefix(proto, "chrome-extension") || strings.HasPrefix(proto, "chrome") {
		return false
	}

	host := strings.ToLower(u.Hostname())
	for _, engine := range searchEngineHosts {
		if host != engine && !strings.HasSuffix(host, "."+engine) {
			continue
		}
		if engine == "google.com" {
			// Only Google's result pages and their AI/image/news tab
			// variants are skipped, not the rest of its properties.
			if strings.HasPrefix(u.Pathname(), "/search") {
				return false
			}
			if q, err := neturl.Parse(rawURL); err == nil {
				params := q.Query()
				if params.Has("tbm") || params.Has("udm") {
					return false
				}
			}
			continue
		}
		return false
	}

	if initiator != "" && initiator != "null" {
		if iu, err := navParser.Parse(initiator); err == nil {
			ihost := strings.ToLower(iu.Hostname())
			for _, engine := range searchEngineHosts {
				if ihost == engine || strings.HasSuffix(ihost, "."+engine) {
					i.logger.Debug("skipping navigation from search engine",
						zap.String("initiator", initiator))
					return false
				}
			}
		}
		// An unparseable initiator still gets scanned rather than skipped.
	}

	return true
}

// HandleNavigation runs the full state machine for one intercepted top-level
// navigation and returns the decision it acted on.
func (i *Interceptor) HandleNavigation(ctx context.Context, tabID int, rawURL, initiator string) (core.NavigationDecision, error) {
	id := i.resolver.Resolve(ctx, rawURL)

	if id.BrowserInternal || i.pages.IsInternal(id.URL) {
		return core.NavigationDecision{Action: core.ActionProceed}, nil
	}

	if i.bypass.ShouldBypass(id.URL) || (i.flags != nil && i.flags.RecentlyFlagged(id.URL)) {
		i.logger.Debug("bypassing re-scan", zap.String("url", id.URL))
		return core.NavigationDecision{Action: core.ActionProceed}, nil
	}

	sessionID, err := i.sessions.Current(ctx)
	if err != nil {
		i.logger.Warn("session bootstrap failed", zap.Error(err))
	}

	// Park the tab on the scanning page immediately so the user sees
	// feedback while the analysis runs.
	if err := i.tabs.NavigateTab(ctx, tabID, i.pages.ScanningURL(id.URL, initiatorValue(initiator))); err != nil {
		i.logger.Warn("failed to redirect to scanning page", zap.Error(err))
	}

	return i.analyzeAndRoute(ctx, tabID, id.URL, sessionID)
}

// RetryScan re-enters the state machine at the live-analysis stage after an
// explicit user retry. Bypass sets are deliberately not consulted: the user
// asked for a re-scan despite them. When the tab already shows the scanning
// page it is not redirected again.
func (i *Interceptor) RetryScan(ctx context.Context, tabID int, rawURL, initiator, currentTabURL string) (core.NavigationDecision, error) {
	id := i.resolver.Resolve(ctx, rawURL)

	sessionID, err := i.sessions.Current(ctx)
	if err != nil {
		i.logger.Warn("session bootstrap failed on retry", zap.Error(err))
	}

	if !strings.HasPrefix(currentTabURL, i.pages.Scanning) {
		if err := i.tabs.NavigateTab(ctx, tabID, i.pages.ScanningURL(id.URL, initiatorValue(initiator))); err != nil {
			i.logger.Warn("failed to redirect to scanning page", zap.Error(err))
		}
	}

	return i.analyzeAndRoute(ctx, tabID, id.URL, sessionID)
}

// analyzeAndRoute is the LiveAnalysis → Decided tail shared by first-time
// interception and retry.
func (i *Interceptor) analyzeAndRoute(ctx context.Context, tabID int, url, sessionID string) (core.NavigationDecision, error) {
	verdict := core.VerdictScanFailed
	result, err := i.analyzer.AnalyzeLink(ctx, core.AnalysisRequest{
		URL:       url,
		Domain:    urlid.ExtractDomain(url),
		SessionID: sessionID,
		TabID:     tabID,
	})
	if err != nil {
		i.logger.Error("navigation analysis failed, treating as scan_failed",
			zap.String("url", url), zap.Error(err))
	} else if result != nil {
		verdict = result.Verdict
	}

	policy, perr := i.settings.Policy(ctx)
	if perr != nil {
		i.logger.Warn("failed to read user policy, using defaults", zap.Error(perr))
	}

	decision := Decide(verdict, policy)

	switch decision.Action {
	case core.ActionRedirectWarning:
		strict := decision.Variant == core.WarningStrict
		if err := i.tabs.NavigateTab(ctx, tabID, i.pages.WarningURL(decision.Variant, url, tabID, strict)); err != nil {
			i.logger.Error("failed to redirect to warning page", zap.Error(err))
		}
		i.extractLinks(url)

	case core.ActionNotifyScanFailed:
		if err := i.messenger.NotifyScanFailed(ctx, tabID, url,
			"The analysis service did not return a valid verdict."); err != nil {
			i.logger.Warn("failed to notify scanning page", zap.Error(err))
		}

	case core.ActionProceed:
		if err := i.tabs.NavigateTab(ctx, tabID, url); err != nil {
			i.logger.Error("failed to resume navigation", zap.Error(err))
		}
		// Only an affirmative safe verdict earns the re-scan bypass. A risky
		// verdict allowed through in warnings-only mode must stay analyzable.
		if verdict == core.VerdictSafe {
			i.bypass.MarkSafe(url)
		}
	}

	return decision, nil
}

// OpenWarningTab opens a warning page in a new tab next to the opener, for
// clicks the page-level guard blocked. The variant follows the same policy
// table the navigation path uses; unknown risk levels are treated as
// malicious.
func (i *Interceptor) OpenWarningTab(ctx context.Context, openerTabID int, targetURL, riskLevel string) (int, error) {
	policy, err := i.settings.Policy(ctx)
	if err != nil {
		i.logger.Warn("failed to read user policy, using defaults", zap.Error(err))
	}

	variant := core.WarningStandard
	switch {
	case core.Verdict(riskLevel) == core.VerdictAnomalous:
		variant = core.WarningAnomalous
	case policy.StrictMaliciousBlocking:
		variant = core.WarningStrict
	}

	return i.tabs.OpenTab(ctx, openerTabID,
		i.pages.WarningURL(variant, targetURL, openerTabID, policy.StrictMaliciousBlocking))
}

// extractLinks fires the informational link-extraction call for a risky
// target. Purely best-effort; the navigation decision already happened.
func (i *Interceptor) extractLinks(url string) {
	go func() {
		links, err := i.scanner.ExtractLinks(context.Background(), url)
		if err != nil {
			i.logger.Debug("link extraction failed", zap.String("url", url), zap.Error(err))
			return
		}
		i.logger.Info("extracted links from flagged page",
			zap.String("url", url),
			zap.Int("link_count", len(links)))
	}()
}

func initiatorValue(initiator string) string {
	if initiator == "" || initiator == "null" {
		return "none"
	}
	return initiator
}
