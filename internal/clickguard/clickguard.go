// Package clickguard is the secondary, per-page defense layer: it decides
// what happens when a user clicks a link whose verdict state is already
// known to the page. It covers same-tab, SPA and middle-click navigations
// the top-level interceptor can miss, and must reach the same conclusion a
// navigation-time check would reach for the same verdict.
package clickguard

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/devscan/linkshield/internal/core"
	"github.com/devscan/linkshield/internal/urlid"
)

// ClickAction is what the page should do with an intercepted click.
type ClickAction int

const (
	// ActionAllow lets native navigation proceed.
	ActionAllow ClickAction = iota
	// ActionPromptScanning blocks and shows the "please wait" prompt with a
	// proceed-anyway override.
	ActionPromptScanning
	// ActionPromptScanFailed blocks and shows the "could not verify" prompt
	// with proceed-with-caution and try-again options.
	ActionPromptScanFailed
	// ActionOpenWarningTab blocks and asks the engine to open a dedicated
	// warning tab.
	ActionOpenWarningTab
	// ActionAllowLogged lets the navigation through because the user
	// disabled blocking; the override is logged.
	ActionAllowLogged
)

// String returns the wire name of the action.
func (a ClickAction) String() string {
	switch a {
	case ActionPromptScanning:
		return "prompt_scanning"
	case ActionPromptScanFailed:
		return "prompt_scan_failed"
	case ActionOpenWarningTab:
		return "open_warning_tab"
	case ActionAllowLogged:
		return "allow_logged"
	default:
		return "allow"
	}
}

// ClickDecision is the guard's answer for one click.
type ClickDecision struct {
	Action    ClickAction
	RiskLevel core.Verdict
}

// Guard implements the click decision. A short-lived one-shot bypass flag
// (set by the proceed-anyway prompt) is consumed by the next click.
type Guard struct {
	analyzer core.Analyzer
	sessions core.SessionManager
	settings core.SettingsStore
	logger   *zap.Logger

	mu              sync.Mutex
	temporaryBypass bool
}

// NewGuard creates a click guard.
func NewGuard(analyzer core.Analyzer, sessions core.SessionManager, settings core.SettingsStore, logger *zap.Logger) *Guard {
	return &Guard{
		analyzer: analyzer,
		sessions: sessions,
		settings: settings,
		logger:   logger,
	}
}

// SetTemporaryBypass arms the one-shot bypass consumed by the next click.
func (g *Guard) SetTemporaryBypass() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.temporaryBypass = true
}

// OnClick decides the fate of a click on a link in the given verdict state.
func (g *Guard) OnClick(ctx context.Context, url string, state core.Verdict) ClickDecision {
	g.mu.Lock()
	if g.temporaryBypass {
		g.temporaryBypass = false
		g.mu.Unlock()
		g.logger.Debug("temporary bypass consumed, allowing navigation", zap.String("url", url))
		return ClickDecision{Action: ActionAllow, RiskLevel: state}
	}
	g.mu.Unlock()

	switch state {
	case core.VerdictScanning:
		return ClickDecision{Action: ActionPromptScanning, RiskLevel: state}

	case core.VerdictScanFailed:
		return ClickDecision{Action: ActionPromptScanFailed, RiskLevel: state}

	case core.VerdictMalicious, core.VerdictAnomalous:
		policy, err := g.settings.Policy(ctx)
		if err != nil {
			g.logger.Warn("failed to read user policy, blocking by default", zap.Error(err))
			policy.EnableBlocking = true
		}
		if policy.EnableBlocking && !policy.ShowWarningsOnly {
			return ClickDecision{Action: ActionOpenWarningTab, RiskLevel: state}
		}
		g.logger.Info("blocking disabled by policy, allowing risky navigation",
			zap.String("url", url),
			zap.String("risk_level", string(state)))
		return ClickDecision{Action: ActionAllowLogged, RiskLevel: state}

	default:
		return ClickDecision{Action: ActionAllow, RiskLevel: state}
	}
}

// Retry re-runs the analysis for a link whose scan failed, straight from the
// page context's try-again affordance.
func (g *Guard) Retry(ctx context.Context, url string, tabID int) (*core.AnalysisResult, error) {
	sessionID, err := g.sessions.Current(ctx)
	if err != nil {
		g.logger.Warn("session lookup failed on click retry", zap.Error(err))
	}

	return g.analyzer.AnalyzeLink(ctx, core.AnalysisRequest{
		URL:       url,
		Domain:    urlid.ExtractDomain(url),
		SessionID: sessionID,
		TabID:     tabID,
	})
}
