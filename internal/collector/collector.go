// Package collector tracks which links on the current page are awaiting a
// verdict and prevents duplicate outbound analysis requests for the same
// URL identity.
package collector

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devscan/linkshield/internal/core"
)

const (
	// clientFailsafe is the hard client-side deadline after which an
	// unresolved link is presented as scan_failed without being cached.
	clientFailsafe = 150 * time.Second

	sweepInterval = 30 * time.Second

	maxKnownVerdicts  = 1000
	keepKnownVerdicts = 500
	maxProcessed      = 500
	keepProcessed     = 250
)

type knownVerdict struct {
	url     string
	verdict core.Verdict
}

// Collector is the link collection and dedup queue for one page context.
// All mutation funnels through its methods; there is no ambient state.
type Collector struct {
	mu         sync.Mutex
	inFlight   map[string]struct{}
	processed  map[string]struct{}
	knownOrder []knownVerdict
	known      map[string]core.Verdict

	pageDomain string
	tabID      int

	resolver  core.IdentityResolver
	analyzer  core.Analyzer
	sessions  core.SessionManager
	deliverer core.VerdictDeliverer
	logger    *zap.Logger

	failsafe time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCollector creates a collector and starts its periodic memory sweep.
func NewCollector(
	resolver core.IdentityResolver,
	analyzer core.Analyzer,
	sessions core.SessionManager,
	deliverer core.VerdictDeliverer,
	logger *zap.Logger,
) *Collector {
	c := &Collector{
		inFlight:  make(map[string]struct{}),
		processed: make(map[string]struct{}),
		known:     make(map[string]core.Verdict),
		tabID:     -1,
		resolver:  resolver,
		analyzer:  analyzer,
		sessions:  sessions,
		deliverer: deliverer,
		logger:    logger,
		failsafe:  clientFailsafe,
		stopCh:    make(chan struct{}),
	}

	go c.sweepLoop()

	return c
}

// SetPage binds the collector to a new page load, resetting the per-page
// dedup state.
func (c *Collector) SetPage(domain string, tabID int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pageDomain = domain
	c.tabID = tabID
	c.inFlight = make(map[string]struct{})
	c.processed = make(map[string]struct{})
	c.knownOrder = nil
	c.known = make(map[string]core.Verdict)
}

// Collect queues one raw URL for analysis, fire-and-forget. Browser-internal
// URLs are dropped. A URL identity already in flight, or already processed
// this page with a valid verdict on record, is a no-op — this is the
// engine's only hard exclusivity guarantee: at most one live analysis per
// identity at a time.
func (c *Collector) Collect(ctx context.Context, rawURL string) {
	id := c.resolver.Resolve(ctx, rawURL)
	if id.BrowserInternal {
		c.logger.Debug("skipping browser internal url", zap.String("url", id.URL))
		return
	}

	c.mu.Lock()
	if _, inFlight := c.inFlight[id.URL]; inFlight {
		c.mu.Unlock()
		return
	}
	if _, processed := c.processed[id.URL]; processed {
		if v, ok := c.known[id.URL]; ok && v.Cacheable() {
			c.mu.Unlock()
			return
		}
	}
	c.inFlight[id.URL] = struct{}{}
	c.processed[id.URL] = struct{}{}
	domain := c.pageDomain
	tabID := c.tabID
	c.mu.Unlock()

	go c.dispatch(ctx, id.URL, domain, tabID)
}

// dispatch runs one live analysis with the client-side failsafe. Whichever
// of the analysis result or the failsafe timer lands first wins; the loser
// finds the identity gone from inFlight and does nothing.
func (c *Collector) dispatch(ctx context.Context, url, domain string, tabID int) {
	sessionID, err := c.sessions.Current(ctx)
	if err != nil {
		c.logger.Warn("session lookup failed, proceeding sessionless", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)

		result, err := c.analyzer.AnalyzeLink(ctx, core.AnalysisRequest{
			URL:       url,
			Domain:    domain,
			SessionID: sessionID,
			TabID:     tabID,
		})

		verdict := core.VerdictScanFailed
		if err == nil && result != nil {
			verdict = result.Verdict
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.inFlight[url]; !ok {
			// The failsafe already resolved this link; stale completion.
			return
		}
		delete(c.inFlight, url)
		c.remember(url, verdict)
	}()

	select {
	case <-done:
	case <-time.After(c.failsafe):
		c.onFailsafe(ctx, url, tabID)
	case <-c.stopCh:
	}
}

// onFailsafe synthesizes a scan_failed presentation for a link whose
// analysis never resolved. The result is deliberately not remembered or
// cached: a transient network blip must not permanently brand a URL as
// failed, so the identity may re-enter the queue later.
func (c *Collector) onFailsafe(ctx context.Context, url string, tabID int) {
	c.mu.Lock()
	if _, ok := c.inFlight[url]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.inFlight, url)
	c.mu.Unlock()

	c.logger.Warn("client-side failsafe reached, presenting scan_failed",
		zap.String("url", url),
		zap.Duration("failsafe", c.failsafe))

	if c.deliverer != nil && tabID >= 0 {
		if err := c.deliverer.Deliver(ctx, tabID, url, core.VerdictScanFailed, nil); err != nil {
			c.logger.Warn("failed to deliver failsafe verdict", zap.Error(err))
		}
	}
}

// InFlight reports whether a URL identity currently awaits a live verdict.
func (c *Collector) InFlight(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[url]
	return ok
}

// KnownVerdict returns the locally mirrored verdict for a URL, if any.
func (c *Collector) KnownVerdict(url string) (core.Verdict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.known[url]
	return v, ok
}

// remember records a completed verdict in the local mirror. Caller holds mu.
func (c *Collector) remember(url string, verdict core.Verdict) {
	if _, ok := c.known[url]; !ok {
		c.knownOrder = append(c.knownOrder, knownVerdict{url: url, verdict: verdict})
	}
	c.known[url] = verdict
}

func (c *Collector) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}

// sweep enforces the memory caps: failed entries are dropped so they can be
// retried, and the mirrors are trimmed to their retention sizes.
func (c *Collector) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Failed entries never block a retry.
	kept := c.knownOrder[:0]
	for _, kv := range c.knownOrder {
		current, ok := c.known[kv.url]
		if !ok {
			continue
		}
		if !current.Cacheable() {
			delete(c.known, kv.url)
			continue
		}
		kept = append(kept, knownVerdict{url: kv.url, verdict: current})
	}
	c.knownOrder = kept

	if len(c.knownOrder) > maxKnownVerdicts {
		drop := c.knownOrder[:len(c.knownOrder)-keepKnownVerdicts]
		for _, kv := range drop {
			delete(c.known, kv.url)
		}
		c.knownOrder = append([]knownVerdict(nil), c.knownOrder[len(c.knownOrder)-keepKnownVerdicts:]...)
		c.logger.Debug("trimmed known verdicts", zap.Int("kept", len(c.knownOrder)))
	}

	if len(c.processed) > maxProcessed {
		// The processed set is unordered; retain identities that still have
		// a mirrored verdict first, newest mirror entries being the proxy
		// for recency.
		trimmed := make(map[string]struct{}, keepProcessed)
		for i := len(c.knownOrder) - 1; i >= 0 && len(trimmed) < keepProcessed; i-- {
			url := c.knownOrder[i].url
			if _, ok := c.processed[url]; ok {
				trimmed[url] = struct{}{}
			}
		}
		c.processed = trimmed
		c.logger.Debug("trimmed processed set", zap.Int("kept", len(c.processed)))
	}
}

// Stop terminates the sweep loop.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}
