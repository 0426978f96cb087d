package navigation

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/devscan/linkshield/internal/core"
)

// Pages holds the engine's internal page URLs. Navigations targeting them
// are never intercepted (loop prevention), and the interceptor redirects
// tabs to them while a scan runs or after a risky verdict.
type Pages struct {
	Scanning         string
	WarningStandard  string
	WarningStrict    string
	WarningAnomalous string
}

// IsInternal reports whether a URL targets one of the engine's own pages.
func (p Pages) IsInternal(rawURL string) bool {
	for _, page := range []string{p.Scanning, p.WarningStandard, p.WarningStrict, p.WarningAnomalous} {
		if page != "" && strings.Contains(rawURL, page) {
			return true
		}
	}
	return false
}

// ScanningURL builds the scanning-page URL carrying the original target and
// the navigation initiator, so the page can show progress and retry.
func (p Pages) ScanningURL(target, initiator string) string {
	q := url.Values{}
	q.Set("url", target)
	q.Set("initiator", initiator)
	return p.Scanning + "?" + q.Encode()
}

// WarningURL builds the warning-page URL for a variant.
func (p Pages) WarningURL(variant core.WarningVariant, target string, openerTabID int, strict bool) string {
	base := p.WarningStandard
	switch variant {
	case core.WarningStrict:
		base = p.WarningStrict
	case core.WarningAnomalous:
		base = p.WarningAnomalous
	}

	q := url.Values{}
	q.Set("url", target)
	q.Set("openerTabId", strconv.Itoa(openerTabID))
	q.Set("strict", strconv.FormatBool(strict))
	q.Set("ts", strconv.FormatInt(time.Now().UnixMilli(), 10))
	return base + "?" + q.Encode()
}
