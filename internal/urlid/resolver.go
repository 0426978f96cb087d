// Package urlid derives canonical URL identities from raw observed URLs.
// The identity is what the caches and dedup sets key on; resolution is
// idempotent and never fails (a URL that cannot be parsed keeps its raw
// form, which fails open for identity purposes only, never for safety).
package urlid

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	whatwg "github.com/nlnwa/whatwg-url/url"
	"go.uber.org/zap"

	"github.com/devscan/linkshield/internal/core"
)

// shortenerHosts are hostnames treated as link shorteners. A URL on one of
// these gets exactly one expansion hop through the backend unshortener.
var shortenerHosts = map[string]struct{}{
	"bit.ly":      {},
	"t.co":        {},
	"tinyurl.com": {},
	"goo.gl":      {},
	"is.gd":       {},
	"buff.ly":     {},
	"cutt.ly":     {},
	"ow.ly":       {},
	"rebrand.ly":  {},
}

// browserInternalPrefixes are protocols that must never be analyzed, cached
// or sent anywhere.
var browserInternalPrefixes = []string{
	"about:", "chrome:", "chrome-extension:", "chrome-search:", "chrome-devtools:",
	"edge:", "firefox:", "safari:", "data:", "blob:", "file:", "ftp:",
	"javascript:", "mailto:", "tel:", "sms:", "moz-extension:", "safari-extension:",
	"webkit:", "resource:", "view-source:",
}

var urlParser = whatwg.NewParser(whatwg.WithPercentEncodeSinglePercentSign())

// Unshortener expands a shortened URL. The backend scanner client implements
// this; failures fall back to the unexpanded URL.
type Unshortener interface {
	Unshorten(ctx context.Context, shortURL string) (string, error)
}

// Resolver implements core.IdentityResolver.
type Resolver struct {
	unshortener      Unshortener
	logger           *zap.Logger
	unshortenTimeout time.Duration
}

// NewResolver creates a resolver. unshortener may be nil, in which case
// shortener URLs keep their short form as identity.
func NewResolver(unshortener Unshortener, logger *zap.Logger) *Resolver {
	return &Resolver{
		unshortener:      unshortener,
		logger:           logger,
		unshortenTimeout: 8 * time.Second,
	}
}

// Resolve derives the canonical identity of a raw URL. Each step is
// independently skippable on error: decode once, expand one shortener hop,
// then classify browser-internal URLs.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) core.URLIdentity {
	id := core.URLIdentity{URL: strings.TrimSpace(rawURL), Original: rawURL}

	if decoded, err := url.PathUnescape(id.URL); err == nil {
		id.URL = decoded
	} else {
		r.logger.Debug("percent-decode failed, keeping raw url",
			zap.String("url", id.URL), zap.Error(err))
	}

	id = r.expandShortener(ctx, id)

	id.BrowserInternal = IsBrowserInternal(id.URL)
	return id
}

// expandShortener performs at most one unshortening hop. The Unshortened
// flag bounds the chain even when the expanded URL is itself a shortener.
func (r *Resolver) expandShortener(ctx context.Context, id core.URLIdentity) core.URLIdentity {
	if r.unshortener == nil || id.Unshortened {
		return id
	}

	parsed, err := urlParser.Parse(id.URL)
	if err != nil {
		return id
	}
	if _, ok := shortenerHosts[parsed.Hostname()]; !ok {
		return id
	}

	uctx, cancel := context.WithTimeout(ctx, r.unshortenTimeout)
	defer cancel()

	expanded, err := r.unshortener.Unshorten(uctx, id.URL)
	if err != nil || expanded == "" {
		r.logger.Warn("unshorten failed, using original url",
			zap.String("url", id.URL), zap.Error(err))
		id.Unshortened = true
		return id
	}

	r.logger.Debug("resolved shortened link",
		zap.String("short", id.URL), zap.String("resolved", expanded))
	id.URL = expanded
	id.Unshortened = true
	return id
}

// IsBrowserInternal reports whether a URL uses a browser-internal protocol
// or is an empty/anchor-only reference.
func IsBrowserInternal(rawURL string) bool {
	u := strings.ToLower(strings.TrimSpace(rawURL))
	if u == "" || strings.HasPrefix(u, "#") {
		return true
	}
	for _, p := range browserInternalPrefixes {
		if strings.HasPrefix(u, p) {
			return true
		}
	}
	return false
}

// CacheKey is the lighter-weight normalization used for cache and response
// matching: lowercase, no trailing slashes, no protocol, no leading www.
func CacheKey(rawURL string) string {
	u := strings.TrimSpace(rawURL)
	if decoded, err := url.PathUnescape(u); err == nil {
		u = decoded
	}
	u = strings.ToLower(u)
	u = strings.TrimRight(u, "/")
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	u = strings.TrimPrefix(u, "www.")
	return u
}

var domainFallback = regexp.MustCompile(`^(?:https?://)?(?:www\.)?([^/]+)`)

// ExtractDomain returns the lowercase hostname of a URL without a leading
// www. An unparseable URL falls back to a best-effort string scan.
func ExtractDomain(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	candidate := rawURL
	if !strings.HasPrefix(candidate, "http://") && !strings.HasPrefix(candidate, "https://") {
		candidate = "http://" + candidate
	}
	if parsed, err := urlParser.Parse(candidate); err == nil {
		return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	}
	if m := domainFallback.FindStringSubmatch(rawURL); m != nil {
		return strings.ToLower(m[1])
	}
	return ""
}
