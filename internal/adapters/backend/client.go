// Package backend implements the HTTP client for the remote link scanner
// service. All duck-typed wire shapes are normalized here; nothing past this
// package sees a raw service verdict.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/devscan/linkshield/internal/core"
)

// BaseURLProvider yields a healthy scanner base URL, discovering one when
// necessary. The connection manager implements this.
type BaseURLProvider interface {
	EnsureConnection(ctx context.Context) (string, error)
}

// Client talks to the scanner service. It implements core.ScannerClient and
// urlid.Unshortener.
type Client struct {
	httpClient     *http.Client
	baseURL        BaseURLProvider
	logger         *zap.Logger
	analyzeTimeout time.Duration
	auxTimeout     time.Duration
	browserInfo    string
	engineVersion  string
}

// NewClient creates a scanner client. analyzeTimeout bounds the analysis
// call (long, since upstream ML inference may be slow); auxTimeout bounds
// the unshorten, extract-links and session calls.
func NewClient(
	baseURL BaseURLProvider,
	logger *zap.Logger,
	analyzeTimeout time.Duration,
	auxTimeout time.Duration,
	browserInfo string,
	engineVersion string,
) *Client {
	return &Client{
		httpClient:     &http.Client{},
		baseURL:        baseURL,
		logger:         logger,
		analyzeTimeout: analyzeTimeout,
		auxTimeout:     auxTimeout,
		browserInfo:    browserInfo,
		engineVersion:  engineVersion,
	}
}

type analyzeRequest struct {
	Links       []string `json:"links"`
	Domain      string   `json:"domain"`
	SessionID   string   `json:"sessionId"`
	BrowserInfo string   `json:"browserInfo"`
	SingleLink  bool     `json:"singleLink"`
}

type analyzeResponse struct {
	Success   bool                   `json:"success"`
	Verdicts  map[string]wireVerdict `json:"verdicts"`
	SessionID string                 `json:"session_ID"`
}

// AnalyzeSingle submits one link to the single-link analysis endpoint, finds
// its verdict in the response via the layered matching strategies and maps
// it to the closed verdict enum.
func (c *Client) AnalyzeSingle(ctx context.Context, req core.AnalysisRequest) (*core.ScanOutcome, error) {
	base, err := c.baseURL.EnsureConnection(ctx)
	if err != nil {
		return nil, err
	}

	rctx, cancel := context.WithTimeout(ctx, c.analyzeTimeout)
	defer cancel()

	body := analyzeRequest{
		Links:       []string{req.URL},
		Domain:      req.Domain,
		SessionID:   req.SessionID,
		BrowserInfo: fmt.Sprintf("%s - %s", c.browserInfo, req.Domain),
		SingleLink:  true,
	}

	var resp analyzeResponse
	if err := c.postJSON(rctx, base+"/api/extension/analyze", body, &resp); err != nil {
		return nil, fmt.Errorf("analysis request failed: %w", err)
	}

	if !resp.Success || resp.Verdicts == nil {
		return nil, core.ErrMalformedResponse
	}

	matched, strategy, ok := findVerdict(req.URL, resp.Verdicts)
	if !ok {
		c.logger.Warn("no verdict found for url in scanner response",
			zap.String("url", req.URL),
			zap.Int("response_keys", len(resp.Verdicts)))
		return nil, core.ErrNoVerdictMatch
	}

	c.logger.Debug("matched verdict in scanner response",
		zap.String("url", req.URL),
		zap.String("strategy", strategy))

	outcome := matched.toOutcome()
	outcome.MatchStrategy = strategy
	outcome.SessionID = resp.SessionID
	return outcome, nil
}

type bulkRequest struct {
	SessionID string   `json:"session_ID"`
	Links     []string `json:"links"`
}

type bulkResponse struct {
	Results []core.BulkResult `json:"results"`
}

// ScanLinksBulk submits links to the legacy bulk endpoint. Results are
// index-aligned with the request links.
func (c *Client) ScanLinksBulk(ctx context.Context, sessionID string, links []string) ([]core.BulkResult, error) {
	base, err := c.baseURL.EnsureConnection(ctx)
	if err != nil {
		return nil, err
	}

	rctx, cancel := context.WithTimeout(ctx, c.analyzeTimeout)
	defer cancel()

	var resp bulkResponse
	if err := c.postJSON(rctx, base+"/api/scan-links", bulkRequest{SessionID: sessionID, Links: links}, &resp); err != nil {
		return nil, fmt.Errorf("bulk scan request failed: %w", err)
	}
	if resp.Results == nil {
		return nil, core.ErrMalformedResponse
	}
	if len(resp.Results) != len(links) {
		return nil, fmt.Errorf("%w: got %d results for %d links",
			core.ErrMalformedResponse, len(resp.Results), len(links))
	}
	return resp.Results, nil
}

type sessionRequest struct {
	BrowserInfo   string `json:"browserInfo"`
	EngineVersion string `json:"engineVersion"`
}

type sessionResponse struct {
	SessionID string `json:"session_ID"`
}

// CreateSession registers a new scan session with the backend and returns
// its id.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	base, err := c.baseURL.EnsureConnection(ctx)
	if err != nil {
		return "", err
	}

	rctx, cancel := context.WithTimeout(ctx, c.auxTimeout)
	defer cancel()

	var resp sessionResponse
	err = c.postJSON(rctx, base+"/api/scan-sessions",
		sessionRequest{BrowserInfo: c.browserInfo, EngineVersion: c.engineVersion}, &resp)
	if err != nil {
		return "", fmt.Errorf("session creation failed: %w", err)
	}
	if resp.SessionID == "" {
		return "", core.ErrMalformedResponse
	}
	return resp.SessionID, nil
}

type unshortenRequest struct {
	URL string `json:"url"`
}

type unshortenResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
}

// Unshorten expands a shortened URL through the backend. Callers fall back
// to the short form on error.
func (c *Client) Unshorten(ctx context.Context, shortURL string) (string, error) {
	base, err := c.baseURL.EnsureConnection(ctx)
	if err != nil {
		return "", err
	}

	rctx, cancel := context.WithTimeout(ctx, c.auxTimeout)
	defer cancel()

	var resp unshortenResponse
	if err := c.postJSON(rctx, base+"/api/unshortened-links", unshortenRequest{URL: shortURL}, &resp); err != nil {
		return "", fmt.Errorf("unshorten request failed: %w", err)
	}
	if !resp.Success || resp.URL == "" {
		return "", core.ErrMalformedResponse
	}
	return resp.URL, nil
}

type extractRequest struct {
	URL string `json:"url"`
}

type extractResponse struct {
	Success bool     `json:"success"`
	Links   []string `json:"links"`
}

// ExtractLinks asks the backend for the outbound links of a page. Used only
// for informational logging on risky verdicts.
func (c *Client) ExtractLinks(ctx context.Context, pageURL string) ([]string, error) {
	base, err := c.baseURL.EnsureConnection(ctx)
	if err != nil {
		return nil, err
	}

	rctx, cancel := context.WithTimeout(ctx, c.auxTimeout)
	defer cancel()

	var resp extractResponse
	if err := c.postJSON(rctx, base+"/api/extract-links", extractRequest{URL: pageURL}, &resp); err != nil {
		return nil, fmt.Errorf("extract-links request failed: %w", err)
	}
	if !resp.Success || resp.Links == nil {
		return nil, core.ErrMalformedResponse
	}
	return resp.Links, nil
}

func (c *Client) postJSON(ctx context.Context, url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("server responded with status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
	}
	return nil
}
