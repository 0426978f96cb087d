package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devscan/linkshield/internal/core"
)

type staticBaseURL string

func (s staticBaseURL) EnsureConnection(ctx context.Context) (string, error) {
	return string(s), nil
}

func newTestClient(baseURL string) *Client {
	return NewClient(staticBaseURL(baseURL), zap.NewNop(), 5*time.Second, 2*time.Second, "TestBrowser", "1.0.0")
}

func TestAnalyzeSingle(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/extension/analyze", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"verdicts": map[string]interface{}{
				"https://example.com/page": map[string]interface{}{
					"final_verdict":      "malicious",
					"confidence_score":   0.93,
					"anomaly_risk_level": "high",
				},
			},
			"session_ID": "sess-42",
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	outcome, err := c.AnalyzeSingle(context.Background(), core.AnalysisRequest{
		URL:       "https://example.com/page",
		Domain:    "example.com",
		SessionID: "sess-42",
	})
	require.NoError(t, err)
	assert.Equal(t, core.VerdictMalicious, outcome.Verdict)
	assert.Equal(t, "0.93", outcome.ConfidenceScore)
	assert.Equal(t, "exact", outcome.MatchStrategy)
	assert.Equal(t, "sess-42", outcome.SessionID)

	assert.Equal(t, true, gotBody["singleLink"])
	assert.Equal(t, "example.com", gotBody["domain"])
	assert.Equal(t, "TestBrowser - example.com", gotBody["browserInfo"])
}

func TestAnalyzeSingleLegacyStringVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":  true,
			"verdicts": map[string]interface{}{"https://example.com": "safe"},
		})
	}))
	defer srv.Close()

	outcome, err := newTestClient(srv.URL).AnalyzeSingle(context.Background(), core.AnalysisRequest{
		URL: "https://example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, core.VerdictSafe, outcome.Verdict)
}

func TestAnalyzeSingleNoVerdictMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":  true,
			"verdicts": map[string]interface{}{"https://unrelated.example": "safe"},
		})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).AnalyzeSingle(context.Background(), core.AnalysisRequest{
		URL: "https://example.com",
	})
	assert.ErrorIs(t, err, core.ErrNoVerdictMatch)
}

func TestAnalyzeSingleMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).AnalyzeSingle(context.Background(), core.AnalysisRequest{
		URL: "https://example.com",
	})
	assert.ErrorIs(t, err, core.ErrMalformedResponse)
}

func TestAnalyzeSingleServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).AnalyzeSingle(context.Background(), core.AnalysisRequest{
		URL: "https://example.com",
	})
	assert.Error(t, err)
}

func TestScanLinksBulk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/scan-links", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"isMalicious": true, "anomalyScore": 0.9},
				{"isMalicious": false, "anomalyScore": 0.1},
			},
		})
	}))
	defer srv.Close()

	results, err := newTestClient(srv.URL).ScanLinksBulk(context.Background(), "sess", []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].IsMalicious)
	assert.False(t, results[1].IsMalicious)
}

func TestScanLinksBulkLengthMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{{"isMalicious": false}},
		})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ScanLinksBulk(context.Background(), "sess", []string{"a", "b"})
	assert.ErrorIs(t, err, core.ErrMalformedResponse)
}

func TestCreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/scan-sessions", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"session_ID": "sess-7"})
	}))
	defer srv.Close()

	id, err := newTestClient(srv.URL).CreateSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sess-7", id)
}

func TestUnshorten(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/unshortened-links", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"url":     "https://example.com/full",
		})
	}))
	defer srv.Close()

	full, err := newTestClient(srv.URL).Unshorten(context.Background(), "https://bit.ly/x")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/full", full)
}

func TestExtractLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/extract-links", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"links":   []string{"https://a.example", "https://b.example"},
		})
	}))
	defer srv.Close()

	links, err := newTestClient(srv.URL).ExtractLinks(context.Background(), "https://page.example")
	require.NoError(t, err)
	assert.Len(t, links, 2)
}
