package backend

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devscan/linkshield/internal/core"
)

func TestClassifyVerdict(t *testing.T) {
	tests := []struct {
		finalVerdict     string
		anomalyRiskLevel string
		want             core.Verdict
	}{
		{"malicious", "", core.VerdictMalicious},
		{"Phishing page detected", "", core.VerdictMalicious},
		{"dangerous site", "", core.VerdictMalicious},
		{"safe", "", core.VerdictSafe},
		{"whitelisted by operator", "", core.VerdictSafe},
		{"trusted", "", core.VerdictSafe},
		{"anomalous", "", core.VerdictAnomalous},
		{"suspicious redirect chain", "", core.VerdictAnomalous},
		{"unknown", "High", core.VerdictAnomalous},
		{"unknown", "low", core.VerdictScanFailed},
		{"", "", core.VerdictScanFailed},
		{"gibberish", "", core.VerdictScanFailed},
	}
	for _, tt := range tests {
		got := classifyVerdict(tt.finalVerdict, tt.anomalyRiskLevel)
		assert.Equal(t, tt.want, got, "%q/%q", tt.finalVerdict, tt.anomalyRiskLevel)
	}
}

func TestClassifyVerdictMaliciousBeatsSafe(t *testing.T) {
	// "unsafe" contains "safe"; a verdict naming both reads malicious.
	assert.Equal(t, core.VerdictMalicious, classifyVerdict("malicious, not safe", ""))
}

func TestWireVerdictDecodesLegacyString(t *testing.T) {
	var v wireVerdict
	require.NoError(t, json.Unmarshal([]byte(`"malicious"`), &v))
	assert.Equal(t, "malicious", v.FinalVerdict)
}

func TestWireVerdictDecodesObject(t *testing.T) {
	raw := `{
		"final_verdict": "anomalous",
		"confidence_score": 0.87,
		"anomaly_risk_level": "high",
		"explanation": "odd redirect chain",
		"tip": "avoid entering credentials"
	}`
	var v wireVerdict
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	assert.Equal(t, "anomalous", v.FinalVerdict)
	assert.Equal(t, flexString("0.87"), v.ConfidenceScore)
	assert.Equal(t, "high", v.AnomalyRiskLevel)
	assert.Equal(t, "odd redirect chain", v.Explanation)
}

func TestFlexStringVariants(t *testing.T) {
	tests := []struct {
		raw  string
		want flexString
	}{
		{`"0.95"`, "0.95"},
		{`0.95`, "0.95"},
		{`42`, "42"},
		{`null`, ""},
	}
	for _, tt := range tests {
		var f flexString
		require.NoError(t, json.Unmarshal([]byte(tt.raw), &f))
		assert.Equal(t, tt.want, f, tt.raw)
	}
}

func TestFindVerdictStrategies(t *testing.T) {
	tests := []struct {
		name         string
		requested    string
		verdicts     map[string]wireVerdict
		wantStrategy string
	}{
		{
			name:         "exact",
			requested:    "https://example.com/a",
			verdicts:     map[string]wireVerdict{"https://example.com/a": {FinalVerdict: "safe"}},
			wantStrategy: "exact",
		},
		{
			name:         "normalized",
			requested:    "https://www.Example.com/a/",
			verdicts:     map[string]wireVerdict{"http://example.com/a": {FinalVerdict: "safe"}},
			wantStrategy: "normalized",
		},
		{
			name:         "same domain",
			requested:    "https://example.com/landing",
			verdicts:     map[string]wireVerdict{"https://example.com/redirect-target": {FinalVerdict: "safe"}},
			wantStrategy: "same_domain",
		},
		{
			// Same host with query drift resolves at the domain layer
			// before query stripping gets a chance.
			name:         "query drift on same host",
			requested:    "https://tracker.example/page?utm_source=mail",
			verdicts:     map[string]wireVerdict{"https://tracker.example/page?session=9": {FinalVerdict: "malicious"}},
			wantStrategy: "same_domain",
		},
		{
			// Leading-slash relative URLs still yield a pseudo-host ("inbox")
			// under WHATWG parsing, so the domain layer shadows query
			// stripping here too.
			name:         "relative url query drift",
			requested:    "/inbox/link?track=9#frag",
			verdicts:     map[string]wireVerdict{"/inbox/link": {FinalVerdict: "safe"}},
			wantStrategy: "same_domain",
		},
		{
			// Query stripping is only reachable when no host can be derived
			// at all: the space makes the host invalid and the leading
			// slashes defeat the fallback scan.
			name:         "query stripped",
			requested:    "//bad host/inbox?track=9#frag",
			verdicts:     map[string]wireVerdict{"//bad host/inbox": {FinalVerdict: "safe"}},
			wantStrategy: "query_stripped",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, strategy, ok := findVerdict(tt.requested, tt.verdicts)
			require.True(t, ok)
			assert.Equal(t, tt.wantStrategy, strategy)
		})
	}
}

func TestFindVerdictNoMatch(t *testing.T) {
	_, _, ok := findVerdict("https://example.com/a", map[string]wireVerdict{
		"https://unrelated.example/b": {FinalVerdict: "safe"},
	})
	assert.False(t, ok)
}
