package backend

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/devscan/linkshield/internal/core"
	"github.com/devscan/linkshield/internal/urlid"
)

// wireVerdict is the scanner's duck-typed per-URL verdict. Newer servers
// send an object; legacy servers send a bare verdict string. Both decode
// into the same shape and are normalized before leaving this package.
type wireVerdict struct {
	FinalVerdict     string     `json:"final_verdict"`
	ConfidenceScore  flexString `json:"confidence_score"`
	AnomalyRiskLevel string     `json:"anomaly_risk_level"`
	Explanation      string     `json:"explanation"`
	Tip              string     `json:"tip"`
}

// UnmarshalJSON accepts either the object form or a legacy bare string.
func (v *wireVerdict) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v.FinalVerdict = s
		return nil
	}

	type objectVerdict wireVerdict
	var obj objectVerdict
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*v = wireVerdict(obj)
	return nil
}

// flexString decodes a JSON string, number or null into a string. The
// scanner is inconsistent about confidence_score's type.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// toOutcome maps the wire verdict to the closed verdict enum. The substring
// classification is intentionally permissive and order-sensitive: the
// malicious check precedes safe, which precedes anomalous; anything
// unrecognized fails closed.
func (v wireVerdict) toOutcome() *core.ScanOutcome {
	return &core.ScanOutcome{
		Verdict:          classifyVerdict(v.FinalVerdict, v.AnomalyRiskLevel),
		AnomalyRiskLevel: v.AnomalyRiskLevel,
		ConfidenceScore:  string(v.ConfidenceScore),
		Explanation:      v.Explanation,
		Tip:              v.Tip,
	}
}

func classifyVerdict(finalVerdict, anomalyRiskLevel string) core.Verdict {
	fv := strings.ToLower(finalVerdict)

	if containsAny(fv, "malicious", "dangerous", "phishing") {
		return core.VerdictMalicious
	}
	if containsAny(fv, "safe", "whitelisted", "trusted") {
		return core.VerdictSafe
	}
	if containsAny(fv, "anomalous", "suspicious") ||
		strings.Contains(strings.ToLower(anomalyRiskLevel), "high") {
		return core.VerdictAnomalous
	}
	return core.VerdictScanFailed
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// matchStrategy is one way of locating the requested URL's verdict in the
// response map. The backend sometimes keys verdicts under a slightly
// different form of the URL than the one requested (redirects, encoding,
// query drift), so matching is layered.
type matchStrategy struct {
	name  string
	match func(requested string, verdicts map[string]wireVerdict) (wireVerdict, bool)
}

var matchStrategies = []matchStrategy{
	{"exact", func(u string, verdicts map[string]wireVerdict) (wireVerdict, bool) {
		v, ok := verdicts[u]
		return v, ok
	}},
	{"normalized", func(u string, verdicts map[string]wireVerdict) (wireVerdict, bool) {
		want := urlid.CacheKey(u)
		for key, v := range verdicts {
			if urlid.CacheKey(key) == want {
				return v, true
			}
		}
		return wireVerdict{}, false
	}},
	{"same_domain", func(u string, verdicts map[string]wireVerdict) (wireVerdict, bool) {
		domain := urlid.ExtractDomain(u)
		if domain == "" {
			return wireVerdict{}, false
		}
		for key, v := range verdicts {
			if urlid.ExtractDomain(key) == domain {
				return v, true
			}
		}
		return wireVerdict{}, false
	}},
	{"decoded", func(u string, verdicts map[string]wireVerdict) (wireVerdict, bool) {
		decoded, err := url.PathUnescape(u)
		if err != nil {
			return wireVerdict{}, false
		}
		v, ok := verdicts[decoded]
		return v, ok
	}},
	{"query_stripped", func(u string, verdicts map[string]wireVerdict) (wireVerdict, bool) {
		want := stripQuery(u)
		if v, ok := verdicts[want]; ok {
			return v, true
		}
		for key, v := range verdicts {
			if stripQuery(key) == want {
				return v, true
			}
		}
		return wireVerdict{}, false
	}},
}

// findVerdict tries each strategy in order and returns the first match along
// with the strategy name.
func findVerdict(requested string, verdicts map[string]wireVerdict) (wireVerdict, string, bool) {
	for _, s := range matchStrategies {
		if v, ok := s.match(requested, verdicts); ok {
			return v, s.name, true
		}
	}
	return wireVerdict{}, "", false
}

func stripQuery(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	if i := strings.IndexByte(u, '#'); i >= 0 {
		u = u[:i]
	}
	return u
}
