package core

import "errors"

// Sentinel errors for the analysis path. Everywhere a navigation or click
// decision consumes one of these, it collapses to VerdictScanFailed; the
// detailed error is kept for logs only.
var (
	// ErrNoServerFound means no candidate scanner endpoint responded.
	ErrNoServerFound = errors.New("scanner server not found on any candidate endpoint")
	// ErrMalformedResponse means the scanner replied without a success flag
	// or verdict map.
	ErrMalformedResponse = errors.New("malformed scanner response")
	// ErrNoVerdictMatch means the requested URL was not present in the
	// response verdict map under any matching strategy.
	ErrNoVerdictMatch = errors.New("no verdict found for url in scanner response")
	// ErrCacheMiss is returned by verdict caches when no valid entry exists.
	ErrCacheMiss = errors.New("verdict cache miss")
	// ErrDeliveryFailed means a verdict message was not acknowledged after
	// exhausting retries.
	ErrDeliveryFailed = errors.New("verdict delivery not acknowledged")
)
