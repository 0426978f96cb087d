package delivery

import (
	"sync"
	"time"
)

const maxRetainedErrors = 50

// DeliveryError is one retained delivery failure.
type DeliveryError struct {
	URL       string
	TabID     int
	Error     string
	Timestamp time.Time
}

// Report is a snapshot of delivery and cache diagnostics.
type Report struct {
	Sent                int64
	Delivered           int64
	Failed              int64
	Retries             int64
	CacheHits           int64
	CacheMisses         int64
	SuccessRate         float64
	CacheHitRate        float64
	AverageDeliveryTime time.Duration
	RecentErrors        []DeliveryError
}

// Diagnostics tracks verdict delivery health: counters, a rolling average
// latency and the most recent errors. It also implements
// core.CacheEventRecorder.
type Diagnostics struct {
	mu          sync.Mutex
	sent        int64
	delivered   int64
	failed      int64
	retries     int64
	cacheHits   int64
	cacheMisses int64
	avgLatency  time.Duration
	errors      []DeliveryError
}

// NewDiagnostics creates an empty diagnostics sink.
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{}
}

func (d *Diagnostics) recordSent() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent++
}

func (d *Diagnostics) recordRetry() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.retries++
}

func (d *Diagnostics) recordDelivered(latency time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delivered++
	// Running average over all deliveries so far.
	d.avgLatency = time.Duration(
		(int64(d.avgLatency)*(d.delivered-1) + int64(latency)) / d.delivered,
	)
}

func (d *Diagnostics) recordFailed(url string, tabID int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failed++
	d.errors = append(d.errors, DeliveryError{
		URL:       url,
		TabID:     tabID,
		Error:     err.Error(),
		Timestamp: time.Now(),
	})
	if len(d.errors) > maxRetainedErrors {
		d.errors = d.errors[len(d.errors)-maxRetainedErrors:]
	}
}

// RecordCacheEvent counts a verdict cache hit or miss.
func (d *Diagnostics) RecordCacheEvent(hit bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if hit {
		d.cacheHits++
	} else {
		d.cacheMisses++
	}
}

// GetReport returns a snapshot of the current diagnostics.
func (d *Diagnostics) GetReport() Report {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := Report{
		Sent:                d.sent,
		Delivered:           d.delivered,
		Failed:              d.failed,
		Retries:             d.retries,
		CacheHits:           d.cacheHits,
		CacheMisses:         d.cacheMisses,
		AverageDeliveryTime: d.avgLatency,
		RecentErrors:        append([]DeliveryError(nil), d.errors...),
	}
	if d.sent > 0 {
		r.SuccessRate = float64(d.delivered) / float64(d.sent) * 100
	}
	if lookups := d.cacheHits + d.cacheMisses; lookups > 0 {
		r.CacheHitRate = float64(d.cacheHits) / float64(lookups) * 100
	}
	return r
}
