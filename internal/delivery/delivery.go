// Package delivery pushes resolved verdicts from the engine to page
// contexts with acknowledgment and exponential-backoff retry.
package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/devscan/linkshield/internal/core"
)

const (
	maxRetries       = 3
	baseRetryDelay   = time.Second
	slowDeliveryMark = time.Second
)

// Deliverer implements core.VerdictDeliverer over a raw page messenger.
type Deliverer struct {
	messenger core.PageMessenger
	diag      *Diagnostics
	logger    *zap.Logger
}

// NewDeliverer creates a deliverer that reports to the given diagnostics.
func NewDeliverer(messenger core.PageMessenger, diag *Diagnostics, logger *zap.Logger) *Deliverer {
	return &Deliverer{
		messenger: messenger,
		diag:      diag,
		logger:    logger,
	}
}

// Deliver sends a verdict message and waits for the page ack, retrying with
// exponential backoff on transport failure or a missing ack. An ack saying
// the target element is no longer in the DOM counts as handled delivery: the
// verdict was computed correctly, the page just navigated away. Exhausted
// retries surface core.ErrDeliveryFailed after being recorded.
func (d *Deliverer) Deliver(ctx context.Context, tabID int, url string, verdict core.Verdict, record *core.VerdictRecord) error {
	d.diag.recordSent()
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			d.diag.recordRetry()
			delay := baseRetryDelay << (attempt - 1)
			d.logger.Debug("retrying verdict delivery",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				lastErr = ctx.Err()
				d.diag.recordFailed(url, tabID, lastErr)
				return fmt.Errorf("%w: %v", core.ErrDeliveryFailed, lastErr)
			}
		}

		ack, err := d.messenger.SendVerdict(ctx, tabID, url, verdict, record)
		if err != nil {
			lastErr = err
			continue
		}

		if ack.Success || targetGone(ack) {
			latency := time.Since(start)
			d.diag.recordDelivered(latency)
			if latency > slowDeliveryMark {
				d.logger.Warn("slow verdict delivery",
					zap.String("url", url),
					zap.Duration("latency", latency))
			}
			return nil
		}

		lastErr = fmt.Errorf("message not acknowledged: %s", ack.Message)
	}

	d.diag.recordFailed(url, tabID, lastErr)
	d.logger.Error("verdict delivery exhausted retries",
		zap.String("url", url),
		zap.Int("tab_id", tabID),
		zap.Error(lastErr))
	return fmt.Errorf("%w: %v", core.ErrDeliveryFailed, lastErr)
}

// targetGone recognizes the page's "nothing left to update" ack, which is a
// successful terminal state rather than a failure.
func targetGone(ack *core.PageAck) bool {
	return strings.Contains(strings.ToLower(ack.Message), "failed to update tooltip") ||
		strings.Contains(strings.ToLower(ack.Message), "no matching element")
}
