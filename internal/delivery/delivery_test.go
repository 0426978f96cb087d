package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devscan/linkshield/internal/core"
)

type scriptedMessenger struct {
	acks  []*core.PageAck
	errs  []error
	calls int
}

func (m *scriptedMessenger) SendVerdict(ctx context.Context, tabID int, url string, verdict core.Verdict, record *core.VerdictRecord) (*core.PageAck, error) {
	i := m.calls
	m.calls++
	if i >= len(m.acks) {
		i = len(m.acks) - 1
	}
	return m.acks[i], m.errs[i]
}

func (m *scriptedMessenger) NotifyScanFailed(ctx context.Context, tabID int, url, reason string) error {
	return nil
}

func TestDeliverFirstAttemptSuccess(t *testing.T) {
	m := &scriptedMessenger{
		acks: []*core.PageAck{{Success: true}},
		errs: []error{nil},
	}
	diag := NewDiagnostics()
	d := NewDeliverer(m, diag, zap.NewNop())

	err := d.Deliver(context.Background(), 1, "https://example.com", core.VerdictSafe, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, m.calls)

	report := diag.GetReport()
	assert.Equal(t, int64(1), report.Sent)
	assert.Equal(t, int64(1), report.Delivered)
	assert.Equal(t, int64(0), report.Retries)
}

func TestDeliverTargetGoneIsHandled(t *testing.T) {
	// The page navigated away; the ack names the missing element. That is a
	// terminal success, not a retryable failure.
	m := &scriptedMessenger{
		acks: []*core.PageAck{{Success: false, Message: "Failed to update tooltip"}},
		errs: []error{nil},
	}
	d := NewDeliverer(m, NewDiagnostics(), zap.NewNop())

	err := d.Deliver(context.Background(), 1, "https://example.com", core.VerdictSafe, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, m.calls)
}

func TestDeliverRetriesThenSucceeds(t *testing.T) {
	m := &scriptedMessenger{
		acks: []*core.PageAck{nil, {Success: true}},
		errs: []error{errors.New("port closed"), nil},
	}
	diag := NewDiagnostics()
	d := NewDeliverer(m, diag, zap.NewNop())

	err := d.Deliver(context.Background(), 1, "https://example.com", core.VerdictMalicious, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, m.calls)
	assert.Equal(t, int64(1), diag.GetReport().Retries)
}

func TestDeliverCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := &scriptedMessenger{
		acks: []*core.PageAck{nil},
		errs: []error{errors.New("port closed")},
	}
	diag := NewDiagnostics()
	d := NewDeliverer(m, diag, zap.NewNop())

	start := time.Now()
	err := d.Deliver(ctx, 1, "https://example.com", core.VerdictSafe, nil)
	assert.ErrorIs(t, err, core.ErrDeliveryFailed)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int64(1), diag.GetReport().Failed)
}

func TestDeliverUnackedRetries(t *testing.T) {
	m := &scriptedMessenger{
		acks: []*core.PageAck{{Success: false, Message: "busy"}, {Success: true}},
		errs: []error{nil, nil},
	}
	d := NewDeliverer(m, NewDiagnostics(), zap.NewNop())

	err := d.Deliver(context.Background(), 1, "https://example.com", core.VerdictSafe, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, m.calls)
}
