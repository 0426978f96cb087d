package nativemsg

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/devscan/linkshield/internal/clickguard"
	"github.com/devscan/linkshield/internal/collector"
	"github.com/devscan/linkshield/internal/connection"
	"github.com/devscan/linkshield/internal/core"
	"github.com/devscan/linkshield/internal/delivery"
	"github.com/devscan/linkshield/internal/navigation"
)

// requestTimeout bounds how long the host waits for an extension ack.
const requestTimeout = 30 * time.Second

// envelope is the wire shape of every frame in either direction. Frames with
// an Action are requests; frames with a ReplyTo answer a prior request.
type envelope struct {
	ID      string          `json:"id,omitempty"`
	Action  string          `json:"action,omitempty"`
	ReplyTo string          `json:"replyTo,omitempty"`
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Engine bundles the pipeline pieces the host dispatches into.
type Engine struct {
	Collector   *collector.Collector
	Interceptor *navigation.Interceptor
	Guard       *clickguard.Guard
	Sessions    core.SessionManager
	Cache       core.VerdictCache
	Connection  *connection.Manager
	Diagnostics *delivery.Diagnostics
}

// Host serves the engine over the native-messaging stdio pair. It is both
// the inbound transport (extension events dispatched into the engine) and
// the outbound one: it implements core.PageMessenger and core.TabController
// so the engine can reach back into the browser.
type Host struct {
	in     io.Reader
	out    io.Writer
	logger *zap.Logger

	engine Engine

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan envelope

	ctx      context.Context
	cancel   context.CancelFunc
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewHost creates a host over the given streams. The engine is attached
// separately because its components need the host as their messenger.
func NewHost(in io.Reader, out io.Writer, logger *zap.Logger) *Host {
	ctx, cancel := context.WithCancel(context.Background())
	return &Host{
		in:      in,
		out:     out,
		logger:  logger,
		pending: make(map[string]chan envelope),
		ctx:     ctx,
		cancel:  cancel,
		doneCh:  make(chan struct{}),
	}
}

// Attach wires the engine components the host dispatches into.
func (h *Host) Attach(engine Engine) {
	h.engine = engine
}

// Start launches the read loop. The loop ends when the extension closes the
// stream; Done reports that.
func (h *Host) Start() error {
	h.logger.Info("native messaging host started")
	go h.readLoop()
	return nil
}

// Done is closed when the extension side closes the stream.
func (h *Host) Done() <-chan struct{} {
	return h.doneCh
}

func (h *Host) readLoop() {
	defer close(h.doneCh)
	for {
		frame, err := ReadFrame(h.in)
		if err == io.EOF {
			h.logger.Info("native messaging stream closed")
			return
		}
		if err != nil {
			h.logger.Error("native messaging read failed", zap.Error(err))
			return
		}

		var env envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			h.logger.Warn("discarding malformed frame", zap.Error(err))
			continue
		}

		if env.ReplyTo != "" {
			h.settle(env)
			continue
		}
		go h.dispatch(env)
	}
}

// Stop cancels in-flight work and wakes pending waiters. The read loop ends
// when the extension closes stdin.
func (h *Host) Stop() error {
	h.stopOnce.Do(h.cancel)
	return nil
}

// settle routes a reply frame to its waiting request.
func (h *Host) settle(env envelope) {
	h.pendingMu.Lock()
	ch, ok := h.pending[env.ReplyTo]
	if ok {
		delete(h.pending, env.ReplyTo)
	}
	h.pendingMu.Unlock()

	if !ok {
		h.logger.Debug("reply for unknown request", zap.String("reply_to", env.ReplyTo))
		return
	}
	ch <- env
}

func (h *Host) dispatch(env envelope) {
	ctx, cancel := context.WithTimeout(h.ctx, requestTimeout)
	defer cancel()

	result, err := h.handle(ctx, env)
	if env.ID == "" {
		if err != nil {
			h.logger.Warn("action failed",
				zap.String("action", env.Action),
				zap.Error(err))
		}
		return
	}

	reply := envelope{ReplyTo: env.ID}
	if err != nil {
		reply.Error = err.Error()
	} else if result != nil {
		body, merr := json.Marshal(result)
		if merr != nil {
			reply.Error = merr.Error()
		} else {
			reply.Payload = body
		}
	}
	if werr := h.write(reply); werr != nil {
		h.logger.Error("failed to write reply", zap.Error(werr))
	}
}

func (h *Host) handle(ctx context.Context, env envelope) (interface{}, error) {
	switch env.Action {
	case "test":
		return map[string]bool{"success": true}, nil

	case "pageLoaded":
		var p struct {
			PageDomain string `json:"pageDomain"`
			TabID      int    `json:"tabId"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid pageLoaded payload: %w", err)
		}
		h.engine.Collector.SetPage(p.PageDomain, p.TabID)
		return map[string]bool{"success": true}, nil

	case "analyzeSingleLink":
		var p struct {
			LinkURL string `json:"linkUrl"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid analyzeSingleLink payload: %w", err)
		}
		// The reply goes out immediately while the analysis runs on. It must
		// outlive this handler's context, so it is bound to the host's.
		h.engine.Collector.Collect(h.ctx, p.LinkURL)
		resp := map[string]interface{}{"accepted": true}
		if verdict, ok := h.engine.Collector.KnownVerdict(p.LinkURL); ok {
			resp["knownVerdict"] = string(verdict)
		}
		return resp, nil

	case "createSession":
		id, err := h.engine.Sessions.Create(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]string{"sessionId": id}, nil

	case "interceptNavigation":
		var p struct {
			URL       string `json:"url"`
			TabID     int    `json:"tabId"`
			Initiator string `json:"initiator"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid interceptNavigation payload: %w", err)
		}
		if !h.engine.Interceptor.ShouldIntercept(p.URL, p.Initiator) {
			return map[string]bool{"intercept": false}, nil
		}
		go func() {
			navCtx, navCancel := context.WithTimeout(h.ctx, requestTimeout)
			defer navCancel()
			if _, err := h.engine.Interceptor.HandleNavigation(navCtx, p.TabID, p.URL, p.Initiator); err != nil {
				h.logger.Warn("navigation handling failed",
					zap.String("url", p.URL),
					zap.Error(err))
			}
		}()
		return map[string]bool{"intercept": true}, nil

	case "retryScan":
		var p struct {
			URL           string `json:"url"`
			TabID         int    `json:"tabId"`
			Initiator     string `json:"initiator"`
			CurrentTabURL string `json:"currentTabUrl"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid retryScan payload: %w", err)
		}
		go func() {
			navCtx, navCancel := context.WithTimeout(h.ctx, requestTimeout)
			defer navCancel()
			if _, err := h.engine.Interceptor.RetryScan(navCtx, p.TabID, p.URL, p.Initiator, p.CurrentTabURL); err != nil {
				h.logger.Warn("scan retry failed",
					zap.String("url", p.URL),
					zap.Error(err))
			}
		}()
		return map[string]bool{"accepted": true}, nil

	case "allowOnce":
		var p struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid allowOnce payload: %w", err)
		}
		h.engine.Interceptor.Bypass().AllowMalicious(p.URL)
		return map[string]bool{"success": true}, nil

	case "allowLinkBypass":
		var p struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid allowLinkBypass payload: %w", err)
		}
		h.engine.Interceptor.Bypass().AllowOnce(p.URL)
		return map[string]bool{"success": true}, nil

	case "openWarningTab":
		var p struct {
			TargetURL string `json:"targetUrl"`
			RiskLevel string `json:"riskLevel"`
			TabID     int    `json:"tabId"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid openWarningTab payload: %w", err)
		}
		tabID, err := h.engine.Interceptor.OpenWarningTab(ctx, p.TabID, p.TargetURL, p.RiskLevel)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"success": true, "tabId": tabID}, nil

	case "temporaryBypass":
		h.engine.Guard.SetTemporaryBypass()
		return map[string]bool{"success": true}, nil

	case "linkClicked":
		var p struct {
			URL   string `json:"url"`
			State string `json:"state"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid linkClicked payload: %w", err)
		}
		decision := h.engine.Guard.OnClick(ctx, p.URL, core.Verdict(p.State))
		return map[string]string{
			"action":    decision.Action.String(),
			"riskLevel": string(decision.RiskLevel),
		}, nil

	case "retryLink":
		var p struct {
			URL   string `json:"url"`
			TabID int    `json:"tabId"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid retryLink payload: %w", err)
		}
		result, err := h.engine.Guard.Retry(ctx, p.URL, p.TabID)
		if err != nil {
			return nil, err
		}
		return map[string]string{"verdict": string(result.Verdict)}, nil

	case "getDiagnostics":
		report := h.engine.Diagnostics.GetReport()
		return map[string]interface{}{
			"delivery":   report,
			"cache":      h.engine.Cache.Stats(ctx),
			"connection": h.engine.Connection.ConnectionInfo(),
		}, nil

	default:
		return nil, fmt.Errorf("unknown action %q", env.Action)
	}
}

// SendVerdict implements core.PageMessenger.
func (h *Host) SendVerdict(ctx context.Context, tabID int, url string, verdict core.Verdict, record *core.VerdictRecord) (*core.PageAck, error) {
	payload := map[string]interface{}{
		"tabId":   tabID,
		"url":     url,
		"verdict": string(verdict),
	}
	if record != nil {
		payload["anomalyRiskLevel"] = record.AnomalyRiskLevel
		payload["confidenceScore"] = record.ConfidenceScore
		payload["sessionId"] = record.SessionID
	}

	var ack core.PageAck
	if err := h.request(ctx, "updateSingleLinkVerdict", payload, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// NotifyScanFailed implements core.PageMessenger. The notice is one-way; the
// scanning page shows its retry affordances without acking.
func (h *Host) NotifyScanFailed(ctx context.Context, tabID int, url, reason string) error {
	return h.write(envelope{
		Action: "scanFailed",
		Payload: mustMarshal(map[string]interface{}{
			"tabId":  tabID,
			"url":    url,
			"reason": reason,
		}),
	})
}

// NavigateTab implements core.TabController.
func (h *Host) NavigateTab(ctx context.Context, tabID int, url string) error {
	return h.request(ctx, "navigateTab", map[string]interface{}{
		"tabId": tabID,
		"url":   url,
	}, nil)
}

// OpenTab implements core.TabController.
func (h *Host) OpenTab(ctx context.Context, openerTabID int, url string) (int, error) {
	var resp struct {
		TabID int `json:"tabId"`
	}
	err := h.request(ctx, "openTab", map[string]interface{}{
		"openerTabId": openerTabID,
		"url":         url,
	}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.TabID, nil
}

// request sends an action to the extension and waits for its reply.
func (h *Host) request(ctx context.Context, action string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", action, err)
	}

	id := uuid.New().String()
	ch := make(chan envelope, 1)
	h.pendingMu.Lock()
	h.pending[id] = ch
	h.pendingMu.Unlock()
	defer func() {
		h.pendingMu.Lock()
		delete(h.pending, id)
		h.pendingMu.Unlock()
	}()

	if err := h.write(envelope{ID: id, Action: action, Payload: body}); err != nil {
		return err
	}

	select {
	case reply := <-ch:
		if reply.Error != "" {
			return fmt.Errorf("%s rejected by extension: %s", action, reply.Error)
		}
		if out != nil && len(reply.Payload) > 0 {
			if err := json.Unmarshal(reply.Payload, out); err != nil {
				return fmt.Errorf("failed to decode %s reply: %w", action, err)
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return h.ctx.Err()
	}
}

func (h *Host) write(env envelope) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return WriteFrame(h.out, env)
}

func mustMarshal(v interface{}) json.RawMessage {
	body, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return body
}
