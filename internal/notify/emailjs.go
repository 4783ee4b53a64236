package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"cutiecart/internal/transport"
)

// DefaultEndpoint is the EmailJS REST send URL.
const DefaultEndpoint = "https://api.emailjs.com/api/v1.0/email/send"

// EmailJSOptions tunes the EmailJS gateway. Zero values select defaults.
type EmailJSOptions struct {
	// BrowserTLS sends with a Chrome TLS fingerprint and user agent.
	BrowserTLS bool

	// Origin is the storefront page the send claims to come from.
	Origin string

	// DryRunDelay is how long a simulated send takes.
	DryRunDelay time.Duration

	// SendTimeout bounds one provider request.
	SendTimeout time.Duration

	// RateLimit is the sustained sends per second; Burst the bucket size.
	RateLimit rate.Limit
	Burst     int
}

const (
	defaultDryRunDelay = 900 * time.Millisecond
	defaultSendTimeout = 10 * time.Second
	defaultRateLimit   = rate.Limit(1)
	defaultBurst       = 3
)

// EmailJS sends order notices through the EmailJS REST API.
type EmailJS struct {
	cfg    Config
	opts   EmailJSOptions
	logger *slog.Logger

	mu     sync.Mutex
	handle *emailjsHandle

	// sleep waits for d or until ctx is done; replaced in tests.
	sleep func(ctx context.Context, d time.Duration)
}

// emailjsHandle is the initialised provider client, created on first real send.
type emailjsHandle struct {
	client   *http.Client
	endpoint string
	limiter  *rate.Limiter
}

// NewEmailJS creates the gateway. Nothing is contacted until the first send.
func NewEmailJS(cfg Config, opts EmailJSOptions, logger *slog.Logger) *EmailJS {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DryRunDelay < 0 {
		opts.DryRunDelay = 0
	} else if opts.DryRunDelay == 0 {
		opts.DryRunDelay = defaultDryRunDelay
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultRateLimit
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultBurst
	}
	return &EmailJS{
		cfg:    cfg,
		opts:   opts,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Send delivers the notice. The decision order is dry-run, then configuration
// completeness, then the provider call.
func (e *EmailJS) Send(ctx context.Context, n *Notice, opts SendOptions) Result {
	params := n.TemplateParams(e.cfg.NotifyAddress)

	if opts.DryRun {
		e.logger.InfoContext(ctx, "order notification dry run",
			slog.String("order_id", n.OrderID),
			slog.Any("params", params),
		)
		e.sleep(ctx, e.opts.DryRunDelay)
		return Result{Status: StatusDryRun}
	}

	if missing := e.cfg.Missing(); len(missing) > 0 {
		reason := "missing " + strings.Join(missing, ", ")
		e.logger.WarnContext(ctx, "order notification skipped",
			slog.String("order_id", n.OrderID),
			slog.String("reason", reason),
		)
		return Result{Status: StatusSkipped, Reason: reason}
	}

	h, err := e.acquire()
	if err != nil {
		return e.failed(ctx, n, "client init", err)
	}

	if err := h.limiter.Wait(ctx); err != nil {
		return e.failed(ctx, n, "rate limit", err)
	}

	if err := e.post(ctx, h, params); err != nil {
		return e.failed(ctx, n, "send", err)
	}

	e.logger.InfoContext(ctx, "order notification sent", slog.String("order_id", n.OrderID))
	return Result{Status: StatusSent}
}

func (e *EmailJS) failed(ctx context.Context, n *Notice, stage string, err error) Result {
	e.logger.WarnContext(ctx, "order notification failed",
		slog.String("order_id", n.OrderID),
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
	return Result{Status: StatusFailed, Reason: stage, Err: err}
}

// acquire returns the cached handle, creating it on first use. A failed
// initialisation is not cached so the next send retries. Creating the handle
// does no I/O; SendTimeout bounds the provider request itself.
func (e *EmailJS) acquire() (*emailjsHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle != nil {
		return e.handle, nil
	}

	h, err := e.newHandle()
	if err != nil {
		return nil, err
	}
	e.handle = h
	return h, nil
}

func (e *EmailJS) newHandle() (*emailjsHandle, error) {
	endpoint := e.cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("endpoint must be an absolute http(s) URL: %q", endpoint)
	}

	client := transport.NewClient(transport.Options{
		Timeout:    e.opts.SendTimeout,
		BrowserTLS: e.opts.BrowserTLS,
		Origin:     e.opts.Origin,
	})
	return &emailjsHandle{
		client:   client,
		endpoint: u.String(),
		limiter:  rate.NewLimiter(e.opts.RateLimit, e.opts.Burst),
	}, nil
}

type sendRequest struct {
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	AccessToken    string            `json:"accessToken,omitempty"`
	TemplateParams map[string]string `json:"template_params"`
}

func (e *EmailJS) post(ctx context.Context, h *emailjsHandle, params map[string]string) error {
	body, err := json.Marshal(sendRequest{
		ServiceID:      e.cfg.ServiceID,
		TemplateID:     e.cfg.TemplateID,
		UserID:         e.cfg.PublicKey,
		AccessToken:    e.cfg.PrivateKey,
		TemplateParams: params,
	})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.SendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Verify EmailJS implements Gateway interface at compile time.
var _ Gateway = (*EmailJS)(nil)
