// Package hooks delivers account lifecycle events to an external HTTP
// subscriber.
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dmitrijs2005/okaeri/internal/logging"
	"github.com/dmitrijs2005/okaeri/internal/server/models"
	"github.com/doyensec/safeurl"
)

const (
	// EventHeader names the event carried by a webhook request.
	EventHeader = "X-Okaeri-Event"
	// EventNewAccount is sent after an account has been created.
	EventNewAccount = "new-account"

	DefaultTimeout = 5 * time.Second
)

// WebhookNotifier posts every created account to a fixed URL. Delivery runs
// in the background and never affects the outcome of the create.
type WebhookNotifier struct {
	url           string
	loginKeyField string
	timeout       time.Duration
	client        *http.Client
	log           logging.Logger
	wg            sync.WaitGroup
}

// Options configure a WebhookNotifier.
type Options struct {
	URL           string
	LoginKeyField string
	Timeout       time.Duration
	// AllowPrivate lets the webhook reach loopback and private networks.
	// Without it requests go through an SSRF-guarded client.
	AllowPrivate bool
}

func NewWebhookNotifier(opts Options, log logging.Logger) (*WebhookNotifier, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("webhook url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("webhook url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("webhook url: empty host")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.LoginKeyField == "" {
		opts.LoginKeyField = "name"
	}
	return &WebhookNotifier{
		url:           opts.URL,
		loginKeyField: opts.LoginKeyField,
		timeout:       opts.Timeout,
		client:        newClient(opts.Timeout, opts.AllowPrivate),
		log:           log.With("module", "webhook"),
	}, nil
}

func newClient(timeout time.Duration, allowPrivate bool) *http.Client {
	if allowPrivate {
		return &http.Client{Timeout: timeout}
	}
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(config).Client
}

// AccountCreated schedules delivery of a. The request outlives ctx.
func (n *WebhookNotifier) AccountCreated(ctx context.Context, a models.Account) {
	ctx = context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()
		if err := n.post(ctx, EventNewAccount, a.Document(n.loginKeyField)); err != nil {
			n.log.Error(ctx, "webhook delivery failed", "event", EventNewAccount, "account_id", a.ID.String(), "error", err)
			return
		}
		n.log.Debug(ctx, "webhook delivered", "event", EventNewAccount, "account_id", a.ID.String())
	}()
}

// Wait blocks until every scheduled delivery has finished.
func (n *WebhookNotifier) Wait() {
	n.wg.Wait()
}

func (n *WebhookNotifier) post(ctx context.Context, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, event)

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
