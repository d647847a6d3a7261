// Package webhook posts trigger records to a signed HTTP sink.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/env"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/log"
)

var ErrInvalidURL = errors.New("invalid webhook url")

const userAgent = "WhatsApp-Workflow-Adapter/1.0"

// Deliverer sends one event at a time. Deliver blocks through the retries so
// a trigger's records reach the sink in the order they were emitted.
type Deliverer struct {
	HTTPClient   *http.Client
	RetryLimit   int
	AllowPrivate bool
	// Backoff is the wait before retry n (1-based).
	Backoff func(attempt int) time.Duration
}

func NewDeliverer() *Deliverer {
	retryLimit := env.GetEnvIntOrDefault("WEBHOOK_RETRY_LIMIT", 3)
	if retryLimit <= 0 {
		retryLimit = 3
	}
	return &Deliverer{
		HTTPClient:   &http.Client{Timeout: 10 * time.Second},
		RetryLimit:   retryLimit,
		AllowPrivate: env.GetEnvBoolOrDefault("WEBHOOK_ALLOW_PRIVATE", false),
		Backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*2) * time.Second
		},
	}
}

func (d *Deliverer) Deliver(ctx context.Context, cfg Config, evt Event) error {
	if err := d.ValidateURL(cfg.URL); err != nil {
		return err
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal webhook event: %w", err)
	}
	signature := Sign(payload, cfg.Secret)

	retryLimit := d.RetryLimit
	if retryLimit <= 0 {
		retryLimit = 1
	}

	var lastErr error
	for attempt := 1; attempt <= retryLimit; attempt++ {
		lastErr = d.post(ctx, cfg.URL, payload, signature, evt.EventType)
		if lastErr == nil {
			log.Trigger(evt.TriggerID).WithFields(logrus.Fields{
				"event_type": evt.EventType,
				"sequence":   evt.Sequence,
				"attempt":    attempt,
			}).Debug("Webhook delivered")
			return nil
		}
		if attempt == retryLimit {
			break
		}
		if err := d.wait(ctx, attempt); err != nil {
			return err
		}
	}
	return fmt.Errorf("webhook delivery failed after %d attempts: %w", retryLimit, lastErr)
}

func (d *Deliverer) post(ctx context.Context, target string, payload []byte, signature string, eventType EventType) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("X-Hub-Signature-256", signature)
	req.Header.Set("X-Webhook-Event", string(eventType))
	req.Header.Set("User-Agent", userAgent)

	client := d.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func (d *Deliverer) wait(ctx context.Context, attempt int) error {
	if d.Backoff == nil {
		return ctx.Err()
	}
	t := time.NewTimer(d.Backoff(attempt))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sign returns the sha256 HMAC of payload in the "sha256=<hex>" form.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// ValidateURL only lets https sinks on public addresses through unless
// AllowPrivate is set.
func (d *Deliverer) ValidateURL(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if d.AllowPrivate {
		if u.Scheme != "https" && u.Scheme != "http" {
			return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
		}
		return nil
	}
	if u.Scheme != "https" {
		return fmt.Errorf("%w: only HTTPS URLs are allowed", ErrInvalidURL)
	}

	host := strings.ToLower(u.Hostname())
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("%w: private/local network URLs are not allowed", ErrInvalidURL)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() {
			return fmt.Errorf("%w: private/local network URLs are not allowed", ErrInvalidURL)
		}
	}
	return nil
}
