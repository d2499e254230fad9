// Package discord implements the Discord delivery channel via webhooks.
// Each tenant maps to one webhook; a separate announcement webhook
// receives cross-tenant messages.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/rotorcup/rotorcup-hub/internal/domain/notification"
	"github.com/rotorcup/rotorcup-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the Discord messenger.
type Config struct {
	// Webhooks maps tenant IDs to their channel webhook URLs.
	Webhooks map[string]string

	// AnnounceWebhook is the webhook for cross-tenant announcements.
	// Empty means SendToAll falls back to every tenant webhook.
	AnnounceWebhook string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// MESSENGER
// ══════════════════════════════════════════════════════════════════════════════

// Messenger delivers notifications to Discord channels.
type Messenger struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
	retrier    *retry.Retrier
}

var _ notification.Messenger = (*Messenger)(nil)

// NewMessenger creates a Discord messenger.
func NewMessenger(config Config) *Messenger {
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Messenger{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     config.Logger,
		retrier:    retry.MessengerRetrier(),
	}
}

// Channel identifies this messenger's channel.
func (m *Messenger) Channel() notification.ChannelType {
	return notification.ChannelTypeDiscord
}

// SendToTenant delivers text to one tenant's channel.
func (m *Messenger) SendToTenant(ctx context.Context, tenantID string, text string) error {
	webhook, ok := m.config.Webhooks[tenantID]
	if !ok {
		return fmt.Errorf("%w: %s", notification.ErrUnknownTenant, tenantID)
	}
	return m.post(ctx, webhook, text)
}

// SendToTenants delivers text to several tenants' channels. The first
// failure is returned after all tenants were attempted.
func (m *Messenger) SendToTenants(ctx context.Context, tenantIDs []string, text string) error {
	var firstErr error
	for _, tenantID := range tenantIDs {
		if err := m.SendToTenant(ctx, tenantID, text); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SendToAll delivers text to the announcement channel, or to every
// tenant channel when none is configured.
func (m *Messenger) SendToAll(ctx context.Context, text string) error {
	if m.config.AnnounceWebhook != "" {
		return m.post(ctx, m.config.AnnounceWebhook, text)
	}

	seen := make(map[string]struct{}, len(m.config.Webhooks))
	var firstErr error
	for _, webhook := range m.config.Webhooks {
		// Several tenants may share one webhook.
		if _, dup := seen[webhook]; dup {
			continue
		}
		seen[webhook] = struct{}{}
		if err := m.post(ctx, webhook, text); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// webhookPayload is the minimal webhook execute body.
type webhookPayload struct {
	Content string `json:"content"`
}

func (m *Messenger) post(ctx context.Context, webhook string, text string) error {
	body, err := json.Marshal(webhookPayload{Content: text})
	if err != nil {
		return fmt.Errorf("%w: %v", notification.ErrSendFailed, err)
	}

	return m.retrier.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := m.httpClient.Do(req)
		if err != nil {
			return retry.Retryable(fmt.Errorf("%w: %v", notification.ErrSendFailed, err))
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			m.waitRetryAfter(ctx, resp)
			return retry.Retryable(fmt.Errorf("%w: rate limited", notification.ErrSendFailed))
		case resp.StatusCode >= 500:
			return retry.Retryable(fmt.Errorf("%w: status %d", notification.ErrSendFailed, resp.StatusCode))
		default:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return retry.Permanent(fmt.Errorf("%w: status %d: %s", notification.ErrSendFailed, resp.StatusCode, msg))
		}
	})
}

// waitRetryAfter honors Discord's Retry-After header before the retrier
// schedules the next attempt.
func (m *Messenger) waitRetryAfter(ctx context.Context, resp *http.Response) {
	seconds, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64)
	if err != nil || seconds <= 0 {
		return
	}

	wait := time.Duration(seconds * float64(time.Second))
	m.logger.Warn("discord rate limited", "retry_after", wait)

	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}
