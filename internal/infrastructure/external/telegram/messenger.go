// Package telegram implements the Telegram delivery channel on top of
// the Bot API. Each tenant maps to one chat; a separate announcement
// chat receives cross-tenant messages. Messages are sent as plain text -
// the fan-out composes the plain variant for this channel.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/rotorcup/rotorcup-hub/internal/domain/notification"
	"github.com/rotorcup/rotorcup-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the Telegram messenger.
type Config struct {
	// Token is the Telegram Bot API token.
	Token string

	// BaseURL is the Bot API base URL (default: https://api.telegram.org).
	BaseURL string

	// ChatIDs maps tenant IDs to their group chat IDs.
	ChatIDs map[string]int64

	// AnnounceChatID is the chat for cross-tenant announcements.
	// Zero means SendToAll falls back to every tenant chat.
	AnnounceChatID int64

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// MESSENGER
// ══════════════════════════════════════════════════════════════════════════════

// Messenger delivers notifications to Telegram chats.
type Messenger struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
	retrier    *retry.Retrier
}

var _ notification.Messenger = (*Messenger)(nil)

// NewMessenger creates a Telegram messenger.
func NewMessenger(config Config) *Messenger {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.telegram.org"
	}
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
	return notification.ChannelTypeTelegram
}

// SendToTenant delivers text to one tenant's chat.
func (m *Messenger) SendToTenant(ctx context.Context, tenantID string, text string) error {
	chatID, ok := m.config.ChatIDs[tenantID]
	if !ok {
		return fmt.Errorf("%w: %s", notification.ErrUnknownTenant, tenantID)
	}
	return m.sendMessage(ctx, chatID, text)
}

// SendToTenants delivers text to several tenants' chats. The first
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

// SendToAll delivers text to the announcement chat, or to every tenant
// chat when none is configured.
func (m *Messenger) SendToAll(ctx context.Context, text string) error {
	if m.config.AnnounceChatID != 0 {
		return m.sendMessage(ctx, m.config.AnnounceChatID, text)
	}

	seen := make(map[int64]struct{}, len(m.config.ChatIDs))
	var firstErr error
	for _, chatID := range m.config.ChatIDs {
		// Several tenants may share one chat.
		if _, dup := seen[chatID]; dup {
			continue
		}
		seen[chatID] = struct{}{}
		if err := m.sendMessage(ctx, chatID, text); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT API
// ══════════════════════════════════════════════════════════════════════════════

// sendMessageRequest is the sendMessage method body.
type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// apiResponse is the Bot API response envelope.
type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

func (m *Messenger) sendMessage(ctx context.Context, chatID int64, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", notification.ErrSendFailed, err)
	}

	fullURL := fmt.Sprintf("%s/bot%s/sendMessage", m.config.BaseURL, m.config.Token)

	return m.retrier.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := m.httpClient.Do(req)
		if err != nil {
			return retry.Retryable(fmt.Errorf("%w: %v", notification.ErrSendFailed, err))
		}
		defer resp.Body.Close()

		var apiResp apiResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiResp); err != nil {
			return retry.Retryable(fmt.Errorf("%w: failed to decode response: %v", notification.ErrSendFailed, err))
		}

		if apiResp.OK {
			return nil
		}

		switch {
		case apiResp.ErrorCode == http.StatusTooManyRequests:
			m.waitRetryAfter(ctx, apiResp)
			return retry.Retryable(fmt.Errorf("%w: rate limited", notification.ErrSendFailed))
		case apiResp.ErrorCode >= 500:
			return retry.Retryable(fmt.Errorf("%w: %s", notification.ErrSendFailed, apiResp.Description))
		default:
			return retry.Permanent(fmt.Errorf("%w: %s", notification.ErrSendFailed, apiResp.Description))
		}
	})
}

// waitRetryAfter honors the Bot API retry_after parameter before the
// retrier schedules the next attempt.
func (m *Messenger) waitRetryAfter(ctx context.Context, resp apiResponse) {
	if resp.Parameters == nil || resp.Parameters.RetryAfter <= 0 {
		return
	}

	wait := time.Duration(resp.Parameters.RetryAfter) * time.Second
	m.logger.Warn("telegram rate limited", "retry_after", wait)

	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}
