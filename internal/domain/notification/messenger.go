// Package notification contains the notification domain: the channel
// messenger capability implemented per external channel, delivery results,
// and the read-only message pools used to compose announcements.
package notification

import (
	"context"
	"errors"
	"time"
)

// ChannelType identifies an external delivery channel.
type ChannelType string

const (
	// ChannelTypeDiscord - delivery via Discord webhooks/bot.
	ChannelTypeDiscord ChannelType = "discord"

	// ChannelTypeTelegram - delivery via Telegram Bot API.
	ChannelTypeTelegram ChannelType = "telegram"
)

// IsValid checks if the channel type is known.
func (ct ChannelType) IsValid() bool {
	switch ct {
	case ChannelTypeDiscord, ChannelTypeTelegram:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (ct ChannelType) String() string {
	return string(ct)
}

// SupportsMarkdown reports whether the channel renders markdown. The
// fan-out composes a markdown variant for such channels and a plain-text
// variant otherwise - same data, different composition.
func (ct ChannelType) SupportsMarkdown() bool {
	return ct == ChannelTypeDiscord
}

// Messenger is the capability one external channel exposes. Treated as
// unreliable I/O: sends fail, rate-limit, and time out. Implementations
// must be safe for concurrent use from multiple fan-out invocations.
type Messenger interface {
	// Channel identifies the channel this messenger delivers to.
	Channel() ChannelType

	// SendToTenant delivers text to one tenant's audience.
	SendToTenant(ctx context.Context, tenantID string, text string) error

	// SendToTenants delivers text to several tenants' audiences.
	SendToTenants(ctx context.Context, tenantIDs []string, text string) error

	// SendToAll delivers text to every configured audience.
	SendToAll(ctx context.Context, text string) error
}

// Messenger errors.
var (
	// ErrUnknownTenant - the channel has no audience mapping for a tenant.
	ErrUnknownTenant = errors.New("notification: unknown tenant")

	// ErrSendFailed - the channel rejected or dropped the message.
	ErrSendFailed = errors.New("notification: send failed")
)

// DeliveryResult records the outcome of one send attempt, for logging
// and counters. Notifications are best-effort summaries; a failure is
// never escalated to abort the remaining queue.
type DeliveryResult struct {
	Channel     ChannelType
	TenantID    string
	Success     bool
	Error       error
	DeliveredAt time.Time
}

// NewSuccessResult creates a successful delivery result.
func NewSuccessResult(channel ChannelType, tenantID string) DeliveryResult {
	return DeliveryResult{
		Channel:     channel,
		TenantID:    tenantID,
		Success:     true,
		DeliveredAt: time.Now().UTC(),
	}
}

// NewFailureResult creates a failed delivery result.
func NewFailureResult(channel ChannelType, tenantID string, err error) DeliveryResult {
	return DeliveryResult{
		Channel:     channel,
		TenantID:    tenantID,
		Success:     false,
		Error:       err,
		DeliveredAt: time.Now().UTC(),
	}
}
