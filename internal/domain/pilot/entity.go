// Package pilot contains the pilot domain model: the racers participating
// in cup competitions and the supporter-tier events granted to them.
package pilot

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
)

// Pilot is a registered racer. Pilots are keyed externally by their
// leaderboard handle; new handles appearing mid-competition may not be
// registered yet.
type Pilot struct {
	ID     shared.PilotID
	Handle string

	// Channel identities. Zero values mean "not linked".
	DiscordID      string
	TelegramChatID int64

	RegisteredAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// New creates a new pilot with a generated ID.
func New(handle string, now time.Time) (*Pilot, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, shared.NewDomainError("pilot", "New", shared.ErrEmptyValue, "handle is required")
	}

	now = now.UTC()
	return &Pilot{
		ID:           shared.PilotID(uuid.NewString()),
		Handle:       handle,
		RegisteredAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Repository defines persistence operations for pilots.
type Repository interface {
	// Create persists a new pilot.
	Create(ctx context.Context, p *Pilot) error

	// GetByID returns a pilot by ID.
	// Returns shared.ErrNotFound if it does not exist.
	GetByID(ctx context.Context, id shared.PilotID) (*Pilot, error)

	// GetByHandle returns a pilot by leaderboard handle.
	// Returns shared.ErrNotFound if it does not exist.
	GetByHandle(ctx context.Context, handle string) (*Pilot, error)

	// List returns all registered pilots.
	List(ctx context.Context) ([]*Pilot, error)

	// Update persists changes to an existing pilot.
	Update(ctx context.Context, p *Pilot) error
}
