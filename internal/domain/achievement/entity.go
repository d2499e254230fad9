// Package achievement contains the achievement domain: the four rule
// variants evaluated by the engine, the compile-checked rule registry,
// and the grant records with their uniqueness invariant.
package achievement

import (
	"context"
	"time"

	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
)

// Grant is a recorded instance of a pilot earning a specific achievement.
// At most one grant exists per (pilot, achievement name); the repository
// enforces this and reports duplicates as shared.ErrAlreadyExists, which
// callers absorb silently.
type Grant struct {
	PilotID         shared.PilotID
	AchievementName string
	GrantedAt       time.Time
}

// NewGrant creates a grant record.
func NewGrant(pilotID shared.PilotID, achievementName string, now time.Time) Grant {
	return Grant{
		PilotID:         pilotID,
		AchievementName: achievementName,
		GrantedAt:       now.UTC(),
	}
}

// Repository defines persistence operations for achievement grants.
type Repository interface {
	// SaveGrant persists a grant. Returns shared.ErrAlreadyExists when the
	// pilot already holds the achievement - the idempotency boundary that
	// makes redundant event delivery safe.
	SaveGrant(ctx context.Context, g Grant) error

	// ListByPilot returns all grants held by a pilot.
	ListByPilot(ctx context.Context, pilotID shared.PilotID) ([]Grant, error)

	// AnyoneHolds reports whether any pilot holds the named achievement.
	// Used by globally-unique rules such as the first-ever win.
	AnyoneHolds(ctx context.Context, achievementName string) (bool, error)
}

// GrantsByTenant groups a batch of new grants by the tenant whose event
// produced them. The empty tenant key collects grants with no tenant
// attribution (e.g. a streak milestone on a day without participation);
// the fan-out announces those to all channels.
type GrantsByTenant map[shared.TenantID][]Grant

// Add appends a grant under a tenant key.
func (g GrantsByTenant) Add(tenantID shared.TenantID, grant Grant) {
	g[tenantID] = append(g[tenantID], grant)
}

// Total returns the number of grants across all tenants.
func (g GrantsByTenant) Total() int {
	n := 0
	for _, grants := range g {
		n += len(grants)
	}
	return n
}

// GrantedEvent is the aggregated event emitted by the engine after
// processing one trigger event. Consumed once by the notification fan-out.
type GrantedEvent struct {
	shared.BaseEvent
	GrantsByTenant GrantsByTenant
}

// Payload implements shared.Event interface.
func (e GrantedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"tenants": len(e.GrantsByTenant),
		"grants":  e.GrantsByTenant.Total(),
	}
}

// NewGrantedEvent creates a new GrantedEvent.
func NewGrantedEvent(grants GrantsByTenant) GrantedEvent {
	return GrantedEvent{
		BaseEvent:      shared.NewBaseEvent(shared.EventAchievementsGranted, "achievement-engine"),
		GrantsByTenant: grants,
	}
}
