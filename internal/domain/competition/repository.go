package competition

import (
	"context"
	"time"

	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
)

// Repository defines persistence operations for competitions.
// Implementations live in internal/infrastructure/persistence.
type Repository interface {
	// Create persists a new competition.
	Create(ctx context.Context, c *Competition) error

	// GetByID returns a competition by ID.
	// Returns shared.ErrNotFound if it does not exist.
	GetByID(ctx context.Context, id string) (*Competition, error)

	// FindRunning returns the tenant's currently running competition.
	// Returns shared.ErrNotFound when none is running - the start guard
	// relies on this.
	FindRunning(ctx context.Context, tenantID shared.TenantID) (*Competition, error)

	// FindLastClosed returns the tenant's most recently closed competition.
	// Returns shared.ErrNotFound when the tenant has no closed competitions.
	FindLastClosed(ctx context.Context, tenantID shared.TenantID) (*Competition, error)

	// ListClosedBetween returns the tenant's competitions closed within
	// [from, to), oldest first. Used for season standings and the daily
	// streak scan.
	ListClosedBetween(ctx context.Context, tenantID shared.TenantID, from, to time.Time) ([]*Competition, error)

	// Update persists changes to an existing competition.
	Update(ctx context.Context, c *Competition) error
}
