package postgres

import (
	"context"
	"fmt"

	"github.com/rotorcup/rotorcup-hub/internal/domain/achievement"
	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRANT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// GrantRepository implements achievement.Repository for PostgreSQL.
// The (pilot_id, achievement_name) primary key is the grant uniqueness
// invariant; duplicate inserts surface as shared.ErrAlreadyExists.
type GrantRepository struct {
	conn *Connection
}

// NewGrantRepository creates a new GrantRepository.
func NewGrantRepository(conn *Connection) *GrantRepository {
	return &GrantRepository{conn: conn}
}

var _ achievement.Repository = (*GrantRepository)(nil)

// SaveGrant persists a grant.
func (r *GrantRepository) SaveGrant(ctx context.Context, g achievement.Grant) error {
	query := `
		INSERT INTO achievement_grants (pilot_id, achievement_name, granted_at)
		VALUES ($1, $2, $3)
	`

	_, err := r.conn.Exec(ctx, query,
		string(g.PilotID),
		g.AchievementName,
		g.GrantedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to save grant: %w", err)
	}

	return nil
}

// ListByPilot returns all grants held by a pilot ordered by achievement name.
func (r *GrantRepository) ListByPilot(ctx context.Context, pilotID shared.PilotID) ([]achievement.Grant, error) {
	query := `
		SELECT pilot_id, achievement_name, granted_at
		FROM achievement_grants
		WHERE pilot_id = $1
		ORDER BY achievement_name ASC
	`

	rows, err := r.conn.Query(ctx, query, string(pilotID))
	if err != nil {
		return nil, fmt.Errorf("failed to query grants: %w", err)
	}
	defer rows.Close()

	var grants []achievement.Grant
	for rows.Next() {
		var (
			g  achievement.Grant
			id string
		)
		if err := rows.Scan(&id, &g.AchievementName, &g.GrantedAt); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		g.PilotID = shared.PilotID(id)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// AnyoneHolds reports whether any pilot holds the named achievement.
func (r *GrantRepository) AnyoneHolds(ctx context.Context, achievementName string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM achievement_grants WHERE achievement_name = $1)`

	var held bool
	if err := r.conn.QueryRow(ctx, query, achievementName).Scan(&held); err != nil {
		return false, fmt.Errorf("failed to query grant existence: %w", err)
	}
	return held, nil
}
