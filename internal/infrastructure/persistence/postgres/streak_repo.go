package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
	"github.com/rotorcup/rotorcup-hub/internal/domain/streak"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StreakRepository implements streak.Repository for PostgreSQL.
// Save is an upsert keyed by pilot - the accountant does not distinguish
// first-time records from updates.
type StreakRepository struct {
	conn *Connection
}

// NewStreakRepository creates a new StreakRepository.
func NewStreakRepository(conn *Connection) *StreakRepository {
	return &StreakRepository{conn: conn}
}

var _ streak.Repository = (*StreakRepository)(nil)

// Get returns a pilot's streak record.
func (r *StreakRepository) Get(ctx context.Context, pilotID shared.PilotID) (*streak.DayStreak, error) {
	query := `
		SELECT pilot_id, current, max, freeze_balance, last_participation, last_miss,
			   created_at, updated_at
		FROM streaks
		WHERE pilot_id = $1
	`

	return r.scanStreak(r.conn.QueryRow(ctx, query, string(pilotID)))
}

// List returns all streak records.
func (r *StreakRepository) List(ctx context.Context) ([]*streak.DayStreak, error) {
	query := `
		SELECT pilot_id, current, max, freeze_balance, last_participation, last_miss,
			   created_at, updated_at
		FROM streaks
		ORDER BY pilot_id ASC
	`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query streaks: %w", err)
	}
	defer rows.Close()

	var streaks []*streak.DayStreak
	for rows.Next() {
		s, err := r.scanStreak(rows)
		if err != nil {
			return nil, err
		}
		streaks = append(streaks, s)
	}
	return streaks, rows.Err()
}

// Save creates or updates a streak record.
func (r *StreakRepository) Save(ctx context.Context, s *streak.DayStreak) error {
	query := `
		INSERT INTO streaks (
			pilot_id, current, max, freeze_balance, last_participation, last_miss,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (pilot_id) DO UPDATE SET
			current = EXCLUDED.current,
			max = EXCLUDED.max,
			freeze_balance = EXCLUDED.freeze_balance,
			last_participation = EXCLUDED.last_participation,
			last_miss = EXCLUDED.last_miss,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.conn.Exec(ctx, query,
		string(s.PilotID),
		s.Current,
		s.Max,
		s.FreezeBalance,
		nullableTime(s.LastParticipation),
		nullableTime(s.LastMiss),
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save streak: %w", err)
	}
	return nil
}

func (r *StreakRepository) scanStreak(row pgx.Row) (*streak.DayStreak, error) {
	var (
		s                 streak.DayStreak
		id                string
		lastParticipation *time.Time
		lastMiss          *time.Time
	)

	err := row.Scan(
		&id,
		&s.Current,
		&s.Max,
		&s.FreezeBalance,
		&lastParticipation,
		&lastMiss,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan streak: %w", err)
	}

	s.PilotID = shared.PilotID(id)
	if lastParticipation != nil {
		s.LastParticipation = lastParticipation.UTC()
	}
	if lastMiss != nil {
		s.LastMiss = lastMiss.UTC()
	}
	return &s, nil
}

// nullableTime maps the zero time to NULL so date comparisons in SQL
// stay sane.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
