package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rotorcup/rotorcup-hub/internal/domain/competition"
	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPETITION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CompetitionRepository implements competition.Repository for PostgreSQL.
// Result entries live in a child table and are rewritten wholesale on
// update - the orchestrator always supplies the full ranked set.
type CompetitionRepository struct {
	conn *Connection
}

// NewCompetitionRepository creates a new CompetitionRepository.
func NewCompetitionRepository(conn *Connection) *CompetitionRepository {
	return &CompetitionRepository{conn: conn}
}

var _ competition.Repository = (*CompetitionRepository)(nil)

// Create persists a new competition.
func (r *CompetitionRepository) Create(ctx context.Context, c *competition.Competition) error {
	query := `
		INSERT INTO competitions (
			id, tenant_id, track_ref, started_on, state, closed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query,
			c.ID,
			string(c.TenantID),
			c.TrackRef,
			c.StartedOn,
			c.State.String(),
			c.ClosedAt,
			c.CreatedAt,
			c.UpdatedAt,
		)
		if err != nil {
			return err
		}
		return insertResults(ctx, tx, c.ID, c.Results)
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create competition: %w", err)
	}

	return nil
}

// GetByID returns a competition by ID.
func (r *CompetitionRepository) GetByID(ctx context.Context, id string) (*competition.Competition, error) {
	query := `
		SELECT id, tenant_id, track_ref, started_on, state, closed_at, created_at, updated_at
		FROM competitions
		WHERE id = $1
	`

	c, err := r.scanCompetition(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadResults(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// FindRunning returns the tenant's currently running competition.
func (r *CompetitionRepository) FindRunning(ctx context.Context, tenantID shared.TenantID) (*competition.Competition, error) {
	query := `
		SELECT id, tenant_id, track_ref, started_on, state, closed_at, created_at, updated_at
		FROM competitions
		WHERE tenant_id = $1 AND state = 'running'
	`

	c, err := r.scanCompetition(r.conn.QueryRow(ctx, query, string(tenantID)))
	if err != nil {
		return nil, err
	}
	if err := r.loadResults(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// FindLastClosed returns the tenant's most recently closed competition.
func (r *CompetitionRepository) FindLastClosed(ctx context.Context, tenantID shared.TenantID) (*competition.Competition, error) {
	query := `
		SELECT id, tenant_id, track_ref, started_on, state, closed_at, created_at, updated_at
		FROM competitions
		WHERE tenant_id = $1 AND state = 'closed'
		ORDER BY closed_at DESC
		LIMIT 1
	`

	c, err := r.scanCompetition(r.conn.QueryRow(ctx, query, string(tenantID)))
	if err != nil {
		return nil, err
	}
	if err := r.loadResults(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListClosedBetween returns the tenant's competitions closed within [from, to),
// oldest first.
func (r *CompetitionRepository) ListClosedBetween(ctx context.Context, tenantID shared.TenantID, from, to time.Time) ([]*competition.Competition, error) {
	query := `
		SELECT id, tenant_id, track_ref, started_on, state, closed_at, created_at, updated_at
		FROM competitions
		WHERE tenant_id = $1 AND state = 'closed' AND closed_at >= $2 AND closed_at < $3
		ORDER BY closed_at ASC
	`

	rows, err := r.conn.Query(ctx, query, string(tenantID), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query competitions: %w", err)
	}
	defer rows.Close()

	var comps []*competition.Competition
	for rows.Next() {
		c, err := r.scanCompetition(rows)
		if err != nil {
			return nil, err
		}
		comps = append(comps, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range comps {
		if err := r.loadResults(ctx, c); err != nil {
			return nil, err
		}
	}
	return comps, nil
}

// Update persists changes to an existing competition, replacing its
// result entries.
func (r *CompetitionRepository) Update(ctx context.Context, c *competition.Competition) error {
	query := `
		UPDATE competitions SET
			track_ref = $1,
			state = $2,
			closed_at = $3,
			updated_at = $4
		WHERE id = $5
	`

	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query,
			c.TrackRef,
			c.State.String(),
			c.ClosedAt,
			c.UpdatedAt,
			c.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update competition: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}

		if _, err := tx.Exec(ctx, `DELETE FROM competition_results WHERE competition_id = $1`, c.ID); err != nil {
			return fmt.Errorf("failed to clear results: %w", err)
		}
		return insertResults(ctx, tx, c.ID, c.Results)
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func insertResults(ctx context.Context, tx pgx.Tx, competitionID string, results []competition.ResultEntry) error {
	if len(results) == 0 {
		return nil
	}

	query := `
		INSERT INTO competition_results (competition_id, pilot_id, lap_time_ms, rank, points, position)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	batch := &pgx.Batch{}
	for i, entry := range results {
		batch.Queue(query,
			competitionID,
			string(entry.PilotID),
			int64(entry.LapTime),
			int(entry.Rank),
			int(entry.Points),
			i,
		)
	}

	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for range results {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert result entry: %w", err)
		}
	}
	return nil
}

func (r *CompetitionRepository) loadResults(ctx context.Context, c *competition.Competition) error {
	query := `
		SELECT pilot_id, lap_time_ms, rank, points
		FROM competition_results
		WHERE competition_id = $1
		ORDER BY position ASC
	`

	rows, err := r.conn.Query(ctx, query, c.ID)
	if err != nil {
		return fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			pilotID   string
			lapTimeMs int64
			rank      int
			points    int
		)
		if err := rows.Scan(&pilotID, &lapTimeMs, &rank, &points); err != nil {
			return fmt.Errorf("failed to scan result entry: %w", err)
		}
		c.Results = append(c.Results, competition.ResultEntry{
			PilotID: shared.PilotID(pilotID),
			LapTime: shared.LapTime(lapTimeMs),
			Rank:    shared.Rank(rank),
			Points:  shared.Points(points),
		})
	}
	return rows.Err()
}

func (r *CompetitionRepository) scanCompetition(row pgx.Row) (*competition.Competition, error) {
	var (
		c        competition.Competition
		tenantID string
		state    string
	)

	err := row.Scan(
		&c.ID,
		&tenantID,
		&c.TrackRef,
		&c.StartedOn,
		&state,
		&c.ClosedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan competition: %w", err)
	}

	c.TenantID = shared.TenantID(tenantID)
	c.State = competition.State(state)
	return &c, nil
}
