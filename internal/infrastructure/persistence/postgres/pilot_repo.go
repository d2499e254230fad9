package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rotorcup/rotorcup-hub/internal/domain/pilot"
	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PILOT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// PilotRepository implements pilot.Repository for PostgreSQL.
type PilotRepository struct {
	conn *Connection
}

// NewPilotRepository creates a new PilotRepository.
func NewPilotRepository(conn *Connection) *PilotRepository {
	return &PilotRepository{conn: conn}
}

var _ pilot.Repository = (*PilotRepository)(nil)

// Create persists a new pilot.
func (r *PilotRepository) Create(ctx context.Context, p *pilot.Pilot) error {
	query := `
		INSERT INTO pilots (
			id, handle, discord_id, telegram_chat_id, registered_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.conn.Exec(ctx, query,
		string(p.ID),
		p.Handle,
		p.DiscordID,
		p.TelegramChatID,
		p.RegisteredAt,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create pilot: %w", err)
	}

	return nil
}

// GetByID returns a pilot by ID.
func (r *PilotRepository) GetByID(ctx context.Context, id shared.PilotID) (*pilot.Pilot, error) {
	query := `
		SELECT id, handle, discord_id, telegram_chat_id, registered_at, created_at, updated_at
		FROM pilots
		WHERE id = $1
	`

	return r.scanPilot(r.conn.QueryRow(ctx, query, string(id)))
}

// GetByHandle returns a pilot by leaderboard handle.
func (r *PilotRepository) GetByHandle(ctx context.Context, handle string) (*pilot.Pilot, error) {
	query := `
		SELECT id, handle, discord_id, telegram_chat_id, registered_at, created_at, updated_at
		FROM pilots
		WHERE handle = $1
	`

	return r.scanPilot(r.conn.QueryRow(ctx, query, handle))
}

// List returns all registered pilots ordered by handle.
func (r *PilotRepository) List(ctx context.Context) ([]*pilot.Pilot, error) {
	query := `
		SELECT id, handle, discord_id, telegram_chat_id, registered_at, created_at, updated_at
		FROM pilots
		ORDER BY handle ASC
	`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pilots: %w", err)
	}
	defer rows.Close()

	var pilots []*pilot.Pilot
	for rows.Next() {
		p, err := r.scanPilot(rows)
		if err != nil {
			return nil, err
		}
		pilots = append(pilots, p)
	}
	return pilots, rows.Err()
}

// Update persists changes to an existing pilot.
func (r *PilotRepository) Update(ctx context.Context, p *pilot.Pilot) error {
	query := `
		UPDATE pilots SET
			handle = $1,
			discord_id = $2,
			telegram_chat_id = $3,
			updated_at = $4
		WHERE id = $5
	`

	tag, err := r.conn.Exec(ctx, query,
		p.Handle,
		p.DiscordID,
		p.TelegramChatID,
		p.UpdatedAt,
		string(p.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update pilot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}

	return nil
}

func (r *PilotRepository) scanPilot(row pgx.Row) (*pilot.Pilot, error) {
	var (
		p  pilot.Pilot
		id string
	)

	err := row.Scan(
		&id,
		&p.Handle,
		&p.DiscordID,
		&p.TelegramChatID,
		&p.RegisteredAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan pilot: %w", err)
	}

	p.ID = shared.PilotID(id)
	return &p, nil
}
