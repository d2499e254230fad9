// Package memory provides in-memory repository implementations. They back
// the application-layer tests and double as a storage mode for local
// development runs without Postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotorcup/rotorcup-hub/internal/domain/achievement"
	"github.com/rotorcup/rotorcup-hub/internal/domain/competition"
	"github.com/rotorcup/rotorcup-hub/internal/domain/pilot"
	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
	"github.com/rotorcup/rotorcup-hub/internal/domain/streak"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPETITION REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// CompetitionRepository is an in-memory competition.Repository.
type CompetitionRepository struct {
	mu    sync.RWMutex
	byID  map[string]*competition.Competition
	order []string // creation order
}

// NewCompetitionRepository creates an empty repository.
func NewCompetitionRepository() *CompetitionRepository {
	return &CompetitionRepository{
		byID: make(map[string]*competition.Competition),
	}
}

func (r *CompetitionRepository) Create(_ context.Context, c *competition.Competition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[c.ID]; exists {
		return shared.ErrAlreadyExists
	}
	r.byID[c.ID] = cloneCompetition(c)
	r.order = append(r.order, c.ID)
	return nil
}

func (r *CompetitionRepository) GetByID(_ context.Context, id string) (*competition.Competition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cloneCompetition(c), nil
}

func (r *CompetitionRepository) FindRunning(_ context.Context, tenantID shared.TenantID) (*competition.Competition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		c := r.byID[id]
		if c.TenantID == tenantID && c.State == competition.StateRunning {
			return cloneCompetition(c), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *CompetitionRepository) FindLastClosed(_ context.Context, tenantID shared.TenantID) (*competition.Competition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var last *competition.Competition
	for _, id := range r.order {
		c := r.byID[id]
		if c.TenantID != tenantID || c.State != competition.StateClosed {
			continue
		}
		if last == nil || c.ClosedAt.After(*last.ClosedAt) {
			last = c
		}
	}
	if last == nil {
		return nil, shared.ErrNotFound
	}
	return cloneCompetition(last), nil
}

func (r *CompetitionRepository) ListClosedBetween(_ context.Context, tenantID shared.TenantID, from, to time.Time) ([]*competition.Competition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*competition.Competition
	for _, id := range r.order {
		c := r.byID[id]
		if c.TenantID != tenantID || c.State != competition.StateClosed || c.ClosedAt == nil {
			continue
		}
		at := *c.ClosedAt
		if at.Before(from) || !at.Before(to) {
			continue
		}
		out = append(out, cloneCompetition(c))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ClosedAt.Before(*out[j].ClosedAt)
	})
	return out, nil
}

func (r *CompetitionRepository) Update(_ context.Context, c *competition.Competition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[c.ID]; !exists {
		return shared.ErrNotFound
	}
	r.byID[c.ID] = cloneCompetition(c)
	return nil
}

func cloneCompetition(c *competition.Competition) *competition.Competition {
	cp := *c
	cp.Results = append([]competition.ResultEntry(nil), c.Results...)
	if c.ClosedAt != nil {
		ts := *c.ClosedAt
		cp.ClosedAt = &ts
	}
	return &cp
}

// ══════════════════════════════════════════════════════════════════════════════
// PILOT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// PilotRepository is an in-memory pilot.Repository.
type PilotRepository struct {
	mu   sync.RWMutex
	byID map[shared.PilotID]*pilot.Pilot
}

// NewPilotRepository creates an empty repository.
func NewPilotRepository() *PilotRepository {
	return &PilotRepository{byID: make(map[shared.PilotID]*pilot.Pilot)}
}

func (r *PilotRepository) Create(_ context.Context, p *pilot.Pilot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[p.ID]; exists {
		return shared.ErrAlreadyExists
	}
	// Handles are unique, matching the database index.
	for _, existing := range r.byID {
		if existing.Handle == p.Handle {
			return shared.ErrAlreadyExists
		}
	}
	cp := *p
	r.byID[p.ID] = &cp
	return nil
}

func (r *PilotRepository) GetByID(_ context.Context, id shared.PilotID) (*pilot.Pilot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *PilotRepository) GetByHandle(_ context.Context, handle string) (*pilot.Pilot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.byID {
		if p.Handle == handle {
			cp := *p
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *PilotRepository) List(_ context.Context) ([]*pilot.Pilot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*pilot.Pilot, 0, len(r.byID))
	for _, p := range r.byID {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *PilotRepository) Update(_ context.Context, p *pilot.Pilot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[p.ID]; !exists {
		return shared.ErrNotFound
	}
	cp := *p
	r.byID[p.ID] = &cp
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT GRANT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

type grantKey struct {
	pilotID shared.PilotID
	name    string
}

// GrantRepository is an in-memory achievement.Repository.
type GrantRepository struct {
	mu     sync.RWMutex
	grants map[grantKey]achievement.Grant
}

// NewGrantRepository creates an empty repository.
func NewGrantRepository() *GrantRepository {
	return &GrantRepository{grants: make(map[grantKey]achievement.Grant)}
}

func (r *GrantRepository) SaveGrant(_ context.Context, g achievement.Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := grantKey{pilotID: g.PilotID, name: g.AchievementName}
	if _, exists := r.grants[key]; exists {
		return shared.ErrAlreadyExists
	}
	r.grants[key] = g
	return nil
}

func (r *GrantRepository) ListByPilot(_ context.Context, pilotID shared.PilotID) ([]achievement.Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []achievement.Grant
	for key, g := range r.grants {
		if key.pilotID == pilotID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AchievementName < out[j].AchievementName })
	return out, nil
}

func (r *GrantRepository) AnyoneHolds(_ context.Context, achievementName string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for key := range r.grants {
		if key.name == achievementName {
			return true, nil
		}
	}
	return false, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAK REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// StreakRepository is an in-memory streak.Repository.
type StreakRepository struct {
	mu   sync.RWMutex
	byID map[shared.PilotID]*streak.DayStreak
}

// NewStreakRepository creates an empty repository.
func NewStreakRepository() *StreakRepository {
	return &StreakRepository{byID: make(map[shared.PilotID]*streak.DayStreak)}
}

func (r *StreakRepository) Get(_ context.Context, pilotID shared.PilotID) (*streak.DayStreak, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[pilotID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *StreakRepository) List(_ context.Context) ([]*streak.DayStreak, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*streak.DayStreak, 0, len(r.byID))
	for _, s := range r.byID {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PilotID < out[j].PilotID })
	return out, nil
}

func (r *StreakRepository) Save(_ context.Context, s *streak.DayStreak) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *s
	r.byID[s.PilotID] = &cp
	return nil
}
