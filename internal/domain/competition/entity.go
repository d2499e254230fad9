// Package competition contains the domain model for daily cup competitions:
// the competition aggregate with its lifecycle state machine, result entries,
// result deltas computed between leaderboard polls, and season standings.
package competition

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATE
// ══════════════════════════════════════════════════════════════════════════════

// State represents the lifecycle state of a competition.
type State string

const (
	// StateRunning - the competition is open and accepting results.
	StateRunning State = "running"

	// StateClosed - the competition was closed by the stop trigger.
	// Terminal: a closed competition is never resurrected.
	StateClosed State = "closed"

	// StateCancelled - the competition was cancelled administratively.
	// Terminal and excluded from further automatic transitions.
	StateCancelled State = "cancelled"
)

// IsValid checks if the state is a known value.
func (s State) IsValid() bool {
	switch s {
	case StateRunning, StateClosed, StateCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the state permits no further transitions.
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateCancelled
}

// String returns the string representation.
func (s State) String() string {
	return string(s)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESULT ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// ResultEntry is one pilot's current standing within a competition.
type ResultEntry struct {
	PilotID shared.PilotID
	LapTime shared.LapTime
	Rank    shared.Rank
	Points  shared.Points
}

// pointsByRank is the fixed points table applied when a competition closes.
// Ranks beyond the table earn one participation point.
var pointsByRank = map[shared.Rank]shared.Points{
	1: 25, 2: 20, 3: 16, 4: 13, 5: 11,
	6: 10, 7: 9, 8: 8, 9: 7, 10: 6,
}

// PointsForRank returns the points awarded for a final rank.
func PointsForRank(rank shared.Rank) shared.Points {
	if p, ok := pointsByRank[rank]; ok {
		return p
	}
	if rank > 0 {
		return 1
	}
	return 0
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPETITION AGGREGATE
// ══════════════════════════════════════════════════════════════════════════════

// Competition is one daily cup race for a tenant. It is owned exclusively
// by the lifecycle orchestrator; other components only read snapshots
// passed via events.
type Competition struct {
	ID        string
	TenantID  shared.TenantID
	TrackRef  string
	StartedOn time.Time
	State     State
	Results   []ResultEntry
	ClosedAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a new running competition for a tenant on a track.
func New(tenantID shared.TenantID, trackRef string, now time.Time) (*Competition, error) {
	if !tenantID.IsValid() {
		return nil, shared.NewDomainError("competition", "New", shared.ErrInvalidID, "invalid tenant ID")
	}
	if trackRef == "" {
		return nil, shared.NewDomainError("competition", "New", shared.ErrEmptyValue, "track ref is required")
	}

	now = now.UTC()
	return &Competition{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		TrackRef:  trackRef,
		StartedOn: now,
		State:     StateRunning,
		Results:   nil,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsRunning reports whether the competition is still open.
func (c *Competition) IsRunning() bool {
	return c.State == StateRunning
}

// UpdateResults replaces the current result table with a fresh snapshot.
// Only valid while the competition is running.
func (c *Competition) UpdateResults(results []ResultEntry, now time.Time) error {
	if c.State != StateRunning {
		return shared.NewDomainError("competition", "UpdateResults", shared.ErrStateTransition,
			"cannot update results of a "+c.State.String()+" competition")
	}

	c.Results = results
	c.UpdatedAt = now.UTC()
	return nil
}

// Close finalizes the competition: sorts results by lap time, reassigns
// final ranks, computes points and marks the competition closed. Closing
// twice is a state transition error - the stop trigger closes exactly once.
func (c *Competition) Close(now time.Time) error {
	if c.State != StateRunning {
		return shared.NewDomainError("competition", "Close", shared.ErrStateTransition,
			"cannot close a "+c.State.String()+" competition")
	}

	sort.SliceStable(c.Results, func(i, j int) bool {
		return c.Results[i].LapTime.FasterThan(c.Results[j].LapTime)
	})
	for i := range c.Results {
		c.Results[i].Rank = shared.Rank(i + 1)
		c.Results[i].Points = PointsForRank(c.Results[i].Rank)
	}

	ts := now.UTC()
	c.State = StateClosed
	c.ClosedAt = &ts
	c.UpdatedAt = ts
	return nil
}

// Cancel marks the competition cancelled. Allowed from any non-terminal
// state; cancelling a closed or already-cancelled competition is an error.
func (c *Competition) Cancel(now time.Time) error {
	if c.State.IsTerminal() {
		return shared.NewDomainError("competition", "Cancel", shared.ErrStateTransition,
			"cannot cancel a "+c.State.String()+" competition")
	}

	ts := now.UTC()
	c.State = StateCancelled
	c.UpdatedAt = ts
	return nil
}

// Winner returns the rank-1 result entry, if any.
func (c *Competition) Winner() (ResultEntry, bool) {
	for _, r := range c.Results {
		if r.Rank == 1 {
			return r, true
		}
	}
	return ResultEntry{}, false
}

// Participants returns the pilot IDs present in the result table.
func (c *Competition) Participants() []shared.PilotID {
	ids := make([]shared.PilotID, 0, len(c.Results))
	for _, r := range c.Results {
		ids = append(ids, r.PilotID)
	}
	return ids
}

// ResultFor returns the result entry for a pilot, if present.
func (c *Competition) ResultFor(pilotID shared.PilotID) (ResultEntry, bool) {
	for _, r := range c.Results {
		if r.PilotID == pilotID {
			return r, true
		}
	}
	return ResultEntry{}, false
}
