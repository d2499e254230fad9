// Package streak contains the day-streak and freeze accounting domain:
// each pilot's consecutive-participation counter, the freeze credits that
// preserve a streak across one missed day, and the milestone set.
package streak

import (
	"context"
	"time"

	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
	"github.com/rotorcup/rotorcup-hub/pkg/timeutil"
)

// DayStreak tracks one pilot's consecutive daily participation.
type DayStreak struct {
	PilotID       shared.PilotID
	Current       int
	Max           int
	FreezeBalance int
	// LastParticipation is the UTC date (truncated to midnight) of the
	// pilot's most recent counted participation. Zero when never flown.
	LastParticipation time.Time
	// LastMiss is the UTC date of the most recent accounted miss. The
	// daily job uses it to stay rerun-safe: one miss per calendar day.
	LastMiss time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates an empty streak record for a pilot.
func New(pilotID shared.PilotID, now time.Time) *DayStreak {
	now = now.UTC()
	return &DayStreak{
		PilotID:   pilotID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RecordParticipation counts a participation day: increments the current
// streak and raises the max watermark. Recording the same date twice is
// a no-op, so the daily job is safe to rerun.
func (s *DayStreak) RecordParticipation(date time.Time) {
	d := timeutil.StartOfDay(date)
	if !s.LastParticipation.IsZero() && !d.After(s.LastParticipation) {
		return
	}

	s.Current++
	if s.Current > s.Max {
		s.Max = s.Current
	}
	s.LastParticipation = d
	s.UpdatedAt = time.Now().UTC()
}

// RecordMiss accounts a missed day. An available freeze is consumed
// automatically and the streak survives unchanged; without freezes the
// streak resets to zero. Returns true when a freeze was consumed.
func (s *DayStreak) RecordMiss(date time.Time) bool {
	s.LastMiss = timeutil.StartOfDay(date)
	if s.FreezeBalance > 0 {
		s.FreezeBalance--
		s.UpdatedAt = time.Now().UTC()
		return true
	}

	s.Current = 0
	s.UpdatedAt = time.Now().UTC()
	return false
}

// AddFreezes credits n freezes to the balance. Negative amounts are ignored.
func (s *DayStreak) AddFreezes(n int) {
	if n <= 0 {
		return
	}
	s.FreezeBalance += n
	s.UpdatedAt = time.Now().UTC()
}

// ══════════════════════════════════════════════════════════════════════════════
// SUPPORTER TIER ACCRUAL
// ══════════════════════════════════════════════════════════════════════════════

// freezesByTier maps supporter tier names to the monthly freeze accrual.
var freezesByTier = map[string]int{
	"Level 1": 1,
	"Level 2": 3,
	"Level 3": 5,
	"Level 4": 10,
	"Level 5": 20,
}

// FreezesForTier returns the monthly freeze accrual for a supporter tier.
// Unrecognized tiers accrue zero; that is not an error.
func FreezesForTier(tierName string) int {
	return freezesByTier[tierName]
}

// ══════════════════════════════════════════════════════════════════════════════
// MILESTONES
// ══════════════════════════════════════════════════════════════════════════════

// milestones is the fixed set of celebrated streak lengths.
var milestones = map[int]struct{}{
	10: {}, 20: {}, 50: {}, 75: {}, 100: {}, 150: {},
	200: {}, 250: {}, 300: {}, 365: {}, 500: {}, 1000: {},
}

// IsMilestone reports whether a streak length is a celebrated milestone.
func IsMilestone(current int) bool {
	_, ok := milestones[current]
	return ok
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines persistence operations for day streaks.
type Repository interface {
	// Get returns a pilot's streak record.
	// Returns shared.ErrNotFound if none exists yet.
	Get(ctx context.Context, pilotID shared.PilotID) (*DayStreak, error)

	// List returns all streak records.
	List(ctx context.Context) ([]*DayStreak, error)

	// Save creates or updates a streak record.
	Save(ctx context.Context, s *DayStreak) error
}
