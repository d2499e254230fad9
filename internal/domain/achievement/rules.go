package achievement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rotorcup/rotorcup-hub/internal/domain/competition"
	"github.com/rotorcup/rotorcup-hub/internal/domain/pilot"
	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
	"github.com/rotorcup/rotorcup-hub/internal/domain/streak"
	"github.com/rotorcup/rotorcup-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEFINITIONS
// Display metadata for known achievements, used by the notification
// fan-out when composing messages.
// ══════════════════════════════════════════════════════════════════════════════

// Definition describes an achievement for presentation purposes.
type Definition struct {
	Name        string
	Title       string
	Emoji       string
	Description string
}

var definitions = map[string]Definition{
	"rookie-lap": {
		Name: "rookie-lap", Title: "Rookie Lap", Emoji: "🛫",
		Description: "Posted a time on a cup leaderboard for the first time.",
	},
	"climber": {
		Name: "climber", Title: "Climber", Emoji: "🧗",
		Description: "Gained three or more positions in a single poll.",
	},
	"daily-winner": {
		Name: "daily-winner", Title: "Daily Winner", Emoji: "🏆",
		Description: "Won a daily cup competition.",
	},
	"podium-finisher": {
		Name: "podium-finisher", Title: "Podium Finisher", Emoji: "🥉",
		Description: "Finished a daily competition on the podium.",
	},
	"season-podium": {
		Name: "season-podium", Title: "Season Podium", Emoji: "👑",
		Description: "Closed a season in the top three.",
	},
	"ever-present": {
		Name: "ever-present", Title: "Ever Present", Emoji: "📅",
		Description: "Flew in twenty competitions within one season.",
	},
	"first-ever-win": {
		Name: "first-ever-win", Title: "First Blood", Emoji: "🩸",
		Description: "The first competition win in cup history.",
	},
}

// GetDefinition returns the display metadata for an achievement name.
// Streak milestones ("streak-N") are generated on the fly.
func GetDefinition(name string) (Definition, bool) {
	if def, ok := definitions[name]; ok {
		return def, true
	}

	var days int
	if _, err := fmt.Sscanf(name, "streak-%d", &days); err == nil && streak.IsMilestone(days) {
		return Definition{
			Name:        name,
			Title:       fmt.Sprintf("%d Day Streak", days),
			Emoji:       "🔥",
			Description: fmt.Sprintf("Flew %d days in a row.", days),
		}, true
	}

	return Definition{}, false
}

// MilestoneName returns the achievement name for a streak milestone.
func MilestoneName(days int) string {
	return fmt.Sprintf("streak-%d", days)
}

// ══════════════════════════════════════════════════════════════════════════════
// TIME-UPDATE RULES
// ══════════════════════════════════════════════════════════════════════════════

// FirstEntryRule grants when a pilot posts a time on a leaderboard for
// the first time in a competition.
type FirstEntryRule struct{}

func (FirstEntryRule) Name() string        { return "rookie-lap" }
func (FirstEntryRule) Description() string { return definitions["rookie-lap"].Description }

// CheckDeltas implements TimeUpdateRule.
func (FirstEntryRule) CheckDeltas(_ *pilot.Pilot, deltas []competition.ResultDelta) bool {
	for _, d := range deltas {
		if d.IsNewEntry() {
			return true
		}
	}
	return false
}

// RankClimbRule grants when a pilot gains several positions in one poll.
type RankClimbRule struct {
	// MinGain is the minimum position gain (default 3).
	MinGain int
}

func (r RankClimbRule) Name() string        { return "climber" }
func (r RankClimbRule) Description() string { return definitions["climber"].Description }

// CheckDeltas implements TimeUpdateRule.
func (r RankClimbRule) CheckDeltas(_ *pilot.Pilot, deltas []competition.ResultDelta) bool {
	min := r.MinGain
	if min <= 0 {
		min = 3
	}
	for _, d := range deltas {
		if d.RankGained() >= min {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// AFTER-COMPETITION RULES
// ══════════════════════════════════════════════════════════════════════════════

// DailyWinnerRule grants to the rank-1 pilot of a closed competition.
type DailyWinnerRule struct{}

func (DailyWinnerRule) Name() string        { return "daily-winner" }
func (DailyWinnerRule) Description() string { return definitions["daily-winner"].Description }

// CheckCompetition implements CompetitionRule.
func (DailyWinnerRule) CheckCompetition(p *pilot.Pilot, c *competition.Competition) bool {
	entry, ok := c.ResultFor(p.ID)
	return ok && entry.Rank == 1
}

// PodiumRule grants to pilots finishing a competition on the podium.
type PodiumRule struct{}

func (PodiumRule) Name() string        { return "podium-finisher" }
func (PodiumRule) Description() string { return definitions["podium-finisher"].Description }

// CheckCompetition implements CompetitionRule.
func (PodiumRule) CheckCompetition(p *pilot.Pilot, c *competition.Competition) bool {
	entry, ok := c.ResultFor(p.ID)
	return ok && entry.Rank.IsPodium()
}

// ══════════════════════════════════════════════════════════════════════════════
// AFTER-SEASON RULES
// ══════════════════════════════════════════════════════════════════════════════

// SeasonPodiumRule grants to pilots closing a season in the top three.
type SeasonPodiumRule struct{}

func (SeasonPodiumRule) Name() string        { return "season-podium" }
func (SeasonPodiumRule) Description() string { return definitions["season-podium"].Description }

// CheckSeason implements SeasonRule.
func (SeasonPodiumRule) CheckSeason(p *pilot.Pilot, results []competition.SeasonResult) bool {
	for _, r := range results {
		if r.PilotID == p.ID {
			return r.Rank.IsPodium()
		}
	}
	return false
}

// EverPresentRule grants to pilots flying in many competitions of one season.
type EverPresentRule struct {
	// MinCompetitions is the participation threshold (default 20).
	MinCompetitions int
}

func (r EverPresentRule) Name() string        { return "ever-present" }
func (r EverPresentRule) Description() string { return definitions["ever-present"].Description }

// CheckSeason implements SeasonRule.
func (r EverPresentRule) CheckSeason(p *pilot.Pilot, results []competition.SeasonResult) bool {
	min := r.MinCompetitions
	if min <= 0 {
		min = 20
	}
	for _, sr := range results {
		if sr.PilotID == p.ID {
			return sr.Competitions >= min
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// GLOBAL RULES
// ══════════════════════════════════════════════════════════════════════════════

// StreakSource provides read access to streak records.
type StreakSource interface {
	List(ctx context.Context) ([]*streak.DayStreak, error)
}

// ParticipationSource resolves which tenants a pilot flew in on a date.
type ParticipationSource interface {
	TenantsOn(ctx context.Context, pilotID shared.PilotID, date time.Time) ([]shared.TenantID, error)
}

// StreakMilestoneRule scans streak records for pilots whose current streak
// hit a milestone today and mints one "streak-N" achievement per milestone.
// A pilot reaching a milestone with zero tenant participation that day is
// logged as a warning but still granted (announced to all channels).
type StreakMilestoneRule struct {
	Streaks       StreakSource
	Participation ParticipationSource
	Logger        *slog.Logger

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func (StreakMilestoneRule) Name() string { return "streak-milestone" }
func (StreakMilestoneRule) Description() string {
	return "Consecutive participation day streak milestones."
}

// Check implements GlobalRule.
func (r StreakMilestoneRule) Check(ctx context.Context) ([]GlobalGrant, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	streaks, err := r.Streaks.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list streaks: %w", err)
	}

	today := timeutil.StartOfDay(now())

	var grants []GlobalGrant
	for _, s := range streaks {
		if !streak.IsMilestone(s.Current) {
			continue
		}
		// The milestone counts when reached on the accounting day: the
		// scan runs just after midnight for the day that ended, or
		// inline after a close for the current day.
		if s.LastParticipation.Before(timeutil.PreviousDay(today)) || s.LastParticipation.After(today) {
			continue
		}

		tenants, err := r.Participation.TenantsOn(ctx, s.PilotID, s.LastParticipation)
		if err != nil {
			logger.Error("milestone participation lookup failed",
				"pilot_id", s.PilotID,
				"error", err,
			)
			continue
		}

		name := MilestoneName(s.Current)
		if len(tenants) == 0 {
			logger.Warn("streak milestone without tenant participation today",
				"pilot_id", s.PilotID,
				"streak", s.Current,
			)
			grants = append(grants, GlobalGrant{PilotID: s.PilotID, Name: name})
			continue
		}

		// Attribute the milestone to the first participating tenant;
		// the grant itself is unique per pilot regardless.
		grants = append(grants, GlobalGrant{PilotID: s.PilotID, Name: name, TenantID: tenants[0]})
	}

	return grants, nil
}

// WinRecord is one competition win, used by globally-unique win rules.
type WinRecord struct {
	PilotID  shared.PilotID
	TenantID shared.TenantID
}

// WinSource provides the winners of competitions closed on a date.
type WinSource interface {
	WinnersOn(ctx context.Context, date time.Time) ([]WinRecord, error)
}

// FirstEverWinRule grants exactly once in cup history: to the first pilot
// ever to win a competition. Once anyone holds it the scan is a no-op.
type FirstEverWinRule struct {
	Grants Repository
	Wins   WinSource

	Now func() time.Time
}

func (FirstEverWinRule) Name() string        { return "first-ever-win" }
func (FirstEverWinRule) Description() string { return definitions["first-ever-win"].Description }

// Check implements GlobalRule.
func (r FirstEverWinRule) Check(ctx context.Context) ([]GlobalGrant, error) {
	held, err := r.Grants.AnyoneHolds(ctx, r.Name())
	if err != nil {
		return nil, fmt.Errorf("check holders: %w", err)
	}
	if held {
		return nil, nil
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	wins, err := r.Wins.WinnersOn(ctx, now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list winners: %w", err)
	}
	if len(wins) == 0 {
		return nil, nil
	}

	first := wins[0]
	return []GlobalGrant{{PilotID: first.PilotID, TenantID: first.TenantID}}, nil
}
