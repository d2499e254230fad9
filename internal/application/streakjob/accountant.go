// Package streakjob implements the daily streak and freeze accounting:
// a midnight job that credits participation days, consumes freezes for
// missed days, and a handler accruing freeze credits from supporter
// tier grants. It also provides the competition scan adapters backing
// the global achievement rules.
package streakjob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rotorcup/rotorcup-hub/internal/domain/achievement"
	"github.com/rotorcup/rotorcup-hub/internal/domain/competition"
	"github.com/rotorcup/rotorcup-hub/internal/domain/pilot"
	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
	"github.com/rotorcup/rotorcup-hub/internal/domain/streak"
	"github.com/rotorcup/rotorcup-hub/pkg/timeutil"
)

// Config contains accountant dependencies.
type Config struct {
	Streaks      streak.Repository
	Pilots       pilot.Repository
	Competitions competition.Repository

	Tenants []shared.TenantID

	// EvaluateGlobal, when set, runs the global achievement rules after
	// the accounting pass so milestone grants land the same day.
	EvaluateGlobal func(ctx context.Context) error

	// Logger for structured logging.
	Logger *slog.Logger

	// Now overrides the clock; used by tests.
	Now func() time.Time
}

// Accountant performs the daily streak/freeze accounting.
type Accountant struct {
	streaks      streak.Repository
	pilots       pilot.Repository
	competitions competition.Repository
	tenants      []shared.TenantID
	evalGlobal   func(ctx context.Context) error
	logger       *slog.Logger
	now          func() time.Time
}

// New creates an Accountant.
func New(cfg Config) (*Accountant, error) {
	if cfg.Streaks == nil {
		return nil, fmt.Errorf("streakjob: streak repository is required")
	}
	if cfg.Pilots == nil {
		return nil, fmt.Errorf("streakjob: pilot repository is required")
	}
	if cfg.Competitions == nil {
		return nil, fmt.Errorf("streakjob: competition repository is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Accountant{
		streaks:      cfg.Streaks,
		pilots:       cfg.Pilots,
		competitions: cfg.Competitions,
		tenants:      cfg.Tenants,
		evalGlobal:   cfg.EvaluateGlobal,
		logger:       cfg.Logger,
		now:          cfg.Now,
	}, nil
}

// Subscribe wires the supporter-tier accrual handler into the event bus.
func (a *Accountant) Subscribe(bus shared.EventSubscriber) error {
	return bus.Subscribe(shared.EventSupporterTierGranted, a.handleSupporterTier)
}

// RunDaily accounts the day that just ended: one participation credit
// per pilot who appears in any tenant's closed results for that day, one
// miss for every active streak holder who does not. Rerunning the job
// for the same day is safe - participation recording is date-idempotent
// and a consumed freeze only applies to the first run's miss.
func (a *Accountant) RunDaily(ctx context.Context) error {
	date := timeutil.PreviousDay(a.now())

	participants, err := a.participantsOn(ctx, date)
	if err != nil {
		return err
	}

	var credited, missed, frozen int
	for pilotID := range participants {
		s, err := a.getOrCreate(ctx, pilotID)
		if err != nil {
			return err
		}
		s.RecordParticipation(date)
		if err := a.streaks.Save(ctx, s); err != nil {
			return err
		}
		credited++
	}

	// Active streak holders who did not fly lose a freeze or the streak.
	all, err := a.streaks.List(ctx)
	if err != nil {
		return err
	}
	for _, s := range all {
		if _, flew := participants[s.PilotID]; flew {
			continue
		}
		if s.Current == 0 {
			continue
		}
		// Already accounted for this date on a previous run.
		if !s.LastParticipation.Before(date) || !s.LastMiss.Before(date) {
			continue
		}

		if s.RecordMiss(date) {
			frozen++
			a.logger.Info("freeze consumed",
				"pilot_id", s.PilotID,
				"streak", s.Current,
				"freezes_left", s.FreezeBalance,
			)
		} else {
			missed++
		}
		if err := a.streaks.Save(ctx, s); err != nil {
			return err
		}
	}

	a.logger.Info("daily streak accounting complete",
		"date", date.Format("2006-01-02"),
		"credited", credited,
		"missed", missed,
		"freezes_consumed", frozen,
	)

	if a.evalGlobal != nil {
		return a.evalGlobal(ctx)
	}
	return nil
}

// handleSupporterTier accrues freeze credits when a supporter tier is
// granted. Unknown tiers accrue zero and are logged, not failed.
func (a *Accountant) handleSupporterTier(event shared.Event) error {
	ev, ok := event.(pilot.SupporterTierGrantedEvent)
	if !ok {
		return fmt.Errorf("streakjob: unexpected event type %T", event)
	}

	n := streak.FreezesForTier(ev.TierName)
	if n == 0 {
		a.logger.Warn("supporter tier with no freeze accrual",
			"pilot_id", ev.PilotID,
			"tier", ev.TierName,
		)
		return nil
	}

	ctx := context.Background()
	s, err := a.getOrCreate(ctx, ev.PilotID)
	if err != nil {
		return err
	}
	s.AddFreezes(n)
	if err := a.streaks.Save(ctx, s); err != nil {
		return err
	}

	a.logger.Info("freezes accrued",
		"pilot_id", ev.PilotID,
		"tier", ev.TierName,
		"added", n,
		"balance", s.FreezeBalance,
	)
	return nil
}

// participantsOn collects the distinct pilots present in any tenant's
// competitions closed on the given day.
func (a *Accountant) participantsOn(ctx context.Context, date time.Time) (map[shared.PilotID]struct{}, error) {
	from := date
	to := timeutil.NextDay(date)

	participants := make(map[shared.PilotID]struct{})
	for _, tenantID := range a.tenants {
		comps, err := a.competitions.ListClosedBetween(ctx, tenantID, from, to)
		if err != nil {
			return nil, err
		}
		for _, c := range comps {
			for _, id := range c.Participants() {
				participants[id] = struct{}{}
			}
		}
	}
	return participants, nil
}

func (a *Accountant) getOrCreate(ctx context.Context, pilotID shared.PilotID) (*streak.DayStreak, error) {
	s, err := a.streaks.Get(ctx, pilotID)
	if errors.Is(err, shared.ErrNotFound) {
		return streak.New(pilotID, a.now()), nil
	}
	return s, err
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPETITION SCAN
// Read adapters over the competition repository backing the global
// achievement rules.
// ══════════════════════════════════════════════════════════════════════════════

// Scan resolves per-day participation and wins across all tenants.
// It implements achievement.ParticipationSource and achievement.WinSource.
type Scan struct {
	Competitions competition.Repository
	Tenants      []shared.TenantID
}

var (
	_ achievement.ParticipationSource = (*Scan)(nil)
	_ achievement.WinSource           = (*Scan)(nil)
)

// TenantsOn returns the tenants whose closed competitions on the given
// day include the pilot.
func (s *Scan) TenantsOn(ctx context.Context, pilotID shared.PilotID, date time.Time) ([]shared.TenantID, error) {
	from := timeutil.StartOfDay(date)
	to := timeutil.NextDay(from)

	var tenants []shared.TenantID
	for _, tenantID := range s.Tenants {
		comps, err := s.Competitions.ListClosedBetween(ctx, tenantID, from, to)
		if err != nil {
			return nil, err
		}
		for _, c := range comps {
			if _, ok := c.ResultFor(pilotID); ok {
				tenants = append(tenants, tenantID)
				break
			}
		}
	}
	return tenants, nil
}

// WinnersOn returns the winners of competitions closed on the given day,
// in close order.
func (s *Scan) WinnersOn(ctx context.Context, date time.Time) ([]achievement.WinRecord, error) {
	from := timeutil.StartOfDay(date)
	to := timeutil.NextDay(from)

	var wins []achievement.WinRecord
	for _, tenantID := range s.Tenants {
		comps, err := s.Competitions.ListClosedBetween(ctx, tenantID, from, to)
		if err != nil {
			return nil, err
		}
		for _, c := range comps {
			if winner, ok := c.Winner(); ok {
				wins = append(wins, achievement.WinRecord{PilotID: winner.PilotID, TenantID: tenantID})
			}
		}
	}
	return wins, nil
}
