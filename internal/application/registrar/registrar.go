// Package registrar owns the mapping between configured cups and the
// scheduler's recurring jobs. It derives each cup's trigger times from
// its daily start time and keeps the scheduler in sync with the tenant
// roster.
package registrar

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rotorcup/rotorcup-hub/internal/domain/schedule"
	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
)

// Job name prefixes for cup-owned recurring entries. Anything carrying
// one of these prefixes is managed exclusively by the registrar.
const (
	startJobPrefix = "start-competition-"
	stopJobPrefix  = "stop-competition-"
	pollJobPrefix  = "stop-poll-"
)

// Names of the tenant-independent jobs.
const (
	JobRefreshResults = "refresh-results"
	JobDailyStreak    = "daily-streak-accounting"
	JobCloseSeason    = "close-season"
)

// Default schedules for the tenant-independent jobs.
const (
	refreshResultsCron = "*/10 * * * *"
	dailyStreakCron    = "0 0 * * *"
	closeSeasonCron    = "5 0 1 * *"
)

// JobScheduler is the slice of the scheduler the registrar needs.
type JobScheduler interface {
	AddFunc(name, description, cronExpr string, fn func(ctx context.Context) error) error
	RemoveJob(name string)
	JobNames() []string
}

// Orchestrator exposes the competition entry points the registrar binds
// scheduler jobs to.
type Orchestrator interface {
	StartCompetition(ctx context.Context, tenantID shared.TenantID) error
	SendStopReminder(ctx context.Context, tenantID shared.TenantID) error
	StopCompetition(ctx context.Context, tenantID shared.TenantID) error
	RefreshResults(ctx context.Context) error
}

// Tenant is one configured cup as the registrar sees it.
type Tenant struct {
	ID        shared.TenantID
	StartTime string // "HH:mm"
	Enabled   bool
}

// Config contains registrar dependencies.
type Config struct {
	Scheduler JobScheduler

	Orchestrator Orchestrator

	// DailyStreakJob runs the streak/freeze accounting (midnight UTC).
	DailyStreakJob func(ctx context.Context) error

	// CloseSeasonJob closes the previous season (first of the month).
	CloseSeasonJob func(ctx context.Context) error

	// Logger for structured logging.
	Logger *slog.Logger
}

// Registrar keeps the scheduler's recurring entries in sync with the
// configured tenants.
type Registrar struct {
	scheduler JobScheduler
	orch      Orchestrator
	dailyJob  func(ctx context.Context) error
	seasonJob func(ctx context.Context) error
	logger    *slog.Logger
}

// New creates a Registrar.
func New(cfg Config) (*Registrar, error) {
	if cfg.Scheduler == nil {
		return nil, fmt.Errorf("registrar: scheduler is required")
	}
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("registrar: orchestrator is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Registrar{
		scheduler: cfg.Scheduler,
		orch:      cfg.Orchestrator,
		dailyJob:  cfg.DailyStreakJob,
		seasonJob: cfg.CloseSeasonJob,
		logger:    cfg.Logger,
	}, nil
}

// Sync replaces all cup-owned recurring entries with entries derived
// from the given tenant roster, then (re-)registers the
// tenant-independent jobs. A tenant with an unparsable start time is
// logged and skipped; the remaining tenants still register.
func (r *Registrar) Sync(ctx context.Context, tenants []Tenant) error {
	r.removeOwnedJobs()

	var registered, skipped int
	for _, tenant := range tenants {
		if !tenant.Enabled {
			continue
		}

		if err := r.registerTenant(tenant); err != nil {
			r.logger.Warn("skipping tenant with bad schedule",
				"tenant", tenant.ID,
				"start_time", tenant.StartTime,
				"error", err,
			)
			skipped++
			continue
		}
		registered++
	}

	if err := r.registerGlobalJobs(); err != nil {
		return err
	}

	r.logger.Info("schedule sync complete",
		"tenants_registered", registered,
		"tenants_skipped", skipped,
	)

	return nil
}

// removeOwnedJobs removes every scheduler entry carrying a cup-owned
// prefix. Entries registered by anything else are left alone.
func (r *Registrar) removeOwnedJobs() {
	for _, name := range r.scheduler.JobNames() {
		if isOwnedJob(name) {
			r.scheduler.RemoveJob(name)
		}
	}
}

func isOwnedJob(name string) bool {
	return strings.HasPrefix(name, startJobPrefix) ||
		strings.HasPrefix(name, stopJobPrefix) ||
		strings.HasPrefix(name, pollJobPrefix)
}

// registerTenant derives the tenant's schedule and registers its three
// trigger jobs.
func (r *Registrar) registerTenant(tenant Tenant) error {
	derived, err := schedule.DeriveFrom(tenant.StartTime)
	if err != nil {
		return err
	}

	tenantID := tenant.ID

	if err := r.scheduler.AddFunc(
		startJobPrefix+string(tenantID),
		fmt.Sprintf("start the daily competition for cup %s", tenantID),
		derived.Start.Expression(),
		func(ctx context.Context) error {
			return r.orch.StartCompetition(ctx, tenantID)
		},
	); err != nil {
		return err
	}

	if err := r.scheduler.AddFunc(
		stopJobPrefix+string(tenantID),
		fmt.Sprintf("close the running competition for cup %s", tenantID),
		derived.Stop.Expression(),
		func(ctx context.Context) error {
			return r.orch.StopCompetition(ctx, tenantID)
		},
	); err != nil {
		return err
	}

	// The reminder poll fires at the same minute as the stop trigger.
	if err := r.scheduler.AddFunc(
		pollJobPrefix+string(tenantID),
		fmt.Sprintf("send the stop reminder for cup %s", tenantID),
		derived.Poll.Expression(),
		func(ctx context.Context) error {
			return r.orch.SendStopReminder(ctx, tenantID)
		},
	); err != nil {
		return err
	}

	r.logger.Debug("tenant jobs registered",
		"tenant", tenantID,
		"start", derived.Start.Expression(),
		"stop", derived.Stop.Expression(),
	)

	return nil
}

// registerGlobalJobs registers the tenant-independent jobs. Name reuse
// means re-registration replaces any prior entry.
func (r *Registrar) registerGlobalJobs() error {
	if err := r.scheduler.AddFunc(
		JobRefreshResults,
		"poll lap-time sources and refresh running competition results",
		refreshResultsCron,
		r.orch.RefreshResults,
	); err != nil {
		return err
	}

	if r.dailyJob != nil {
		if err := r.scheduler.AddFunc(
			JobDailyStreak,
			"daily participation streak and freeze accounting",
			dailyStreakCron,
			r.dailyJob,
		); err != nil {
			return err
		}
	}

	if r.seasonJob != nil {
		if err := r.scheduler.AddFunc(
			JobCloseSeason,
			"close the previous season and publish standings",
			closeSeasonCron,
			r.seasonJob,
		); err != nil {
			return err
		}
	}

	return nil
}
