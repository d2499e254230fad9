// Package seasonjob implements the monthly season close: shortly after
// the first of the month it aggregates the previous month's closed
// competitions into per-tenant standings and publishes the season
// finished events the achievement and notification pipelines consume.
package seasonjob

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rotorcup/rotorcup-hub/internal/domain/competition"
	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
	"github.com/rotorcup/rotorcup-hub/pkg/timeutil"
)

// Config contains closer dependencies.
type Config struct {
	Competitions competition.Repository
	Tenants      []shared.TenantID
	Publisher    shared.EventPublisher

	// Logger for structured logging.
	Logger *slog.Logger

	// Now overrides the clock; used by tests.
	Now func() time.Time
}

// Closer computes and publishes season standings once per month.
type Closer struct {
	competitions competition.Repository
	tenants      []shared.TenantID
	publisher    shared.EventPublisher
	logger       *slog.Logger
	now          func() time.Time
}

// New creates a Closer.
func New(cfg Config) (*Closer, error) {
	if cfg.Competitions == nil {
		return nil, fmt.Errorf("seasonjob: competition repository is required")
	}
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("seasonjob: event publisher is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Closer{
		competitions: cfg.Competitions,
		tenants:      cfg.Tenants,
		publisher:    cfg.Publisher,
		logger:       cfg.Logger,
		now:          cfg.Now,
	}, nil
}

// Run closes the season that just ended. The job fires a few minutes
// into the new month, so the target season is the month containing
// yesterday. Tenants with no closed competitions that month are skipped.
func (c *Closer) Run(ctx context.Context) error {
	anchor := timeutil.PreviousDay(c.now())
	from := timeutil.StartOfMonth(anchor)
	to := timeutil.NextMonth(from)

	var firstErr error
	for _, tenantID := range c.tenants {
		if err := c.closeTenant(ctx, tenantID, from, to); err != nil {
			c.logger.Error("season close failed",
				"tenant_id", tenantID,
				"season", from.Format("2006-01"),
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (c *Closer) closeTenant(ctx context.Context, tenantID shared.TenantID, from, to time.Time) error {
	comps, err := c.competitions.ListClosedBetween(ctx, tenantID, from, to)
	if err != nil {
		return err
	}
	if len(comps) == 0 {
		c.logger.Debug("no competitions this season, skipping",
			"tenant_id", tenantID,
			"season", from.Format("2006-01"),
		)
		return nil
	}

	standings := competition.ComputeStandings(comps)
	season := competition.SeasonOf(tenantID, from)

	if err := c.publisher.Publish(competition.NewSeasonFinishedEvent(season, standings)); err != nil {
		return err
	}

	c.logger.Info("season closed",
		"tenant_id", tenantID,
		"season", from.Format("2006-01"),
		"competitions", len(comps),
		"pilots", len(standings),
	)
	return nil
}
