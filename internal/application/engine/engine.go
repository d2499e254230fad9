// Package engine implements the achievement engine: it listens to
// competition lifecycle events, evaluates the registered rules against
// the pilots involved, commits new grants and publishes one aggregated
// granted event per processed trigger.
package engine

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
)

// Config contains engine dependencies.
type Config struct {
	Rules  *achievement.Registry
	Grants achievement.Repository
	Pilots pilot.Repository

	Publisher shared.EventPublisher

	// Logger for structured logging.
	Logger *slog.Logger

	// Now overrides the clock; used by tests.
	Now func() time.Time
}

// Engine evaluates achievement rules on lifecycle events.
type Engine struct {
	rules     *achievement.Registry
	grants    achievement.Repository
	pilots    pilot.Repository
	publisher shared.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Rules == nil {
		return nil, fmt.Errorf("engine: rule registry is required")
	}
	if cfg.Grants == nil {
		return nil, fmt.Errorf("engine: grant repository is required")
	}
	if cfg.Pilots == nil {
		return nil, fmt.Errorf("engine: pilot repository is required")
	}
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("engine: event publisher is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Engine{
		rules:     cfg.Rules,
		grants:    cfg.Grants,
		pilots:    cfg.Pilots,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}, nil
}

// Subscribe wires the engine's handlers into the event bus.
func (e *Engine) Subscribe(bus shared.EventSubscriber) error {
	if err := bus.Subscribe(shared.EventCurrentResultUpdate, e.handleResultUpdate); err != nil {
		return err
	}
	if err := bus.Subscribe(shared.EventCompetitionStopped, e.handleCompetitionStopped); err != nil {
		return err
	}
	return bus.Subscribe(shared.EventSeasonFinished, e.handleSeasonFinished)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleResultUpdate evaluates time-update rules per pilot in the delta
// batch. A pilot on the leaderboard but not in the registry is skipped
// with a diagnostic - unregistered pilots fly too, they just earn nothing.
func (e *Engine) handleResultUpdate(event shared.Event) error {
	ev, ok := event.(competition.ResultUpdateEvent)
	if !ok {
		return fmt.Errorf("engine: unexpected event type %T", event)
	}

	ctx := context.Background()
	tenantID := ev.Competition.TenantID
	batch := make(achievement.GrantsByTenant)

	for _, pilotID := range competition.PilotsIn(ev.Deltas) {
		p, err := e.pilots.GetByID(ctx, pilotID)
		if errors.Is(err, shared.ErrNotFound) {
			e.logger.Debug("unregistered pilot in delta batch, skipping",
				"pilot_id", pilotID,
				"tenant", tenantID,
			)
			continue
		}
		if err != nil {
			return err
		}

		ownDeltas := competition.DeltasFor(ev.Deltas, pilotID)
		for _, rule := range e.rules.TimeUpdateRules() {
			if rule.CheckDeltas(p, ownDeltas) {
				e.commit(ctx, batch, tenantID, pilotID, rule.Name())
			}
		}
	}

	return e.publishBatch(batch)
}

// handleCompetitionStopped evaluates after-competition rules per pilot
// in the final results, then runs the global rules. A result entry for
// a pilot the registry does not know is inconsistent data: final results
// only contain pilots the poll loop already matched.
func (e *Engine) handleCompetitionStopped(event shared.Event) error {
	ev, ok := event.(competition.StoppedEvent)
	if !ok {
		return fmt.Errorf("engine: unexpected event type %T", event)
	}

	ctx := context.Background()
	tenantID := ev.Competition.TenantID
	batch := make(achievement.GrantsByTenant)

	for _, entry := range ev.Competition.Results {
		p, err := e.pilots.GetByID(ctx, entry.PilotID)
		if errors.Is(err, shared.ErrNotFound) {
			return shared.WrapDomainError("engine", "handleCompetitionStopped",
				shared.ErrInconsistentResultData,
				"final results reference unknown pilot "+entry.PilotID.String(), err)
		}
		if err != nil {
			return err
		}

		for _, rule := range e.rules.CompetitionRules() {
			if rule.CheckCompetition(p, ev.Competition) {
				e.commit(ctx, batch, tenantID, p.ID, rule.Name())
			}
		}
	}

	e.runGlobalRules(ctx, batch)

	return e.publishBatch(batch)
}

// handleSeasonFinished evaluates season rules per pilot in the standings.
func (e *Engine) handleSeasonFinished(event shared.Event) error {
	ev, ok := event.(competition.SeasonFinishedEvent)
	if !ok {
		return fmt.Errorf("engine: unexpected event type %T", event)
	}

	ctx := context.Background()
	batch := make(achievement.GrantsByTenant)

	for _, result := range ev.Results {
		p, err := e.pilots.GetByID(ctx, result.PilotID)
		if errors.Is(err, shared.ErrNotFound) {
			return shared.WrapDomainError("engine", "handleSeasonFinished",
				shared.ErrInconsistentResultData,
				"season standings reference unknown pilot "+result.PilotID.String(), err)
		}
		if err != nil {
			return err
		}

		for _, rule := range e.rules.SeasonRules() {
			if rule.CheckSeason(p, ev.Results) {
				e.commit(ctx, batch, ev.TenantID, p.ID, rule.Name())
			}
		}
	}

	return e.publishBatch(batch)
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATION SUPPORT
// ══════════════════════════════════════════════════════════════════════════════

// EvaluateGlobal runs the global rules outside a lifecycle event. The
// daily streak job calls this after its accounting pass so milestone
// achievements land the same day.
func (e *Engine) EvaluateGlobal(ctx context.Context) error {
	batch := make(achievement.GrantsByTenant)
	e.runGlobalRules(ctx, batch)
	return e.publishBatch(batch)
}

// runGlobalRules collects candidates from every global rule. A failing
// rule is logged and skipped; the other rules still run.
func (e *Engine) runGlobalRules(ctx context.Context, batch achievement.GrantsByTenant) {
	for _, rule := range e.rules.GlobalRules() {
		candidates, err := rule.Check(ctx)
		if err != nil {
			e.logger.Error("global rule check failed",
				"rule", rule.Name(),
				"error", err,
			)
			continue
		}

		for _, c := range candidates {
			name := c.Name
			if name == "" {
				name = rule.Name()
			}
			e.commit(ctx, batch, c.TenantID, c.PilotID, name)
		}
	}
}

// commit saves one grant and records it in the batch. A duplicate is
// absorbed silently - that is what makes redundant event delivery safe.
// A storage failure is logged and the grant dropped from the batch; the
// remaining grants still commit (one write per grant, no shared fate).
func (e *Engine) commit(ctx context.Context, batch achievement.GrantsByTenant, tenantID shared.TenantID, pilotID shared.PilotID, name string) {
	g := achievement.NewGrant(pilotID, name, e.now())

	err := e.grants.SaveGrant(ctx, g)
	if errors.Is(err, shared.ErrAlreadyExists) {
		return
	}
	if err != nil {
		e.logger.Error("grant commit failed",
			"pilot_id", pilotID,
			"achievement", name,
			"error", err,
		)
		return
	}

	e.logger.Info("achievement granted",
		"pilot_id", pilotID,
		"achievement", name,
		"tenant", tenantID,
	)
	batch.Add(tenantID, g)
}

// publishBatch emits the aggregated granted event when the batch is
// non-empty.
func (e *Engine) publishBatch(batch achievement.GrantsByTenant) error {
	if batch.Total() == 0 {
		return nil
	}
	return e.publisher.Publish(achievement.NewGrantedEvent(batch))
}
