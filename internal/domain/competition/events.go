package competition

import (
	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
)

// Competition lifecycle events. The orchestrator publishes these in
// transition order; consumers receive read-only snapshots and must not
// mutate the embedded aggregate.

// StartedEvent is emitted when a new competition begins.
type StartedEvent struct {
	shared.BaseEvent
	Competition *Competition
	Track       string
	// PriorParticipants - pilots who flew in this tenant's previous
	// competition, used for start announcements.
	PriorParticipants []shared.PilotID
}

// Payload implements shared.Event interface.
func (e StartedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"competition_id":     e.Competition.ID,
		"tenant_id":          e.Competition.TenantID.String(),
		"track":              e.Track,
		"prior_participants": len(e.PriorParticipants),
	}
}

// NewStartedEvent creates a new StartedEvent.
func NewStartedEvent(c *Competition, priorParticipants []shared.PilotID) StartedEvent {
	return StartedEvent{
		BaseEvent:         shared.NewBaseEvent(shared.EventCompetitionStarted, c.ID),
		Competition:       c,
		Track:             c.TrackRef,
		PriorParticipants: priorParticipants,
	}
}

// ResultUpdateEvent is emitted after a poll cycle produced deltas.
// No event is published when a poll finds no changes.
type ResultUpdateEvent struct {
	shared.BaseEvent
	Competition *Competition
	Deltas      []ResultDelta
}

// Payload implements shared.Event interface.
func (e ResultUpdateEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"competition_id": e.Competition.ID,
		"tenant_id":      e.Competition.TenantID.String(),
		"delta_count":    len(e.Deltas),
	}
}

// NewResultUpdateEvent creates a new ResultUpdateEvent.
func NewResultUpdateEvent(c *Competition, deltas []ResultDelta) ResultUpdateEvent {
	return ResultUpdateEvent{
		BaseEvent:   shared.NewBaseEvent(shared.EventCurrentResultUpdate, c.ID),
		Competition: c,
		Deltas:      deltas,
	}
}

// StopReminderEvent is emitted by the pre-stop poll trigger: a last
// chance to fly before the competition closes. State is unchanged.
type StopReminderEvent struct {
	shared.BaseEvent
	TenantID    shared.TenantID
	Competition *Competition
}

// Payload implements shared.Event interface.
func (e StopReminderEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"competition_id": e.Competition.ID,
		"tenant_id":      e.TenantID.String(),
	}
}

// NewStopReminderEvent creates a new StopReminderEvent.
func NewStopReminderEvent(c *Competition) StopReminderEvent {
	return StopReminderEvent{
		BaseEvent:   shared.NewBaseEvent(shared.EventStopReminder, c.ID),
		TenantID:    c.TenantID,
		Competition: c,
	}
}

// StoppedEvent is emitted when a competition is closed with final results.
type StoppedEvent struct {
	shared.BaseEvent
	Competition *Competition
}

// Payload implements shared.Event interface.
func (e StoppedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"competition_id": e.Competition.ID,
		"tenant_id":      e.Competition.TenantID.String(),
		"participants":   len(e.Competition.Results),
	}
}

// NewStoppedEvent creates a new StoppedEvent.
func NewStoppedEvent(c *Competition) StoppedEvent {
	return StoppedEvent{
		BaseEvent:   shared.NewBaseEvent(shared.EventCompetitionStopped, c.ID),
		Competition: c,
	}
}

// CancelledEvent is emitted when a competition is cancelled administratively.
type CancelledEvent struct {
	shared.BaseEvent
	Competition *Competition
	Reason      string
}

// Payload implements shared.Event interface.
func (e CancelledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"competition_id": e.Competition.ID,
		"tenant_id":      e.Competition.TenantID.String(),
		"reason":         e.Reason,
	}
}

// NewCancelledEvent creates a new CancelledEvent.
func NewCancelledEvent(c *Competition, reason string) CancelledEvent {
	return CancelledEvent{
		BaseEvent:   shared.NewBaseEvent(shared.EventCompetitionCancelled, c.ID),
		Competition: c,
		Reason:      reason,
	}
}

// SeasonFinishedEvent is emitted when a tenant's season closes with
// final standings.
type SeasonFinishedEvent struct {
	shared.BaseEvent
	TenantID shared.TenantID
	Season   Season
	Results  []SeasonResult
	Winners  []shared.PilotID
}

// Payload implements shared.Event interface.
func (e SeasonFinishedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"tenant_id": e.TenantID.String(),
		"year":      e.Season.Year,
		"month":     int(e.Season.Month),
		"pilots":    len(e.Results),
		"winners":   len(e.Winners),
	}
}

// NewSeasonFinishedEvent creates a new SeasonFinishedEvent.
func NewSeasonFinishedEvent(season Season, results []SeasonResult) SeasonFinishedEvent {
	return SeasonFinishedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventSeasonFinished, season.TenantID.String()),
		TenantID:  season.TenantID,
		Season:    season,
		Results:   results,
		Winners:   Winners(results),
	}
}
