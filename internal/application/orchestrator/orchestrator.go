// Package orchestrator drives the competition lifecycle: starting the
// daily competition per cup, polling lap-time results, sending the
// pre-stop reminder and closing with final standings. Every entry point
// runs under a per-(job, tenant) execution lock so overlapping scheduler
// fires never race on the same competition.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"time"

	"github.com/rotorcup/rotorcup-hub/internal/domain/competition"
	"github.com/rotorcup/rotorcup-hub/internal/domain/pilot"
	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
	"github.com/rotorcup/rotorcup-hub/pkg/keylock"
)

// defaultLockTimeout bounds how long an entry point waits for its
// execution lock before skipping the cycle.
const defaultLockTimeout = 60 * time.Second

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// LapRecord is one pilot's best lap on a track as reported by the
// external lap-time source. PilotRef is the board's own pilot key (the
// leaderboard handle), not a hub pilot ID.
type LapRecord struct {
	PilotRef string
	LapTime  shared.LapTime
}

// ResultSource fetches raw lap-time records for a track.
type ResultSource interface {
	FetchTrackResults(ctx context.Context, trackRef string) ([]LapRecord, error)
}

// SnapshotCache stores the last-poll result snapshot per competition.
// A miss returns shared.ErrNotFound; the orchestrator then falls back
// to the persisted results.
type SnapshotCache interface {
	Get(ctx context.Context, competitionID string) ([]competition.ResultEntry, error)
	Set(ctx context.Context, competitionID string, results []competition.ResultEntry) error
}

// TenantSettings is the per-cup configuration the orchestrator needs.
type TenantSettings struct {
	ID        shared.TenantID
	TrackPool []string
}

// ══════════════════════════════════════════════════════════════════════════════
// ORCHESTRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Config contains orchestrator dependencies.
type Config struct {
	Competitions competition.Repository
	Pilots       pilot.Repository
	Source       ResultSource

	// Snapshots is optional; without it every diff falls back to the
	// persisted results.
	Snapshots SnapshotCache

	Publisher shared.EventPublisher

	Tenants []TenantSettings

	// LockTimeout bounds the wait for an execution lock (default 60s).
	LockTimeout time.Duration

	// Logger for structured logging.
	Logger *slog.Logger

	// Now overrides the clock; used by tests.
	Now func() time.Time
}

// Orchestrator owns all competition state transitions.
type Orchestrator struct {
	competitions competition.Repository
	pilots       pilot.Repository
	source       ResultSource
	snapshots    SnapshotCache
	publisher    shared.EventPublisher
	tenants      map[shared.TenantID]TenantSettings
	tenantOrder  []shared.TenantID
	locks        *keylock.KeyedLock
	lockTimeout  time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Competitions == nil {
		return nil, fmt.Errorf("orchestrator: competition repository is required")
	}
	if cfg.Pilots == nil {
		return nil, fmt.Errorf("orchestrator: pilot repository is required")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("orchestrator: result source is required")
	}
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("orchestrator: event publisher is required")
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaultLockTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	tenants := make(map[shared.TenantID]TenantSettings, len(cfg.Tenants))
	order := make([]shared.TenantID, 0, len(cfg.Tenants))
	for _, t := range cfg.Tenants {
		tenants[t.ID] = t
		order = append(order, t.ID)
	}

	return &Orchestrator{
		competitions: cfg.Competitions,
		pilots:       cfg.Pilots,
		source:       cfg.Source,
		snapshots:    cfg.Snapshots,
		publisher:    cfg.Publisher,
		tenants:      tenants,
		tenantOrder:  order,
		locks:        keylock.New(),
		lockTimeout:  cfg.LockTimeout,
		logger:       cfg.Logger,
		now:          cfg.Now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY POINTS
// ══════════════════════════════════════════════════════════════════════════════

// StartCompetition opens a new competition for the tenant. If a
// competition is already running the start is skipped: the stop trigger
// owns closing, never the start trigger.
func (o *Orchestrator) StartCompetition(ctx context.Context, tenantID shared.TenantID) error {
	release, ok := o.acquire(ctx, "start-competition", tenantID)
	if !ok {
		return nil
	}
	defer release()

	if _, err := o.competitions.FindRunning(ctx, tenantID); err == nil {
		o.logger.Warn("start skipped: competition already running", "tenant", tenantID)
		return nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return err
	}

	settings, ok := o.tenants[tenantID]
	if !ok || len(settings.TrackPool) == 0 {
		return shared.NewDomainError("orchestrator", "StartCompetition", shared.ErrEmptyValue,
			"tenant "+tenantID.String()+" has no track pool")
	}

	now := o.now().UTC()
	track := pickTrack(settings.TrackPool, tenantID, now)

	comp, err := competition.New(tenantID, track, now)
	if err != nil {
		return err
	}

	// Participants of the last closed competition seed the start
	// announcement audience.
	var prior []shared.PilotID
	if last, err := o.competitions.FindLastClosed(ctx, tenantID); err == nil {
		prior = last.Participants()
	} else if !errors.Is(err, shared.ErrNotFound) {
		return err
	}

	if err := o.competitions.Create(ctx, comp); err != nil {
		return err
	}

	o.logger.Info("competition started",
		"tenant", tenantID,
		"competition_id", comp.ID,
		"track", track,
	)

	return o.publisher.Publish(competition.NewStartedEvent(comp, prior))
}

// RefreshResults polls the lap-time source for every tenant's running
// competition and publishes a result-update event when, and only when,
// the poll produced deltas.
func (o *Orchestrator) RefreshResults(ctx context.Context) error {
	var firstErr error
	for _, tenantID := range o.tenantOrder {
		if err := o.refreshTenant(ctx, tenantID); err != nil {
			o.logger.Error("result refresh failed", "tenant", tenantID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (o *Orchestrator) refreshTenant(ctx context.Context, tenantID shared.TenantID) error {
	release, ok := o.acquire(ctx, "refresh-results", tenantID)
	if !ok {
		return nil
	}
	defer release()

	comp, err := o.competitions.FindRunning(ctx, tenantID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	current, err := o.fetchCurrentResults(ctx, comp.TrackRef)
	if err != nil {
		return err
	}

	previous := o.lastSnapshot(ctx, comp)

	deltas := competition.DiffResults(previous, current)
	if len(deltas) == 0 {
		return nil
	}

	if err := comp.UpdateResults(current, o.now()); err != nil {
		return err
	}
	if err := o.competitions.Update(ctx, comp); err != nil {
		return err
	}
	o.storeSnapshot(ctx, comp.ID, current)

	o.logger.Info("results refreshed",
		"tenant", tenantID,
		"competition_id", comp.ID,
		"deltas", len(deltas),
	)

	return o.publisher.Publish(competition.NewResultUpdateEvent(comp, deltas))
}

// SendStopReminder publishes the last-chance reminder for the tenant's
// running competition. State is not changed.
func (o *Orchestrator) SendStopReminder(ctx context.Context, tenantID shared.TenantID) error {
	release, ok := o.acquire(ctx, "stop-poll", tenantID)
	if !ok {
		return nil
	}
	defer release()

	comp, err := o.competitions.FindRunning(ctx, tenantID)
	if errors.Is(err, shared.ErrNotFound) {
		o.logger.Debug("stop reminder skipped: nothing running", "tenant", tenantID)
		return nil
	}
	if err != nil {
		return err
	}

	return o.publisher.Publish(competition.NewStopReminderEvent(comp))
}

// StopCompetition performs one final result poll, closes the tenant's
// running competition with final ranks and points, and publishes the
// stopped event. Closing is exactly-once: a second fire finds nothing
// running and skips.
func (o *Orchestrator) StopCompetition(ctx context.Context, tenantID shared.TenantID) error {
	release, ok := o.acquire(ctx, "stop-competition", tenantID)
	if !ok {
		return nil
	}
	defer release()

	comp, err := o.competitions.FindRunning(ctx, tenantID)
	if errors.Is(err, shared.ErrNotFound) {
		o.logger.Warn("stop skipped: nothing running", "tenant", tenantID)
		return nil
	}
	if err != nil {
		return err
	}

	// Final poll before the close so late laps count. A source outage
	// here must not block the close - the persisted results stand.
	if current, err := o.fetchCurrentResults(ctx, comp.TrackRef); err != nil {
		o.logger.Error("final result poll failed, closing with last known results",
			"tenant", tenantID,
			"competition_id", comp.ID,
			"error", err,
		)
	} else if err := comp.UpdateResults(current, o.now()); err != nil {
		return err
	}

	if err := comp.Close(o.now()); err != nil {
		return err
	}
	if err := o.competitions.Update(ctx, comp); err != nil {
		return err
	}
	o.storeSnapshot(ctx, comp.ID, comp.Results)

	o.logger.Info("competition closed",
		"tenant", tenantID,
		"competition_id", comp.ID,
		"participants", len(comp.Results),
	)

	return o.publisher.Publish(competition.NewStoppedEvent(comp))
}

// CancelCompetition cancels the tenant's running competition. Cancelled
// competitions are excluded from standings and achievement evaluation.
func (o *Orchestrator) CancelCompetition(ctx context.Context, tenantID shared.TenantID, reason string) error {
	release, ok := o.acquire(ctx, "cancel-competition", tenantID)
	if !ok {
		return nil
	}
	defer release()

	comp, err := o.competitions.FindRunning(ctx, tenantID)
	if err != nil {
		return err
	}

	if err := comp.Cancel(o.now()); err != nil {
		return err
	}
	if err := o.competitions.Update(ctx, comp); err != nil {
		return err
	}

	o.logger.Info("competition cancelled",
		"tenant", tenantID,
		"competition_id", comp.ID,
		"reason", reason,
	)

	return o.publisher.Publish(competition.NewCancelledEvent(comp, reason))
}

// ══════════════════════════════════════════════════════════════════════════════
// INTERNALS
// ══════════════════════════════════════════════════════════════════════════════

// acquire takes the execution lock for (job, tenant). On timeout the
// cycle is skipped with a warning - the next trigger compensates.
func (o *Orchestrator) acquire(ctx context.Context, job string, tenantID shared.TenantID) (func(), bool) {
	key := job + "-" + tenantID.String()
	release, err := o.locks.Acquire(ctx, key, o.lockTimeout)
	if err != nil {
		o.logger.Warn("execution lock not acquired, skipping cycle",
			"job", job,
			"tenant", tenantID,
		)
		return nil, false
	}
	return release, true
}

// fetchCurrentResults pulls lap records from the source, resolves the
// board's pilot refs to hub pilots, and converts them into a
// provisionally ranked result table.
func (o *Orchestrator) fetchCurrentResults(ctx context.Context, trackRef string) ([]competition.ResultEntry, error) {
	records, err := o.source.FetchTrackResults(ctx, trackRef)
	if err != nil {
		return nil, err
	}
	entries, err := o.resolveRecords(ctx, records)
	if err != nil {
		return nil, err
	}
	return rankEntries(entries), nil
}

// resolveRecords maps board pilot refs (leaderboard handles) to pilot
// IDs. A handle seen for the first time registers a new pilot, so
// racers appearing mid-competition still score.
func (o *Orchestrator) resolveRecords(ctx context.Context, records []LapRecord) ([]competition.ResultEntry, error) {
	entries := make([]competition.ResultEntry, 0, len(records))
	for _, r := range records {
		p, err := o.pilots.GetByHandle(ctx, r.PilotRef)
		if errors.Is(err, shared.ErrNotFound) {
			p, err = o.registerPilot(ctx, r.PilotRef)
		}
		if err != nil {
			return nil, fmt.Errorf("resolve pilot ref %q: %w", r.PilotRef, err)
		}
		entries = append(entries, competition.ResultEntry{PilotID: p.ID, LapTime: r.LapTime})
	}
	return entries, nil
}

func (o *Orchestrator) registerPilot(ctx context.Context, handle string) (*pilot.Pilot, error) {
	p, err := pilot.New(handle, o.now())
	if err != nil {
		return nil, err
	}
	if err := o.pilots.Create(ctx, p); err != nil {
		// Lost the race with a concurrent refresh: re-read.
		if errors.Is(err, shared.ErrAlreadyExists) {
			return o.pilots.GetByHandle(ctx, handle)
		}
		return nil, err
	}

	o.logger.Info("registered new pilot from board",
		"handle", handle,
		"pilot_id", p.ID,
	)
	return p, nil
}

// rankEntries assigns provisional ranks (fastest first, pilots without
// a time last). Points stay zero until the competition closes.
func rankEntries(entries []competition.ResultEntry) []competition.ResultEntry {
	sortEntries(entries)
	for i := range entries {
		entries[i].Rank = shared.Rank(i + 1)
	}
	return entries
}

func sortEntries(entries []competition.ResultEntry) {
	// Insertion sort keeps source order between equal times.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].LapTime.FasterThan(entries[j-1].LapTime); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

// lastSnapshot returns the previous poll's results, preferring the
// cache and falling back to the persisted aggregate.
func (o *Orchestrator) lastSnapshot(ctx context.Context, comp *competition.Competition) []competition.ResultEntry {
	if o.snapshots == nil {
		return comp.Results
	}

	cached, err := o.snapshots.Get(ctx, comp.ID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			o.logger.Warn("snapshot cache read failed",
				"competition_id", comp.ID,
				"error", err,
			)
		}
		return comp.Results
	}
	return cached
}

// storeSnapshot writes the snapshot cache best-effort.
func (o *Orchestrator) storeSnapshot(ctx context.Context, competitionID string, results []competition.ResultEntry) {
	if o.snapshots == nil {
		return
	}
	if err := o.snapshots.Set(ctx, competitionID, results); err != nil {
		o.logger.Warn("snapshot cache write failed",
			"competition_id", competitionID,
			"error", err,
		)
	}
}

// pickTrack selects a track deterministically for (tenant, day): the
// same day always races the same track even across restarts.
func pickTrack(pool []string, tenantID shared.TenantID, day time.Time) string {
	h := fnv.New64a()
	h.Write([]byte(tenantID))
	h.Write([]byte(day.UTC().Format("2006-01-02")))

	rng := rand.New(rand.NewSource(int64(h.Sum64())))
	return pool[rng.Intn(len(pool))]
}
