package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotorcup/rotorcup-hub/internal/domain/competition"
	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
	"github.com/rotorcup/rotorcup-hub/internal/infrastructure/persistence/memory"
)

const testTenant = shared.TenantID("alpha-cup")

// fakeSource serves canned lap records per track.
type fakeSource struct {
	mu      sync.Mutex
	records map[string][]LapRecord
	err     error
}

func newFakeSource() *fakeSource {
	return &fakeSource{records: make(map[string][]LapRecord)}
}

func (f *fakeSource) set(track string, records []LapRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[track] = records
}

func (f *fakeSource) FetchTrackResults(_ context.Context, trackRef string) ([]LapRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.records[trackRef], nil
}

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) byType(t shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	orch         *Orchestrator
	competitions *memory.CompetitionRepository
	pilots       *memory.PilotRepository
	source       *fakeSource
	publisher    *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		competitions: memory.NewCompetitionRepository(),
		pilots:       memory.NewPilotRepository(),
		source:       newFakeSource(),
		publisher:    &recordingPublisher{},
	}

	orch, err := New(Config{
		Competitions: f.competitions,
		Pilots:       f.pilots,
		Source:       f.source,
		Publisher:    f.publisher,
		Tenants: []TenantSettings{
			{ID: testTenant, TrackPool: []string{"velodrome"}},
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	f.orch = orch
	return f
}

// pilotIDFor resolves a board handle to the hub pilot ID.
func (f *fixture) pilotIDFor(t *testing.T, handle string) shared.PilotID {
	t.Helper()
	p, err := f.pilots.GetByHandle(context.Background(), handle)
	require.NoError(t, err)
	return p.ID
}

func TestStartCompetition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.orch.StartCompetition(ctx, testTenant))

	comp, err := f.competitions.FindRunning(ctx, testTenant)
	require.NoError(t, err)
	assert.Equal(t, competition.StateRunning, comp.State)
	assert.Equal(t, "velodrome", comp.TrackRef)

	started := f.publisher.byType(shared.EventCompetitionStarted)
	require.Len(t, started, 1)
}

func TestStartCompetition_SkipsWhenAlreadyRunning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.orch.StartCompetition(ctx, testTenant))
	require.NoError(t, f.orch.StartCompetition(ctx, testTenant))

	// Only one competition ever started.
	assert.Len(t, f.publisher.byType(shared.EventCompetitionStarted), 1)
}

func TestStartCompetition_UnknownTenantHasNoTrackPool(t *testing.T) {
	f := newFixture(t)

	err := f.orch.StartCompetition(context.Background(), shared.TenantID("ghost-cup"))
	assert.Error(t, err)
}

func TestRefreshResults_PublishesOnlyOnDeltas(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.orch.StartCompetition(ctx, testTenant))

	f.source.set("velodrome", []LapRecord{
		{PilotRef: "maverick", LapTime: 48000},
		{PilotRef: "goose", LapTime: 47250},
	})

	require.NoError(t, f.orch.RefreshResults(ctx))
	require.Len(t, f.publisher.byType(shared.EventCurrentResultUpdate), 1)

	// Same records again: no deltas, no event.
	require.NoError(t, f.orch.RefreshResults(ctx))
	assert.Len(t, f.publisher.byType(shared.EventCurrentResultUpdate), 1)

	// An improvement produces another event.
	f.source.set("velodrome", []LapRecord{
		{PilotRef: "maverick", LapTime: 46900},
		{PilotRef: "goose", LapTime: 47250},
	})
	require.NoError(t, f.orch.RefreshResults(ctx))
	assert.Len(t, f.publisher.byType(shared.EventCurrentResultUpdate), 2)
}

func TestRefreshResults_RanksFastestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.orch.StartCompetition(ctx, testTenant))

	f.source.set("velodrome", []LapRecord{
		{PilotRef: "maverick", LapTime: 50000},
		{PilotRef: "goose", LapTime: 0}, // no time yet
		{PilotRef: "iceman", LapTime: 45500},
	})

	require.NoError(t, f.orch.RefreshResults(ctx))

	comp, err := f.competitions.FindRunning(ctx, testTenant)
	require.NoError(t, err)
	require.Len(t, comp.Results, 3)
	assert.Equal(t, f.pilotIDFor(t, "iceman"), comp.Results[0].PilotID)
	assert.Equal(t, shared.Rank(1), comp.Results[0].Rank)
	assert.Equal(t, f.pilotIDFor(t, "maverick"), comp.Results[1].PilotID)
	// The pilot without a time sorts last.
	assert.Equal(t, f.pilotIDFor(t, "goose"), comp.Results[2].PilotID)
}

func TestRefreshResults_RegistersUnknownBoardHandles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.orch.StartCompetition(ctx, testTenant))

	f.source.set("velodrome", []LapRecord{{PilotRef: "maverick", LapTime: 47250}})
	require.NoError(t, f.orch.RefreshResults(ctx))

	// A pilot record now exists for the board handle.
	p, err := f.pilots.GetByHandle(ctx, "maverick")
	require.NoError(t, err)
	assert.True(t, p.ID.IsValid())

	// Results carry the hub pilot ID, not the board handle.
	comp, err := f.competitions.FindRunning(ctx, testTenant)
	require.NoError(t, err)
	require.Len(t, comp.Results, 1)
	assert.Equal(t, p.ID, comp.Results[0].PilotID)

	// The next refresh reuses the registered pilot.
	f.source.set("velodrome", []LapRecord{{PilotRef: "maverick", LapTime: 46900}})
	require.NoError(t, f.orch.RefreshResults(ctx))

	pilots, err := f.pilots.List(ctx)
	require.NoError(t, err)
	assert.Len(t, pilots, 1)
}

func TestRefreshResults_NothingRunningIsNoop(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.orch.RefreshResults(context.Background()))
	assert.Empty(t, f.publisher.events)
}

func TestSendStopReminder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Nothing running: silently skipped.
	require.NoError(t, f.orch.SendStopReminder(ctx, testTenant))
	assert.Empty(t, f.publisher.byType(shared.EventStopReminder))

	require.NoError(t, f.orch.StartCompetition(ctx, testTenant))
	require.NoError(t, f.orch.SendStopReminder(ctx, testTenant))
	assert.Len(t, f.publisher.byType(shared.EventStopReminder), 1)
}

func TestStopCompetition_ClosesWithFinalPointsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.orch.StartCompetition(ctx, testTenant))

	f.source.set("velodrome", []LapRecord{
		{PilotRef: "maverick", LapTime: 48000},
		{PilotRef: "goose", LapTime: 47250},
	})

	require.NoError(t, f.orch.StopCompetition(ctx, testTenant))

	closed, err := f.competitions.FindLastClosed(ctx, testTenant)
	require.NoError(t, err)
	assert.Equal(t, competition.StateClosed, closed.State)

	winner, ok := closed.Winner()
	require.True(t, ok)
	assert.Equal(t, f.pilotIDFor(t, "goose"), winner.PilotID)
	assert.Equal(t, shared.Points(25), winner.Points)

	require.Len(t, f.publisher.byType(shared.EventCompetitionStopped), 1)

	// Second fire finds nothing running and skips.
	require.NoError(t, f.orch.StopCompetition(ctx, testTenant))
	assert.Len(t, f.publisher.byType(shared.EventCompetitionStopped), 1)
}

func TestStopCompetition_SourceOutageStillCloses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.orch.StartCompetition(ctx, testTenant))

	f.source.set("velodrome", []LapRecord{{PilotRef: "maverick", LapTime: 51000}})
	require.NoError(t, f.orch.RefreshResults(ctx))

	// Source goes dark before the stop trigger.
	f.source.err = errors.New("lap-time source unavailable")

	require.NoError(t, f.orch.StopCompetition(ctx, testTenant))

	closed, err := f.competitions.FindLastClosed(ctx, testTenant)
	require.NoError(t, err)
	require.Len(t, closed.Results, 1)
	assert.Equal(t, f.pilotIDFor(t, "maverick"), closed.Results[0].PilotID)
}

func TestCancelCompetition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.orch.StartCompetition(ctx, testTenant))

	require.NoError(t, f.orch.CancelCompetition(ctx, testTenant, "track maintenance"))

	_, err := f.competitions.FindRunning(ctx, testTenant)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Len(t, f.publisher.byType(shared.EventCompetitionCancelled), 1)

	// A later start opens a fresh competition.
	require.NoError(t, f.orch.StartCompetition(ctx, testTenant))
	assert.Len(t, f.publisher.byType(shared.EventCompetitionStarted), 2)
}

func TestPickTrack_DeterministicPerDay(t *testing.T) {
	pool := []string{"velodrome", "gorge", "hangar"}
	day := time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC)

	first := pickTrack(pool, testTenant, day)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, pickTrack(pool, testTenant, day.Add(time.Duration(i)*time.Minute)))
	}
}
