package seasonjob

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotorcup/rotorcup-hub/internal/domain/competition"
	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
	"github.com/rotorcup/rotorcup-hub/internal/infrastructure/persistence/memory"
)

const testTenant = shared.TenantID("alpha-cup")

// jobTime is the first cron firing of June; the season to close is May.
var jobTime = time.Date(2026, 6, 1, 0, 5, 0, 0, time.UTC)

type recordingPublisher struct {
	events []shared.Event
}

func (p *recordingPublisher) Publish(event shared.Event) error {
	p.events = append(p.events, event)
	return nil
}

type fixture struct {
	closer       *Closer
	competitions *memory.CompetitionRepository
	publisher    *recordingPublisher
}

func newFixture(t *testing.T, tenants ...shared.TenantID) *fixture {
	t.Helper()
	if len(tenants) == 0 {
		tenants = []shared.TenantID{testTenant}
	}

	f := &fixture{
		competitions: memory.NewCompetitionRepository(),
		publisher:    &recordingPublisher{},
	}

	closer, err := New(Config{
		Competitions: f.competitions,
		Tenants:      tenants,
		Publisher:    f.publisher,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:          func() time.Time { return jobTime },
	})
	require.NoError(t, err)
	f.closer = closer
	return f
}

func (f *fixture) closeCompetition(t *testing.T, tenantID shared.TenantID, day time.Time, entries []competition.ResultEntry) {
	t.Helper()
	ctx := context.Background()

	c, err := competition.New(tenantID, "velodrome", day.Add(15*time.Hour))
	require.NoError(t, err)
	require.NoError(t, f.competitions.Create(ctx, c))
	require.NoError(t, c.UpdateResults(entries, day.Add(20*time.Hour)))
	require.NoError(t, c.Close(day.Add(21*time.Hour)))
	require.NoError(t, f.competitions.Update(ctx, c))
}

func newPilotID(t *testing.T) shared.PilotID {
	t.Helper()
	return shared.PilotID(uuid.NewString())
}

func TestRun_PublishesSeasonStandings(t *testing.T) {
	f := newFixture(t)
	winner, second := newPilotID(t), newPilotID(t)

	// Two race days inside May; the winner takes both.
	for _, day := range []time.Time{
		time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC),
	} {
		f.closeCompetition(t, testTenant, day, []competition.ResultEntry{
			{PilotID: second, LapTime: 48000},
			{PilotID: winner, LapTime: 47250},
		})
	}

	require.NoError(t, f.closer.Run(context.Background()))

	require.Len(t, f.publisher.events, 1)
	ev, ok := f.publisher.events[0].(competition.SeasonFinishedEvent)
	require.True(t, ok)

	assert.Equal(t, testTenant, ev.TenantID)
	assert.Equal(t, 2026, ev.Season.Year)
	assert.Equal(t, time.May, ev.Season.Month)

	require.Len(t, ev.Results, 2)
	assert.Equal(t, winner, ev.Results[0].PilotID)
	assert.Equal(t, 2, ev.Results[0].Wins)
	assert.Equal(t, shared.Rank(1), ev.Results[0].Rank)
	assert.Contains(t, ev.Winners, winner)
}

func TestRun_IgnoresCompetitionsOutsideSeason(t *testing.T) {
	f := newFixture(t)
	p := newPilotID(t)

	// Closed on the first of June, after the season being closed.
	f.closeCompetition(t, testTenant, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		[]competition.ResultEntry{{PilotID: p, LapTime: 47250}})

	require.NoError(t, f.closer.Run(context.Background()))
	assert.Empty(t, f.publisher.events)
}

func TestRun_SkipsTenantsWithNoCompetitions(t *testing.T) {
	f := newFixture(t, testTenant, shared.TenantID("beta-cup"))
	p := newPilotID(t)

	f.closeCompetition(t, testTenant, time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC),
		[]competition.ResultEntry{{PilotID: p, LapTime: 47250}})

	require.NoError(t, f.closer.Run(context.Background()))

	require.Len(t, f.publisher.events, 1)
	ev := f.publisher.events[0].(competition.SeasonFinishedEvent)
	assert.Equal(t, testTenant, ev.TenantID)
}
