package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotorcup/rotorcup-hub/internal/domain/achievement"
	"github.com/rotorcup/rotorcup-hub/internal/domain/competition"
	"github.com/rotorcup/rotorcup-hub/internal/domain/pilot"
	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
	"github.com/rotorcup/rotorcup-hub/internal/infrastructure/persistence/memory"
)

const testTenant = shared.TenantID("alpha-cup")

var testTime = time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	events []shared.Event
}

func (p *recordingPublisher) Publish(event shared.Event) error {
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) grantedEvents() []achievement.GrantedEvent {
	var out []achievement.GrantedEvent
	for _, e := range p.events {
		if ge, ok := e.(achievement.GrantedEvent); ok {
			out = append(out, ge)
		}
	}
	return out
}

type fixture struct {
	engine    *Engine
	grants    *memory.GrantRepository
	pilots    *memory.PilotRepository
	publisher *recordingPublisher
}

func newFixture(t *testing.T, rules *achievement.Registry) *fixture {
	t.Helper()

	f := &fixture{
		grants:    memory.NewGrantRepository(),
		pilots:    memory.NewPilotRepository(),
		publisher: &recordingPublisher{},
	}

	eng, err := New(Config{
		Rules:     rules,
		Grants:    f.grants,
		Pilots:    f.pilots,
		Publisher: f.publisher,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:       func() time.Time { return testTime },
	})
	require.NoError(t, err)
	f.engine = eng
	return f
}

func (f *fixture) registerPilot(t *testing.T, handle string) *pilot.Pilot {
	t.Helper()
	p, err := pilot.New(handle, testTime)
	require.NoError(t, err)
	require.NoError(t, f.pilots.Create(context.Background(), p))
	return p
}

func newCompetition(t *testing.T, results []competition.ResultEntry) *competition.Competition {
	t.Helper()
	c, err := competition.New(testTenant, "velodrome", testTime)
	require.NoError(t, err)
	c.Results = results
	return c
}

func TestEngine_TimeUpdateGrants(t *testing.T) {
	rules := achievement.NewRegistry().
		RegisterTimeUpdate(achievement.FirstEntryRule{}, achievement.RankClimbRule{})
	f := newFixture(t, rules)

	p := f.registerPilot(t, "maverick")
	comp := newCompetition(t, nil)

	deltas := []competition.ResultDelta{
		{PilotID: p.ID, OldLapTime: 0, NewLapTime: 48000, OldRank: 0, NewRank: 4},
	}

	err := f.engine.handleResultUpdate(competition.NewResultUpdateEvent(comp, deltas))
	require.NoError(t, err)

	held, err := f.grants.ListByPilot(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, "rookie-lap", held[0].AchievementName)

	granted := f.publisher.grantedEvents()
	require.Len(t, granted, 1)
	assert.Len(t, granted[0].GrantsByTenant[testTenant], 1)
}

func TestEngine_TimeUpdateSkipsUnregisteredPilot(t *testing.T) {
	rules := achievement.NewRegistry().RegisterTimeUpdate(achievement.FirstEntryRule{})
	f := newFixture(t, rules)

	comp := newCompetition(t, nil)
	deltas := []competition.ResultDelta{
		{PilotID: shared.PilotID("11111111-2222-3333-4444-555555555555"), NewLapTime: 48000, NewRank: 1},
	}

	// Unknown pilot on a time update is skipped, not an error.
	err := f.engine.handleResultUpdate(competition.NewResultUpdateEvent(comp, deltas))
	require.NoError(t, err)
	assert.Empty(t, f.publisher.grantedEvents())
}

func TestEngine_DuplicateDeliveryIsIdempotent(t *testing.T) {
	rules := achievement.NewRegistry().RegisterTimeUpdate(achievement.FirstEntryRule{})
	f := newFixture(t, rules)

	p := f.registerPilot(t, "maverick")
	comp := newCompetition(t, nil)
	deltas := []competition.ResultDelta{
		{PilotID: p.ID, NewLapTime: 48000, NewRank: 1},
	}
	event := competition.NewResultUpdateEvent(comp, deltas)

	require.NoError(t, f.engine.handleResultUpdate(event))
	require.NoError(t, f.engine.handleResultUpdate(event))

	held, err := f.grants.ListByPilot(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Len(t, held, 1)

	// The second delivery commits nothing, so no second granted event.
	assert.Len(t, f.publisher.grantedEvents(), 1)
}

func TestEngine_CompetitionStoppedGrants(t *testing.T) {
	rules := achievement.NewRegistry().
		RegisterCompetition(achievement.DailyWinnerRule{}, achievement.PodiumRule{})
	f := newFixture(t, rules)

	winner := f.registerPilot(t, "maverick")
	second := f.registerPilot(t, "goose")

	comp := newCompetition(t, []competition.ResultEntry{
		{PilotID: winner.ID, LapTime: 47250, Rank: 1, Points: 25},
		{PilotID: second.ID, LapTime: 48000, Rank: 2, Points: 20},
	})

	err := f.engine.handleCompetitionStopped(competition.NewStoppedEvent(comp))
	require.NoError(t, err)

	winnerGrants, err := f.grants.ListByPilot(context.Background(), winner.ID)
	require.NoError(t, err)
	names := make([]string, len(winnerGrants))
	for i, g := range winnerGrants {
		names[i] = g.AchievementName
	}
	assert.ElementsMatch(t, []string{"daily-winner", "podium-finisher"}, names)

	secondGrants, err := f.grants.ListByPilot(context.Background(), second.ID)
	require.NoError(t, err)
	require.Len(t, secondGrants, 1)
	assert.Equal(t, "podium-finisher", secondGrants[0].AchievementName)
}

func TestEngine_CompetitionStoppedUnknownPilotIsInconsistent(t *testing.T) {
	rules := achievement.NewRegistry().RegisterCompetition(achievement.DailyWinnerRule{})
	f := newFixture(t, rules)

	comp := newCompetition(t, []competition.ResultEntry{
		{PilotID: shared.PilotID("11111111-2222-3333-4444-555555555555"), LapTime: 47250, Rank: 1},
	})

	err := f.engine.handleCompetitionStopped(competition.NewStoppedEvent(comp))
	assert.ErrorIs(t, err, shared.ErrInconsistentResultData)
}

func TestEngine_SeasonFinishedGrants(t *testing.T) {
	rules := achievement.NewRegistry().
		RegisterSeason(achievement.SeasonPodiumRule{}, achievement.EverPresentRule{MinCompetitions: 2})
	f := newFixture(t, rules)

	champ := f.registerPilot(t, "maverick")
	fourth := f.registerPilot(t, "goose")

	results := []competition.SeasonResult{
		{PilotID: champ.ID, TotalPoints: 90, Competitions: 4, Rank: 1},
		{PilotID: fourth.ID, TotalPoints: 12, Competitions: 1, Rank: 4},
	}
	season := competition.SeasonOf(testTenant, testTime)

	err := f.engine.handleSeasonFinished(competition.NewSeasonFinishedEvent(season, results))
	require.NoError(t, err)

	champGrants, err := f.grants.ListByPilot(context.Background(), champ.ID)
	require.NoError(t, err)
	names := make([]string, len(champGrants))
	for i, g := range champGrants {
		names[i] = g.AchievementName
	}
	assert.ElementsMatch(t, []string{"season-podium", "ever-present"}, names)

	fourthGrants, err := f.grants.ListByPilot(context.Background(), fourth.ID)
	require.NoError(t, err)
	assert.Empty(t, fourthGrants)
}

func TestEngine_SeasonFinishedUnknownPilotIsInconsistent(t *testing.T) {
	rules := achievement.NewRegistry().RegisterSeason(achievement.SeasonPodiumRule{})
	f := newFixture(t, rules)

	results := []competition.SeasonResult{
		{PilotID: shared.PilotID("11111111-2222-3333-4444-555555555555"), Rank: 1},
	}
	season := competition.SeasonOf(testTenant, testTime)

	err := f.engine.handleSeasonFinished(competition.NewSeasonFinishedEvent(season, results))
	assert.ErrorIs(t, err, shared.ErrInconsistentResultData)
}

// stubGlobalRule mints a fixed candidate set.
type stubGlobalRule struct {
	grants []achievement.GlobalGrant
}

func (stubGlobalRule) Name() string        { return "stub-global" }
func (stubGlobalRule) Description() string { return "" }
func (r stubGlobalRule) Check(context.Context) ([]achievement.GlobalGrant, error) {
	return r.grants, nil
}

func TestEngine_EvaluateGlobal(t *testing.T) {
	p := shared.PilotID("11111111-2222-3333-4444-555555555555")
	rules := achievement.NewRegistry().RegisterGlobal(stubGlobalRule{
		grants: []achievement.GlobalGrant{
			{PilotID: p, Name: "streak-10", TenantID: testTenant},
			{PilotID: p}, // no name override, no tenant
		},
	})
	f := newFixture(t, rules)

	require.NoError(t, f.engine.EvaluateGlobal(context.Background()))

	held, err := f.grants.ListByPilot(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, held, 2)

	granted := f.publisher.grantedEvents()
	require.Len(t, granted, 1)
	// Un-attributed grants land under the empty tenant key.
	assert.Len(t, granted[0].GrantsByTenant[shared.TenantID("")], 1)
	assert.Len(t, granted[0].GrantsByTenant[testTenant], 1)
}

func TestEngine_GrantedEventGroupsByTenant(t *testing.T) {
	rules := achievement.NewRegistry().RegisterCompetition(achievement.DailyWinnerRule{})
	f := newFixture(t, rules)

	p := f.registerPilot(t, "maverick")
	comp := newCompetition(t, []competition.ResultEntry{
		{PilotID: p.ID, LapTime: 47250, Rank: 1, Points: 25},
	})

	require.NoError(t, f.engine.handleCompetitionStopped(competition.NewStoppedEvent(comp)))

	granted := f.publisher.grantedEvents()
	require.Len(t, granted, 1)
	grants := granted[0].GrantsByTenant[testTenant]
	require.Len(t, grants, 1)
	assert.Equal(t, "daily-winner", grants[0].AchievementName)
	assert.Equal(t, testTime, grants[0].GrantedAt)
}
