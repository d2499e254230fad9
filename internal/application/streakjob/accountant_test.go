package streakjob

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotorcup/rotorcup-hub/internal/domain/competition"
	"github.com/rotorcup/rotorcup-hub/internal/domain/pilot"
	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
	"github.com/rotorcup/rotorcup-hub/internal/domain/streak"
	"github.com/rotorcup/rotorcup-hub/internal/infrastructure/persistence/memory"
)

const testTenant = shared.TenantID("alpha-cup")

// raceDay is the day being accounted; the job fires just after the
// following midnight.
var (
	raceDay = time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	jobTime = time.Date(2026, 5, 11, 0, 0, 30, 0, time.UTC)
)

type fixture struct {
	accountant   *Accountant
	streaks      *memory.StreakRepository
	pilots       *memory.PilotRepository
	competitions *memory.CompetitionRepository
	globalRuns   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		streaks:      memory.NewStreakRepository(),
		pilots:       memory.NewPilotRepository(),
		competitions: memory.NewCompetitionRepository(),
	}

	acc, err := New(Config{
		Streaks:      f.streaks,
		Pilots:       f.pilots,
		Competitions: f.competitions,
		Tenants:      []shared.TenantID{testTenant},
		EvaluateGlobal: func(context.Context) error {
			f.globalRuns++
			return nil
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    func() time.Time { return jobTime },
	})
	require.NoError(t, err)
	f.accountant = acc
	return f
}

func (f *fixture) registerPilot(t *testing.T, handle string) *pilot.Pilot {
	t.Helper()
	p, err := pilot.New(handle, raceDay)
	require.NoError(t, err)
	require.NoError(t, f.pilots.Create(context.Background(), p))
	return p
}

// closeCompetition persists a competition closed on raceDay with the
// given result entries.
func (f *fixture) closeCompetition(t *testing.T, entries []competition.ResultEntry) {
	t.Helper()
	ctx := context.Background()

	c, err := competition.New(testTenant, "velodrome", raceDay.Add(15*time.Hour))
	require.NoError(t, err)
	require.NoError(t, f.competitions.Create(ctx, c))

	require.NoError(t, c.UpdateResults(entries, raceDay.Add(20*time.Hour)))
	require.NoError(t, c.Close(raceDay.Add(21*time.Hour)))
	require.NoError(t, f.competitions.Update(ctx, c))
}

func TestRunDaily_CreditsParticipants(t *testing.T) {
	f := newFixture(t)
	p := f.registerPilot(t, "maverick")

	f.closeCompetition(t, []competition.ResultEntry{{PilotID: p.ID, LapTime: 47250}})

	require.NoError(t, f.accountant.RunDaily(context.Background()))

	s, err := f.streaks.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Current)
	assert.Equal(t, raceDay, s.LastParticipation)

	assert.Equal(t, 1, f.globalRuns)
}

func TestRunDaily_IsRerunSafe(t *testing.T) {
	f := newFixture(t)
	p := f.registerPilot(t, "maverick")
	f.closeCompetition(t, []competition.ResultEntry{{PilotID: p.ID, LapTime: 47250}})

	require.NoError(t, f.accountant.RunDaily(context.Background()))
	require.NoError(t, f.accountant.RunDaily(context.Background()))

	s, err := f.streaks.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Current)
}

func TestRunDaily_MissWithoutFreezeResetsStreak(t *testing.T) {
	f := newFixture(t)
	p := f.registerPilot(t, "maverick")

	s := streak.New(p.ID, raceDay)
	s.Current = 29
	s.Max = 29
	s.LastParticipation = raceDay.AddDate(0, 0, -1)
	require.NoError(t, f.streaks.Save(context.Background(), s))

	require.NoError(t, f.accountant.RunDaily(context.Background()))

	got, err := f.streaks.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Current)
	assert.Equal(t, 29, got.Max)
}

func TestRunDaily_MissConsumesFreezeFirst(t *testing.T) {
	f := newFixture(t)
	p := f.registerPilot(t, "maverick")

	s := streak.New(p.ID, raceDay)
	s.Current = 29
	s.Max = 29
	s.FreezeBalance = 1
	s.LastParticipation = raceDay.AddDate(0, 0, -1)
	require.NoError(t, f.streaks.Save(context.Background(), s))

	require.NoError(t, f.accountant.RunDaily(context.Background()))

	got, err := f.streaks.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 29, got.Current)
	assert.Equal(t, 0, got.FreezeBalance)

	// A rerun must not burn a second freeze or reset the streak.
	require.NoError(t, f.accountant.RunDaily(context.Background()))
	got, err = f.streaks.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 29, got.Current)
}

func TestRunDaily_IgnoresIdleRecords(t *testing.T) {
	f := newFixture(t)
	p := f.registerPilot(t, "maverick")

	s := streak.New(p.ID, raceDay)
	s.FreezeBalance = 3 // idle pilot with banked freezes keeps them
	require.NoError(t, f.streaks.Save(context.Background(), s))

	require.NoError(t, f.accountant.RunDaily(context.Background()))

	got, err := f.streaks.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.FreezeBalance)
}

func TestHandleSupporterTier_AccruesPerTier(t *testing.T) {
	f := newFixture(t)
	p := f.registerPilot(t, "maverick")

	err := f.accountant.handleSupporterTier(pilot.NewSupporterTierGrantedEvent(p.ID, "Level 3"))
	require.NoError(t, err)

	s, err := f.streaks.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, s.FreezeBalance)

	// A renewal stacks onto the balance.
	require.NoError(t, f.accountant.handleSupporterTier(pilot.NewSupporterTierGrantedEvent(p.ID, "Level 1")))
	s, err = f.streaks.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, s.FreezeBalance)
}

func TestHandleSupporterTier_UnknownTierAccruesNothing(t *testing.T) {
	f := newFixture(t)
	p := f.registerPilot(t, "maverick")

	err := f.accountant.handleSupporterTier(pilot.NewSupporterTierGrantedEvent(p.ID, "Level 99"))
	require.NoError(t, err)

	_, err = f.streaks.Get(context.Background(), p.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestScan_TenantsOn(t *testing.T) {
	f := newFixture(t)
	p := f.registerPilot(t, "maverick")
	f.closeCompetition(t, []competition.ResultEntry{{PilotID: p.ID, LapTime: 47250}})

	scan := &Scan{Competitions: f.competitions, Tenants: []shared.TenantID{testTenant}}

	tenants, err := scan.TenantsOn(context.Background(), p.ID, raceDay)
	require.NoError(t, err)
	assert.Equal(t, []shared.TenantID{testTenant}, tenants)

	// A pilot who did not fly that day resolves to no tenants.
	other := f.registerPilot(t, "goose")
	tenants, err = scan.TenantsOn(context.Background(), other.ID, raceDay)
	require.NoError(t, err)
	assert.Empty(t, tenants)
}

func TestScan_WinnersOn(t *testing.T) {
	f := newFixture(t)
	winner := f.registerPilot(t, "maverick")
	second := f.registerPilot(t, "goose")

	f.closeCompetition(t, []competition.ResultEntry{
		{PilotID: second.ID, LapTime: 48000},
		{PilotID: winner.ID, LapTime: 47250},
	})

	scan := &Scan{Competitions: f.competitions, Tenants: []shared.TenantID{testTenant}}

	wins, err := scan.WinnersOn(context.Background(), raceDay)
	require.NoError(t, err)
	require.Len(t, wins, 1)
	assert.Equal(t, winner.ID, wins[0].PilotID)
	assert.Equal(t, testTenant, wins[0].TenantID)
}
