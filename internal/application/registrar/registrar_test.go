package registrar

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
)

// fakeScheduler records registrations in memory.
type fakeScheduler struct {
	jobs map[string]string // name -> cron expression
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{jobs: make(map[string]string)}
}

func (f *fakeScheduler) AddFunc(name, description, cronExpr string, fn func(ctx context.Context) error) error {
	f.jobs[name] = cronExpr
	return nil
}

func (f *fakeScheduler) RemoveJob(name string) {
	delete(f.jobs, name)
}

func (f *fakeScheduler) JobNames() []string {
	names := make([]string, 0, len(f.jobs))
	for name := range f.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// fakeOrchestrator satisfies Orchestrator; calls are not exercised here.
type fakeOrchestrator struct{}

func (fakeOrchestrator) StartCompetition(context.Context, shared.TenantID) error { return nil }
func (fakeOrchestrator) SendStopReminder(context.Context, shared.TenantID) error { return nil }
func (fakeOrchestrator) StopCompetition(context.Context, shared.TenantID) error  { return nil }
func (fakeOrchestrator) RefreshResults(context.Context) error                    { return nil }

func newTestRegistrar(t *testing.T, sched JobScheduler) *Registrar {
	t.Helper()
	r, err := New(Config{
		Scheduler:      sched,
		Orchestrator:   fakeOrchestrator{},
		DailyStreakJob: func(context.Context) error { return nil },
		CloseSeasonJob: func(context.Context) error { return nil },
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return r
}

func TestRegistrar_SyncRegistersTenantJobs(t *testing.T) {
	sched := newFakeScheduler()
	r := newTestRegistrar(t, sched)

	err := r.Sync(context.Background(), []Tenant{
		{ID: "alpha-cup", StartTime: "15:00", Enabled: true},
	})
	require.NoError(t, err)

	assert.Equal(t, "0 15 * * *", sched.jobs["start-competition-alpha-cup"])
	assert.Equal(t, "58 14 * * *", sched.jobs["stop-competition-alpha-cup"])
	assert.Equal(t, "58 14 * * *", sched.jobs["stop-poll-alpha-cup"])
}

func TestRegistrar_SyncRegistersGlobalJobs(t *testing.T) {
	sched := newFakeScheduler()
	r := newTestRegistrar(t, sched)

	require.NoError(t, r.Sync(context.Background(), nil))

	assert.Equal(t, "*/10 * * * *", sched.jobs[JobRefreshResults])
	assert.Equal(t, "0 0 * * *", sched.jobs[JobDailyStreak])
	assert.Equal(t, "5 0 1 * *", sched.jobs[JobCloseSeason])
}

func TestRegistrar_SyncSkipsUnparsableTenant(t *testing.T) {
	sched := newFakeScheduler()
	r := newTestRegistrar(t, sched)

	err := r.Sync(context.Background(), []Tenant{
		{ID: "broken-cup", StartTime: "25:99", Enabled: true},
		{ID: "good-cup", StartTime: "00:01", Enabled: true},
	})
	require.NoError(t, err)

	// Broken tenant contributes nothing; the rest still register.
	assert.NotContains(t, sched.jobs, "start-competition-broken-cup")
	assert.Equal(t, "1 0 * * *", sched.jobs["start-competition-good-cup"])

	// Stop wraps across midnight to 23:59 of the previous day.
	assert.Equal(t, "59 23 * * *", sched.jobs["stop-competition-good-cup"])
}

func TestRegistrar_SyncSkipsDisabledTenant(t *testing.T) {
	sched := newFakeScheduler()
	r := newTestRegistrar(t, sched)

	require.NoError(t, r.Sync(context.Background(), []Tenant{
		{ID: "paused-cup", StartTime: "12:00", Enabled: false},
	}))

	assert.NotContains(t, sched.jobs, "start-competition-paused-cup")
}

func TestRegistrar_SyncRemovesStaleOwnedJobs(t *testing.T) {
	sched := newFakeScheduler()
	sched.jobs["start-competition-old-cup"] = "0 9 * * *"
	sched.jobs["stop-competition-old-cup"] = "58 8 * * *"
	sched.jobs["stop-poll-old-cup"] = "58 8 * * *"
	sched.jobs["unrelated-maintenance"] = "0 4 * * *"

	r := newTestRegistrar(t, sched)

	require.NoError(t, r.Sync(context.Background(), []Tenant{
		{ID: "new-cup", StartTime: "18:30", Enabled: true},
	}))

	assert.NotContains(t, sched.jobs, "start-competition-old-cup")
	assert.NotContains(t, sched.jobs, "stop-competition-old-cup")
	assert.NotContains(t, sched.jobs, "stop-poll-old-cup")

	// Jobs the registrar does not own survive the sync.
	assert.Equal(t, "0 4 * * *", sched.jobs["unrelated-maintenance"])

	assert.Equal(t, "30 18 * * *", sched.jobs["start-competition-new-cup"])
	assert.Equal(t, "28 18 * * *", sched.jobs["stop-competition-new-cup"])
}

func TestRegistrar_SyncIsRerunSafe(t *testing.T) {
	sched := newFakeScheduler()
	r := newTestRegistrar(t, sched)

	tenants := []Tenant{{ID: "alpha-cup", StartTime: "15:00", Enabled: true}}
	require.NoError(t, r.Sync(context.Background(), tenants))
	first := len(sched.jobs)

	require.NoError(t, r.Sync(context.Background(), tenants))
	assert.Equal(t, first, len(sched.jobs))
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Config{Orchestrator: fakeOrchestrator{}})
	assert.Error(t, err)

	_, err = New(Config{Scheduler: newFakeScheduler()})
	assert.Error(t, err)
}
