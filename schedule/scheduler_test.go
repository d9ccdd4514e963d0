package schedule

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Rival420/donwatcher/activity"
	"github.com/Rival420/donwatcher/beacon"
	dwtest "github.com/Rival420/donwatcher/internal/testing"
	"github.com/Rival420/donwatcher/job"
)

type schedulerFixture struct {
	db        *sql.DB
	store     *Store
	beacons   *beacon.Store
	jobs      *job.Store
	activity  *activity.Store
	scheduler *Scheduler
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()
	db := dwtest.CreateTestDB(t)
	f := &schedulerFixture{
		db:       db,
		store:    NewStore(db),
		beacons:  beacon.NewStore(db),
		jobs:     job.NewStore(db),
		activity: activity.NewStore(db),
	}
	f.scheduler = NewScheduler(context.Background(), f.store, f.beacons, f.jobs, f.activity,
		DefaultSchedulerConfig(), zap.NewNop().Sugar())
	return f
}

func (f *schedulerFixture) seedBeacon(t *testing.T, hostname, os string, lastSeen time.Time) *beacon.Beacon {
	t.Helper()
	id, err := beacon.ResolveIdentity(hostname, "AA:BB:CC:DD:EE:"+hostname[len(hostname)-2:])
	require.NoError(t, err)
	b, _, err := f.beacons.UpsertCheckIn(&beacon.Beacon{
		ID:                  id,
		Hostname:            hostname,
		OS:                  os,
		InternalIP:          "10.0.0.5",
		PollIntervalSeconds: 60,
		JitterPercent:       20,
	}, lastSeen)
	require.NoError(t, err)
	return b
}

func TestTickMaterializesJobsForFilterTargets(t *testing.T) {
	f := newSchedulerFixture(t)
	now := time.Now().UTC().Truncate(time.Second)

	// Three active linux beacons, one dormant, one windows.
	f.seedBeacon(t, "lin-01", "linux", now)
	f.seedBeacon(t, "lin-02", "linux", now.Add(-time.Minute))
	f.seedBeacon(t, "lin-03", "linux", now.Add(-2*time.Minute))
	f.seedBeacon(t, "lin-04", "linux", now.Add(-20*time.Minute))
	f.seedBeacon(t, "win-01", "windows", now)

	sch := &Schedule{
		Name:       "linux-uptime",
		Filter:     "os=linux status=active",
		JobType:    job.TypeShell,
		Command:    "uptime",
		Recurrence: RecurrenceHourly,
		Enabled:    true,
	}
	require.NoError(t, f.store.Create(sch, now.Add(-time.Minute)))

	require.NoError(t, f.scheduler.Tick(now))

	jobs, err := f.jobs.ListBySchedule(sch.ID, 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
	for _, j := range jobs {
		assert.Equal(t, job.StatusPending, j.Status)
		assert.Equal(t, "uptime", j.Command)
		assert.Equal(t, sch.ID, j.ScheduleID)
	}

	stored, err := f.store.Get(sch.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusOK, stored.LastRunStatus)
	assert.Equal(t, int64(1), stored.RunCount)
	require.NotNil(t, stored.NextRunAt)
	assert.True(t, stored.NextRunAt.Equal(now.Add(time.Hour)))
}

func TestTickFiresOncePerDueSchedule(t *testing.T) {
	f := newSchedulerFixture(t)
	now := time.Now().UTC().Truncate(time.Second)

	b := f.seedBeacon(t, "lin-01", "linux", now)
	sch := &Schedule{
		Name:       "single",
		BeaconID:   b.ID,
		JobType:    job.TypeShell,
		Command:    "id",
		Recurrence: RecurrenceHourly,
		Enabled:    true,
	}
	require.NoError(t, f.store.Create(sch, now.Add(-time.Minute)))

	// A second tick at the same instant sees the schedule already claimed.
	require.NoError(t, f.scheduler.Tick(now))
	require.NoError(t, f.scheduler.Tick(now))

	jobs, err := f.jobs.ListBySchedule(sch.ID, 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestTickRecordsNoTargets(t *testing.T) {
	f := newSchedulerFixture(t)
	now := time.Now().UTC().Truncate(time.Second)

	sch := &Schedule{
		Name:       "nobody-home",
		Filter:     "os=plan9",
		JobType:    job.TypeShell,
		Command:    "id",
		Recurrence: RecurrenceHourly,
		Enabled:    true,
	}
	require.NoError(t, f.store.Create(sch, now.Add(-time.Minute)))

	require.NoError(t, f.scheduler.Tick(now))

	stored, err := f.store.Get(sch.ID)
	require.NoError(t, err)
	// Matching nothing is an outcome, not an error: it stays enabled.
	assert.Equal(t, RunStatusNoTargets, stored.LastRunStatus)
	assert.True(t, stored.Enabled)
	assert.Equal(t, int64(1), stored.RunCount)
}

func TestTickSkipsKilledBeacon(t *testing.T) {
	f := newSchedulerFixture(t)
	now := time.Now().UTC().Truncate(time.Second)

	b := f.seedBeacon(t, "lin-01", "linux", now)
	require.NoError(t, f.beacons.Kill(b.ID))

	sch := &Schedule{
		Name:       "target-killed",
		BeaconID:   b.ID,
		JobType:    job.TypeShell,
		Command:    "id",
		Recurrence: RecurrenceHourly,
		Enabled:    true,
	}
	require.NoError(t, f.store.Create(sch, now.Add(-time.Minute)))

	require.NoError(t, f.scheduler.Tick(now))

	jobs, err := f.jobs.ListBySchedule(sch.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	stored, err := f.store.Get(sch.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusNoTargets, stored.LastRunStatus)
}

func TestTickDisablesMalformedFilter(t *testing.T) {
	f := newSchedulerFixture(t)
	now := time.Now().UTC().Truncate(time.Second)

	// Validate blocks malformed filters at create time, so stage the row
	// directly to simulate drift.
	insertRawSchedule(t, f.db, "SCH_drifted", "not a filter", now.Add(-time.Minute))

	require.NoError(t, f.scheduler.Tick(now))

	stored, err := f.store.Get("SCH_drifted")
	require.NoError(t, err)
	assert.False(t, stored.Enabled)
	assert.Equal(t, RunStatusError, stored.LastRunStatus)

	// The disable is visible in the activity log.
	entries, err := f.activity.Tail(10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, activity.CategorySchedule, entries[0].Category)
}

func TestTickNoDueSchedules(t *testing.T) {
	f := newSchedulerFixture(t)
	require.NoError(t, f.scheduler.Tick(time.Now()))
}
