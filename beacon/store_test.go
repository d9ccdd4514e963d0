package beacon

import (
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rival420/donwatcher/errors"
	dwtest "github.com/Rival420/donwatcher/internal/testing"
)

func testBeacon(id string) *Beacon {
	return &Beacon{
		ID:                  id,
		Hostname:            "workstation-01",
		OS:                  "linux",
		Platform:            "ubuntu",
		InternalIP:          "10.0.0.5",
		ExternalIP:          "203.0.113.7",
		Username:            "jdoe",
		Domain:              "corp.example",
		Descriptors:         map[string]string{"arch": "amd64"},
		PollIntervalSeconds: 60,
		JitterPercent:       20,
	}
}

func TestUpsertCheckInFirstContact(t *testing.T) {
	db := dwtest.CreateTestDB(t)
	store := NewStore(db)
	now := time.Now().UTC().Truncate(time.Second)

	stored, created, err := store.UpsertCheckIn(testBeacon("BCN_first"), now)
	require.NoError(t, err)

	assert.True(t, created)
	assert.Equal(t, int64(1), stored.CheckInCount)
	assert.Equal(t, "workstation-01", stored.Hostname)
	assert.Equal(t, map[string]string{"arch": "amd64"}, stored.Descriptors)
	assert.True(t, stored.FirstSeen.Equal(now))
	assert.True(t, stored.LastSeen.Equal(now))
	assert.False(t, stored.Killed)
}

func TestUpsertCheckInIncrementsCounter(t *testing.T) {
	db := dwtest.CreateTestDB(t)
	store := NewStore(db)
	now := time.Now().UTC().Truncate(time.Second)

	_, _, err := store.UpsertCheckIn(testBeacon("BCN_repeat"), now)
	require.NoError(t, err)

	stored, created, err := store.UpsertCheckIn(testBeacon("BCN_repeat"), now.Add(time.Minute))
	require.NoError(t, err)

	assert.False(t, created)
	assert.Equal(t, int64(2), stored.CheckInCount)
	assert.True(t, stored.FirstSeen.Equal(now))
	assert.True(t, stored.LastSeen.Equal(now.Add(time.Minute)))
}

func TestUpsertCheckInLastSeenNeverRegresses(t *testing.T) {
	db := dwtest.CreateTestDB(t)
	store := NewStore(db)
	now := time.Now().UTC().Truncate(time.Second)

	_, _, err := store.UpsertCheckIn(testBeacon("BCN_replay"), now)
	require.NoError(t, err)

	// A delayed replay with an earlier timestamp still bumps the counter
	// but must not move last_seen backwards.
	stored, _, err := store.UpsertCheckIn(testBeacon("BCN_replay"), now.Add(-time.Hour))
	require.NoError(t, err)

	assert.Equal(t, int64(2), stored.CheckInCount)
	assert.True(t, stored.LastSeen.Equal(now))
}

func TestUpsertCheckInRefreshesVolatileFields(t *testing.T) {
	db := dwtest.CreateTestDB(t)
	store := NewStore(db)
	now := time.Now().UTC()

	_, _, err := store.UpsertCheckIn(testBeacon("BCN_moved"), now)
	require.NoError(t, err)

	moved := testBeacon("BCN_moved")
	moved.InternalIP = "192.168.1.20"
	moved.Username = "root"
	stored, _, err := store.UpsertCheckIn(moved, now.Add(time.Minute))
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.20", stored.InternalIP)
	assert.Equal(t, "root", stored.Username)
}

func TestUpsertCheckInPreservesKillAndPollConfig(t *testing.T) {
	db := dwtest.CreateTestDB(t)
	store := NewStore(db)
	now := time.Now().UTC()

	_, _, err := store.UpsertCheckIn(testBeacon("BCN_killed"), now)
	require.NoError(t, err)
	require.NoError(t, store.Kill("BCN_killed"))
	require.NoError(t, store.SetPollConfig("BCN_killed", 300, 50))

	// A later check-in never clears operator state.
	stored, _, err := store.UpsertCheckIn(testBeacon("BCN_killed"), now.Add(time.Minute))
	require.NoError(t, err)

	assert.True(t, stored.Killed)
	assert.Equal(t, 300, stored.PollIntervalSeconds)
	assert.Equal(t, 50, stored.JitterPercent)
}

func TestGetUnknownBeacon(t *testing.T) {
	db := dwtest.CreateTestDB(t)
	store := NewStore(db)

	_, err := store.Get("BCN_missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestListOrdersByLastSeen(t *testing.T) {
	db := dwtest.CreateTestDB(t)
	store := NewStore(db)
	now := time.Now().UTC().Truncate(time.Second)

	_, _, err := store.UpsertCheckIn(testBeacon("BCN_old"), now.Add(-time.Hour))
	require.NoError(t, err)
	_, _, err = store.UpsertCheckIn(testBeacon("BCN_new"), now)
	require.NoError(t, err)

	beacons, err := store.List()
	require.NoError(t, err)
	require.Len(t, beacons, 2)
	assert.Equal(t, "BCN_new", beacons[0].ID)
	assert.Equal(t, "BCN_old", beacons[1].ID)
}

func TestKillUnknownBeacon(t *testing.T) {
	db := dwtest.CreateTestDB(t)
	store := NewStore(db)

	err := store.Kill("BCN_missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestSetNotes(t *testing.T) {
	db := dwtest.CreateTestDB(t)
	store := NewStore(db)

	_, _, err := store.UpsertCheckIn(testBeacon("BCN_notes"), time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, store.SetNotes("BCN_notes", "patient zero"))

	stored, err := store.Get("BCN_notes")
	require.NoError(t, err)
	assert.Equal(t, "patient zero", stored.Notes)
}

func TestSetPollConfigValidation(t *testing.T) {
	db := dwtest.CreateTestDB(t)
	store := NewStore(db)

	_, _, err := store.UpsertCheckIn(testBeacon("BCN_poll"), time.Now().UTC())
	require.NoError(t, err)

	err = store.SetPollConfig("BCN_poll", 0, 20)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	err = store.SetPollConfig("BCN_poll", 60, 101)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	require.NoError(t, store.SetPollConfig("BCN_poll", 120, 35))
	stored, err := store.Get("BCN_poll")
	require.NoError(t, err)
	assert.Equal(t, 120, stored.PollIntervalSeconds)
	assert.Equal(t, 35, stored.JitterPercent)
}
