package server

import (
	"net/http"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Rival420/donwatcher/ingest"
	dwtest "github.com/Rival420/donwatcher/internal/testing"
	"github.com/Rival420/donwatcher/protocol"
)

func TestCheckInRegistersBeacon(t *testing.T) {
	_, mux, _ := newTestServer(t)

	w := doJSON(t, mux, http.MethodPost, "/api/beacon/checkin", checkInBody("workstation-01"))
	require.Equal(t, http.StatusOK, w.Code)

	var resp protocol.CheckInResponse
	decodeBody(t, w, &resp)
	assert.NotEmpty(t, resp.BeaconID)
	assert.False(t, resp.Kill)
	assert.Equal(t, 60, resp.PollIntervalSeconds)
	assert.Equal(t, 20, resp.JitterPercent)
	assert.Empty(t, resp.Jobs)
}

func TestCheckInIsStableAcrossRepeats(t *testing.T) {
	_, mux, _ := newTestServer(t)

	first := checkIn(t, mux, "workstation-01")
	second := checkIn(t, mux, "workstation-01")
	assert.Equal(t, first, second)

	other := checkIn(t, mux, "workstation-02")
	assert.NotEqual(t, first, other)
}

func TestCheckInLegacyPayload(t *testing.T) {
	_, mux, _ := newTestServer(t)

	w := doJSON(t, mux, http.MethodPost, "/api/beacon/checkin", map[string]interface{}{
		"hostname": "legacy-host",
		"mac":      "AA:BB:CC:DD:EE:FF",
		"ip":       "10.0.0.9",
		"os":       "windows",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp protocol.CheckInResponse
	decodeBody(t, w, &resp)
	assert.NotEmpty(t, resp.BeaconID)
}

func TestCheckInRejectsBadPayloads(t *testing.T) {
	_, mux, _ := newTestServer(t)

	w := doJSON(t, mux, http.MethodPost, "/api/beacon/checkin", map[string]interface{}{
		"version": 9,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, mux, http.MethodPost, "/api/beacon/checkin", map[string]interface{}{
		"version":      2,
		"machine_name": "host-a",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, mux, http.MethodGet, "/api/beacon/checkin", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestCheckInDeliversClaimedJobs(t *testing.T) {
	_, mux, _ := newTestServer(t)

	beaconID := checkIn(t, mux, "workstation-01")
	jobID := queueShellJob(t, mux, beaconID, "whoami")

	w := doJSON(t, mux, http.MethodPost, "/api/beacon/checkin", checkInBody("workstation-01"))
	require.Equal(t, http.StatusOK, w.Code)

	var resp protocol.CheckInResponse
	decodeBody(t, w, &resp)
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, jobID, resp.Jobs[0].ID)
	assert.Equal(t, "whoami", resp.Jobs[0].Command)

	// The job is durably sent: a second check-in gets nothing.
	w = doJSON(t, mux, http.MethodPost, "/api/beacon/checkin", checkInBody("workstation-01"))
	decodeBody(t, w, &resp)
	assert.Empty(t, resp.Jobs)
}

func TestCheckInHonorsMaxJobs(t *testing.T) {
	_, mux, _ := newTestServer(t)

	beaconID := checkIn(t, mux, "workstation-01")
	for i := 0; i < 8; i++ {
		queueShellJob(t, mux, beaconID, "id")
	}

	w := doJSON(t, mux, http.MethodPost, "/api/beacon/checkin", checkInBody("workstation-01"))
	var resp protocol.CheckInResponse
	decodeBody(t, w, &resp)
	assert.Len(t, resp.Jobs, 5)
}

func TestCheckInKilledBeacon(t *testing.T) {
	_, mux, _ := newTestServer(t)

	beaconID := checkIn(t, mux, "workstation-01")
	queueShellJob(t, mux, beaconID, "whoami")

	w := doJSON(t, mux, http.MethodPost, "/api/beacons/"+beaconID+"/kill", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// The kill directive comes back with no jobs, every time.
	for i := 0; i < 2; i++ {
		w = doJSON(t, mux, http.MethodPost, "/api/beacon/checkin", checkInBody("workstation-01"))
		require.Equal(t, http.StatusOK, w.Code)

		var resp protocol.CheckInResponse
		decodeBody(t, w, &resp)
		assert.True(t, resp.Kill)
		assert.Empty(t, resp.Jobs)
	}
}

func TestCheckInRateLimited(t *testing.T) {
	db := dwtest.CreateTestDB(t)
	cfg := testConfig()
	cfg.CheckIn.RatePerMinute = 6
	cfg.CheckIn.RateBurst = 3
	s := New(db, cfg, ingest.NopIngestor{}, zap.NewNop().Sugar())
	mux := s.routes()

	limited := 0
	for i := 0; i < 6; i++ {
		w := doJSON(t, mux, http.MethodPost, "/api/beacon/checkin", checkInBody("noisy-host"))
		if w.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 3, limited)

	// The bucket is per beacon: another machine is unaffected.
	w := doJSON(t, mux, http.MethodPost, "/api/beacon/checkin", checkInBody("quiet-host"))
	assert.Equal(t, http.StatusOK, w.Code)
}
