package server

import (
	"net/http"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateJobRequiresKnownBeacon(t *testing.T) {
	_, mux, _ := newTestServer(t)

	w := doJSON(t, mux, http.MethodPost, "/api/jobs", map[string]interface{}{
		"beacon_id": "BCN_missing",
		"job_type":  "shell",
		"command":   "id",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateJobValidatesParams(t *testing.T) {
	_, mux, _ := newTestServer(t)
	beaconID := checkIn(t, mux, "workstation-01")

	w := doJSON(t, mux, http.MethodPost, "/api/jobs", map[string]interface{}{
		"beacon_id": beaconID,
		"job_type":  "port_scan",
		"params":    map[string]interface{}{"ports": "1-1024"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListJobsFilters(t *testing.T) {
	_, mux, _ := newTestServer(t)
	a := checkIn(t, mux, "workstation-01")
	b := checkIn(t, mux, "workstation-02")
	queueShellJob(t, mux, a, "id")
	queueShellJob(t, mux, b, "id")

	w := doJSON(t, mux, http.MethodGet, "/api/jobs?beacon_id="+a, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var jobs []struct {
		BeaconID string `json:"beacon_id"`
		Status   string `json:"status"`
	}
	decodeBody(t, w, &jobs)
	require.Len(t, jobs, 1)
	assert.Equal(t, a, jobs[0].BeaconID)

	w = doJSON(t, mux, http.MethodGet, "/api/jobs?status=completed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	jobs = nil
	decodeBody(t, w, &jobs)
	assert.Empty(t, jobs)
}

func TestCancelJobEndpoint(t *testing.T) {
	_, mux, _ := newTestServer(t)
	beaconID := checkIn(t, mux, "workstation-01")
	jobID := queueShellJob(t, mux, beaconID, "id")

	w := doJSON(t, mux, http.MethodPost, "/api/jobs/"+jobID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Cancelling a cancelled job is a conflict.
	w = doJSON(t, mux, http.MethodPost, "/api/jobs/"+jobID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

// An illegal cancel is rejected loudly, not just with a status code.
func TestCancelConflictIsLogged(t *testing.T) {
	mux, logs := newObservedServer(t)
	beaconID := checkIn(t, mux, "workstation-01")
	jobID := queueShellJob(t, mux, beaconID, "id")

	w := doJSON(t, mux, http.MethodPost, "/api/jobs/"+jobID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, mux, http.MethodPost, "/api/jobs/"+jobID+"/cancel", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 1, logs.FilterMessage("Cancel rejected").Len())
}

func TestBulkJobsFanOut(t *testing.T) {
	_, mux, _ := newTestServer(t)
	checkIn(t, mux, "lin-01")
	checkIn(t, mux, "lin-02")
	killed := checkIn(t, mux, "lin-03")

	w := doJSON(t, mux, http.MethodPost, "/api/beacons/"+killed+"/kill", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, mux, http.MethodPost, "/api/jobs/bulk", map[string]interface{}{
		"filter":   "os=linux status=active",
		"job_type": "shell",
		"command":  "uname -a",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created []struct {
		BeaconID string `json:"beacon_id"`
	}
	decodeBody(t, w, &created)
	assert.Len(t, created, 2)
	for _, j := range created {
		assert.NotEqual(t, killed, j.BeaconID)
	}
}

func TestBulkJobsBadFilter(t *testing.T) {
	_, mux, _ := newTestServer(t)

	w := doJSON(t, mux, http.MethodPost, "/api/jobs/bulk", map[string]interface{}{
		"filter":   "ip=10.0.0.5",
		"job_type": "shell",
		"command":  "id",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, mux, http.MethodPost, "/api/jobs/bulk", map[string]interface{}{
		"job_type": "shell",
		"command":  "id",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobFromTemplate(t *testing.T) {
	_, mux, _ := newTestServer(t)
	beaconID := checkIn(t, mux, "workstation-01")

	w := doJSON(t, mux, http.MethodPost, "/api/templates", map[string]interface{}{
		"name":     "quick-scan",
		"job_type": "port_scan",
		"params":   map[string]interface{}{"targets": []string{"10.0.0.0/24"}, "top_n": 100},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var tpl struct {
		ID string `json:"id"`
	}
	decodeBody(t, w, &tpl)

	w = doJSON(t, mux, http.MethodPost, "/api/jobs", map[string]interface{}{
		"beacon_id": beaconID,
		"template":  tpl.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var j struct {
		JobType    string `json:"job_type"`
		TemplateID string `json:"template_id"`
	}
	decodeBody(t, w, &j)
	assert.Equal(t, "port_scan", j.JobType)
	assert.Equal(t, tpl.ID, j.TemplateID)

	// The referenced template is now immutable.
	w = doJSON(t, mux, http.MethodDelete, "/api/templates/"+tpl.ID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestScheduleCRUD(t *testing.T) {
	_, mux, _ := newTestServer(t)
	beaconID := checkIn(t, mux, "workstation-01")

	w := doJSON(t, mux, http.MethodPost, "/api/schedules", map[string]interface{}{
		"name":       "hourly-uptime",
		"beacon_id":  beaconID,
		"job_type":   "shell",
		"command":    "uptime",
		"recurrence": "hourly",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sch struct {
		ID      string `json:"id"`
		Enabled bool   `json:"enabled"`
	}
	decodeBody(t, w, &sch)
	assert.True(t, sch.Enabled)

	// DELETE is disable, not removal.
	w = doJSON(t, mux, http.MethodDelete, "/api/schedules/"+sch.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, mux, http.MethodGet, "/api/schedules/"+sch.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stored struct {
		Enabled bool `json:"enabled"`
	}
	decodeBody(t, w, &stored)
	assert.False(t, stored.Enabled)

	w = doJSON(t, mux, http.MethodPost, "/api/schedules/"+sch.ID+"/enable", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestScheduleRejectsAmbiguousTarget(t *testing.T) {
	_, mux, _ := newTestServer(t)

	w := doJSON(t, mux, http.MethodPost, "/api/schedules", map[string]interface{}{
		"name":       "bad",
		"beacon_id":  "BCN_1",
		"filter":     "os=linux",
		"job_type":   "shell",
		"command":    "id",
		"recurrence": "hourly",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestActivityTailEndpoint(t *testing.T) {
	_, mux, _ := newTestServer(t)
	checkIn(t, mux, "workstation-01")

	w := doJSON(t, mux, http.MethodGet, "/api/activity", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var entries []struct {
		Category string `json:"category"`
	}
	decodeBody(t, w, &entries)
	require.NotEmpty(t, entries)
	assert.Equal(t, "registration", entries[len(entries)-1].Category)
}
