package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Rival420/donwatcher/activity"
	"github.com/Rival420/donwatcher/errors"
	"github.com/Rival420/donwatcher/job"
	"github.com/Rival420/donwatcher/protocol"
)

// handleResult accepts a terminal job outcome from a beacon. An identical
// duplicate of an already-stored result is acknowledged without a state
// change, so the agent can retry freely over a flaky link.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req protocol.ResultRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	if req.JobID == "" || req.BeaconID == "" {
		writeError(w, http.StatusBadRequest, "job_id and beacon_id are required")
		return
	}

	res := &job.Result{
		Status:   req.Status,
		Output:   req.Output,
		Error:    req.Error,
		ExitCode: req.ExitCode,
	}

	now := time.Now().UTC()
	err := s.jobs.Complete(req.JobID, req.BeaconID, res, now)
	if err != nil {
		if errors.IsStaleResult(err) {
			// Already recorded, absorb the retry
			writeJSON(w, http.StatusOK, protocol.ResultResponse{JobID: req.JobID, Accepted: false})
			return
		}
		s.logger.Warnw("Result rejected",
			"job_id", shortID(req.JobID),
			"beacon_id", shortID(req.BeaconID),
			"error", err)
		writeDomainError(w, err)
		return
	}

	s.activity.Record(req.BeaconID, activity.CategoryResult,
		fmt.Sprintf("job %s finished %s", req.JobID, req.Status))
	s.logger.Infow("Result recorded",
		"job_id", shortID(req.JobID),
		"beacon_id", shortID(req.BeaconID),
		"status", req.Status)

	s.forwardToIngest(req, now)

	writeJSON(w, http.StatusOK, protocol.ResultResponse{JobID: req.JobID, Accepted: true})
}

// forwardToIngest hands successful scan output to the report parser. The job
// is already completed; a handoff failure is logged as a secondary failure
// and never surfaces to the beacon.
func (s *Server) forwardToIngest(req protocol.ResultRequest, now time.Time) {
	if req.Status != job.StatusCompleted {
		return
	}

	j, err := s.jobs.Get(req.JobID)
	if err != nil {
		s.logger.Errorw("Failed to load job for ingest", "job_id", shortID(req.JobID), "error", err)
		return
	}
	if !job.IsScanType(j.JobType) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.ingestor.Ingest(ctx, j.ID, j.BeaconID, j.JobType, j.Output); err != nil {
		s.activity.Record(j.BeaconID, activity.CategorySecondaryFailure,
			fmt.Sprintf("ingest handoff failed for job %s: %v", j.ID, err))
		s.logger.Warnw("Ingest handoff failed",
			"job_id", shortID(j.ID),
			"job_type", j.JobType,
			"error", err)
	}
}

// handleProgress records an optional running signal from the agent.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		JobID    string `json:"job_id"`
		BeaconID string `json:"beacon_id"`
	}
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	if req.JobID == "" || req.BeaconID == "" {
		writeError(w, http.StatusBadRequest, "job_id and beacon_id are required")
		return
	}

	if err := s.jobs.MarkRunning(req.JobID, req.BeaconID, time.Now().UTC()); err != nil {
		s.logger.Warnw("Progress rejected",
			"job_id", shortID(req.JobID),
			"beacon_id", shortID(req.BeaconID),
			"error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": req.JobID, "status": job.StatusRunning})
}
