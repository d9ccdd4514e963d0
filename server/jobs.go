package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Rival420/donwatcher/activity"
	"github.com/Rival420/donwatcher/beacon"
	"github.com/Rival420/donwatcher/job"
	"github.com/Rival420/donwatcher/schedule"
)

type createJobRequest struct {
	BeaconID string          `json:"beacon_id"`
	Template string          `json:"template,omitempty"`
	JobType  string          `json:"job_type"`
	Command  string          `json:"command"`
	Params   json.RawMessage `json:"params,omitempty"`
	Priority int             `json:"priority"`
}

// handleJobs lists jobs or creates a single-target job.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		jobs, err := s.jobs.List(
			r.URL.Query().Get("beacon_id"),
			r.URL.Query().Get("status"),
			limit,
		)
		if err != nil {
			s.logger.Errorw("Failed to list jobs", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list jobs")
			return
		}
		if jobs == nil {
			jobs = []*job.Job{}
		}
		writeJSON(w, http.StatusOK, jobs)

	case http.MethodPost:
		var req createJobRequest
		if err := readJSON(w, r, &req); err != nil {
			return
		}

		j, err := s.buildJob(&req, req.BeaconID)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		if _, err := s.beacons.Get(j.BeaconID); err != nil {
			writeDomainError(w, err)
			return
		}

		if err := s.jobs.Create(j); err != nil {
			writeDomainError(w, err)
			return
		}

		s.activity.Record(j.BeaconID, activity.CategoryJob,
			fmt.Sprintf("job %s (%s) queued", j.ID, j.JobType))
		s.logger.Infow("Job queued",
			"job_id", shortID(j.ID),
			"beacon_id", shortID(j.BeaconID),
			"job_type", j.JobType)
		writeJSON(w, http.StatusCreated, j)

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// buildJob assembles a job from a request, pre-filling the descriptor from a
// template when one is referenced.
func (s *Server) buildJob(req *createJobRequest, beaconID string) (*job.Job, error) {
	j := &job.Job{
		BeaconID: beaconID,
		JobType:  req.JobType,
		Command:  req.Command,
		Params:   req.Params,
		Priority: req.Priority,
	}

	if req.Template != "" {
		t, err := s.jobs.GetTemplate(req.Template)
		if err != nil {
			return nil, err
		}
		j.TemplateID = t.ID
		if j.JobType == "" {
			j.JobType = t.JobType
		}
		if j.Command == "" {
			j.Command = t.Command
		}
		if len(j.Params) == 0 {
			j.Params = t.Params
		}
	}
	return j, nil
}

// handleJobsBulk fans one job descriptor out over a registry filter.
func (s *Server) handleJobsBulk(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		createJobRequest
		Filter string `json:"filter"`
	}
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	if req.Filter == "" {
		writeError(w, http.StatusBadRequest, "filter is required")
		return
	}

	filter, err := schedule.ParseFilter(req.Filter)
	if err != nil {
		// On the operator surface a bad filter is an ordinary validation
		// problem, not an auto-disable
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	all, err := s.beacons.List()
	if err != nil {
		s.logger.Errorw("Failed to list beacons for bulk job", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list beacons")
		return
	}

	now := time.Now().UTC()
	th := s.currentThresholds()

	var created []*job.Job
	for _, b := range all {
		if b.Killed {
			continue
		}
		status := beacon.ComputeStatus(b.Killed, b.LastSeen, now, th)
		if !filter.Match(b, status) {
			continue
		}

		j, err := s.buildJob(&req.createJobRequest, b.ID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if err := s.jobs.Create(j); err != nil {
			writeDomainError(w, err)
			return
		}
		s.activity.Record(b.ID, activity.CategoryJob,
			fmt.Sprintf("job %s (%s) queued via bulk filter", j.ID, j.JobType))
		created = append(created, j)
	}

	s.logger.Infow("Bulk jobs queued",
		"filter", req.Filter,
		"count", len(created))
	if created == nil {
		created = []*job.Job{}
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleJobByID serves /api/jobs/{id} and /api/jobs/{id}/cancel.
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	parts := extractPathParts(r.URL.Path, "/api/jobs/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "job id required")
		return
	}
	id := parts[0]

	if len(parts) == 2 && parts[1] == "cancel" {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		if err := s.jobs.Cancel(id, time.Now().UTC()); err != nil {
			s.logger.Warnw("Cancel rejected",
				"job_id", shortID(id),
				"error", err)
			writeDomainError(w, err)
			return
		}
		s.activity.Record("", activity.CategoryJob, fmt.Sprintf("job %s cancelled", id))
		s.logger.Infow("Job cancelled", "job_id", shortID(id))
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": job.StatusCancelled})
		return
	}
	if len(parts) > 1 {
		writeError(w, http.StatusNotFound, "unknown job resource")
		return
	}

	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	j, err := s.jobs.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}
