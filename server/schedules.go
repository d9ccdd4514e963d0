package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Rival420/donwatcher/activity"
	"github.com/Rival420/donwatcher/schedule"
)

// handleSchedules lists schedules or creates a new one.
func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		schedules, err := s.schedules.List()
		if err != nil {
			s.logger.Errorw("Failed to list schedules", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list schedules")
			return
		}
		if schedules == nil {
			schedules = []*schedule.Schedule{}
		}
		writeJSON(w, http.StatusOK, schedules)

	case http.MethodPost:
		var sch schedule.Schedule
		if err := readJSON(w, r, &sch); err != nil {
			return
		}
		sch.Enabled = true

		if sch.TemplateID != "" {
			t, err := s.jobs.GetTemplate(sch.TemplateID)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			if sch.JobType == "" {
				sch.JobType = t.JobType
			}
			if sch.Command == "" {
				sch.Command = t.Command
			}
			if len(sch.Params) == 0 {
				sch.Params = t.Params
			}
		}

		if err := s.schedules.Create(&sch, time.Now().UTC()); err != nil {
			writeDomainError(w, err)
			return
		}

		s.activity.Record("", activity.CategorySchedule,
			fmt.Sprintf("schedule %s (%s) created, recurrence %s", sch.ID, sch.Name, sch.Recurrence))
		s.logger.Infow("Schedule created",
			"schedule_id", shortID(sch.ID),
			"name", sch.Name,
			"recurrence", sch.Recurrence)
		writeJSON(w, http.StatusCreated, sch)

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleScheduleByID serves /api/schedules/{id} plus enable and disable.
// DELETE is modeled as disable: firing history stays queryable.
func (s *Server) handleScheduleByID(w http.ResponseWriter, r *http.Request) {
	parts := extractPathParts(r.URL.Path, "/api/schedules/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "schedule id required")
		return
	}
	id := parts[0]

	if len(parts) == 2 {
		switch parts[1] {
		case "enable":
			s.setScheduleEnabled(w, r, id, true)
		case "disable":
			s.setScheduleEnabled(w, r, id, false)
		default:
			writeError(w, http.StatusNotFound, "unknown schedule resource")
		}
		return
	}
	if len(parts) > 1 {
		writeError(w, http.StatusNotFound, "unknown schedule resource")
		return
	}

	switch r.Method {
	case http.MethodGet:
		sch, err := s.schedules.Get(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sch)

	case http.MethodPatch:
		existing, err := s.schedules.Get(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		patch := *existing
		if err := readJSON(w, r, &patch); err != nil {
			return
		}
		patch.ID = id

		if err := s.schedules.Update(&patch); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, patch)

	case http.MethodDelete:
		if err := s.schedules.SetEnabled(id, false); err != nil {
			writeDomainError(w, err)
			return
		}
		s.activity.Record("", activity.CategorySchedule,
			fmt.Sprintf("schedule %s disabled by operator", id))
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "enabled": "false"})

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) setScheduleEnabled(w http.ResponseWriter, r *http.Request, id string, enabled bool) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.schedules.SetEnabled(id, enabled); err != nil {
		writeDomainError(w, err)
		return
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	s.activity.Record("", activity.CategorySchedule,
		fmt.Sprintf("schedule %s %s by operator", id, state))
	s.logger.Infow("Schedule toggled", "schedule_id", shortID(id), "enabled", enabled)
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "enabled": enabled})
}
