package server

import (
	"net/http"
	"time"

	"github.com/Rival420/donwatcher/activity"
	"github.com/Rival420/donwatcher/beacon"
)

// beaconView decorates a stored beacon with its computed status for the
// dashboard.
type beaconView struct {
	*beacon.Beacon
	Status beacon.Status `json:"status"`
}

func (s *Server) viewOf(b *beacon.Beacon, now time.Time) beaconView {
	return beaconView{
		Beacon: b,
		Status: beacon.ComputeStatus(b.Killed, b.LastSeen, now, s.currentThresholds()),
	}
}

// handleBeacons lists all registered beacons with computed status.
func (s *Server) handleBeacons(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	beacons, err := s.beacons.List()
	if err != nil {
		s.logger.Errorw("Failed to list beacons", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list beacons")
		return
	}

	now := time.Now().UTC()
	views := make([]beaconView, 0, len(beacons))
	for _, b := range beacons {
		views = append(views, s.viewOf(b, now))
	}
	writeJSON(w, http.StatusOK, views)
}

// handleBeaconByID serves /api/beacons/{id} and /api/beacons/{id}/kill.
func (s *Server) handleBeaconByID(w http.ResponseWriter, r *http.Request) {
	parts := extractPathParts(r.URL.Path, "/api/beacons/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "beacon id required")
		return
	}
	id := parts[0]

	if len(parts) == 2 && parts[1] == "kill" {
		s.killBeacon(w, r, id)
		return
	}
	if len(parts) > 1 {
		writeError(w, http.StatusNotFound, "unknown beacon resource")
		return
	}

	switch r.Method {
	case http.MethodGet:
		b, err := s.beacons.Get(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.viewOf(b, time.Now().UTC()))

	case http.MethodPatch:
		s.patchBeacon(w, r, id)

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// killBeacon sets the one-way kill flag. The directive is delivered at the
// beacon's next check-in.
func (s *Server) killBeacon(w http.ResponseWriter, r *http.Request, id string) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	if err := s.beacons.Kill(id); err != nil {
		writeDomainError(w, err)
		return
	}

	s.activity.Record(id, activity.CategoryKill, "beacon marked for kill by operator")
	s.logger.Infow("Beacon killed", "beacon_id", shortID(id))
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(beacon.StatusKilled)})
}

// patchBeacon updates operator-managed fields: notes and poll configuration.
// Poll changes reach the agent at its next check-in.
func (s *Server) patchBeacon(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Notes               *string `json:"notes"`
		PollIntervalSeconds *int    `json:"poll_interval_seconds"`
		JitterPercent       *int    `json:"jitter_percent"`
	}
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	if req.Notes != nil {
		if err := s.beacons.SetNotes(id, *req.Notes); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	if req.PollIntervalSeconds != nil || req.JitterPercent != nil {
		b, err := s.beacons.Get(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		poll := b.PollIntervalSeconds
		jitter := b.JitterPercent
		if req.PollIntervalSeconds != nil {
			poll = *req.PollIntervalSeconds
		}
		if req.JitterPercent != nil {
			jitter = *req.JitterPercent
		}
		if err := s.beacons.SetPollConfig(id, poll, jitter); err != nil {
			writeDomainError(w, err)
			return
		}
		s.logger.Infow("Beacon poll config updated",
			"beacon_id", shortID(id),
			"poll_seconds", poll,
			"jitter_pct", jitter)
	}

	b, err := s.beacons.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewOf(b, time.Now().UTC()))
}
