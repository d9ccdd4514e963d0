// Package protocol defines the wire types shared by the server and the
// beacon-side agent. The check-in endpoint accepts two request generations;
// ParseCheckIn normalizes both into CheckInRequest so nothing past the HTTP
// boundary knows the difference.
package protocol

import "encoding/json"

// CheckInRequest is the normalized check-in payload.
type CheckInRequest struct {
	MachineName string            `json:"machine_name"`
	MACs        []string          `json:"macs"`
	Addresses   []string          `json:"addresses"`
	OS          string            `json:"os"`
	Platform    string            `json:"platform"`
	Username    string            `json:"username"`
	Domain      string            `json:"domain"`
	Descriptors map[string]string `json:"descriptors,omitempty"`
}

// JobDelivery is one unit of work handed to a beacon at check-in.
type JobDelivery struct {
	ID      string          `json:"id"`
	JobType string          `json:"job_type"`
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// CheckInResponse is returned to the beacon after registration and job claim.
// Kill tells the agent to terminate its loop; a killed beacon never receives
// jobs.
type CheckInResponse struct {
	BeaconID            string        `json:"beacon_id"`
	Kill                bool          `json:"kill"`
	PollIntervalSeconds int           `json:"poll_interval_seconds"`
	JitterPercent       int           `json:"jitter_percent"`
	Jobs                []JobDelivery `json:"jobs"`
}

// ResultRequest reports a terminal outcome for a dispatched job.
type ResultRequest struct {
	JobID    string `json:"job_id"`
	BeaconID string `json:"beacon_id"`
	Status   string `json:"status"` // completed or failed
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
}

// ResultResponse acknowledges a result submission. Duplicate identical
// submissions are acknowledged with Accepted=false and no state change.
type ResultResponse struct {
	JobID    string `json:"job_id"`
	Accepted bool   `json:"accepted"`
}
