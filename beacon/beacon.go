// Package beacon holds the agent registry: derived stable identities,
// check-in bookkeeping, and liveness inference.
package beacon

import "time"

// Beacon is one registered agent. The ID is derived from stable hardware
// identity, so reinstalls and address changes map back to the same row.
type Beacon struct {
	ID                  string            `json:"id"`
	Hostname            string            `json:"hostname"`
	OS                  string            `json:"os"`
	Platform            string            `json:"platform"`
	InternalIP          string            `json:"internal_ip"`
	ExternalIP          string            `json:"external_ip"`
	Username            string            `json:"username"`
	Domain              string            `json:"domain"`
	Descriptors         map[string]string `json:"descriptors,omitempty"`
	PollIntervalSeconds int               `json:"poll_interval_seconds"`
	JitterPercent       int               `json:"jitter_percent"`
	FirstSeen           time.Time         `json:"first_seen"`
	LastSeen            time.Time         `json:"last_seen"`
	CheckInCount        int64             `json:"check_in_count"`
	Killed              bool              `json:"killed"`
	Notes               string            `json:"notes,omitempty"`
}
