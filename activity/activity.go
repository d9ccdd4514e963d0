// Package activity is the append-only operational log: one row per notable
// event, tailed by the dashboard and streamed over the websocket feed.
package activity

import "time"

// Event categories.
const (
	CategoryCheckIn          = "checkin"
	CategoryRegistration     = "registration"
	CategoryJob              = "job"
	CategoryResult           = "result"
	CategorySchedule         = "schedule"
	CategoryKill             = "kill"
	CategorySecondaryFailure = "secondary_failure"
	CategoryError            = "error"
)

// Entry is one logged event. BeaconID is empty for events not tied to a
// specific beacon.
type Entry struct {
	ID        int64     `json:"id"`
	BeaconID  string    `json:"beacon_id,omitempty"`
	Category  string    `json:"category"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}
