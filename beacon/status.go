package beacon

import "time"

// Status is the inferred liveness of a beacon. It is never stored; it is
// computed from the last check-in timestamp at read time, so the same
// snapshot yields the same answer no matter when it is re-evaluated.
type Status string

const (
	StatusActive  Status = "active"
	StatusDormant Status = "dormant"
	StatusDead    Status = "dead"
	StatusKilled  Status = "killed"
)

// Thresholds are the liveness windows. Zero values fall back to the
// defaults (5 minutes active, 30 minutes dormant).
type Thresholds struct {
	ActiveWindow  time.Duration
	DormantWindow time.Duration
}

// DefaultThresholds returns the standard liveness windows.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ActiveWindow:  5 * time.Minute,
		DormantWindow: 30 * time.Minute,
	}
}

// ComputeStatus infers liveness from the kill flag and the gap between the
// last check-in and now. Killed wins over any timing. Pure function: callers
// pass now explicitly so historical snapshots can be re-evaluated.
func ComputeStatus(killed bool, lastSeen, now time.Time, th Thresholds) Status {
	if killed {
		return StatusKilled
	}

	if th.ActiveWindow <= 0 {
		th.ActiveWindow = 5 * time.Minute
	}
	if th.DormantWindow <= 0 {
		th.DormantWindow = 30 * time.Minute
	}

	gap := now.Sub(lastSeen)
	switch {
	case gap < th.ActiveWindow:
		return StatusActive
	case gap < th.DormantWindow:
		return StatusDormant
	default:
		return StatusDead
	}
}
