// Package schedule materializes recurring work: operator-defined schedules
// fire on a background ticker and create pending jobs for their targets.
package schedule

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/Rival420/donwatcher/errors"
)

// Recurrence kinds.
const (
	RecurrenceOnce     = "once"
	RecurrenceHourly   = "hourly"
	RecurrenceDaily    = "daily"
	RecurrenceWeekly   = "weekly"
	RecurrenceInterval = "interval"
	RecurrenceCron     = "cron"
)

// Run outcome labels. no_targets is an informational outcome, not an error.
const (
	RunStatusOK        = "ok"
	RunStatusNoTargets = "no_targets"
	RunStatusError     = "error"
)

// Schedule is a recurring work definition. The target is exactly one of
// BeaconID or Filter.
type Schedule struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	BeaconID        string          `json:"beacon_id,omitempty"`
	Filter          string          `json:"filter,omitempty"`
	JobType         string          `json:"job_type"`
	Command         string          `json:"command"`
	Params          json.RawMessage `json:"params,omitempty"`
	Priority        int             `json:"priority"`
	TemplateID      string          `json:"template_id,omitempty"`
	Recurrence      string          `json:"recurrence"`
	IntervalSeconds int             `json:"interval_seconds,omitempty"`
	CronExpr        string          `json:"cron_expr,omitempty"`
	NextRunAt       *time.Time      `json:"next_run_at,omitempty"`
	LastRunAt       *time.Time      `json:"last_run_at,omitempty"`
	LastRunStatus   string          `json:"last_run_status,omitempty"`
	RunCount        int64           `json:"run_count"`
	Enabled         bool            `json:"enabled"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NewID generates a schedule identifier.
func NewID() string {
	return "SCH_" + uuid.New().String()
}

// Validate checks a schedule definition before it is stored.
func (s *Schedule) Validate() error {
	if s.Name == "" {
		return errors.Wrap(errors.ErrValidation, "schedule requires a name")
	}
	if (s.BeaconID == "") == (s.Filter == "") {
		return errors.Wrap(errors.ErrValidation, "schedule requires exactly one of beacon_id or filter")
	}
	if s.Filter != "" {
		if _, err := ParseFilter(s.Filter); err != nil {
			return err
		}
	}
	if s.JobType == "" {
		return errors.Wrap(errors.ErrValidation, "schedule requires a job type")
	}

	switch s.Recurrence {
	case RecurrenceOnce, RecurrenceHourly, RecurrenceDaily, RecurrenceWeekly:
	case RecurrenceInterval:
		if s.IntervalSeconds <= 0 {
			return errors.Wrap(errors.ErrValidation, "interval recurrence requires interval_seconds > 0")
		}
	case RecurrenceCron:
		if _, err := cron.ParseStandard(s.CronExpr); err != nil {
			return errors.NewValidationError("invalid cron expression %q: %v", s.CronExpr, err)
		}
	default:
		return errors.NewValidationError("unknown recurrence %q", s.Recurrence)
	}
	return nil
}

// NextRun computes the firing time after the given instant. Fixed-cadence
// kinds advance by exact durations, so a daily schedule fires exactly 24
// hours later across month and year boundaries. A one-shot schedule has no
// next run and returns nil.
func (s *Schedule) NextRun(after time.Time) (*time.Time, error) {
	var next time.Time
	switch s.Recurrence {
	case RecurrenceOnce:
		return nil, nil
	case RecurrenceHourly:
		next = after.Add(time.Hour)
	case RecurrenceDaily:
		next = after.Add(24 * time.Hour)
	case RecurrenceWeekly:
		next = after.Add(7 * 24 * time.Hour)
	case RecurrenceInterval:
		if s.IntervalSeconds <= 0 {
			return nil, errors.Wrap(errors.ErrValidation, "interval recurrence requires interval_seconds > 0")
		}
		next = after.Add(time.Duration(s.IntervalSeconds) * time.Second)
	case RecurrenceCron:
		spec, err := cron.ParseStandard(s.CronExpr)
		if err != nil {
			return nil, errors.NewValidationError("invalid cron expression %q: %v", s.CronExpr, err)
		}
		next = spec.Next(after)
	default:
		return nil, errors.NewValidationError("unknown recurrence %q", s.Recurrence)
	}
	return &next, nil
}
