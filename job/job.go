// Package job implements the work queue: pending jobs claimed at check-in,
// a guarded lifecycle state machine, reusable templates, and the reaper that
// fails jobs whose beacon went quiet.
package job

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Rival420/donwatcher/errors"
)

// Job lifecycle states. pending -> sent -> [running] -> terminal. The
// running hop is optional: agents that do not emit progress reports go
// straight from sent to a terminal state.
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Known job types. Shell is the open-ended catch-all; the scan types carry
// typed parameter payloads.
const (
	TypeShell         = "shell"
	TypePortScan      = "port_scan"
	TypeDomainRecon   = "domain_recon"
	TypeCollectReport = "collect_report"
)

// Job is one unit of work targeted at a single beacon.
type Job struct {
	ID          string          `json:"id"`
	BeaconID    string          `json:"beacon_id"`
	JobType     string          `json:"job_type"`
	Command     string          `json:"command"`
	Params      json.RawMessage `json:"params,omitempty"`
	Priority    int             `json:"priority"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	SentAt      *time.Time      `json:"sent_at,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Output      string          `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	ExitCode    *int            `json:"exit_code,omitempty"`
	ScheduleID  string          `json:"schedule_id,omitempty"`
	TemplateID  string          `json:"template_id,omitempty"`
}

// Result is a terminal outcome reported by a beacon.
type Result struct {
	Status   string // completed or failed
	Output   string
	Error    string
	ExitCode *int
}

// NewID generates a job identifier.
func NewID() string {
	return "JOB_" + uuid.New().String()
}

// IsTerminal reports whether the status is a final state.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Validate checks a job descriptor before it enters the queue.
func (j *Job) Validate() error {
	if j.BeaconID == "" {
		return errors.Wrap(errors.ErrValidation, "job requires a beacon id")
	}
	if j.JobType == "" {
		return errors.Wrap(errors.ErrValidation, "job requires a job type")
	}
	if j.Command == "" && j.JobType == TypeShell {
		return errors.Wrap(errors.ErrValidation, "shell job requires a command")
	}
	if _, err := DecodeParams(j.JobType, j.Params); err != nil {
		return err
	}
	return nil
}

// Validate checks a reported result carries a legal terminal status.
func (r *Result) Validate() error {
	if r.Status != StatusCompleted && r.Status != StatusFailed {
		return errors.NewValidationError("result status must be completed or failed, got %q", r.Status)
	}
	return nil
}
