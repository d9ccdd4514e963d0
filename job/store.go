package job

import (
	"database/sql"
	"time"

	"github.com/Rival420/donwatcher/errors"
)

// Store handles job queue persistence. All lifecycle transitions are guarded
// UPDATEs checked via RowsAffected, so the state machine holds across
// concurrent requests and across server processes.
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create validates and enqueues a job in the pending state.
func (s *Store) Create(j *Job) error {
	if j.ID == "" {
		j.ID = NewID()
	}
	if j.Status == "" {
		j.Status = StatusPending
	}
	if j.Status != StatusPending {
		return errors.NewValidationError("new jobs must be pending, got %q", j.Status)
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	if err := j.Validate(); err != nil {
		return err
	}

	params := "{}"
	if len(j.Params) > 0 {
		params = string(j.Params)
	}

	query := `
		INSERT INTO jobs (
			id, beacon_id, job_type, command, params, priority,
			status, created_at, output, error, schedule_id, template_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', '', ?, ?)
	`
	_, err := s.db.Exec(query,
		j.ID,
		j.BeaconID,
		j.JobType,
		j.Command,
		params,
		j.Priority,
		j.Status,
		j.CreatedAt.Format(time.RFC3339),
		j.ScheduleID,
		j.TemplateID,
	)
	if err != nil {
		return errors.Wrapf(err, "create job %s", j.ID)
	}
	return nil
}

// Get retrieves a job by ID
func (s *Store) Get(id string) (*Job, error) {
	j, err := scanJob(s.db.QueryRow(selectJob+` WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("job not found: %s", id)
		}
		return nil, errors.Wrapf(err, "get job %s", id)
	}
	return j, nil
}

// List returns jobs, optionally filtered by beacon and status, newest first.
func (s *Store) List(beaconID, status string, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 100
	}

	query := selectJob + ` WHERE 1=1`
	args := []interface{}{}
	if beaconID != "" {
		query += ` AND beacon_id = ?`
		args = append(args, beaconID)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	return s.queryJobs(query, args...)
}

// ListBySchedule returns jobs materialized from a schedule, newest first.
func (s *Store) ListBySchedule(scheduleID string, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryJobs(selectJob+` WHERE schedule_id = ? ORDER BY created_at DESC LIMIT ?`, scheduleID, limit)
}

// ClaimPending atomically claims up to limit pending jobs for a beacon,
// highest priority first, oldest first within a priority. Each claim is its
// own guarded UPDATE inside the transaction, so a job is handed to exactly
// one check-in even when the same beacon polls twice concurrently. Jobs are
// durably sent once this returns; the caller must only then serialize the
// response.
func (s *Store) ClaimPending(beaconID string, limit int, now time.Time) ([]*Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "begin claim transaction")
	}
	defer tx.Rollback()

	rows, err := tx.Query(`
		SELECT id FROM jobs
		WHERE beacon_id = ? AND status = ?
		ORDER BY priority DESC, created_at ASC
		LIMIT ?
	`, beaconID, StatusPending, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select pending jobs")
	}

	var candidates []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan pending job id")
		}
		candidates = append(candidates, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.Wrap(err, "iterate pending jobs")
	}
	rows.Close()

	nowStr := now.UTC().Format(time.RFC3339)
	var claimed []string
	for _, id := range candidates {
		result, err := tx.Exec(`
			UPDATE jobs SET status = ?, sent_at = ?
			WHERE id = ? AND status = ?
		`, StatusSent, nowStr, id, StatusPending)
		if err != nil {
			return nil, errors.Wrapf(err, "claim job %s", id)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, errors.Wrap(err, "rows affected")
		}
		// Lost to a concurrent claim, skip it
		if affected == 1 {
			claimed = append(claimed, id)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit claim transaction")
	}

	var jobs []*Job
	for _, id := range claimed {
		j, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// MarkRunning records an optional agent progress signal. Legal only from
// sent; anything else is a conflict.
func (s *Store) MarkRunning(jobID, beaconID string, now time.Time) error {
	result, err := s.db.Exec(`
		UPDATE jobs SET status = ?, started_at = ?
		WHERE id = ? AND beacon_id = ? AND status = ?
	`, StatusRunning, now.UTC().Format(time.RFC3339), jobID, beaconID, StatusSent)
	if err != nil {
		return errors.Wrapf(err, "mark job %s running", jobID)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if affected == 1 {
		return nil
	}

	j, err := s.Get(jobID)
	if err != nil {
		return err
	}
	if j.BeaconID != beaconID {
		return errors.NewConflictError("job %s belongs to a different beacon", jobID)
	}
	return errors.NewConflictError("job %s cannot start from status %s", jobID, j.Status)
}

// Complete records a terminal result for a dispatched job. The transition is
// one guarded UPDATE; on zero rows the failure is classified: unknown job,
// wrong beacon, an identical duplicate of the stored terminal result (a
// no-op, absorbing agent retries), or an illegal transition.
func (s *Store) Complete(jobID, beaconID string, res *Result, now time.Time) error {
	if err := res.Validate(); err != nil {
		return err
	}

	var exitCode interface{}
	if res.ExitCode != nil {
		exitCode = *res.ExitCode
	}

	result, err := s.db.Exec(`
		UPDATE jobs SET status = ?, output = ?, error = ?, exit_code = ?, completed_at = ?
		WHERE id = ? AND beacon_id = ? AND status IN (?, ?)
	`, res.Status, res.Output, res.Error, exitCode, now.UTC().Format(time.RFC3339),
		jobID, beaconID, StatusSent, StatusRunning)
	if err != nil {
		return errors.Wrapf(err, "complete job %s", jobID)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if affected == 1 {
		return nil
	}

	j, err := s.Get(jobID)
	if err != nil {
		return err
	}
	if j.BeaconID != beaconID {
		return errors.NewConflictError("job %s belongs to a different beacon", jobID)
	}
	if IsTerminal(j.Status) && j.Status == res.Status && j.Output == res.Output &&
		j.Error == res.Error && exitCodeEqual(j.ExitCode, res.ExitCode) {
		return errors.Wrapf(errors.ErrStaleResult, "job %s already %s", jobID, j.Status)
	}
	return errors.NewConflictError("job %s cannot accept a result from status %s", jobID, j.Status)
}

// Cancel withdraws a job that has not finished. Pending and sent jobs can be
// cancelled; running and terminal jobs cannot.
func (s *Store) Cancel(jobID string, now time.Time) error {
	result, err := s.db.Exec(`
		UPDATE jobs SET status = ?, completed_at = ?
		WHERE id = ? AND status IN (?, ?)
	`, StatusCancelled, now.UTC().Format(time.RFC3339), jobID, StatusPending, StatusSent)
	if err != nil {
		return errors.Wrapf(err, "cancel job %s", jobID)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if affected == 1 {
		return nil
	}

	j, err := s.Get(jobID)
	if err != nil {
		return err
	}
	return errors.NewConflictError("job %s cannot be cancelled from status %s", jobID, j.Status)
}

// DispatchedJob pairs a dispatched job with its beacon's poll interval for
// reap eligibility checks.
type DispatchedJob struct {
	Job                 *Job
	PollIntervalSeconds int
}

// ListDispatched returns sent and running jobs joined with each beacon's
// configured poll interval.
func (s *Store) ListDispatched() ([]*DispatchedJob, error) {
	query := `
		SELECT j.id, j.beacon_id, j.job_type, j.command, j.params, j.priority,
		       j.status, j.created_at, j.sent_at, j.started_at, j.completed_at,
		       j.output, j.error, j.exit_code, j.schedule_id, j.template_id,
		       b.poll_interval_seconds
		FROM jobs j
		JOIN beacons b ON b.id = j.beacon_id
		WHERE j.status IN (?, ?)
	`
	rows, err := s.db.Query(query, StatusSent, StatusRunning)
	if err != nil {
		return nil, errors.Wrap(err, "list dispatched jobs")
	}
	defer rows.Close()

	var dispatched []*DispatchedJob
	for rows.Next() {
		d := &DispatchedJob{Job: &Job{}}
		if err := scanJobInto(rows, d.Job, &d.PollIntervalSeconds); err != nil {
			return nil, errors.Wrap(err, "scan dispatched job")
		}
		dispatched = append(dispatched, d)
	}
	return dispatched, rows.Err()
}

// FailTimedOut marks a dispatched job as failed with a timeout error. Guarded
// so a result that lands concurrently wins over the reaper.
func (s *Store) FailTimedOut(jobID string, now time.Time) (bool, error) {
	result, err := s.db.Exec(`
		UPDATE jobs SET status = ?, error = ?, completed_at = ?
		WHERE id = ? AND status IN (?, ?)
	`, StatusFailed, "timed out waiting for result", now.UTC().Format(time.RFC3339),
		jobID, StatusSent, StatusRunning)
	if err != nil {
		return false, errors.Wrapf(err, "fail timed-out job %s", jobID)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return affected == 1, nil
}

const selectJob = `
	SELECT id, beacon_id, job_type, command, params, priority,
	       status, created_at, sent_at, started_at, completed_at,
	       output, error, exit_code, schedule_id, template_id
	FROM jobs`

func (s *Store) queryJobs(query string, args ...interface{}) ([]*Job, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query jobs")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var j Job
		if err := scanJobInto(rows, &j); err != nil {
			return nil, errors.Wrap(err, "scan job")
		}
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	if err := scanJobInto(row, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func scanJobInto(row rowScanner, j *Job, extra ...interface{}) error {
	var params, createdAt string
	var sentAt, startedAt, completedAt, scheduleID, templateID sql.NullString
	var exitCode sql.NullInt64

	dest := []interface{}{
		&j.ID,
		&j.BeaconID,
		&j.JobType,
		&j.Command,
		&params,
		&j.Priority,
		&j.Status,
		&createdAt,
		&sentAt,
		&startedAt,
		&completedAt,
		&j.Output,
		&j.Error,
		&exitCode,
		&scheduleID,
		&templateID,
	}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		return err
	}

	j.Params = []byte(params)

	var err error
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return errors.Wrapf(err, "parse created_at for job %s", j.ID)
	}
	if j.SentAt, err = parseNullTime(sentAt); err != nil {
		return errors.Wrapf(err, "parse sent_at for job %s", j.ID)
	}
	if j.StartedAt, err = parseNullTime(startedAt); err != nil {
		return errors.Wrapf(err, "parse started_at for job %s", j.ID)
	}
	if j.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return errors.Wrapf(err, "parse completed_at for job %s", j.ID)
	}

	if exitCode.Valid {
		code := int(exitCode.Int64)
		j.ExitCode = &code
	}
	if scheduleID.Valid {
		j.ScheduleID = scheduleID.String
	}
	if templateID.Valid {
		j.TemplateID = templateID.String
	}
	return nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func exitCodeEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
