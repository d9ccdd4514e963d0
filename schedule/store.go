package schedule

import (
	"database/sql"
	"time"

	"github.com/Rival420/donwatcher/errors"
)

// Store handles schedule persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new schedule store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create validates and stores a schedule. The first firing time defaults to
// now for recurring kinds so a new schedule fires on the next tick.
func (s *Store) Create(sch *Schedule, now time.Time) error {
	if sch.ID == "" {
		sch.ID = NewID()
	}
	if err := sch.Validate(); err != nil {
		return err
	}
	if sch.CreatedAt.IsZero() {
		sch.CreatedAt = now.UTC()
	}
	if sch.NextRunAt == nil {
		first := now.UTC()
		sch.NextRunAt = &first
	}

	params := "{}"
	if len(sch.Params) > 0 {
		params = string(sch.Params)
	}
	enabled := 0
	if sch.Enabled {
		enabled = 1
	}

	_, err := s.db.Exec(`
		INSERT INTO schedules (
			id, name, beacon_id, filter, job_type, command, params, priority,
			template_id, recurrence, interval_seconds, cron_expr,
			next_run_at, last_run_at, last_run_status, run_count, enabled, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, '', 0, ?, ?)
	`,
		sch.ID, sch.Name, sch.BeaconID, sch.Filter, sch.JobType, sch.Command,
		params, sch.Priority, sch.TemplateID, sch.Recurrence, sch.IntervalSeconds,
		sch.CronExpr, sch.NextRunAt.UTC().Format(time.RFC3339), enabled,
		sch.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrapf(err, "create schedule %s", sch.ID)
	}
	return nil
}

// Get retrieves a schedule by ID
func (s *Store) Get(id string) (*Schedule, error) {
	sch, err := scanSchedule(s.db.QueryRow(selectSchedule+` WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("schedule not found: %s", id)
		}
		return nil, errors.Wrapf(err, "get schedule %s", id)
	}
	return sch, nil
}

// List returns all schedules, newest first.
func (s *Store) List() ([]*Schedule, error) {
	rows, err := s.db.Query(selectSchedule + ` ORDER BY created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "list schedules")
	}
	defer rows.Close()

	var schedules []*Schedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan schedule")
		}
		schedules = append(schedules, sch)
	}
	return schedules, rows.Err()
}

// ListDue returns enabled schedules whose next firing time has arrived.
// One-shot schedules that already fired have a NULL next_run_at and are
// never selected again.
func (s *Store) ListDue(now time.Time) ([]*Schedule, error) {
	rows, err := s.db.Query(selectSchedule+`
		WHERE enabled = 1 AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at ASC
		LIMIT 100
	`, now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, errors.Wrap(err, "list due schedules")
	}
	defer rows.Close()

	var schedules []*Schedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan schedule")
		}
		schedules = append(schedules, sch)
	}
	return schedules, rows.Err()
}

// ClaimDue atomically claims a due schedule for firing by advancing its
// bookkeeping in the same guarded UPDATE that checks dueness. Exactly one
// concurrent caller observes RowsAffected == 1 and owns the firing; everyone
// else sees the schedule as no longer due. nextRun nil records a one-shot as
// fired for good.
func (s *Store) ClaimDue(id string, nextRun *time.Time, now time.Time) (bool, error) {
	var next interface{}
	if nextRun != nil {
		next = nextRun.UTC().Format(time.RFC3339)
	}

	nowStr := now.UTC().Format(time.RFC3339)
	result, err := s.db.Exec(`
		UPDATE schedules
		SET next_run_at = ?, last_run_at = ?, run_count = run_count + 1
		WHERE id = ? AND enabled = 1 AND next_run_at IS NOT NULL AND next_run_at <= ?
	`, next, nowStr, id, nowStr)
	if err != nil {
		return false, errors.Wrapf(err, "claim schedule %s", id)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return affected == 1, nil
}

// RecordRunStatus stores the outcome of the latest firing.
func (s *Store) RecordRunStatus(id, status string) error {
	_, err := s.db.Exec(`UPDATE schedules SET last_run_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return errors.Wrapf(err, "record run status for schedule %s", id)
	}
	return nil
}

// SetEnabled enables or disables a schedule. Disable doubles as delete:
// disabled schedules keep their history but never fire.
func (s *Store) SetEnabled(id string, enabled bool) error {
	val := 0
	if enabled {
		val = 1
	}
	result, err := s.db.Exec(`UPDATE schedules SET enabled = ? WHERE id = ?`, val, id)
	if err != nil {
		return errors.Wrapf(err, "set enabled on schedule %s", id)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		return errors.NewNotFoundError("schedule not found: %s", id)
	}
	return nil
}

// Update replaces the mutable definition fields of a schedule.
func (s *Store) Update(sch *Schedule) error {
	if err := sch.Validate(); err != nil {
		return err
	}

	params := "{}"
	if len(sch.Params) > 0 {
		params = string(sch.Params)
	}

	result, err := s.db.Exec(`
		UPDATE schedules
		SET name = ?, beacon_id = ?, filter = ?, job_type = ?, command = ?,
		    params = ?, priority = ?, recurrence = ?, interval_seconds = ?, cron_expr = ?
		WHERE id = ?
	`, sch.Name, sch.BeaconID, sch.Filter, sch.JobType, sch.Command,
		params, sch.Priority, sch.Recurrence, sch.IntervalSeconds, sch.CronExpr, sch.ID)
	if err != nil {
		return errors.Wrapf(err, "update schedule %s", sch.ID)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		return errors.NewNotFoundError("schedule not found: %s", sch.ID)
	}
	return nil
}

const selectSchedule = `
	SELECT id, name, beacon_id, filter, job_type, command, params, priority,
	       template_id, recurrence, interval_seconds, cron_expr,
	       next_run_at, last_run_at, last_run_status, run_count, enabled, created_at
	FROM schedules`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSchedule(row rowScanner) (*Schedule, error) {
	var sch Schedule
	var params, createdAt string
	var nextRunAt, lastRunAt sql.NullString
	var enabled int

	err := row.Scan(
		&sch.ID,
		&sch.Name,
		&sch.BeaconID,
		&sch.Filter,
		&sch.JobType,
		&sch.Command,
		&params,
		&sch.Priority,
		&sch.TemplateID,
		&sch.Recurrence,
		&sch.IntervalSeconds,
		&sch.CronExpr,
		&nextRunAt,
		&lastRunAt,
		&sch.LastRunStatus,
		&sch.RunCount,
		&enabled,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	sch.Params = []byte(params)
	sch.Enabled = enabled != 0

	if sch.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, errors.Wrapf(err, "parse created_at for schedule %s", sch.ID)
	}
	if nextRunAt.Valid {
		t, err := time.Parse(time.RFC3339, nextRunAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "parse next_run_at for schedule %s", sch.ID)
		}
		sch.NextRunAt = &t
	}
	if lastRunAt.Valid {
		t, err := time.Parse(time.RFC3339, lastRunAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "parse last_run_at for schedule %s", sch.ID)
		}
		sch.LastRunAt = &t
	}
	return &sch, nil
}
