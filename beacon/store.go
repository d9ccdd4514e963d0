package beacon

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/Rival420/donwatcher/errors"
)

// Store handles beacon registry persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new beacon store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// UpsertCheckIn registers a new beacon or records a check-in for an existing
// one in a single statement. The counter increment and the last_seen update
// are part of the same SQL expression, so concurrent check-ins from distinct
// beacons never interleave a lost update, and a delayed replay can never move
// last_seen backwards. The killed flag and operator-set poll config are never
// touched here. Returns the stored row and whether this was a first contact.
func (s *Store) UpsertCheckIn(incoming *Beacon, now time.Time) (*Beacon, bool, error) {
	descriptors, err := json.Marshal(incoming.Descriptors)
	if err != nil {
		return nil, false, errors.Wrap(err, "marshal descriptors")
	}
	if incoming.Descriptors == nil {
		descriptors = []byte("{}")
	}

	nowStr := now.UTC().Format(time.RFC3339)
	query := `
		INSERT INTO beacons (
			id, hostname, os, platform, internal_ip, external_ip,
			username, domain, descriptors, poll_interval_seconds,
			jitter_percent, first_seen, last_seen, check_in_count, killed, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0, '')
		ON CONFLICT(id) DO UPDATE SET
			hostname = excluded.hostname,
			os = excluded.os,
			platform = excluded.platform,
			internal_ip = excluded.internal_ip,
			external_ip = excluded.external_ip,
			username = excluded.username,
			domain = excluded.domain,
			descriptors = excluded.descriptors,
			last_seen = MAX(last_seen, excluded.last_seen),
			check_in_count = check_in_count + 1
	`

	_, err = s.db.Exec(query,
		incoming.ID,
		incoming.Hostname,
		incoming.OS,
		incoming.Platform,
		incoming.InternalIP,
		incoming.ExternalIP,
		incoming.Username,
		incoming.Domain,
		string(descriptors),
		incoming.PollIntervalSeconds,
		incoming.JitterPercent,
		nowStr,
		nowStr,
	)
	if err != nil {
		return nil, false, errors.Wrap(err, "upsert beacon")
	}

	stored, err := s.Get(incoming.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, stored.CheckInCount == 1, nil
}

// Get retrieves a beacon by ID
func (s *Store) Get(id string) (*Beacon, error) {
	query := `
		SELECT id, hostname, os, platform, internal_ip, external_ip,
		       username, domain, descriptors, poll_interval_seconds,
		       jitter_percent, first_seen, last_seen, check_in_count, killed, notes
		FROM beacons
		WHERE id = ?
	`
	b, err := scanBeacon(s.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("beacon not found: %s", id)
		}
		return nil, errors.Wrapf(err, "get beacon %s", id)
	}
	return b, nil
}

// List returns all registered beacons, most recently seen first.
func (s *Store) List() ([]*Beacon, error) {
	query := `
		SELECT id, hostname, os, platform, internal_ip, external_ip,
		       username, domain, descriptors, poll_interval_seconds,
		       jitter_percent, first_seen, last_seen, check_in_count, killed, notes
		FROM beacons
		ORDER BY last_seen DESC
	`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, errors.Wrap(err, "list beacons")
	}
	defer rows.Close()

	var beacons []*Beacon
	for rows.Next() {
		b, err := scanBeacon(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan beacon")
		}
		beacons = append(beacons, b)
	}
	return beacons, rows.Err()
}

// Kill marks a beacon as killed. The transition is one-way: a later check-in
// never clears the flag.
func (s *Store) Kill(id string) error {
	result, err := s.db.Exec(`UPDATE beacons SET killed = 1 WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "kill beacon %s", id)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("beacon not found: %s", id)
	}
	return nil
}

// SetNotes updates the operator notes on a beacon
func (s *Store) SetNotes(id, notes string) error {
	result, err := s.db.Exec(`UPDATE beacons SET notes = ? WHERE id = ?`, notes, id)
	if err != nil {
		return errors.Wrapf(err, "set notes on beacon %s", id)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("beacon not found: %s", id)
	}
	return nil
}

// SetPollConfig updates the poll interval and jitter handed to the beacon at
// its next check-in.
func (s *Store) SetPollConfig(id string, pollSeconds, jitterPct int) error {
	if pollSeconds < 1 {
		return errors.NewValidationError("poll interval must be at least 1 second, got %d", pollSeconds)
	}
	if jitterPct < 0 || jitterPct > 100 {
		return errors.NewValidationError("jitter percent must be between 0 and 100, got %d", jitterPct)
	}

	result, err := s.db.Exec(
		`UPDATE beacons SET poll_interval_seconds = ?, jitter_percent = ? WHERE id = ?`,
		pollSeconds, jitterPct, id,
	)
	if err != nil {
		return errors.Wrapf(err, "set poll config on beacon %s", id)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("beacon not found: %s", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBeacon(row rowScanner) (*Beacon, error) {
	var b Beacon
	var descriptors, firstSeen, lastSeen string
	var killed int

	err := row.Scan(
		&b.ID,
		&b.Hostname,
		&b.OS,
		&b.Platform,
		&b.InternalIP,
		&b.ExternalIP,
		&b.Username,
		&b.Domain,
		&descriptors,
		&b.PollIntervalSeconds,
		&b.JitterPercent,
		&firstSeen,
		&lastSeen,
		&b.CheckInCount,
		&killed,
		&b.Notes,
	)
	if err != nil {
		return nil, err
	}

	b.Killed = killed != 0

	if b.FirstSeen, err = time.Parse(time.RFC3339, firstSeen); err != nil {
		return nil, errors.Wrapf(err, "parse first_seen for beacon %s", b.ID)
	}
	if b.LastSeen, err = time.Parse(time.RFC3339, lastSeen); err != nil {
		return nil, errors.Wrapf(err, "parse last_seen for beacon %s", b.ID)
	}

	if descriptors != "" && descriptors != "{}" {
		if err := json.Unmarshal([]byte(descriptors), &b.Descriptors); err != nil {
			return nil, errors.Wrapf(err, "parse descriptors for beacon %s", b.ID)
		}
	}

	return &b, nil
}
