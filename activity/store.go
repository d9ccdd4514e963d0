package activity

import (
	"database/sql"
	"sync"
	"time"

	"github.com/Rival420/donwatcher/errors"
	"github.com/Rival420/donwatcher/logger"
)

// Store persists activity entries and fans them out to live subscribers.
// The table is append-only; nothing here updates or deletes rows.
type Store struct {
	db *sql.DB

	mu          sync.Mutex
	subscribers map[chan *Entry]struct{}
}

// NewStore creates a new activity store
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:          db,
		subscribers: make(map[chan *Entry]struct{}),
	}
}

// Record appends an entry and broadcasts it to subscribers. Recording never
// fails the caller's operation: persistence errors are logged and returned,
// but callers are expected to treat them as advisory.
func (s *Store) Record(beaconID, category, detail string) error {
	entry := &Entry{
		BeaconID:  beaconID,
		Category:  category,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}

	var beacon interface{}
	if beaconID != "" {
		beacon = beaconID
	}

	result, err := s.db.Exec(`
		INSERT INTO activity_log (beacon_id, category, detail, created_at)
		VALUES (?, ?, ?, ?)
	`, beacon, category, detail, entry.CreatedAt.Format(time.RFC3339))
	if err != nil {
		logger.Errorw("Failed to record activity",
			"category", category,
			"error", err)
		return errors.Wrap(err, "record activity")
	}
	entry.ID, _ = result.LastInsertId()

	s.broadcast(entry)
	return nil
}

// Tail returns the most recent entries, newest first.
func (s *Store) Tail(limit int) ([]*Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT id, beacon_id, category, detail, created_at
		FROM activity_log
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "tail activity log")
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var beaconID sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &beaconID, &e.Category, &e.Detail, &createdAt); err != nil {
			return nil, errors.Wrap(err, "scan activity entry")
		}
		if beaconID.Valid {
			e.BeaconID = beaconID.String
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, errors.Wrapf(err, "parse created_at for activity %d", e.ID)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Subscribe returns a channel receiving new entries as they are recorded.
// Slow subscribers drop events rather than blocking writers.
func (s *Store) Subscribe() chan *Entry {
	ch := make(chan *Entry, 64)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *Store) Unsubscribe(ch chan *Entry) {
	s.mu.Lock()
	if _, ok := s.subscribers[ch]; ok {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.mu.Unlock()
}

func (s *Store) broadcast(entry *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- entry:
		default:
			// Subscriber is not keeping up, drop the event
		}
	}
}
