package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"boatpilot/pkg/db"
	"boatpilot/pkg/geo"
)

// SQLiteStore implements Recorder and Reader.
type SQLiteStore struct {
	db  *db.DB
	now func() time.Time
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(d *db.DB) *SQLiteStore {
	return &SQLiteStore{db: d, now: time.Now}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) StartSession(ctx context.Context, address string, home geo.Point) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mission_sessions (id, address, home_lat, home_lon, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, address, home.Lat, home.Lon, s.now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) EndSession(ctx context.Context, sessionID, outcome string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE mission_sessions SET ended_at = ?, outcome = ? WHERE id = ?`,
		s.now().UTC(), outcome, sessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("unknown session %s", sessionID)
	}
	return nil
}

func (s *SQLiteStore) RecordEvent(ctx context.Context, sessionID, kind, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mission_events (session_id, kind, detail, recorded_at) VALUES (?, ?, ?, ?)`,
		sessionID, kind, detail, s.now().UTC())
	return err
}

func (s *SQLiteStore) RecordSample(ctx context.Context, sessionID string, sample Sample) error {
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = s.now()
	}
	sample.RecordedAt = sample.RecordedAt.UTC()

	payload, err := msgpack.Marshal(&sample)
	if err != nil {
		return fmt.Errorf("failed to encode sample: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO telemetry_samples (session_id, payload, recorded_at) VALUES (?, ?, ?)`,
		sessionID, payload, sample.RecordedAt)
	return err
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, address, home_lat, home_lon, started_at, ended_at, outcome
		 FROM mission_sessions WHERE id = ?`, id)

	var sess Session
	var ended sql.NullTime
	var outcome sql.NullString
	err := row.Scan(&sess.ID, &sess.Address, &sess.Home.Lat, &sess.Home.Lon, &sess.StartedAt, &ended, &outcome)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	if ended.Valid {
		sess.EndedAt = ended.Time
	}
	if outcome.Valid {
		sess.Outcome = outcome.String
	}
	return &sess, nil
}

// RecentEvents returns up to limit events for the session, newest first.
func (s *SQLiteStore) RecentEvents(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, kind, detail, recorded_at FROM mission_events
		 WHERE session_id = ? ORDER BY id DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Kind, &e.Detail, &e.RecordedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Samples returns every sample of the session in recording order.
func (s *SQLiteStore) Samples(ctx context.Context, sessionID string) ([]Sample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM telemetry_samples WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var sample Sample
		if err := msgpack.Unmarshal(payload, &sample); err != nil {
			return nil, fmt.Errorf("failed to decode sample: %w", err)
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

var (
	_ Recorder = (*SQLiteStore)(nil)
	_ Reader   = (*SQLiteStore)(nil)
)
