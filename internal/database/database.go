// Package database is the SQLite store behind the local collector: received
// events, the academy catalog and bookings.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // CGO-free SQLite

	"github.com/vincentbai/lynk-embed/internal/models"
)

var (
	// ErrNotFound is returned for unknown academies or catalog items.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable is returned when a batch is full or a slot is taken.
	ErrUnavailable = errors.New("no longer available")
	// ErrInvalidBooking is returned for malformed booking requests.
	ErrInvalidBooking = errors.New("invalid booking")
	// ErrInvalidEvent wraps the validation failure that rejected a batch.
	ErrInvalidEvent = errors.New("invalid event")
)

type Database struct {
	db *sql.DB
}

func NewDatabase(databasePath string) (*Database, error) {
	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", databasePath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS events(
	  id              INTEGER PRIMARY KEY,
	  academy_id      TEXT    NOT NULL,
	  session_id      TEXT    NOT NULL,
	  event_name      TEXT    NOT NULL,
	  ts_utc          INTEGER NOT NULL,
	  url             TEXT    NOT NULL DEFAULT '',
	  referrer        TEXT    NOT NULL DEFAULT '',
	  user_agent      TEXT    NOT NULL DEFAULT '',
	  properties_json TEXT    NOT NULL CHECK (json_valid(properties_json))
	);
	CREATE INDEX IF NOT EXISTS idx_events_academy ON events(academy_id, ts_utc);
	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
	CREATE INDEX IF NOT EXISTS idx_events_name    ON events(event_name);

	CREATE TABLE IF NOT EXISTS academies(
	  id          TEXT PRIMARY KEY,
	  config_json TEXT NOT NULL CHECK (json_valid(config_json))
	);

	CREATE TABLE IF NOT EXISTS batches(
	  academy_id          TEXT    NOT NULL,
	  id                  TEXT    NOT NULL,
	  name                TEXT    NOT NULL,
	  description         TEXT    NOT NULL DEFAULT '',
	  schedule            TEXT    NOT NULL DEFAULT '',
	  price               REAL    NOT NULL,
	  currency            TEXT    NOT NULL,
	  capacity            INTEGER NOT NULL,
	  enrolled            INTEGER NOT NULL DEFAULT 0,
	  coach_name          TEXT    NOT NULL DEFAULT '',
	  venue_name          TEXT    NOT NULL DEFAULT '',
	  allow_embed_booking INTEGER NOT NULL DEFAULT 1,
	  PRIMARY KEY (academy_id, id)
	);

	CREATE TABLE IF NOT EXISTS appointment_slots(
	  academy_id TEXT    NOT NULL,
	  id         TEXT    NOT NULL,
	  date       TEXT    NOT NULL,
	  time       TEXT    NOT NULL,
	  duration   INTEGER NOT NULL,
	  coach_id   TEXT    NOT NULL DEFAULT '',
	  coach_name TEXT    NOT NULL DEFAULT '',
	  booked     INTEGER NOT NULL DEFAULT 0,
	  PRIMARY KEY (academy_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_slots_date ON appointment_slots(academy_id, date);

	CREATE TABLE IF NOT EXISTS bookings(
	  id            TEXT PRIMARY KEY,
	  academy_id    TEXT NOT NULL,
	  type          TEXT NOT NULL CHECK (type IN ('batch','appointment')),
	  item_id       TEXT NOT NULL,
	  customer_json TEXT NOT NULL CHECK (json_valid(customer_json)),
	  details_json  TEXT NOT NULL CHECK (json_valid(details_json)),
	  status        TEXT NOT NULL,
	  created_at    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_bookings_academy ON bookings(academy_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database tables: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) ValidateEvent(event models.EnrichedEvent) error {
	if event.EventName == "" {
		return models.ErrEmptyEventName
	}
	if event.AcademyID == "" {
		return fmt.Errorf("academyId cannot be empty")
	}
	if event.SessionID == "" {
		return fmt.Errorf("sessionId cannot be empty")
	}
	if event.Timestamp <= 0 {
		return fmt.Errorf("timestamp must be positive")
	}
	return nil
}

// InsertEvents stores a batch atomically: one invalid event rejects all.
func (d *Database) InsertEvents(ctx context.Context, events []models.EnrichedEvent) error {
	transaction, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	statement, err := transaction.PrepareContext(ctx, `INSERT INTO events(academy_id, session_id, event_name, ts_utc, url, referrer, user_agent, properties_json) VALUES(?,?,?,?,?,?,?,json(?))`)
	if err != nil {
		_ = transaction.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer statement.Close()

	for _, event := range events {
		if err := d.ValidateEvent(event); err != nil {
			_ = transaction.Rollback()
			return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
		}

		properties := event.Properties
		if properties == nil {
			properties = map[string]any{}
		}
		jsonData, err := json.Marshal(properties)
		if err != nil {
			_ = transaction.Rollback()
			return fmt.Errorf("failed to marshal event properties: %w", err)
		}
		if _, err := statement.ExecContext(ctx, event.AcademyID, event.SessionID, event.EventName, event.Timestamp,
			event.URL, event.Referrer, event.UserAgent, string(jsonData)); err != nil {
			_ = transaction.Rollback()
			return fmt.Errorf("failed to execute statement: %w", err)
		}
	}
	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit events for an academy, newest first.
func (d *Database) RecentEvents(ctx context.Context, academyID string, limit int) ([]models.EnrichedEvent, error) {
	rows, err := d.db.QueryContext(ctx, `
	SELECT event_name, ts_utc, session_id, url, referrer, user_agent, properties_json
	FROM events WHERE academy_id = ? ORDER BY ts_utc DESC, id DESC LIMIT ?`, academyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.EnrichedEvent
	for rows.Next() {
		event := models.EnrichedEvent{AcademyID: academyID}
		var properties string
		if err := rows.Scan(&event.EventName, &event.Timestamp, &event.SessionID, &event.URL,
			&event.Referrer, &event.UserAgent, &properties); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(properties), &event.Properties); err != nil {
			return nil, fmt.Errorf("failed to decode event properties: %w", err)
		}
		if len(event.Properties) == 0 {
			event.Properties = nil
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// CountEvents returns how many events an academy has sent.
func (d *Database) CountEvents(ctx context.Context, academyID string) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events WHERE academy_id = ?", academyID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

func nowISO(now time.Time) string {
	return now.UTC().Format(time.RFC3339)
}
