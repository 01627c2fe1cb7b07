// Package archive persists detection runs and their alerts in sqlite, so
// repeated analyses of the same captures stay queryable side by side.
package archive

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DB wraps the sqlite handle with the detection-run schema applied.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the archive database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			capture TEXT,
			detector TEXT,
			started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS alerts (
			alert_id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT,
			address TEXT,
			timestamp_ms BIGINT,
			duration_ms BIGINT,
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("apply archive schema: %w", err)
	}

	return &DB{db}, nil
}

// RecordRun registers a detection run and returns its id.
func (db *DB) RecordRun(capture, detector string) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(
		"INSERT INTO runs (run_id, capture, detector) VALUES (?, ?, ?)",
		id, capture, detector,
	)
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	return id, nil
}

// RecordAlert stores one alert under the given run.
func (db *DB) RecordAlert(runID, address string, timestamp, duration int64) error {
	_, err := db.Exec(
		"INSERT INTO alerts (run_id, address, timestamp_ms, duration_ms) VALUES (?, ?, ?, ?)",
		runID, address, timestamp, duration,
	)
	if err != nil {
		return fmt.Errorf("record alert: %w", err)
	}
	return nil
}

// AlertRow is one archived alert.
type AlertRow struct {
	Address   string
	Timestamp int64
	Duration  int64
}

// Alerts returns the alerts archived for a run, in insertion order.
func (db *DB) Alerts(runID string) ([]AlertRow, error) {
	rows, err := db.Query(
		"SELECT address, timestamp_ms, duration_ms FROM alerts WHERE run_id = ? ORDER BY alert_id",
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []AlertRow
	for rows.Next() {
		var a AlertRow
		if err := rows.Scan(&a.Address, &a.Timestamp, &a.Duration); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
