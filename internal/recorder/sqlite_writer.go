package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"droneops-console/internal/event"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS drone_telemetry (
  drone_id   TEXT NOT NULL,
  mission_id TEXT,
  lat        REAL,
  lon        REAL,
  alt        REAL,
  battery    REAL,
  speed      REAL,
  status     TEXT,
  ts         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_drone_telemetry_drone_ts ON drone_telemetry (drone_id, ts);
CREATE TABLE IF NOT EXISTS alerts (
  mission_id TEXT,
  drone_id   TEXT,
  severity   TEXT,
  message    TEXT,
  ts         INTEGER NOT NULL
);
`

// SQLiteWriter keeps a local archive of telemetry rows and alerts.
type SQLiteWriter struct {
	db *sql.DB

	mu     sync.Mutex
	merger rowMerger
}

// OpenSQLite opens (creating if needed) the archive at path.
func OpenSQLite(path string) (*SQLiteWriter, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &SQLiteWriter{db: db}, nil
}

// WriteEvent stores ev if it is telemetry or an alert.
func (w *SQLiteWriter) WriteEvent(ev event.Event) error {
	return w.WriteEvents([]event.Event{ev})
}

// WriteEvents stores evs in a single transaction.
func (w *SQLiteWriter) WriteEvents(evs []event.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	for _, ev := range evs {
		if ev.Kind == event.DroneAlert {
			if _, err := tx.Exec(`INSERT INTO alerts (mission_id, drone_id, severity, message, ts) VALUES (?, ?, ?, ?, ?)`,
				ev.MissionID, ev.DroneID, ev.Severity, ev.Message, ev.Time.UnixMilli()); err != nil {
				return err
			}
			continue
		}
		r, ok := w.merger.merge(ev)
		if !ok {
			continue
		}
		if _, err := tx.Exec(`INSERT INTO drone_telemetry (drone_id, mission_id, lat, lon, alt, battery, speed, status, ts) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.DroneID, r.MissionID, r.Lat, r.Lon, r.Alt, r.Battery, r.Speed, r.Status, r.Timestamp.UnixMilli()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Rows returns the archived telemetry for droneID in time order.
func (w *SQLiteWriter) Rows(ctx context.Context, droneID string) ([]TelemetryRow, error) {
	rows, err := w.db.QueryContext(ctx, `SELECT drone_id, COALESCE(mission_id, ''), lat, lon, alt, battery, speed, COALESCE(status, ''), ts
FROM drone_telemetry WHERE drone_id = ? ORDER BY ts`, droneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TelemetryRow
	for rows.Next() {
		var r TelemetryRow
		var ts int64
		if err := rows.Scan(&r.DroneID, &r.MissionID, &r.Lat, &r.Lon, &r.Alt, &r.Battery, &r.Speed, &r.Status, &ts); err != nil {
			return nil, err
		}
		r.Timestamp = time.UnixMilli(ts).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// AlertCount returns how many alerts were archived.
func (w *SQLiteWriter) AlertCount(ctx context.Context) (int, error) {
	var n int
	err := w.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`).Scan(&n)
	return n, err
}

// Close closes the database.
func (w *SQLiteWriter) Close() error {
	return w.db.Close()
}
