// Package db is the backend's session store: a sqlite database recording
// which devices have been seen, the history of applied pipeline configs,
// log sink throughput samples and downsampled IMU traces for offline
// plotting. Schema changes go through embedded golang-migrate migrations.
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// NewDB opens (and creates if needed) the session database at path and
// applies pending migrations.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Single writer; the actor goroutine owns all inserts.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// DeviceSeen is one row of the devices table.
type DeviceSeen struct {
	ID        string
	FirstSeen time.Time
	LastSeen  time.Time
}

// RecordDeviceSeen upserts the device id with a fresh last_seen.
func (db *DB) RecordDeviceSeen(id string) error {
	if id == "" {
		return fmt.Errorf("empty device id")
	}
	_, err := db.Exec(`
		INSERT INTO devices (id, first_seen, last_seen)
		VALUES (?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET last_seen = CURRENT_TIMESTAMP`,
		id)
	return err
}

// DevicesSeen lists every device the backend has ever selected, most
// recently seen first.
func (db *DB) DevicesSeen() ([]DeviceSeen, error) {
	rows, err := db.Query(`SELECT id, first_seen, last_seen FROM devices ORDER BY last_seen DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeviceSeen
	for rows.Next() {
		var d DeviceSeen
		if err := rows.Scan(&d.ID, &d.FirstSeen, &d.LastSeen); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// PipelineApply is one row of the pipeline_history table.
type PipelineApply struct {
	ID        int64
	DeviceID  string
	Config    string // JSON blob
	OK        bool
	Message   string
	AppliedAt time.Time
}

// RecordPipelineApply appends one pipeline apply attempt.
func (db *DB) RecordPipelineApply(deviceID, configJSON string, ok bool, message string) error {
	_, err := db.Exec(`
		INSERT INTO pipeline_history (device_id, config, ok, message)
		VALUES (?, ?, ?, ?)`,
		deviceID, configJSON, ok, message)
	return err
}

// PipelineHistory returns the most recent apply attempts, newest first.
func (db *DB) PipelineHistory(limit int) ([]PipelineApply, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT id, device_id, config, ok, message, applied_at
		FROM pipeline_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PipelineApply
	for rows.Next() {
		var p PipelineApply
		if err := rows.Scan(&p.ID, &p.DeviceID, &p.Config, &p.OK, &p.Message, &p.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// IMUSampleRow is one downsampled IMU sample kept for offline plotting.
type IMUSampleRow struct {
	Timestamp                  time.Time
	AccelX, AccelY, AccelZ     float64
	GyroX, GyroY, GyroZ        float64
	QuatW, QuatX, QuatY, QuatZ float64
}

// RecordIMUSample appends one IMU sample row.
func (db *DB) RecordIMUSample(s IMUSampleRow) error {
	ts := s.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := db.Exec(`
		INSERT INTO imu_samples (
			ts, accel_x, accel_y, accel_z, gyro_x, gyro_y, gyro_z,
			quat_w, quat_x, quat_y, quat_z
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.UnixNano(),
		s.AccelX, s.AccelY, s.AccelZ,
		s.GyroX, s.GyroY, s.GyroZ,
		s.QuatW, s.QuatX, s.QuatY, s.QuatZ)
	return err
}

// IMUSamples returns up to limit samples, oldest first, for plotting.
func (db *DB) IMUSamples(limit int) ([]IMUSampleRow, error) {
	if limit <= 0 {
		limit = 10000
	}
	rows, err := db.Query(`
		SELECT ts, accel_x, accel_y, accel_z, gyro_x, gyro_y, gyro_z,
			quat_w, quat_x, quat_y, quat_z
		FROM imu_samples ORDER BY ts ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IMUSampleRow
	for rows.Next() {
		var s IMUSampleRow
		var ns int64
		if err := rows.Scan(&ns,
			&s.AccelX, &s.AccelY, &s.AccelZ,
			&s.GyroX, &s.GyroY, &s.GyroZ,
			&s.QuatW, &s.QuatX, &s.QuatY, &s.QuatZ); err != nil {
			return nil, err
		}
		s.Timestamp = time.Unix(0, ns)
		out = append(out, s)
	}
	return out, rows.Err()
}

// SinkStatsSample is one periodic snapshot of log sink throughput.
type SinkStatsSample struct {
	Timestamp time.Time
	Entries   uint64
	Dropped   uint64
	Clients   int32
}

// RecordSinkStats appends one stats snapshot.
func (db *DB) RecordSinkStats(s SinkStatsSample) error {
	ts := s.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := db.Exec(`
		INSERT INTO sink_stats (ts, entries, dropped, clients)
		VALUES (?, ?, ?, ?)`,
		ts.UnixNano(), s.Entries, s.Dropped, s.Clients)
	return err
}

// SinkStats returns the most recent stats samples, oldest first.
func (db *DB) SinkStats(limit int) ([]SinkStatsSample, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.Query(`
		SELECT ts, entries, dropped, clients FROM (
			SELECT ts, entries, dropped, clients
			FROM sink_stats ORDER BY ts DESC LIMIT ?
		) ORDER BY ts ASC`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SinkStatsSample
	for rows.Next() {
		var s SinkStatsSample
		var ns int64
		if err := rows.Scan(&ns, &s.Entries, &s.Dropped, &s.Clients); err != nil {
			return nil, err
		}
		s.Timestamp = time.Unix(0, ns)
		out = append(out, s)
	}
	return out, rows.Err()
}
