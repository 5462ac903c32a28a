package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens/creates a SQLite DB file and ensures tables exist.
func InitDB(path string) (*sql.DB, error) {
	conn, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// Conservative pool settings for SQLite
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := ensureSchema(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	// Fail fast if the DB cannot be reached
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return conn, nil
}

const sqliteDriverName = "sqlite"

const schemaZoneStatus = `
CREATE TABLE IF NOT EXISTS ZoneStatus (
    ZoneName TEXT PRIMARY KEY,
    CurrentState TEXT NOT NULL DEFAULT 'OFF',
    ZoneRoomTemp_F REAL,
    PipeTemp_F REAL,
    TargetSetpoint_F REAL,
    ControlMode TEXT NOT NULL DEFAULT 'AUTO',
    SetpointOverrideAt TIMESTAMP,
    SetpointOverrideMode TEXT,
    SetpointOverrideUntil TIMESTAMP,
    UpdatedAt TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const schemaEventLog = `
CREATE TABLE IF NOT EXISTS EventLog (
    Id INTEGER PRIMARY KEY AUTOINCREMENT,
    Timestamp TIMESTAMP NOT NULL,
    Source TEXT NOT NULL,
    Event TEXT NOT NULL,
    ZoneRoomTemp_F REAL,
    PipeTemp_F REAL,
    OutsideTemp_F REAL,
    DurationSeconds REAL
);
CREATE INDEX IF NOT EXISTS idx_eventlog_source_ts ON EventLog (Source, Timestamp);
`

const schemaTemperatureSamples = `
CREATE TABLE IF NOT EXISTS TemperatureSamples (
    Id INTEGER PRIMARY KEY AUTOINCREMENT,
    Timestamp TIMESTAMP NOT NULL,
    ZoneName TEXT NOT NULL,
    RoomTemp_F REAL,
    PipeTemp_F REAL,
    OutsideTemp_F REAL
);
CREATE INDEX IF NOT EXISTS idx_samples_zone_ts ON TemperatureSamples (ZoneName, Timestamp);
`

const schemaZoneSchedules = `
CREATE TABLE IF NOT EXISTS ZoneSchedules (
    Id INTEGER PRIMARY KEY AUTOINCREMENT,
    ZoneName TEXT NOT NULL,
    DayOfWeek INTEGER NOT NULL,
    StartTime TEXT NOT NULL,
    EndTime TEXT NOT NULL,
    Setpoint_F REAL NOT NULL,
    Enabled INTEGER NOT NULL DEFAULT 1,
    CreatedAt TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UpdatedAt TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (ZoneName, DayOfWeek, StartTime)
);
`

const schemaGlobalSchedule = `
CREATE TABLE IF NOT EXISTS GlobalSchedule (
    Id INTEGER PRIMARY KEY AUTOINCREMENT,
    DayOfWeek INTEGER NOT NULL,
    StartTime TEXT NOT NULL,
    EndTime TEXT NOT NULL,
    Setpoint_F REAL NOT NULL,
    Enabled INTEGER NOT NULL DEFAULT 1,
    CreatedAt TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UpdatedAt TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (DayOfWeek, StartTime)
);
`

const schemaSchedulePresets = `
CREATE TABLE IF NOT EXISTS SchedulePresets (
    Id INTEGER PRIMARY KEY AUTOINCREMENT,
    Name TEXT NOT NULL UNIQUE,
    Description TEXT,
    CreatedAt TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UpdatedAt TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const schemaSchedulePresetEntries = `
CREATE TABLE IF NOT EXISTS SchedulePresetEntries (
    Id INTEGER PRIMARY KEY AUTOINCREMENT,
    PresetId INTEGER NOT NULL REFERENCES SchedulePresets(Id) ON DELETE CASCADE,
    DayOfWeek INTEGER NOT NULL,
    StartTime TEXT NOT NULL,
    EndTime TEXT NOT NULL,
    Setpoint_F REAL NOT NULL,
    Enabled INTEGER NOT NULL DEFAULT 1,
    CreatedAt TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UpdatedAt TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (PresetId, DayOfWeek, StartTime)
);
`

const schemaSystemStatus = `
CREATE TABLE IF NOT EXISTS SystemStatus (
    Id INTEGER PRIMARY KEY CHECK (Id = 1),
    OutsideTemp_F REAL,
    UpdatedAt TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
INSERT OR IGNORE INTO SystemStatus (Id) VALUES (1);
`

func ensureSchema(conn *sql.DB) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		// In case of panic, rollback to avoid leaving an open transaction
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{
		schemaZoneStatus,
		schemaEventLog,
		schemaTemperatureSamples,
		schemaZoneSchedules,
		schemaGlobalSchedule,
		schemaSchedulePresets,
		schemaSchedulePresetEntries,
		schemaSystemStatus,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
