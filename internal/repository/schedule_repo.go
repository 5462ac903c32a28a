package repository

import (
	"context"
	"database/sql"
	"fmt"

	"heating_controller/internal/models"
)

type ScheduleSQLite struct {
	db *sql.DB
}

func NewScheduleSQLite(conn *sql.DB) *ScheduleSQLite { return &ScheduleSQLite{db: conn} }

func (r *ScheduleSQLite) ListZone(ctx context.Context, zoneName string) ([]models.ScheduleEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT Id, ZoneName, DayOfWeek, StartTime, EndTime, Setpoint_F, Enabled
		FROM ZoneSchedules
		WHERE ZoneName = ?
		ORDER BY DayOfWeek, StartTime`, zoneName)
	if err != nil {
		return nil, fmt.Errorf("list zone schedule %s: %w", zoneName, err)
	}
	defer rows.Close()
	return scanScheduleEntries(rows, true)
}

// ReplaceZone swaps a zone's weekly schedule atomically.
func (r *ScheduleSQLite) ReplaceZone(ctx context.Context, zoneName string, entries []models.ScheduleEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace zone schedule: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ZoneSchedules WHERE ZoneName = ?`, zoneName); err != nil {
		return fmt.Errorf("clear zone schedule %s: %w", zoneName, err)
	}
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ZoneSchedules (ZoneName, DayOfWeek, StartTime, EndTime, Setpoint_F, Enabled)
			VALUES (?, ?, ?, ?, ?, ?)`,
			zoneName, e.DayOfWeek, e.StartTime, e.EndTime, e.Setpoint, boolToInt(e.Enabled),
		); err != nil {
			return fmt.Errorf("insert zone schedule entry %s: %w", zoneName, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit zone schedule %s: %w", zoneName, err)
	}
	return nil
}

func (r *ScheduleSQLite) ListGlobal(ctx context.Context) ([]models.ScheduleEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT Id, DayOfWeek, StartTime, EndTime, Setpoint_F, Enabled
		FROM GlobalSchedule
		ORDER BY DayOfWeek, StartTime`)
	if err != nil {
		return nil, fmt.Errorf("list global schedule: %w", err)
	}
	defer rows.Close()
	return scanScheduleEntries(rows, false)
}

func (r *ScheduleSQLite) ReplaceGlobal(ctx context.Context, entries []models.ScheduleEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace global schedule: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM GlobalSchedule`); err != nil {
		return fmt.Errorf("clear global schedule: %w", err)
	}
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO GlobalSchedule (DayOfWeek, StartTime, EndTime, Setpoint_F, Enabled)
			VALUES (?, ?, ?, ?, ?)`,
			e.DayOfWeek, e.StartTime, e.EndTime, e.Setpoint, boolToInt(e.Enabled),
		); err != nil {
			return fmt.Errorf("insert global schedule entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit global schedule: %w", err)
	}
	return nil
}

func scanScheduleEntries(rows *sql.Rows, withZone bool) ([]models.ScheduleEntry, error) {
	out := make([]models.ScheduleEntry, 0, 16)
	for rows.Next() {
		var (
			e       models.ScheduleEntry
			enabled int
		)
		var err error
		if withZone {
			err = rows.Scan(&e.ID, &e.ZoneName, &e.DayOfWeek, &e.StartTime, &e.EndTime, &e.Setpoint, &enabled)
		} else {
			err = rows.Scan(&e.ID, &e.DayOfWeek, &e.StartTime, &e.EndTime, &e.Setpoint, &enabled)
		}
		if err != nil {
			return nil, err
		}
		e.Enabled = enabled != 0
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
