package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"heating_controller/internal/models"
)

type ZoneSQLite struct {
	db *sql.DB
}

func NewZoneSQLite(conn *sql.DB) *ZoneSQLite { return &ZoneSQLite{db: conn} }

const zoneColumns = `ZoneName, CurrentState, ZoneRoomTemp_F, PipeTemp_F, TargetSetpoint_F,
		ControlMode, SetpointOverrideAt, SetpointOverrideMode, SetpointOverrideUntil, UpdatedAt`

// List returns zone rows ordered by zone number, optionally including the
// boiler pseudo-zone (sorted last).
func (r *ZoneSQLite) List(ctx context.Context, includeBoiler bool) ([]models.ZoneState, error) {
	q := `SELECT ` + zoneColumns + ` FROM ZoneStatus`
	if !includeBoiler {
		q += ` WHERE ZoneName != 'Boiler'`
	}
	q += ` ORDER BY CASE WHEN ZoneName = 'Boiler' THEN 9999
		ELSE CAST(SUBSTR(ZoneName, 2) AS INTEGER) END`

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	defer rows.Close()

	out := make([]models.ZoneState, 0, 16)
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *z)
	}
	return out, rows.Err()
}

// Get fetches a single zone row by name.
func (r *ZoneSQLite) Get(ctx context.Context, zoneName string) (*models.ZoneState, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+zoneColumns+` FROM ZoneStatus WHERE ZoneName = ?`, zoneName)
	z, err := scanZone(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("zone %s: %w", zoneName, ErrNotFound)
		}
		return nil, err
	}
	return z, nil
}

// Seed inserts default rows for any missing zones. Existing rows are
// never touched, so repeated startups are safe.
func (r *ZoneSQLite) Seed(ctx context.Context, zoneNames []string) error {
	for _, name := range zoneNames {
		mode := models.ModeAuto
		if name == models.BoilerZone {
			mode = models.ModeManual
		}
		_, err := r.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO ZoneStatus (ZoneName, CurrentState, ControlMode, UpdatedAt)
			VALUES (?, 'OFF', ?, ?)`,
			name, string(mode), time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("seed zone %s: %w", name, err)
		}
	}
	return nil
}

// Update applies a partial patch to one zone row. Only provided fields
// end up in the SET clause, mirroring last-write-wins semantics at the
// row level.
func (r *ZoneSQLite) Update(ctx context.Context, zoneName string, patch ZonePatch) error {
	var (
		sets []string
		args []any
	)

	if patch.CurrentState != nil {
		sets = append(sets, "CurrentState = ?")
		args = append(args, string(*patch.CurrentState))
	}
	if patch.RoomTemp != nil {
		sets = append(sets, "ZoneRoomTemp_F = ?")
		args = append(args, *patch.RoomTemp)
	}
	if patch.PipeTemp != nil {
		sets = append(sets, "PipeTemp_F = ?")
		args = append(args, *patch.PipeTemp)
	}
	switch {
	case patch.ClearSetpoint:
		sets = append(sets, "TargetSetpoint_F = NULL")
	case patch.TargetSetpoint != nil:
		sets = append(sets, "TargetSetpoint_F = ?")
		args = append(args, *patch.TargetSetpoint)
	}
	if patch.ControlMode != nil {
		sets = append(sets, "ControlMode = ?")
		args = append(args, string(*patch.ControlMode))
	}
	switch {
	case patch.ClearOverride:
		sets = append(sets,
			"SetpointOverrideAt = NULL",
			"SetpointOverrideMode = NULL",
			"SetpointOverrideUntil = NULL")
	case patch.Override != nil:
		sets = append(sets, "SetpointOverrideAt = ?", "SetpointOverrideMode = ?")
		args = append(args, patch.Override.At.UTC(), string(patch.Override.Mode))
		if patch.Override.Until != nil {
			sets = append(sets, "SetpointOverrideUntil = ?")
			args = append(args, patch.Override.Until.UTC())
		} else {
			sets = append(sets, "SetpointOverrideUntil = NULL")
		}
	}

	if len(sets) == 0 {
		return nil
	}

	ts := time.Now().UTC()
	if patch.UpdatedAt != nil {
		ts = patch.UpdatedAt.UTC()
	}
	sets = append(sets, "UpdatedAt = ?")
	args = append(args, ts, zoneName)

	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE ZoneStatus SET %s WHERE ZoneName = ?", strings.Join(sets, ", ")),
		args...,
	)
	if err != nil {
		return fmt.Errorf("update zone %s: %w", zoneName, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("zone %s: %w", zoneName, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanZone(row rowScanner) (*models.ZoneState, error) {
	var (
		z             models.ZoneState
		state, mode   string
		overrideAt    sql.NullTime
		overrideMode  sql.NullString
		overrideUntil sql.NullTime
	)
	if err := row.Scan(
		&z.ZoneName,
		&state,
		&z.RoomTemp,
		&z.PipeTemp,
		&z.TargetSetpoint,
		&mode,
		&overrideAt,
		&overrideMode,
		&overrideUntil,
		&z.UpdatedAt,
	); err != nil {
		return nil, err
	}
	z.CurrentState = models.RelayState(state)
	z.ControlMode = models.ControlMode(mode)
	if overrideAt.Valid {
		t := overrideAt.Time.UTC()
		z.OverrideAt = &t
	}
	if overrideMode.Valid {
		m := overrideMode.String
		z.OverrideMode = &m
	}
	if overrideUntil.Valid {
		t := overrideUntil.Time.UTC()
		z.OverrideUntil = &t
	}
	z.UpdatedAt = z.UpdatedAt.UTC()
	return &z, nil
}
