package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"heating_controller/internal/models"
)

// ErrNameTaken is returned when a preset name collides with an existing one.
var ErrNameTaken = fmt.Errorf("preset name already in use")

type PresetSQLite struct {
	db *sql.DB
}

func NewPresetSQLite(conn *sql.DB) *PresetSQLite { return &PresetSQLite{db: conn} }

func (r *PresetSQLite) List(ctx context.Context) ([]models.SchedulePreset, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT Id, Name, Description, CreatedAt, UpdatedAt
		FROM SchedulePresets
		ORDER BY Name`)
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	defer rows.Close()

	out := make([]models.SchedulePreset, 0, 8)
	for rows.Next() {
		var (
			p    models.SchedulePreset
			desc sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Name, &desc, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Description = desc.String
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get returns a preset with its entries, or ErrNotFound.
func (r *PresetSQLite) Get(ctx context.Context, id int64) (*models.SchedulePreset, error) {
	var (
		p    models.SchedulePreset
		desc sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT Id, Name, Description, CreatedAt, UpdatedAt
		FROM SchedulePresets WHERE Id = ?`, id).
		Scan(&p.ID, &p.Name, &desc, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get preset %d: %w", id, err)
	}
	p.Description = desc.String

	rows, err := r.db.QueryContext(ctx, `
		SELECT Id, DayOfWeek, StartTime, EndTime, Setpoint_F, Enabled
		FROM SchedulePresetEntries
		WHERE PresetId = ?
		ORDER BY DayOfWeek, StartTime`, id)
	if err != nil {
		return nil, fmt.Errorf("get preset %d entries: %w", id, err)
	}
	defer rows.Close()

	p.Entries, err = scanScheduleEntries(rows, false)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PresetSQLite) Create(ctx context.Context, name, description string, entries []models.ScheduleEntry) (*models.SchedulePreset, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create preset: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO SchedulePresets (Name, Description, CreatedAt, UpdatedAt)
		VALUES (?, ?, ?, ?)`, name, description, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrNameTaken
		}
		return nil, fmt.Errorf("create preset %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create preset %q: %w", name, err)
	}

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO SchedulePresetEntries (PresetId, DayOfWeek, StartTime, EndTime, Setpoint_F, Enabled)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, e.DayOfWeek, e.StartTime, e.EndTime, e.Setpoint, boolToInt(e.Enabled),
		); err != nil {
			return nil, fmt.Errorf("insert preset %q entry: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create preset %q: %w", name, err)
	}

	return &models.SchedulePreset{
		ID: id, Name: name, Description: description,
		Entries: entries, CreatedAt: now, UpdatedAt: now,
	}, nil
}

func (r *PresetSQLite) UpdateMetadata(ctx context.Context, id int64, name, description *string) error {
	sets := []string{"UpdatedAt = ?"}
	args := []any{time.Now().UTC()}
	if name != nil {
		sets = append(sets, "Name = ?")
		args = append(args, *name)
	}
	if description != nil {
		sets = append(sets, "Description = ?")
		args = append(args, *description)
	}
	args = append(args, id)

	res, err := r.db.ExecContext(ctx,
		"UPDATE SchedulePresets SET "+strings.Join(sets, ", ")+" WHERE Id = ?", args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrNameTaken
		}
		return fmt.Errorf("update preset %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update preset %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PresetSQLite) ReplaceEntries(ctx context.Context, id int64, entries []models.ScheduleEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace preset entries: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM SchedulePresets WHERE Id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("replace preset %d entries: %w", id, err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM SchedulePresetEntries WHERE PresetId = ?`, id); err != nil {
		return fmt.Errorf("clear preset %d entries: %w", id, err)
	}
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO SchedulePresetEntries (PresetId, DayOfWeek, StartTime, EndTime, Setpoint_F, Enabled)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, e.DayOfWeek, e.StartTime, e.EndTime, e.Setpoint, boolToInt(e.Enabled),
		); err != nil {
			return fmt.Errorf("insert preset %d entry: %w", id, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE SchedulePresets SET UpdatedAt = ? WHERE Id = ?`,
		time.Now().UTC(), id); err != nil {
		return fmt.Errorf("touch preset %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit preset %d entries: %w", id, err)
	}
	return nil
}

func (r *PresetSQLite) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM SchedulePresets WHERE Id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete preset %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete preset %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
