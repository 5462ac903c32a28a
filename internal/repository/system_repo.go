package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"heating_controller/internal/models"
)

type SystemSQLite struct {
	db *sql.DB
}

func NewSystemSQLite(conn *sql.DB) *SystemSQLite { return &SystemSQLite{db: conn} }

func (r *SystemSQLite) Get(ctx context.Context) (*models.SystemStatus, error) {
	var s models.SystemStatus
	err := r.db.QueryRowContext(ctx, `
		SELECT OutsideTemp_F, UpdatedAt FROM SystemStatus WHERE Id = 1`).
		Scan(&s.OutsideTemp, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return &models.SystemStatus{UpdatedAt: time.Now().UTC()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get system status: %w", err)
	}
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

func (r *SystemSQLite) Update(ctx context.Context, outsideTemp *float64, updatedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE SystemStatus SET OutsideTemp_F = ?, UpdatedAt = ? WHERE Id = 1`,
		outsideTemp, updatedAt.UTC())
	if err != nil {
		return fmt.Errorf("update system status: %w", err)
	}
	return nil
}
