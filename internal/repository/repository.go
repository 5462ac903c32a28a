package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"heating_controller/internal/models"
	"heating_controller/internal/repository/db"
)

// ErrNotFound is returned when a zone or preset does not exist.
var ErrNotFound = errors.New("not found")

// ZonePatch is a partial update of a ZoneStatus row. Nil fields are
// left untouched; Clear* flags null out their columns.
type ZonePatch struct {
	CurrentState   *models.RelayState
	RoomTemp       *float64
	PipeTemp       *float64
	TargetSetpoint *float64
	ClearSetpoint  bool
	ControlMode    *models.ControlMode
	Override       *models.Override
	ClearOverride  bool
	UpdatedAt      *time.Time // nil means "now"
}

// EventFilter narrows event log queries.
type EventFilter struct {
	Source         string
	Since          *time.Time
	Until          *time.Time
	Limit          int
	IncludeSamples bool
}

type ZoneRepo interface {
	List(ctx context.Context, includeBoiler bool) ([]models.ZoneState, error)
	Get(ctx context.Context, zoneName string) (*models.ZoneState, error)
	Seed(ctx context.Context, zoneNames []string) error
	Update(ctx context.Context, zoneName string, patch ZonePatch) error
}

type EventRepo interface {
	Append(ctx context.Context, e models.EventLogEntry) error
	List(ctx context.Context, f EventFilter) ([]models.EventLogEntry, error)
	AppendSample(ctx context.Context, s models.TemperatureSample) error
}

type ScheduleRepo interface {
	ListZone(ctx context.Context, zoneName string) ([]models.ScheduleEntry, error)
	ReplaceZone(ctx context.Context, zoneName string, entries []models.ScheduleEntry) error
	ListGlobal(ctx context.Context) ([]models.ScheduleEntry, error)
	ReplaceGlobal(ctx context.Context, entries []models.ScheduleEntry) error
}

type PresetRepo interface {
	List(ctx context.Context) ([]models.SchedulePreset, error)
	Get(ctx context.Context, id int64) (*models.SchedulePreset, error)
	Create(ctx context.Context, name, description string, entries []models.ScheduleEntry) (*models.SchedulePreset, error)
	UpdateMetadata(ctx context.Context, id int64, name, description *string) error
	ReplaceEntries(ctx context.Context, id int64, entries []models.ScheduleEntry) error
	Delete(ctx context.Context, id int64) error
}

type SystemRepo interface {
	Get(ctx context.Context) (*models.SystemStatus, error)
	Update(ctx context.Context, outsideTemp *float64, updatedAt time.Time) error
}

type Repository struct {
	Zones     ZoneRepo
	Events    EventRepo
	Schedules ScheduleRepo
	Presets   PresetRepo
	System    SystemRepo
}

func NewRepository(conn *sql.DB) *Repository {
	return &Repository{
		Zones:     NewZoneSQLite(conn),
		Events:    NewEventSQLite(conn),
		Schedules: NewScheduleSQLite(conn),
		Presets:   NewPresetSQLite(conn),
		System:    NewSystemSQLite(conn),
	}
}

// InitDB opens the SQLite database and bootstraps the schema.
func InitDB(path string) (*sql.DB, error) {
	return db.InitDB(path)
}
