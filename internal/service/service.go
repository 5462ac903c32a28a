package service

import (
	"context"
	"time"

	"heating_controller/internal/models"
	"heating_controller/internal/repository"

	"go.uber.org/zap"

	"heating_controller/internal/hardware"
)

// Config carries the zone topology the services operate on.
type Config struct {
	// ZoneNames in display order, not including the boiler pseudo-zone.
	ZoneNames []string
	// RoomMap maps zone name to a human room label.
	RoomMap map[string]string
	// ZonesWithoutSetpoint are wired zones that have no thermostat target
	// (monitoring only); auto control and uniform setpoints skip them.
	ZonesWithoutSetpoint []string
	// Timezone used for day-anchored history windows, e.g. "America/Denver".
	Timezone string
}

func (c Config) hasSetpoint(zoneName string) bool {
	for _, z := range c.ZonesWithoutSetpoint {
		if z == zoneName {
			return false
		}
	}
	return true
}

func (c Config) knownZone(zoneName string) bool {
	for _, z := range c.ZoneNames {
		if z == zoneName {
			return true
		}
	}
	return false
}

func (c Config) roomName(zoneName string) string {
	if room, ok := c.RoomMap[zoneName]; ok {
		return room
	}
	return zoneName
}

// Notifier receives zone snapshots after state changes so they can be
// pushed to subscribers. Wired after construction to break the cycle
// between the services and the sync publisher.
type Notifier interface {
	QueueUpdate(zones []models.ZoneState)
}

// Zones exposes zone state reads and dashboard-driven writes.
type Zones interface {
	ListZones(ctx context.Context, includeBoiler bool) ([]models.ZoneState, error)
	GetZone(ctx context.Context, zoneName string, syncSetpoint bool) (*models.ZoneState, error)
	UpdateZone(ctx context.Context, zoneName string, req ZoneUpdateRequest) (*models.ZoneState, error)
	CommandZone(ctx context.Context, zoneName string, command string) (*models.ZoneState, error)
	UniformSetpoint(ctx context.Context, setpointF float64) ([]models.ZoneState, error)
	ResumeSchedules(ctx context.Context) ([]models.ZoneState, error)
}

// Schedules exposes weekly schedules and reusable presets.
type Schedules interface {
	ZoneSchedule(ctx context.Context, zoneName string, includeGlobal bool) ([]models.ScheduleEntry, error)
	ReplaceZoneSchedule(ctx context.Context, zoneName string, entries []models.ScheduleEntry) ([]models.ScheduleEntry, error)
	CloneZoneSchedule(ctx context.Context, sourceZone string, targetZones []string) ([]string, error)
	GlobalSchedule(ctx context.Context) ([]models.ScheduleEntry, error)
	ReplaceGlobalSchedule(ctx context.Context, entries []models.ScheduleEntry) ([]models.ScheduleEntry, error)

	ListPresets(ctx context.Context) ([]models.SchedulePreset, error)
	GetPreset(ctx context.Context, id int64) (*models.SchedulePreset, error)
	CreatePreset(ctx context.Context, name, description string, entries []models.ScheduleEntry) (*models.SchedulePreset, error)
	UpdatePreset(ctx context.Context, id int64, name, description *string, entries []models.ScheduleEntry) (*models.SchedulePreset, error)
	DeletePreset(ctx context.Context, id int64) error
	ApplyPreset(ctx context.Context, id int64, zoneName string) ([]models.ScheduleEntry, error)
}

// History exposes cached, downsampled event history and run statistics.
type History interface {
	ZoneHistory(ctx context.Context, zoneName string, q HistoryQuery) ([]models.EventLogEntry, error)
	BatchHistory(ctx context.Context, zones []string, q HistoryQuery) (map[string][]models.EventLogEntry, error)
	Statistics(ctx context.Context, window string, day string) ([]ZoneStatistics, error)
}

// EventLog exposes the raw append-only log with filtering.
type EventLog interface {
	List(ctx context.Context, f repository.EventFilter) ([]models.EventLogEntry, error)
}

// AutoControl runs the feedback loop that drives AUTO zones.
type AutoControl interface {
	Run(ctx context.Context, tick time.Duration)
	Tick(ctx context.Context)
}

// Sampler periodically pulls fresh sensor readings into the store.
type Sampler interface {
	Run(ctx context.Context, tick time.Duration)
}

type Service struct {
	Zones
	Schedules
	History
	EventLog
	AutoControl
	Sampler
}

func NewService(repos *repository.Repository, hw hardware.Controller, cfg Config, log *zap.SugaredLogger) *Service {
	zones := NewZoneService(repos, hw, cfg, log)
	return &Service{
		Zones:       zones,
		Schedules:   NewScheduleService(repos, zones, cfg, log),
		History:     NewHistoryService(repos, cfg, log),
		EventLog:    NewEventLogService(repos.Events),
		AutoControl: NewAutoControlService(repos, hw, zones, cfg, log),
		Sampler:     NewSamplerService(repos, hw, zones, cfg, log),
	}
}

// SetNotifier points all state-changing services at the sync publisher.
func (s *Service) SetNotifier(n Notifier) {
	if zs, ok := s.Zones.(*ZoneService); ok {
		zs.SetNotifier(n)
	}
	if ac, ok := s.AutoControl.(*AutoControlService); ok {
		ac.SetNotifier(n)
	}
	if sp, ok := s.Sampler.(*SamplerService); ok {
		sp.SetNotifier(n)
	}
}
