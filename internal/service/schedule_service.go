package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"heating_controller/internal/models"
	"heating_controller/internal/repository"
	"heating_controller/internal/schedule"
)

var (
	ErrNoTargetZones   = errors.New("target_zones must not be empty")
	ErrPresetNameEmpty = errors.New("preset name must not be empty")
)

// ScheduleService manages weekly schedules, the global fallback, and
// reusable presets. Every write validates its entries up front so a
// rejected payload leaves the stored schedule untouched.
type ScheduleService struct {
	repos *repository.Repository
	zones *ZoneService
	cfg   Config
	log   *zap.SugaredLogger
}

func NewScheduleService(repos *repository.Repository, zones *ZoneService, cfg Config, log *zap.SugaredLogger) *ScheduleService {
	return &ScheduleService{repos: repos, zones: zones, cfg: cfg, log: log}
}

func (s *ScheduleService) ZoneSchedule(ctx context.Context, zoneName string, includeGlobal bool) ([]models.ScheduleEntry, error) {
	if _, err := s.repos.Zones.Get(ctx, zoneName); err != nil {
		return nil, err
	}
	entries, err := s.repos.Schedules.ListZone(ctx, zoneName)
	if err != nil {
		return nil, err
	}
	if includeGlobal && len(entries) == 0 {
		return s.repos.Schedules.ListGlobal(ctx)
	}
	return entries, nil
}

func (s *ScheduleService) ReplaceZoneSchedule(ctx context.Context, zoneName string, entries []models.ScheduleEntry) ([]models.ScheduleEntry, error) {
	if _, err := s.repos.Zones.Get(ctx, zoneName); err != nil {
		return nil, err
	}
	if err := schedule.ValidateEntries(entries); err != nil {
		return nil, err
	}
	if err := s.repos.Schedules.ReplaceZone(ctx, zoneName, entries); err != nil {
		return nil, err
	}
	s.zones.refreshAutoSetpoints(ctx, []string{zoneName})
	return s.repos.Schedules.ListZone(ctx, zoneName)
}

// CloneZoneSchedule copies one zone's schedule onto the target zones
// and returns the zones actually updated.
func (s *ScheduleService) CloneZoneSchedule(ctx context.Context, sourceZone string, targetZones []string) ([]string, error) {
	if _, err := s.repos.Zones.Get(ctx, sourceZone); err != nil {
		return nil, err
	}
	if len(targetZones) == 0 {
		return nil, ErrNoTargetZones
	}

	entries, err := s.repos.Schedules.ListZone(ctx, sourceZone)
	if err != nil {
		return nil, err
	}

	var updated []string
	for _, target := range targetZones {
		if target == sourceZone || !s.cfg.hasSetpoint(target) {
			continue
		}
		if _, err := s.repos.Zones.Get(ctx, target); err != nil {
			continue
		}
		if err := s.repos.Schedules.ReplaceZone(ctx, target, entries); err != nil {
			return nil, err
		}
		updated = append(updated, target)
	}
	if len(updated) > 0 {
		s.zones.refreshAutoSetpoints(ctx, updated)
	}
	return updated, nil
}

func (s *ScheduleService) GlobalSchedule(ctx context.Context) ([]models.ScheduleEntry, error) {
	return s.repos.Schedules.ListGlobal(ctx)
}

func (s *ScheduleService) ReplaceGlobalSchedule(ctx context.Context, entries []models.ScheduleEntry) ([]models.ScheduleEntry, error) {
	if err := schedule.ValidateEntries(entries); err != nil {
		return nil, err
	}
	if err := s.repos.Schedules.ReplaceGlobal(ctx, entries); err != nil {
		return nil, err
	}
	s.zones.refreshAutoSetpoints(ctx, nil)
	return s.repos.Schedules.ListGlobal(ctx)
}

func (s *ScheduleService) ListPresets(ctx context.Context) ([]models.SchedulePreset, error) {
	return s.repos.Presets.List(ctx)
}

func (s *ScheduleService) GetPreset(ctx context.Context, id int64) (*models.SchedulePreset, error) {
	return s.repos.Presets.Get(ctx, id)
}

func (s *ScheduleService) CreatePreset(ctx context.Context, name, description string, entries []models.ScheduleEntry) (*models.SchedulePreset, error) {
	if name == "" {
		return nil, ErrPresetNameEmpty
	}
	if err := schedule.ValidateEntries(entries); err != nil {
		return nil, err
	}
	return s.repos.Presets.Create(ctx, name, description, entries)
}

func (s *ScheduleService) UpdatePreset(ctx context.Context, id int64, name, description *string, entries []models.ScheduleEntry) (*models.SchedulePreset, error) {
	if _, err := s.repos.Presets.Get(ctx, id); err != nil {
		return nil, err
	}
	if name != nil || description != nil {
		if name != nil && *name == "" {
			return nil, ErrPresetNameEmpty
		}
		if err := s.repos.Presets.UpdateMetadata(ctx, id, name, description); err != nil {
			return nil, err
		}
	}
	if entries != nil {
		if err := schedule.ValidateEntries(entries); err != nil {
			return nil, err
		}
		if err := s.repos.Presets.ReplaceEntries(ctx, id, entries); err != nil {
			return nil, err
		}
	}
	return s.repos.Presets.Get(ctx, id)
}

func (s *ScheduleService) DeletePreset(ctx context.Context, id int64) error {
	if _, err := s.repos.Presets.Get(ctx, id); err != nil {
		return err
	}
	return s.repos.Presets.Delete(ctx, id)
}

// ApplyPreset copies a preset's entries onto one zone's schedule.
func (s *ScheduleService) ApplyPreset(ctx context.Context, id int64, zoneName string) ([]models.ScheduleEntry, error) {
	preset, err := s.repos.Presets.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.repos.Zones.Get(ctx, zoneName); err != nil {
		return nil, err
	}
	if err := s.repos.Schedules.ReplaceZone(ctx, zoneName, preset.Entries); err != nil {
		return nil, err
	}
	s.log.Infow("preset applied", "preset", preset.Name, "zone", zoneName, "entries", len(preset.Entries))
	s.zones.refreshAutoSetpoints(ctx, []string{zoneName})
	return s.repos.Schedules.ListZone(ctx, zoneName)
}
