package handlers

import (
	"context"

	"heating_controller/internal/models"
	"heating_controller/internal/repository"
	"heating_controller/internal/service"
)

// ---- Service mocks ----

type mockZones struct {
	zones []models.ZoneState
	zone  *models.ZoneState
	err   error

	lastZoneName   string
	lastUpdate     service.ZoneUpdateRequest
	lastCommand    string
	lastUniform    float64
	listCalls      int
	lastListBoiler bool
	lastGetSync    bool
	updateCalls    int
	commandCalls   int
	uniformCalls   int
	resumeCalls    int
}

func (m *mockZones) ListZones(_ context.Context, includeBoiler bool) ([]models.ZoneState, error) {
	m.listCalls++
	m.lastListBoiler = includeBoiler
	return m.zones, m.err
}

func (m *mockZones) GetZone(_ context.Context, zoneName string, syncSetpoint bool) (*models.ZoneState, error) {
	m.lastZoneName = zoneName
	m.lastGetSync = syncSetpoint
	return m.zone, m.err
}

func (m *mockZones) UpdateZone(_ context.Context, zoneName string, req service.ZoneUpdateRequest) (*models.ZoneState, error) {
	m.updateCalls++
	m.lastZoneName = zoneName
	m.lastUpdate = req
	return m.zone, m.err
}

func (m *mockZones) CommandZone(_ context.Context, zoneName string, command string) (*models.ZoneState, error) {
	m.commandCalls++
	m.lastZoneName = zoneName
	m.lastCommand = command
	return m.zone, m.err
}

func (m *mockZones) UniformSetpoint(_ context.Context, setpointF float64) ([]models.ZoneState, error) {
	m.uniformCalls++
	m.lastUniform = setpointF
	return m.zones, m.err
}

func (m *mockZones) ResumeSchedules(_ context.Context) ([]models.ZoneState, error) {
	m.resumeCalls++
	return m.zones, m.err
}

type mockSchedules struct {
	entries []models.ScheduleEntry
	presets []models.SchedulePreset
	preset  *models.SchedulePreset
	updated []string
	err     error

	lastZoneName      string
	lastIncludeGlobal bool
	lastEntries       []models.ScheduleEntry
	lastTargets       []string
	lastPresetID      int64
	lastPresetName    *string
	deleteCalls       int
}

func (m *mockSchedules) ZoneSchedule(_ context.Context, zoneName string, includeGlobal bool) ([]models.ScheduleEntry, error) {
	m.lastZoneName = zoneName
	m.lastIncludeGlobal = includeGlobal
	return m.entries, m.err
}

func (m *mockSchedules) ReplaceZoneSchedule(_ context.Context, zoneName string, entries []models.ScheduleEntry) ([]models.ScheduleEntry, error) {
	m.lastZoneName = zoneName
	m.lastEntries = entries
	return m.entries, m.err
}

func (m *mockSchedules) CloneZoneSchedule(_ context.Context, sourceZone string, targetZones []string) ([]string, error) {
	m.lastZoneName = sourceZone
	m.lastTargets = targetZones
	return m.updated, m.err
}

func (m *mockSchedules) GlobalSchedule(_ context.Context) ([]models.ScheduleEntry, error) {
	return m.entries, m.err
}

func (m *mockSchedules) ReplaceGlobalSchedule(_ context.Context, entries []models.ScheduleEntry) ([]models.ScheduleEntry, error) {
	m.lastEntries = entries
	return m.entries, m.err
}

func (m *mockSchedules) ListPresets(_ context.Context) ([]models.SchedulePreset, error) {
	return m.presets, m.err
}

func (m *mockSchedules) GetPreset(_ context.Context, id int64) (*models.SchedulePreset, error) {
	m.lastPresetID = id
	return m.preset, m.err
}

func (m *mockSchedules) CreatePreset(_ context.Context, name, description string, entries []models.ScheduleEntry) (*models.SchedulePreset, error) {
	m.lastEntries = entries
	return m.preset, m.err
}

func (m *mockSchedules) UpdatePreset(_ context.Context, id int64, name, description *string, entries []models.ScheduleEntry) (*models.SchedulePreset, error) {
	m.lastPresetID = id
	m.lastPresetName = name
	m.lastEntries = entries
	return m.preset, m.err
}

func (m *mockSchedules) DeletePreset(_ context.Context, id int64) error {
	m.deleteCalls++
	m.lastPresetID = id
	return m.err
}

func (m *mockSchedules) ApplyPreset(_ context.Context, id int64, zoneName string) ([]models.ScheduleEntry, error) {
	m.lastPresetID = id
	m.lastZoneName = zoneName
	return m.entries, m.err
}

type mockHistory struct {
	history   []models.EventLogEntry
	histories map[string][]models.EventLogEntry
	stats     []service.ZoneStatistics
	err       error

	lastZoneName string
	lastZones    []string
	lastQuery    service.HistoryQuery
	lastWindow   string
	lastDay      string
}

func (m *mockHistory) ZoneHistory(_ context.Context, zoneName string, q service.HistoryQuery) ([]models.EventLogEntry, error) {
	m.lastZoneName = zoneName
	m.lastQuery = q
	return m.history, m.err
}

func (m *mockHistory) BatchHistory(_ context.Context, zones []string, q service.HistoryQuery) (map[string][]models.EventLogEntry, error) {
	m.lastZones = zones
	m.lastQuery = q
	return m.histories, m.err
}

func (m *mockHistory) Statistics(_ context.Context, window string, day string) ([]service.ZoneStatistics, error) {
	m.lastWindow = window
	m.lastDay = day
	return m.stats, m.err
}

type mockEventLog struct {
	events []models.EventLogEntry
	err    error

	lastFilter repository.EventFilter
}

func (m *mockEventLog) List(_ context.Context, f repository.EventFilter) ([]models.EventLogEntry, error) {
	m.lastFilter = f
	return m.events, m.err
}
