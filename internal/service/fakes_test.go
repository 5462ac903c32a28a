package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"heating_controller/internal/models"
	"heating_controller/internal/repository"
)

// ----- in-memory repository fakes -----

type fakeZoneRepo struct {
	mu    sync.Mutex
	zones map[string]*models.ZoneState
}

func newFakeZoneRepo(zones ...models.ZoneState) *fakeZoneRepo {
	r := &fakeZoneRepo{zones: make(map[string]*models.ZoneState)}
	for i := range zones {
		z := zones[i]
		r.zones[z.ZoneName] = &z
	}
	return r
}

func (r *fakeZoneRepo) List(_ context.Context, includeBoiler bool) ([]models.ZoneState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.zones))
	for name := range r.zones {
		if !includeBoiler && name == models.BoilerZone {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]models.ZoneState, 0, len(names))
	for _, name := range names {
		out = append(out, *r.zones[name])
	}
	return out, nil
}

func (r *fakeZoneRepo) Get(_ context.Context, zoneName string) (*models.ZoneState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	z, ok := r.zones[zoneName]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *z
	return &cp, nil
}

func (r *fakeZoneRepo) Seed(_ context.Context, zoneNames []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range zoneNames {
		if _, ok := r.zones[name]; !ok {
			r.zones[name] = &models.ZoneState{
				ZoneName:     name,
				CurrentState: models.StateOff,
				ControlMode:  models.ModeAuto,
				UpdatedAt:    time.Now().UTC(),
			}
		}
	}
	return nil
}

func (r *fakeZoneRepo) Update(_ context.Context, zoneName string, patch repository.ZonePatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	z, ok := r.zones[zoneName]
	if !ok {
		return repository.ErrNotFound
	}
	if patch.CurrentState != nil {
		z.CurrentState = *patch.CurrentState
	}
	if patch.RoomTemp != nil {
		z.RoomTemp = patch.RoomTemp
	}
	if patch.PipeTemp != nil {
		z.PipeTemp = patch.PipeTemp
	}
	switch {
	case patch.ClearSetpoint:
		z.TargetSetpoint = nil
	case patch.TargetSetpoint != nil:
		z.TargetSetpoint = patch.TargetSetpoint
	}
	if patch.ControlMode != nil {
		z.ControlMode = *patch.ControlMode
	}
	switch {
	case patch.ClearOverride:
		z.ClearOverride()
	case patch.Override != nil:
		z.SetOverride(patch.Override.Mode, patch.Override.At, patch.Override.Until)
	}
	if patch.UpdatedAt != nil {
		z.UpdatedAt = patch.UpdatedAt.UTC()
	} else {
		z.UpdatedAt = time.Now().UTC()
	}
	return nil
}

type fakeEventRepo struct {
	mu      sync.Mutex
	events  []models.EventLogEntry
	samples []models.TemperatureSample
}

func (r *fakeEventRepo) Append(_ context.Context, e models.EventLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	e.ID = int64(len(r.events) + 1)
	r.events = append(r.events, e)
	return nil
}

func (r *fakeEventRepo) List(_ context.Context, f repository.EventFilter) ([]models.EventLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.EventLogEntry
	for _, e := range r.events {
		if f.Source != "" && e.Source != f.Source {
			continue
		}
		if f.Since != nil && e.Timestamp.Before(*f.Since) {
			continue
		}
		if f.Until != nil && e.Timestamp.After(*f.Until) {
			continue
		}
		if !f.IncludeSamples && e.Event == models.EventSample {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

func (r *fakeEventRepo) AppendSample(_ context.Context, s models.TemperatureSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
	return nil
}

func (r *fakeEventRepo) byType(event models.EventType) []models.EventLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.EventLogEntry
	for _, e := range r.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type fakeScheduleRepo struct {
	mu     sync.Mutex
	zone   map[string][]models.ScheduleEntry
	global []models.ScheduleEntry
}

func newFakeScheduleRepo() *fakeScheduleRepo {
	return &fakeScheduleRepo{zone: make(map[string][]models.ScheduleEntry)}
}

func (r *fakeScheduleRepo) ListZone(_ context.Context, zoneName string) ([]models.ScheduleEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ScheduleEntry(nil), r.zone[zoneName]...), nil
}

func (r *fakeScheduleRepo) ReplaceZone(_ context.Context, zoneName string, entries []models.ScheduleEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.zone[zoneName] = append([]models.ScheduleEntry(nil), entries...)
	return nil
}

func (r *fakeScheduleRepo) ListGlobal(_ context.Context) ([]models.ScheduleEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ScheduleEntry(nil), r.global...), nil
}

func (r *fakeScheduleRepo) ReplaceGlobal(_ context.Context, entries []models.ScheduleEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global = append([]models.ScheduleEntry(nil), entries...)
	return nil
}

type fakePresetRepo struct {
	mu      sync.Mutex
	nextID  int64
	presets map[int64]*models.SchedulePreset
}

func newFakePresetRepo() *fakePresetRepo {
	return &fakePresetRepo{presets: make(map[int64]*models.SchedulePreset)}
}

func (r *fakePresetRepo) List(_ context.Context) ([]models.SchedulePreset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.SchedulePreset, 0, len(r.presets))
	for _, p := range r.presets {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fakePresetRepo) Get(_ context.Context, id int64) (*models.SchedulePreset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.presets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakePresetRepo) Create(_ context.Context, name, description string, entries []models.ScheduleEntry) (*models.SchedulePreset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.presets {
		if p.Name == name {
			return nil, repository.ErrNameTaken
		}
	}
	r.nextID++
	now := time.Now().UTC()
	p := &models.SchedulePreset{
		ID: r.nextID, Name: name, Description: description,
		Entries: append([]models.ScheduleEntry(nil), entries...), CreatedAt: now, UpdatedAt: now,
	}
	r.presets[p.ID] = p
	cp := *p
	return &cp, nil
}

func (r *fakePresetRepo) UpdateMetadata(_ context.Context, id int64, name, description *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.presets[id]
	if !ok {
		return repository.ErrNotFound
	}
	if name != nil {
		p.Name = *name
	}
	if description != nil {
		p.Description = *description
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *fakePresetRepo) ReplaceEntries(_ context.Context, id int64, entries []models.ScheduleEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.presets[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Entries = append([]models.ScheduleEntry(nil), entries...)
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *fakePresetRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.presets[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.presets, id)
	return nil
}

type fakeSystemRepo struct {
	mu      sync.Mutex
	outside *float64
	updated time.Time
}

func (r *fakeSystemRepo) Get(_ context.Context) (*models.SystemStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &models.SystemStatus{OutsideTemp: r.outside, UpdatedAt: r.updated}, nil
}

func (r *fakeSystemRepo) Update(_ context.Context, outsideTemp *float64, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outside = outsideTemp
	r.updated = updatedAt
	return nil
}

// ----- assembly helpers -----

type fakeRepos struct {
	zones     *fakeZoneRepo
	events    *fakeEventRepo
	schedules *fakeScheduleRepo
	presets   *fakePresetRepo
	system    *fakeSystemRepo
}

func newFakeRepos(zones ...models.ZoneState) (*repository.Repository, *fakeRepos) {
	f := &fakeRepos{
		zones:     newFakeZoneRepo(zones...),
		events:    &fakeEventRepo{},
		schedules: newFakeScheduleRepo(),
		presets:   newFakePresetRepo(),
		system:    &fakeSystemRepo{},
	}
	return &repository.Repository{
		Zones:     f.zones,
		Events:    f.events,
		Schedules: f.schedules,
		Presets:   f.presets,
		System:    f.system,
	}, f
}

type fakeNotifier struct {
	mu      sync.Mutex
	batches [][]models.ZoneState
}

func (n *fakeNotifier) QueueUpdate(zones []models.ZoneState) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, zones)
}

func f64(v float64) *float64 { return &v }

func allDaySchedule(setpoint float64) []models.ScheduleEntry {
	entries := make([]models.ScheduleEntry, 0, 7)
	for day := 0; day < 7; day++ {
		entries = append(entries, models.ScheduleEntry{
			DayOfWeek: day,
			StartTime: "00:00",
			EndTime:   "00:00",
			Setpoint:  setpoint,
			Enabled:   true,
		})
	}
	return entries
}
