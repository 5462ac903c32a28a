package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"heating_controller/internal/hardware"
	"heating_controller/internal/models"
	"heating_controller/internal/repository"
	"heating_controller/internal/schedule"
)

// ----------- Control constants -----------
const (
	// HysteresisBandF is how far below setpoint the room must fall
	// before the relay turns on.
	HysteresisBandF = 0.5
	// MaxRoomTempF blocks ON above this reading regardless of setpoint.
	MaxRoomTempF = 80.0
	// MinRoomTempF forces ON below this reading regardless of setpoint.
	MinRoomTempF = 50.0
	// setpointEpsilon is the tolerance for "same setpoint" comparisons.
	setpointEpsilon = 0.05
	// sampleInterval is the minimum spacing between SAMPLE records per zone.
	sampleInterval = time.Minute
)

// Commands accepted by CommandZone.
const (
	CommandForceOn    = "FORCE_ON"
	CommandForceOff   = "FORCE_OFF"
	CommandAuto       = "AUTO"
	CommandThermostat = "THERMOSTAT"
)

var (
	ErrUnknownCommand = errors.New("unsupported command: must be FORCE_ON, FORCE_OFF, AUTO, or THERMOSTAT")
	ErrNoUpdateFields = errors.New("update requires target_setpoint_f or control_mode")
)

// ZoneUpdateRequest is a partial dashboard-driven zone edit.
type ZoneUpdateRequest struct {
	TargetSetpoint *float64
	ControlMode    *string
	// OverrideMode applies when TargetSetpoint changes an AUTO zone:
	// boundary, permanent (default), or timed.
	OverrideMode string
	// OverrideUntil is an RFC 3339 instant, required for timed mode.
	OverrideUntil string
}

type ZoneService struct {
	repos *repository.Repository
	hw    hardware.Controller
	cfg   Config
	log   *zap.SugaredLogger

	mu         sync.Mutex
	lastSample map[string]time.Time
	notifier   Notifier

	// Weekly schedules saved before a uniform setpoint flattened them,
	// keyed by zone. ResumeSchedules swaps them back.
	scheduleBackup map[string][]models.ScheduleEntry
}

func NewZoneService(repos *repository.Repository, hw hardware.Controller, cfg Config, log *zap.SugaredLogger) *ZoneService {
	return &ZoneService{
		repos:          repos,
		hw:             hw,
		cfg:            cfg,
		log:            log,
		lastSample:     make(map[string]time.Time),
		scheduleBackup: make(map[string][]models.ScheduleEntry),
	}
}

func (s *ZoneService) SetNotifier(n Notifier) {
	s.mu.Lock()
	s.notifier = n
	s.mu.Unlock()
}

func (s *ZoneService) queueUpdate(zones ...models.ZoneState) {
	s.mu.Lock()
	n := s.notifier
	s.mu.Unlock()
	if n != nil && len(zones) > 0 {
		n.QueueUpdate(zones)
	}
}

// ListZones returns current zone snapshots. AUTO zones are passed
// through setpoint synchronization so overrides expire and schedule
// changes land before the caller sees the data.
func (s *ZoneService) ListZones(ctx context.Context, includeBoiler bool) ([]models.ZoneState, error) {
	rows, err := s.repos.Zones.List(ctx, includeBoiler)
	if err != nil {
		return nil, err
	}
	out := make([]models.ZoneState, 0, len(rows))
	for i := range rows {
		z := s.syncAutoSetpoint(ctx, &rows[i])
		s.decorate(z)
		out = append(out, *z)
	}
	return out, nil
}

func (s *ZoneService) GetZone(ctx context.Context, zoneName string, syncSetpoint bool) (*models.ZoneState, error) {
	z, err := s.repos.Zones.Get(ctx, zoneName)
	if err != nil {
		return nil, err
	}
	if syncSetpoint {
		z = s.syncAutoSetpoint(ctx, z)
	}
	s.decorate(z)
	return z, nil
}

// UpdateZone persists setpoint or control-mode adjustments from the
// dashboard. A setpoint write while the zone is AUTO becomes a manual
// override; mode transitions carry the override bookkeeping with them.
func (s *ZoneService) UpdateZone(ctx context.Context, zoneName string, req ZoneUpdateRequest) (*models.ZoneState, error) {
	if req.TargetSetpoint == nil && req.ControlMode == nil {
		return nil, ErrNoUpdateFields
	}

	if req.TargetSetpoint != nil {
		current, err := s.repos.Zones.Get(ctx, zoneName)
		if err != nil {
			return nil, err
		}
		if current.ControlMode == models.ModeAuto {
			ov := s.buildOverride(zoneName, req)
			s.log.Infow("setpoint override",
				"zone", zoneName, "setpoint_f", *req.TargetSetpoint, "override_mode", ov.Mode)
			if err := s.repos.Zones.Update(ctx, zoneName, repository.ZonePatch{
				TargetSetpoint: req.TargetSetpoint,
				Override:       ov,
			}); err != nil {
				return nil, err
			}
		} else {
			if err := s.repos.Zones.Update(ctx, zoneName, repository.ZonePatch{
				TargetSetpoint: req.TargetSetpoint,
			}); err != nil {
				return nil, err
			}
		}
	}

	if req.ControlMode != nil {
		newMode, err := models.ParseControlMode(*req.ControlMode)
		if err != nil {
			return nil, err
		}
		if err := s.applyModeTransition(ctx, zoneName, newMode); err != nil {
			return nil, err
		}
	}

	updated, err := s.GetZone(ctx, zoneName, false)
	if err != nil {
		return nil, err
	}
	s.queueUpdate(*updated)
	return updated, nil
}

// buildOverride decides the override record for an AUTO setpoint write.
// Timed mode needs a parseable until; otherwise it degrades to boundary
// so the override still clears at the next schedule change.
func (s *ZoneService) buildOverride(zoneName string, req ZoneUpdateRequest) *models.Override {
	now := time.Now().UTC()
	mode := models.OverridePermanent
	if req.OverrideMode != "" {
		if parsed, err := models.ParseOverrideMode(req.OverrideMode); err == nil {
			mode = parsed
		}
	}
	if mode == models.OverrideTimed {
		until, err := time.Parse(time.RFC3339, req.OverrideUntil)
		if err != nil {
			s.log.Warnw("invalid override_until, falling back to boundary",
				"zone", zoneName, "override_until", req.OverrideUntil)
			return &models.Override{Mode: models.OverrideBoundary, At: now}
		}
		u := until.UTC()
		return &models.Override{Mode: models.OverrideTimed, At: now, Until: &u}
	}
	return &models.Override{Mode: mode, At: now}
}

func (s *ZoneService) applyModeTransition(ctx context.Context, zoneName string, newMode models.ControlMode) error {
	current, err := s.repos.Zones.Get(ctx, zoneName)
	if err != nil {
		return err
	}
	oldMode := current.ControlMode

	patch := repository.ZonePatch{ControlMode: &newMode}
	switch {
	case oldMode == models.ModeAuto && newMode != models.ModeAuto:
		// Freeze the last effective setpoint, drop override bookkeeping.
		patch.TargetSetpoint = current.TargetSetpoint
		patch.ClearOverride = true
	case oldMode != models.ModeAuto && newMode == models.ModeAuto:
		if sp := s.resolveScheduledSetpoint(ctx, zoneName, time.Now()); sp != nil {
			patch.TargetSetpoint = sp
		}
		patch.ClearOverride = true
	}

	if newMode == models.ModeThermostat {
		// External wiring drives the zone; our relay output goes low.
		if err := s.hw.SetZoneRelay(ctx, zoneName, false); err != nil {
			s.log.Errorw("relay release failed", "zone", zoneName, "error", err)
		}
		off := models.StateOff
		patch.CurrentState = &off
	}

	return s.repos.Zones.Update(ctx, zoneName, patch)
}

// CommandZone executes a manual relay command. FORCE_ON/FORCE_OFF pin
// the zone in MANUAL; AUTO hands it back to the feedback loop; THERMOSTAT
// releases the relay for external wiring.
func (s *ZoneService) CommandZone(ctx context.Context, zoneName string, command string) (*models.ZoneState, error) {
	now := time.Now().UTC()
	zone, err := s.repos.Zones.Get(ctx, zoneName)
	if err != nil {
		return nil, err
	}
	prevState := zone.CurrentState
	prevUpdated := zone.UpdatedAt
	outside := s.outsideTemp(ctx)

	switch command {
	case CommandForceOn, CommandForceOff:
		on := command == CommandForceOn
		if err := s.hw.SetZoneRelay(ctx, zoneName, on); err != nil {
			return nil, fmt.Errorf("set relay %s: %w", zoneName, err)
		}
		state := models.StateOff
		if on {
			state = models.StateOn
		}
		manual := models.ModeManual
		if err := s.repos.Zones.Update(ctx, zoneName, repository.ZonePatch{
			CurrentState: &state,
			ControlMode:  &manual,
			UpdatedAt:    &now,
		}); err != nil {
			return nil, err
		}

		var duration *float64
		if !on && prevState == models.StateOn && !prevUpdated.IsZero() {
			d := now.Sub(prevUpdated).Seconds()
			duration = &d
		}
		event := models.EventOff
		if on {
			event = models.EventOn
		}
		if err := s.repos.Events.Append(ctx, models.EventLogEntry{
			Timestamp:       now,
			Source:          zoneName,
			Event:           event,
			RoomTemp:        zone.RoomTemp,
			PipeTemp:        zone.PipeTemp,
			OutsideTemp:     outside,
			DurationSeconds: duration,
		}); err != nil {
			s.log.Errorw("event append failed", "zone", zoneName, "event", event, "error", err)
		}

	case CommandAuto:
		// Output is left alone; the next decision belongs to the loop,
		// but we take one immediate step so the change is visible.
		auto := models.ModeAuto
		if err := s.repos.Zones.Update(ctx, zoneName, repository.ZonePatch{ControlMode: &auto}); err != nil {
			return nil, err
		}
		fresh, err := s.GetZone(ctx, zoneName, true)
		if err != nil {
			return nil, err
		}
		if desired, ok := controlDecision(fresh); ok {
			if err := s.hw.SetZoneRelay(ctx, zoneName, desired == models.StateOn); err != nil {
				return nil, fmt.Errorf("set relay %s: %w", zoneName, err)
			}
			fresh, err = s.HandleZoneEvent(ctx, zoneName, relayEvent(desired), fresh.RoomTemp, fresh.PipeTemp, outside)
			if err != nil {
				return nil, err
			}
		}
		s.queueUpdate(*fresh)
		return fresh, nil

	case CommandThermostat:
		if err := s.hw.SetZoneRelay(ctx, zoneName, false); err != nil {
			return nil, fmt.Errorf("set relay %s: %w", zoneName, err)
		}
		off := models.StateOff
		thermostat := models.ModeThermostat
		if err := s.repos.Zones.Update(ctx, zoneName, repository.ZonePatch{
			CurrentState: &off,
			ControlMode:  &thermostat,
			UpdatedAt:    &now,
		}); err != nil {
			return nil, err
		}
		if prevState == models.StateOn {
			var duration *float64
			if !prevUpdated.IsZero() {
				d := now.Sub(prevUpdated).Seconds()
				duration = &d
			}
			if err := s.repos.Events.Append(ctx, models.EventLogEntry{
				Timestamp:       now,
				Source:          zoneName,
				Event:           models.EventOff,
				RoomTemp:        zone.RoomTemp,
				PipeTemp:        zone.PipeTemp,
				OutsideTemp:     outside,
				DurationSeconds: duration,
			}); err != nil {
				s.log.Errorw("event append failed", "zone", zoneName, "error", err)
			}
		}

	default:
		return nil, ErrUnknownCommand
	}

	updated, err := s.GetZone(ctx, zoneName, false)
	if err != nil {
		return nil, err
	}
	s.queueUpdate(*updated)
	return updated, nil
}

// UniformSetpoint rewrites every controllable zone's schedule to hold
// one temperature all week and flips the zones to AUTO at that target.
// Each zone's weekly schedule is saved first so ResumeSchedules can
// put it back.
func (s *ZoneService) UniformSetpoint(ctx context.Context, setpointF float64) ([]models.ZoneState, error) {
	now := time.Now().UTC()
	entries := make([]models.ScheduleEntry, 0, 7)
	for day := 0; day < 7; day++ {
		entries = append(entries, models.ScheduleEntry{
			DayOfWeek: day,
			StartTime: "00:00",
			EndTime:   "00:00",
			Setpoint:  setpointF,
			Enabled:   true,
		})
	}

	var changed []string
	for _, zoneName := range s.cfg.ZoneNames {
		if !s.cfg.hasSetpoint(zoneName) {
			continue
		}
		if _, err := s.repos.Zones.Get(ctx, zoneName); err != nil {
			continue
		}
		s.backupSchedule(ctx, zoneName)
		if err := s.repos.Schedules.ReplaceZone(ctx, zoneName, entries); err != nil {
			return nil, err
		}
		auto := models.ModeAuto
		if err := s.repos.Zones.Update(ctx, zoneName, repository.ZonePatch{
			TargetSetpoint: &setpointF,
			ControlMode:    &auto,
			UpdatedAt:      &now,
		}); err != nil {
			return nil, err
		}
		changed = append(changed, zoneName)
	}
	s.refreshAutoSetpoints(ctx, changed)

	zones, err := s.ListZones(ctx, false)
	if err != nil {
		return nil, err
	}
	s.queueUpdate(zones...)
	return zones, nil
}

// backupSchedule saves a zone's weekly schedule before a uniform
// rewrite. Repeated uniform setpoints keep the first backup so the
// schedule from before comfort mode survives stacked overrides.
func (s *ZoneService) backupSchedule(ctx context.Context, zoneName string) {
	s.mu.Lock()
	_, saved := s.scheduleBackup[zoneName]
	s.mu.Unlock()
	if saved {
		return
	}
	entries, err := s.repos.Schedules.ListZone(ctx, zoneName)
	if err != nil {
		s.log.Errorw("schedule backup failed", "zone", zoneName, "error", err)
		return
	}
	s.mu.Lock()
	s.scheduleBackup[zoneName] = entries
	s.mu.Unlock()
}

// ResumeSchedules restores the weekly schedules saved by
// UniformSetpoint and re-syncs the restored zones' AUTO setpoints.
// Zones without a backup are left alone; with nothing saved it is a
// no-op that still returns current state.
func (s *ZoneService) ResumeSchedules(ctx context.Context) ([]models.ZoneState, error) {
	var restored []string
	for _, zoneName := range s.cfg.ZoneNames {
		s.mu.Lock()
		entries, ok := s.scheduleBackup[zoneName]
		s.mu.Unlock()
		if !ok {
			continue
		}
		if err := s.repos.Schedules.ReplaceZone(ctx, zoneName, entries); err != nil {
			return nil, fmt.Errorf("restore schedule %s: %w", zoneName, err)
		}
		s.mu.Lock()
		delete(s.scheduleBackup, zoneName)
		s.mu.Unlock()
		restored = append(restored, zoneName)
	}
	if len(restored) > 0 {
		s.refreshAutoSetpoints(ctx, restored)
	}

	zones, err := s.ListZones(ctx, false)
	if err != nil {
		return nil, err
	}
	if len(restored) > 0 {
		s.queueUpdate(zones...)
	}
	return zones, nil
}

// HandleZoneEvent records a relay transition: snapshot update, system
// status decoration, and the event log append with run duration when a
// burn ends.
func (s *ZoneService) HandleZoneEvent(ctx context.Context, zoneName string, event models.EventType, roomTemp, pipeTemp, outsideTemp *float64) (*models.ZoneState, error) {
	prev, err := s.repos.Zones.Get(ctx, zoneName)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var duration *float64
	if event == models.EventOff && prev.CurrentState == models.StateOn && !prev.UpdatedAt.IsZero() {
		d := now.Sub(prev.UpdatedAt).Seconds()
		duration = &d
	}

	state := models.StateOff
	if event == models.EventOn {
		state = models.StateOn
	}
	patch := repository.ZonePatch{
		CurrentState: &state,
		RoomTemp:     roomTemp,
		PipeTemp:     pipeTemp,
		UpdatedAt:    &now,
	}
	if err := s.repos.Zones.Update(ctx, zoneName, patch); err != nil {
		return nil, err
	}

	if outsideTemp != nil {
		if err := s.repos.System.Update(ctx, outsideTemp, now); err != nil {
			s.log.Errorw("system status update failed", "error", err)
		}
	}

	if err := s.repos.Events.Append(ctx, models.EventLogEntry{
		Timestamp:       now,
		Source:          zoneName,
		Event:           event,
		RoomTemp:        roomTemp,
		PipeTemp:        pipeTemp,
		OutsideTemp:     outsideTemp,
		DurationSeconds: duration,
	}); err != nil {
		s.log.Errorw("event append failed", "zone", zoneName, "event", event, "error", err)
	}

	return s.GetZone(ctx, zoneName, false)
}

// syncAutoSetpoint keeps an AUTO zone's stored setpoint in step with
// its schedule while honoring any standing manual override.
func (s *ZoneService) syncAutoSetpoint(ctx context.Context, z *models.ZoneState) *models.ZoneState {
	if z.ControlMode != models.ModeAuto || !s.cfg.knownZone(z.ZoneName) || !s.cfg.hasSetpoint(z.ZoneName) {
		return z
	}

	scheduled := s.resolveScheduledSetpoint(ctx, z.ZoneName, time.Now())
	if scheduled == nil {
		return z
	}

	applySchedule := func() *models.ZoneState {
		if err := s.repos.Zones.Update(ctx, z.ZoneName, repository.ZonePatch{
			TargetSetpoint: scheduled,
			ClearOverride:  true,
		}); err != nil {
			s.log.Errorw("setpoint sync failed", "zone", z.ZoneName, "error", err)
			return z
		}
		z.TargetSetpoint = scheduled
		z.ClearOverride()
		return z
	}

	if ov := z.Override(); ov != nil {
		switch ov.Mode {
		case models.OverrideTimed:
			if ov.Until != nil && !time.Now().UTC().Before(*ov.Until) {
				return applySchedule()
			}
			return z
		case models.OverridePermanent:
			return z
		case models.OverrideBoundary:
			if z.TargetSetpoint != nil && math.Abs(*scheduled-*z.TargetSetpoint) > setpointEpsilon {
				// The schedule moved on; the override dies at the boundary.
				return applySchedule()
			}
			return z
		}
	}

	if z.TargetSetpoint == nil || math.Abs(*z.TargetSetpoint-*scheduled) > setpointEpsilon {
		s.log.Infow("applying scheduled setpoint",
			"zone", z.ZoneName, "setpoint_f", *scheduled)
		if err := s.repos.Zones.Update(ctx, z.ZoneName, repository.ZonePatch{
			TargetSetpoint: scheduled,
		}); err != nil {
			s.log.Errorw("setpoint sync failed", "zone", z.ZoneName, "error", err)
			return z
		}
		z.TargetSetpoint = scheduled
	}
	return z
}

// resolveScheduledSetpoint evaluates the zone schedule with global
// fallback: active window first, then the next upcoming one.
func (s *ZoneService) resolveScheduledSetpoint(ctx context.Context, zoneName string, at time.Time) *float64 {
	zoneEntries, err := s.repos.Schedules.ListZone(ctx, zoneName)
	if err != nil {
		s.log.Errorw("zone schedule read failed", "zone", zoneName, "error", err)
		return nil
	}
	globalEntries, err := s.repos.Schedules.ListGlobal(ctx)
	if err != nil {
		s.log.Errorw("global schedule read failed", "error", err)
		globalEntries = nil
	}
	return schedule.ResolveForZone(zoneEntries, globalEntries, at)
}

// refreshAutoSetpoints re-syncs the named zones (or all of them) after a
// schedule write so AUTO targets move immediately.
func (s *ZoneService) refreshAutoSetpoints(ctx context.Context, zoneNames []string) {
	targets := zoneNames
	if len(targets) == 0 {
		targets = s.cfg.ZoneNames
	}
	for _, zoneName := range targets {
		if !s.cfg.hasSetpoint(zoneName) {
			continue
		}
		z, err := s.repos.Zones.Get(ctx, zoneName)
		if err != nil || z.ControlMode != models.ModeAuto {
			continue
		}
		s.syncAutoSetpoint(ctx, z)
	}
}

// recordSampleIfDue appends a SAMPLE record if the zone has a reading
// and at least sampleInterval has passed since its previous sample.
func (s *ZoneService) recordSampleIfDue(ctx context.Context, z *models.ZoneState, outsideTemp *float64) {
	if z.RoomTemp == nil {
		return
	}

	now := time.Now().UTC()
	s.mu.Lock()
	if last, ok := s.lastSample[z.ZoneName]; ok && now.Sub(last) < sampleInterval {
		s.mu.Unlock()
		return
	}
	s.lastSample[z.ZoneName] = now
	s.mu.Unlock()

	outside := outsideTemp
	if outside == nil {
		outside = s.outsideTemp(ctx)
	}

	if err := s.repos.Events.Append(ctx, models.EventLogEntry{
		Timestamp:   now,
		Source:      z.ZoneName,
		Event:       models.EventSample,
		RoomTemp:    z.RoomTemp,
		PipeTemp:    z.PipeTemp,
		OutsideTemp: outside,
	}); err != nil {
		s.log.Errorw("sample event append failed", "zone", z.ZoneName, "error", err)
	}
	if err := s.repos.Events.AppendSample(ctx, models.TemperatureSample{
		Timestamp:   now,
		ZoneName:    z.ZoneName,
		RoomTemp:    z.RoomTemp,
		PipeTemp:    z.PipeTemp,
		OutsideTemp: outside,
	}); err != nil {
		s.log.Errorw("sample append failed", "zone", z.ZoneName, "error", err)
	}
}

func (s *ZoneService) outsideTemp(ctx context.Context) *float64 {
	status, err := s.repos.System.Get(ctx)
	if err != nil {
		return nil
	}
	return status.OutsideTemp
}

func (s *ZoneService) decorate(z *models.ZoneState) {
	z.RoomName = s.cfg.roomName(z.ZoneName)
}

// controlDecision returns the relay state the hysteresis band asks for,
// with the safety clamps applied, or ok=false when no change is needed
// or the inputs are missing.
func controlDecision(z *models.ZoneState) (models.RelayState, bool) {
	if z.TargetSetpoint == nil || z.RoomTemp == nil {
		return "", false
	}
	setpoint := *z.TargetSetpoint
	room := *z.RoomTemp
	lower := setpoint - HysteresisBandF

	var desired models.RelayState
	switch {
	case room <= lower && z.CurrentState != models.StateOn:
		desired = models.StateOn
	case room >= setpoint && z.CurrentState != models.StateOff:
		desired = models.StateOff
	default:
		return "", false
	}

	if desired == models.StateOn && room >= MaxRoomTempF {
		desired = models.StateOff
	}
	if desired == models.StateOff && room <= MinRoomTempF {
		desired = models.StateOn
	}
	if desired == z.CurrentState {
		return "", false
	}
	return desired, true
}

func relayEvent(state models.RelayState) models.EventType {
	if state == models.StateOn {
		return models.EventOn
	}
	return models.EventOff
}
