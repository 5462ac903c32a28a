package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"heating_controller/internal/hardware"
	"heating_controller/internal/models"
	"heating_controller/internal/repository"
)

// targetAware is implemented by development hardware that wants to know
// where each zone's temperature drift should settle.
type targetAware interface {
	SetTarget(zoneName string, target *float64)
}

// AutoControlService drives AUTO zones with a hysteresis band around
// the scheduled setpoint, clamped by the room safety limits.
type AutoControlService struct {
	repos *repository.Repository
	hw    hardware.Controller
	zones *ZoneService
	cfg   Config
	log   *zap.SugaredLogger

	mu       sync.Mutex
	notifier Notifier
}

func NewAutoControlService(repos *repository.Repository, hw hardware.Controller, zones *ZoneService, cfg Config, log *zap.SugaredLogger) *AutoControlService {
	return &AutoControlService{
		repos: repos,
		hw:    hw,
		zones: zones,
		cfg:   cfg,
		log:   log,
	}
}

func (s *AutoControlService) SetNotifier(n Notifier) {
	s.mu.Lock()
	s.notifier = n
	s.mu.Unlock()
}

// Run ticks the control decision at the given interval until ctx is
// canceled. An error on one tick never stops the loop.
func (s *AutoControlService) Run(ctx context.Context, tick time.Duration) {
	s.log.Infow("auto-control loop started", "tick", tick)
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("auto-control loop stopped")
			return
		case <-t.C:
			s.Tick(ctx)

			zones, err := s.zones.ListZones(ctx, false)
			if err != nil {
				s.log.Errorw("zone list failed after control tick", "error", err)
				continue
			}
			s.mu.Lock()
			n := s.notifier
			s.mu.Unlock()
			if n != nil && len(zones) > 0 {
				n.QueueUpdate(zones)
			}
		}
	}
}

// Tick evaluates every zone once. AUTO zones get a control decision;
// all zones get a SAMPLE record when one is due.
func (s *AutoControlService) Tick(ctx context.Context) {
	var outside *float64
	if status, err := s.repos.System.Get(ctx); err == nil {
		outside = status.OutsideTemp
	}

	rows, err := s.repos.Zones.List(ctx, false)
	if err != nil {
		s.log.Errorw("zone list failed", "error", err)
		return
	}

	for i := range rows {
		z := &rows[i]
		if z.ControlMode == models.ModeAuto {
			z = s.ensureAutoState(ctx, z, outside)
		}
		s.zones.recordSampleIfDue(ctx, z, outside)
	}
}

// ensureAutoState reconciles one AUTO zone against its setpoint. Zones
// with no setpoint or no reading are left alone.
func (s *AutoControlService) ensureAutoState(ctx context.Context, z *models.ZoneState, outside *float64) *models.ZoneState {
	z = s.zones.syncAutoSetpoint(ctx, z)

	if ta, ok := s.hw.(targetAware); ok {
		ta.SetTarget(z.ZoneName, z.TargetSetpoint)
	}

	desired, ok := controlDecision(z)
	if !ok {
		return z
	}

	if err := s.hw.SetZoneRelay(ctx, z.ZoneName, desired == models.StateOn); err != nil {
		s.log.Errorw("relay write failed", "zone", z.ZoneName, "desired", desired, "error", err)
		return z
	}

	updated, err := s.zones.HandleZoneEvent(ctx, z.ZoneName, relayEvent(desired), z.RoomTemp, z.PipeTemp, outside)
	if err != nil {
		s.log.Errorw("zone event failed", "zone", z.ZoneName, "error", err)
		return z
	}
	s.log.Infow("auto control transition",
		"zone", z.ZoneName, "state", desired,
		"room_temp_f", z.RoomTemp, "setpoint_f", z.TargetSetpoint)
	return updated
}
