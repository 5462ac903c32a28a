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

// SamplerService periodically reads every zone's sensors into the store
// so dashboards and the control loop work from fresh data.
type SamplerService struct {
	repos *repository.Repository
	hw    hardware.Controller
	zones *ZoneService
	cfg   Config
	log   *zap.SugaredLogger

	mu       sync.Mutex
	notifier Notifier
}

func NewSamplerService(repos *repository.Repository, hw hardware.Controller, zones *ZoneService, cfg Config, log *zap.SugaredLogger) *SamplerService {
	return &SamplerService{
		repos: repos,
		hw:    hw,
		zones: zones,
		cfg:   cfg,
		log:   log,
	}
}

func (s *SamplerService) SetNotifier(n Notifier) {
	s.mu.Lock()
	s.notifier = n
	s.mu.Unlock()
}

func (s *SamplerService) Run(ctx context.Context, tick time.Duration) {
	s.log.Infow("temperature sampling loop started", "tick", tick)
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("temperature sampling loop stopped")
			return
		case <-t.C:
			s.sampleOnce(ctx)
		}
	}
}

// systemNotifier is implemented by notifiers that also carry the
// site-wide reading to subscribers.
type systemNotifier interface {
	QueueSystemUpdate(status *models.SystemStatus)
}

func (s *SamplerService) sampleOnce(ctx context.Context) {
	if outside, err := s.hw.ReadOutsideTemp(ctx); err == nil && outside != nil {
		now := time.Now().UTC()
		if err := s.repos.System.Update(ctx, outside, now); err != nil {
			s.log.Errorw("system status update failed", "error", err)
		}
		s.mu.Lock()
		n := s.notifier
		s.mu.Unlock()
		if sn, ok := n.(systemNotifier); ok {
			sn.QueueSystemUpdate(&models.SystemStatus{OutsideTemp: outside, UpdatedAt: now})
		}
	}

	var updated []models.ZoneState
	for _, zoneName := range s.cfg.ZoneNames {
		roomTemp, err := s.hw.ReadRoomTemp(ctx, zoneName)
		if err != nil {
			s.log.Errorw("room temp read failed", "zone", zoneName, "error", err)
			continue
		}
		pipeTemp, err := s.hw.ReadPipeTemp(ctx, zoneName)
		if err != nil {
			s.log.Errorw("pipe temp read failed", "zone", zoneName, "error", err)
			continue
		}
		if roomTemp == nil && pipeTemp == nil {
			continue
		}

		if err := s.repos.Zones.Update(ctx, zoneName, repository.ZonePatch{
			RoomTemp: roomTemp,
			PipeTemp: pipeTemp,
		}); err != nil {
			s.log.Errorw("zone temp update failed", "zone", zoneName, "error", err)
			continue
		}

		z, err := s.zones.GetZone(ctx, zoneName, false)
		if err != nil {
			continue
		}
		updated = append(updated, *z)
	}

	if len(updated) > 0 {
		s.mu.Lock()
		n := s.notifier
		s.mu.Unlock()
		if n != nil {
			n.QueueUpdate(updated)
		}
	}
}
