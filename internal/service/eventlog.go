package service

import (
	"context"
	"errors"

	"heating_controller/internal/models"
	"heating_controller/internal/repository"
)

var errInvalidTimeRange = errors.New("invalid time range: since must be <= until")

type EventLogService struct {
	eventRepo repository.EventRepo
}

func NewEventLogService(eventRepo repository.EventRepo) *EventLogService {
	return &EventLogService{eventRepo: eventRepo}
}

func (s *EventLogService) List(ctx context.Context, f repository.EventFilter) ([]models.EventLogEntry, error) {
	if f.Since != nil && f.Until != nil && f.Since.After(*f.Until) {
		return nil, errInvalidTimeRange
	}
	return s.eventRepo.List(ctx, f)
}
