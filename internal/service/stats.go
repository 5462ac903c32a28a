package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"heating_controller/internal/models"
	"heating_controller/internal/repository"
)

// ZoneStatistics summarizes a zone's heat calls over a window by
// pairing ON/OFF events into runs.
type ZoneStatistics struct {
	ZoneName                 string   `json:"ZoneName"`
	RoomName                 string   `json:"RoomName"`
	CallsInWindow            int      `json:"CallsInWindow"`
	AverageRunSecondsPerCall float64  `json:"AverageRunSecondsPerCall"`
	TotalRunWindowSeconds    float64  `json:"TotalRunWindowSeconds"`
	TotalRun30DaySeconds     float64  `json:"TotalRun30DaySeconds"`
	AverageRoomTempF         *float64 `json:"AverageRoomTemp_F"`
	Window                   string   `json:"Window"`
	WindowHours              float64  `json:"WindowHours"`
	WindowStart              string   `json:"WindowStart"`
	WindowEnd                string   `json:"WindowEnd"`
}

var statWindows = map[string]int{"day": 1, "week": 7, "month": 30}

// Statistics computes run metrics per zone for a day/week/month window,
// anchored at the end of the given local day or at now.
func (s *HistoryService) Statistics(ctx context.Context, window string, day string) ([]ZoneStatistics, error) {
	windowDays, ok := statWindows[window]
	if !ok {
		return nil, fmt.Errorf("window must be one of: day, week, month")
	}

	loc, err := time.LoadLocation(s.cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q", s.cfg.Timezone)
	}

	var anchorEnd time.Time
	if day != "" {
		dayStart, err := time.ParseInLocation("2006-01-02", day, loc)
		if err != nil {
			return nil, fmt.Errorf("day must be formatted as YYYY-MM-DD")
		}
		anchorEnd = dayStart.AddDate(0, 0, 1)
	} else {
		anchorEnd = s.now().In(loc)
	}

	windowEnd := anchorEnd.UTC()
	windowStart := anchorEnd.AddDate(0, 0, -windowDays).UTC()
	monthStart := anchorEnd.AddDate(0, 0, -30).UTC()
	windowHours := windowEnd.Sub(windowStart).Hours()

	stats := make([]ZoneStatistics, 0, len(s.cfg.ZoneNames))
	for _, zoneName := range s.cfg.ZoneNames {
		z, err := s.repos.Zones.Get(ctx, zoneName)
		if err != nil {
			continue
		}

		events, err := s.repos.Events.List(ctx, repository.EventFilter{
			Source: zoneName,
			Since:  &monthStart,
			Until:  &windowEnd,
			Limit:  7000,
		})
		if err != nil {
			return nil, err
		}
		calls, windowSeconds, monthlySeconds, avgRun := calculateRunMetrics(events, windowStart, windowEnd, monthStart)

		samples, err := s.repos.Events.List(ctx, repository.EventFilter{
			Source:         zoneName,
			Since:          &windowStart,
			Until:          &windowEnd,
			Limit:          3000,
			IncludeSamples: true,
		})
		if err != nil {
			return nil, err
		}
		avgRoom := averageSampleTemp(samples)
		if avgRoom == nil {
			avgRoom = z.RoomTemp
		}

		stats = append(stats, ZoneStatistics{
			ZoneName:                 zoneName,
			RoomName:                 s.cfg.roomName(zoneName),
			CallsInWindow:            calls,
			AverageRunSecondsPerCall: avgRun,
			TotalRunWindowSeconds:    windowSeconds,
			TotalRun30DaySeconds:     monthlySeconds,
			AverageRoomTempF:         avgRoom,
			Window:                   window,
			WindowHours:              windowHours,
			WindowStart:              windowStart.Format(time.RFC3339),
			WindowEnd:                windowEnd.Format(time.RFC3339),
		})
	}
	return stats, nil
}

// calculateRunMetrics pairs ON/OFF events into runs and sums the overlap
// of each run with the reporting windows. An OFF with a recorded
// duration defines its own run start; otherwise the preceding ON is used.
func calculateRunMetrics(events []models.EventLogEntry, windowStart, windowEnd, monthStart time.Time) (calls int, windowSeconds, monthlySeconds, avgRun float64) {
	sorted := make([]models.EventLogEntry, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var pendingOn *time.Time
	for _, e := range sorted {
		switch e.Event {
		case models.EventOn:
			ts := e.Timestamp
			pendingOn = &ts
			continue
		case models.EventOff:
		default:
			continue
		}

		start := resolveRunStart(e, pendingOn)
		pendingOn = nil
		if start == nil || !start.Before(e.Timestamp) {
			continue
		}

		monthlySeconds += overlapSeconds(*start, e.Timestamp, monthStart, windowEnd)
		if overlap := overlapSeconds(*start, e.Timestamp, windowStart, windowEnd); overlap > 0 {
			windowSeconds += overlap
			calls++
		}
	}

	if calls > 0 {
		avgRun = windowSeconds / float64(calls)
	}
	return calls, windowSeconds, monthlySeconds, avgRun
}

func resolveRunStart(off models.EventLogEntry, pendingOn *time.Time) *time.Time {
	if off.DurationSeconds != nil && *off.DurationSeconds >= 0 {
		start := off.Timestamp.Add(-time.Duration(*off.DurationSeconds * float64(time.Second)))
		return &start
	}
	return pendingOn
}

func overlapSeconds(start, end, boundStart, boundEnd time.Time) float64 {
	if start.Before(boundStart) {
		start = boundStart
	}
	if end.After(boundEnd) {
		end = boundEnd
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start).Seconds()
}

func averageSampleTemp(events []models.EventLogEntry) *float64 {
	var sum float64
	var n int
	for _, e := range events {
		if e.Event == models.EventSample && e.RoomTemp != nil {
			sum += *e.RoomTemp
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}
