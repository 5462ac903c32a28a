package models

import "time"

// ScheduleEntry is one weekly time window mapped to a setpoint.
// An entry belongs to exactly one owner: a zone, the global fallback,
// or a preset. DayOfWeek runs 0 (Monday) through 6 (Sunday).
//
// Window shapes:
//   - StartTime == EndTime: active the whole day
//   - StartTime <  EndTime: active in [start, end)
//   - StartTime >  EndTime: spans midnight (active when minute >= start or < end)
type ScheduleEntry struct {
	ID        int64   `json:"Id,omitempty"`
	ZoneName  string  `json:"ZoneName,omitempty"`
	DayOfWeek int     `json:"DayOfWeek"`
	StartTime string  `json:"StartTime"`
	EndTime   string  `json:"EndTime"`
	Setpoint  float64 `json:"Setpoint_F"`
	Enabled   bool    `json:"Enabled"`
}

// SchedulePreset is a named, reusable weekly schedule not tied to a zone.
type SchedulePreset struct {
	ID          int64           `json:"Id"`
	Name        string          `json:"Name"`
	Description string          `json:"Description,omitempty"`
	Entries     []ScheduleEntry `json:"Entries,omitempty"`
	CreatedAt   time.Time       `json:"CreatedAt"`
	UpdatedAt   time.Time       `json:"UpdatedAt"`
}
