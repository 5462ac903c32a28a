// Package schedule evaluates weekly setpoint schedules. All functions
// are pure; callers pass the entries and the instant to evaluate at.
package schedule

import (
	"fmt"
	"sort"
	"time"

	"heating_controller/internal/models"
)

// TimeToMinutes parses "HH:MM" into minutes past midnight.
func TimeToMinutes(s string) (int, bool) {
	if len(s) != 5 || s[2] != ':' {
		return 0, false
	}
	h := digits2(s[0], s[1])
	m := digits2(s[3], s[4])
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

func digits2(a, b byte) int {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return -1
	}
	return int(a-'0')*10 + int(b-'0')
}

// weekday maps Go's Sunday-first weekday onto Monday=0..Sunday=6.
func weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// windowContains reports whether minute-of-day m falls in [start, end)
// with the three window shapes: start==end covers the whole day,
// start>end spans midnight.
func windowContains(start, end, m int) bool {
	switch {
	case start == end:
		return true
	case start < end:
		return m >= start && m < end
	default:
		return m >= start || m < end
	}
}

// ResolveSetpoint returns the setpoint of the first enabled entry whose
// window covers t, or nil when nothing matches.
func ResolveSetpoint(entries []models.ScheduleEntry, t time.Time) *float64 {
	day := weekday(t)
	minute := t.Hour()*60 + t.Minute()

	for _, e := range entries {
		if !e.Enabled || e.DayOfWeek != day {
			continue
		}
		start, ok := TimeToMinutes(e.StartTime)
		if !ok {
			continue
		}
		end, ok := TimeToMinutes(e.EndTime)
		if !ok {
			continue
		}
		if windowContains(start, end, minute) {
			sp := e.Setpoint
			return &sp
		}
	}
	return nil
}

// NextSetpoint returns the setpoint of the next enabled entry starting
// strictly after t, scanning up to seven days ahead. Nil when nothing
// upcoming is found in that horizon.
func NextSetpoint(entries []models.ScheduleEntry, t time.Time) *float64 {
	type slot struct {
		day, start int
		setpoint   float64
	}

	slots := make([]slot, 0, len(entries))
	for _, e := range entries {
		if !e.Enabled {
			continue
		}
		start, ok := TimeToMinutes(e.StartTime)
		if !ok {
			continue
		}
		slots = append(slots, slot{day: e.DayOfWeek, start: start, setpoint: e.Setpoint})
	}
	if len(slots) == 0 {
		return nil
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].day != slots[j].day {
			return slots[i].day < slots[j].day
		}
		return slots[i].start < slots[j].start
	})

	today := weekday(t)
	minute := t.Hour()*60 + t.Minute()

	for offset := 0; offset < 7; offset++ {
		day := (today + offset) % 7
		for _, s := range slots {
			if s.day != day {
				continue
			}
			if offset == 0 && s.start <= minute {
				continue
			}
			sp := s.setpoint
			return &sp
		}
	}

	return nil
}

// ResolveForZone picks a zone's scheduled setpoint: the zone schedule's
// active window, else its upcoming one, else the same two lookups on the
// global schedule. Nil means no schedule applies.
func ResolveForZone(zoneEntries, globalEntries []models.ScheduleEntry, t time.Time) *float64 {
	if sp := ResolveSetpoint(zoneEntries, t); sp != nil {
		return sp
	}
	if sp := NextSetpoint(zoneEntries, t); sp != nil {
		return sp
	}
	if sp := ResolveSetpoint(globalEntries, t); sp != nil {
		return sp
	}
	return NextSetpoint(globalEntries, t)
}

// ValidateEntries checks a schedule before any write: day range, time
// format, setpoint presence, and duplicate (day, start) pairs. The
// first problem found is returned, so a replace is all-or-nothing.
func ValidateEntries(entries []models.ScheduleEntry) error {
	seen := make(map[[2]int]struct{}, len(entries))
	for i, e := range entries {
		if e.DayOfWeek < 0 || e.DayOfWeek > 6 {
			return fmt.Errorf("entry %d: day_of_week %d out of range 0-6", i, e.DayOfWeek)
		}
		// A request body without setpoint_f decodes to zero; no real
		// target is 0°F or below.
		if e.Setpoint <= 0 {
			return fmt.Errorf("entry %d: setpoint_f is required", i)
		}
		start, ok := TimeToMinutes(e.StartTime)
		if !ok {
			return fmt.Errorf("entry %d: invalid start_time %q", i, e.StartTime)
		}
		if _, ok := TimeToMinutes(e.EndTime); !ok {
			return fmt.Errorf("entry %d: invalid end_time %q", i, e.EndTime)
		}
		key := [2]int{e.DayOfWeek, start}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("entry %d: duplicate slot day %d start %s", i, e.DayOfWeek, e.StartTime)
		}
		seen[key] = struct{}{}
	}
	return nil
}
