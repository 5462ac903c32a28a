package dashboard

import (
	"testing"
	"time"

	"heating_controller/internal/models"
	"heating_controller/internal/syncproto"
)

func zoneAt(name string, temp float64, updated time.Time) models.ZoneState {
	return models.ZoneState{
		ZoneName:     name,
		CurrentState: models.StateOff,
		RoomTemp:     &temp,
		UpdatedAt:    updated,
	}
}

func roomTemp(z models.ZoneState) float64 {
	if z.RoomTemp == nil {
		return 0
	}
	return *z.RoomTemp
}

func TestMirrorApply_NewestSnapshotWins(t *testing.T) {
	m := NewMirror()
	t0 := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	m.Apply(syncproto.StateUpdatePayload{Zones: []models.ZoneState{zoneAt("Z1", 68, t0)}})

	// Older snapshot arriving late must not clobber the cache.
	m.Apply(syncproto.StateUpdatePayload{Zones: []models.ZoneState{zoneAt("Z1", 55, t0.Add(-time.Minute))}})
	if z, _ := m.Zone("Z1"); roomTemp(z) != 68 {
		t.Fatalf("stale snapshot overwrote cache: temp = %v", roomTemp(z))
	}

	// Same timestamp applies, newer timestamp applies.
	m.Apply(syncproto.StateUpdatePayload{Zones: []models.ZoneState{zoneAt("Z1", 69, t0)}})
	if z, _ := m.Zone("Z1"); roomTemp(z) != 69 {
		t.Fatalf("tie snapshot was dropped: temp = %v", roomTemp(z))
	}
	m.Apply(syncproto.StateUpdatePayload{Zones: []models.ZoneState{zoneAt("Z1", 70, t0.Add(time.Second))}})
	if z, _ := m.Zone("Z1"); roomTemp(z) != 70 {
		t.Fatalf("newer snapshot was dropped: temp = %v", roomTemp(z))
	}
}

func TestMirrorApply_SystemReplacedOnlyWhenPresent(t *testing.T) {
	m := NewMirror()
	out := 41.5
	m.Apply(syncproto.StateUpdatePayload{System: &models.SystemStatus{OutsideTemp: &out}})
	m.Apply(syncproto.StateUpdatePayload{Zones: []models.ZoneState{zoneAt("Z1", 68, time.Now())}})

	sys := m.System()
	if sys == nil || sys.OutsideTemp == nil || *sys.OutsideTemp != 41.5 {
		t.Fatalf("system reading lost: %+v", sys)
	}
}

func TestMirrorZones_DisplayOrder(t *testing.T) {
	m := NewMirror()
	now := time.Now()
	names := []string{"Z10", models.BoilerZone, "Z2", "Z1"}
	zones := make([]models.ZoneState, 0, len(names))
	for _, n := range names {
		zones = append(zones, zoneAt(n, 60, now))
	}
	m.Apply(syncproto.StateUpdatePayload{Zones: zones})

	got := m.Zones()
	want := []string{"Z1", "Z2", "Z10", models.BoilerZone}
	if len(got) != len(want) {
		t.Fatalf("Zones() returned %d entries, want %d", len(got), len(want))
	}
	for i, z := range got {
		if z.ZoneName != want[i] {
			t.Fatalf("position %d: got %q, want %q", i, z.ZoneName, want[i])
		}
	}
}

func TestMirrorFreshness(t *testing.T) {
	m := NewMirror()
	if got := m.Freshness(); got != CacheEmpty {
		t.Fatalf("empty mirror freshness = %q", got)
	}

	t0 := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	now := t0
	m.now = func() time.Time { return now }

	m.Apply(syncproto.StateUpdatePayload{Zones: []models.ZoneState{zoneAt("Z1", 68, t0)}})

	steps := []struct {
		at   time.Time
		want string
	}{
		{t0.Add(10 * time.Second), CacheFresh},
		{t0.Add(31 * time.Second), CacheStale},
		{t0.Add(5 * time.Minute), CacheStale},
		{t0.Add(5*time.Minute + time.Second), CacheExpired},
	}
	for _, step := range steps {
		now = step.at
		if got := m.Freshness(); got != step.want {
			t.Fatalf("freshness at +%v = %q, want %q", step.at.Sub(t0), got, step.want)
		}
	}

	// A new payload brings the cache back to fresh.
	m.Apply(syncproto.StateUpdatePayload{Zones: []models.ZoneState{zoneAt("Z1", 68, now)}})
	if got := m.Freshness(); got != CacheFresh {
		t.Fatalf("freshness after update = %q", got)
	}
}
