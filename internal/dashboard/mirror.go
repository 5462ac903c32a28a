// Package dashboard runs the subscriber side of the sync protocol: a
// local mirror of controller state, a reconnecting WebSocket client,
// and an HTTP surface that serves the mirror and relays commands.
package dashboard

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"heating_controller/internal/models"
	"heating_controller/internal/syncproto"
)

// How long mirrored state counts as fresh, and how long it is still
// served after updates stop arriving.
const (
	freshFor      = 30 * time.Second
	serveStaleFor = 5 * time.Minute
)

// Cache states reported by Freshness.
const (
	CacheFresh   = "fresh"
	CacheStale   = "stale"
	CacheExpired = "expired"
	CacheEmpty   = "empty"
)

// Mirror caches the newest zone snapshots received from the
// controller. Out-of-order frames are resolved per zone by UpdatedAt,
// newest snapshot winning.
type Mirror struct {
	mu         sync.RWMutex
	zones      map[string]models.ZoneState
	system     *models.SystemStatus
	lastUpdate time.Time

	now func() time.Time
}

func NewMirror() *Mirror {
	return &Mirror{
		zones: make(map[string]models.ZoneState),
		now:   time.Now,
	}
}

// Apply merges one state payload into the cache. A zone snapshot older
// than the cached one is dropped; a tie applies the incoming snapshot.
func (m *Mirror) Apply(payload syncproto.StateUpdatePayload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, z := range payload.Zones {
		if cached, ok := m.zones[z.ZoneName]; ok && z.UpdatedAt.Before(cached.UpdatedAt) {
			continue
		}
		m.zones[z.ZoneName] = z
	}
	if payload.System != nil {
		m.system = payload.System
	}
	m.lastUpdate = m.now()
}

// Zones returns the cached snapshots in display order: numbered zones
// ascending, the boiler pseudo-zone last.
func (m *Mirror) Zones() []models.ZoneState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ZoneState, 0, len(m.zones))
	for _, z := range m.zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return zoneLess(out[i].ZoneName, out[j].ZoneName) })
	return out
}

// Zone returns one cached snapshot by name.
func (m *Mirror) Zone(zoneName string) (models.ZoneState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	z, ok := m.zones[zoneName]
	return z, ok
}

// System returns the cached site-wide reading, if any arrived yet.
func (m *Mirror) System() *models.SystemStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.system
}

// Age reports how long ago the last payload arrived.
func (m *Mirror) Age() (time.Duration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastUpdate.IsZero() {
		return 0, false
	}
	return m.now().Sub(m.lastUpdate), true
}

// Freshness classifies the cache by the age of its newest payload.
func (m *Mirror) Freshness() string {
	age, ok := m.Age()
	switch {
	case !ok:
		return CacheEmpty
	case age <= freshFor:
		return CacheFresh
	case age <= serveStaleFor:
		return CacheStale
	default:
		return CacheExpired
	}
}

// zoneLess orders "Z2" before "Z10" and keeps the boiler at the end.
func zoneLess(a, b string) bool {
	if a == models.BoilerZone {
		return false
	}
	if b == models.BoilerZone {
		return true
	}
	an, aok := zoneNumber(a)
	bn, bok := zoneNumber(b)
	if aok && bok {
		return an < bn
	}
	if aok != bok {
		return aok
	}
	return a < b
}

func zoneNumber(name string) (int, bool) {
	if !strings.HasPrefix(name, "Z") {
		return 0, false
	}
	n, err := strconv.Atoi(name[1:])
	if err != nil {
		return 0, false
	}
	return n, true
}
