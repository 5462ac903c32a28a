package hardware

import (
	"context"
	"fmt"
	"sync"
)

const (
	heatRatePerRead  = 0.3
	coolRatePerRead  = 0.2
	targetUndershoot = 0.75
	ambientFloor     = 60.0
)

type mockZone struct {
	roomTemp float64
	pipeTemp float64
	relayOn  bool
	target   *float64
}

// Mock is an in-memory Controller that walks each zone's room
// temperature toward a believable value on every read: +0.3 per read
// while the relay is on, otherwise drifting -0.2 toward
// min(target - 0.75, 60.0). That closes the feedback loop in
// development without any wiring attached.
type Mock struct {
	mu    sync.Mutex
	zones map[string]*mockZone

	outsideTemp float64
}

// NewMock seeds every named zone at the given starting room temperature.
func NewMock(zoneNames []string, startTemp float64) *Mock {
	m := &Mock{
		zones:       make(map[string]*mockZone, len(zoneNames)),
		outsideTemp: 41.0,
	}
	for _, name := range zoneNames {
		m.zones[name] = &mockZone{
			roomTemp: startTemp,
			pipeTemp: 70.0,
		}
	}
	return m
}

func (m *Mock) SetZoneRelay(_ context.Context, zoneName string, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	z, ok := m.zones[zoneName]
	if !ok {
		return fmt.Errorf("unknown zone %q", zoneName)
	}
	z.relayOn = on
	return nil
}

func (m *Mock) ReadRoomTemp(_ context.Context, zoneName string) (*float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	z, ok := m.zones[zoneName]
	if !ok {
		return nil, fmt.Errorf("unknown zone %q", zoneName)
	}

	if z.relayOn {
		z.roomTemp += heatRatePerRead
	} else {
		floor := ambientFloor
		if z.target != nil && *z.target-targetUndershoot < floor {
			floor = *z.target - targetUndershoot
		}
		if z.roomTemp > floor {
			z.roomTemp -= coolRatePerRead
			if z.roomTemp < floor {
				z.roomTemp = floor
			}
		}
	}

	t := z.roomTemp
	return &t, nil
}

func (m *Mock) ReadPipeTemp(_ context.Context, zoneName string) (*float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	z, ok := m.zones[zoneName]
	if !ok {
		return nil, fmt.Errorf("unknown zone %q", zoneName)
	}

	// Pipes track the relay with a lag toward hot supply / room ambient.
	if z.relayOn {
		if z.pipeTemp < 160.0 {
			z.pipeTemp += 5.0
		}
	} else if z.pipeTemp > z.roomTemp {
		z.pipeTemp -= 3.0
	}

	t := z.pipeTemp
	return &t, nil
}

func (m *Mock) ReadOutsideTemp(_ context.Context) (*float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.outsideTemp
	return &t, nil
}

// SetTarget tells the walk where a zone's cooling drift should settle.
func (m *Mock) SetTarget(zoneName string, target *float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if z, ok := m.zones[zoneName]; ok {
		z.target = target
	}
}

// SetRoomTemp pins a zone's room temperature, mostly for tests.
func (m *Mock) SetRoomTemp(zoneName string, temp float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if z, ok := m.zones[zoneName]; ok {
		z.roomTemp = temp
	}
}

// RelayOn reports the last commanded relay state for a zone.
func (m *Mock) RelayOn(zoneName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if z, ok := m.zones[zoneName]; ok {
		return z.relayOn
	}
	return false
}
