package hardware

import "context"

// Controller is the boundary to the zone relays and temperature sensors.
// Readings are pointers: nil means the sensor has no value right now,
// which callers treat as "skip", not as an error.
type Controller interface {
	// SetZoneRelay drives one zone's circulator relay.
	SetZoneRelay(ctx context.Context, zoneName string, on bool) error

	// ReadRoomTemp returns the zone's room temperature in °F, or nil
	// when the sensor is absent or has not reported yet.
	ReadRoomTemp(ctx context.Context, zoneName string) (*float64, error)

	// ReadPipeTemp returns the zone's supply pipe temperature in °F.
	ReadPipeTemp(ctx context.Context, zoneName string) (*float64, error)

	// ReadOutsideTemp returns the site outdoor temperature in °F.
	ReadOutsideTemp(ctx context.Context) (*float64, error)
}
