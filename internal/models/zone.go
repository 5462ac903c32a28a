package models

import (
	"fmt"
	"time"
)

// RelayState is the hardware output state of a zone circulator relay.
type RelayState string

const (
	StateOn  RelayState = "ON"
	StateOff RelayState = "OFF"
)

// ControlMode decides who owns a zone's relay.
type ControlMode string

const (
	ModeAuto       ControlMode = "AUTO"       // schedule-driven feedback loop
	ModeManual     ControlMode = "MANUAL"     // human-forced state
	ModeThermostat ControlMode = "THERMOSTAT" // external thermostat wiring drives it
)

// OverrideMode classifies a manual setpoint override layered on AUTO mode.
type OverrideMode string

const (
	OverrideBoundary  OverrideMode = "boundary"
	OverridePermanent OverrideMode = "permanent"
	OverrideTimed     OverrideMode = "timed"
)

// BoilerZone is the reserved pseudo-zone tracking the boiler itself.
// It has no setpoint and never participates in auto control.
const BoilerZone = "Boiler"

// ZoneState is the current snapshot of one heating zone.
// JSON keys match the wire protocol consumed by existing dashboards.
type ZoneState struct {
	ZoneName       string      `json:"ZoneName"`
	RoomName       string      `json:"RoomName,omitempty"`
	CurrentState   RelayState  `json:"CurrentState"`
	RoomTemp       *float64    `json:"ZoneRoomTemp_F"`
	PipeTemp       *float64    `json:"PipeTemp_F"`
	TargetSetpoint *float64    `json:"TargetSetpoint_F"`
	ControlMode    ControlMode `json:"ControlMode"`
	OverrideAt     *time.Time  `json:"SetpointOverrideAt,omitempty"`
	OverrideMode   *string     `json:"SetpointOverrideMode,omitempty"`
	OverrideUntil  *time.Time  `json:"SetpointOverrideUntil,omitempty"`
	UpdatedAt      time.Time   `json:"UpdatedAt"`
}

// Override is the tagged view of the three override columns.
// A nil return from ZoneState.Override means no override is active.
type Override struct {
	Mode  OverrideMode
	At    time.Time
	Until *time.Time // set only for OverrideTimed
}

// Override reconstructs the override variant from the stored columns.
func (z *ZoneState) Override() *Override {
	if z.OverrideAt == nil || z.OverrideMode == nil {
		return nil
	}
	mode, err := ParseOverrideMode(*z.OverrideMode)
	if err != nil {
		// An unknown stored mode behaves like boundary so it still clears
		// on the next schedule change rather than sticking forever.
		mode = OverrideBoundary
	}
	return &Override{Mode: mode, At: *z.OverrideAt, Until: z.OverrideUntil}
}

// SetOverride records a manual override on the zone.
func (z *ZoneState) SetOverride(mode OverrideMode, at time.Time, until *time.Time) {
	m := string(mode)
	z.OverrideAt = &at
	z.OverrideMode = &m
	if mode == OverrideTimed {
		z.OverrideUntil = until
	} else {
		z.OverrideUntil = nil
	}
}

// ClearOverride drops any standing override.
func (z *ZoneState) ClearOverride() {
	z.OverrideAt = nil
	z.OverrideMode = nil
	z.OverrideUntil = nil
}

// IsOn reports whether the relay is currently commanded on.
func (z *ZoneState) IsOn() bool { return z.CurrentState == StateOn }

func ParseRelayState(s string) (RelayState, error) {
	switch RelayState(s) {
	case StateOn, StateOff:
		return RelayState(s), nil
	}
	return "", fmt.Errorf("invalid relay state %q", s)
}

func ParseControlMode(s string) (ControlMode, error) {
	switch ControlMode(s) {
	case ModeAuto, ModeManual, ModeThermostat:
		return ControlMode(s), nil
	}
	return "", fmt.Errorf("invalid control mode %q", s)
}

func ParseOverrideMode(s string) (OverrideMode, error) {
	switch OverrideMode(s) {
	case OverrideBoundary, OverridePermanent, OverrideTimed:
		return OverrideMode(s), nil
	}
	return "", fmt.Errorf("invalid override mode %q", s)
}

// SystemStatus is the single-row snapshot of site-wide readings.
type SystemStatus struct {
	OutsideTemp *float64  `json:"OutsideTemp_F"`
	UpdatedAt   time.Time `json:"UpdatedAt"`
}
