package models

import "time"

// EventType classifies an event log record.
type EventType string

const (
	EventOn     EventType = "ON"
	EventOff    EventType = "OFF"
	EventSample EventType = "SAMPLE"
)

// EventLogEntry is one immutable record of a state transition or a
// periodic temperature sample. DurationSeconds is populated only on OFF
// events and holds the length of the run that just ended.
type EventLogEntry struct {
	ID              int64     `json:"Id"`
	Timestamp       time.Time `json:"Timestamp"`
	Source          string    `json:"Source"`
	Event           EventType `json:"Event"`
	RoomTemp        *float64  `json:"ZoneRoomTemp_F"`
	PipeTemp        *float64  `json:"PipeTemp_F"`
	OutsideTemp     *float64  `json:"OutsideTemp_F"`
	DurationSeconds *float64  `json:"DurationSeconds"`
}

// TemperatureSample is a periodic snapshot persisted for analytics,
// parallel to the SAMPLE event stream.
type TemperatureSample struct {
	ID          int64     `json:"Id"`
	Timestamp   time.Time `json:"Timestamp"`
	ZoneName    string    `json:"ZoneName"`
	RoomTemp    *float64  `json:"RoomTemp_F"`
	PipeTemp    *float64  `json:"PipeTemp_F"`
	OutsideTemp *float64  `json:"OutsideTemp_F"`
}
