// Package syncproto implements the WebSocket sync protocol between the
// boiler controller (publisher) and dashboard mirrors (subscribers).
// State flows controller -> dashboard as batched zone snapshots;
// commands flow the other way and are answered in-band.
package syncproto

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"heating_controller/internal/models"
)

// Event types carried in Envelope.EventType.
const (
	EventZoneStateUpdate  = "zone_state_update"
	EventFullSyncResponse = "full_sync_response"
	EventCommandRequest   = "command_request"
	EventCommandResponse  = "command_response"
	EventHeartbeat        = "heartbeat"
)

// Command types carried in CommandRequest.CommandType.
const (
	CommandZoneCommand     = "zone_command"
	CommandZoneUpdate      = "zone_update"
	CommandUniformSetpoint = "uniform_setpoint"
)

var ErrCommandTimeout = errors.New("command response timed out")

// Envelope frames every message on the wire. Sequence IDs are
// per-connection and per-direction monotonic counters.
type Envelope struct {
	EventType  string          `json:"event_type"`
	Timestamp  string          `json:"timestamp"`
	SequenceID uint64          `json:"sequence_id"`
	Payload    json.RawMessage `json:"payload"`
}

func newEnvelope(eventType string, sequenceID uint64, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		EventType:  eventType,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		SequenceID: sequenceID,
		Payload:    data,
	}, nil
}

// StateUpdatePayload carries coalesced zone snapshots. System is nil
// when no site-wide reading changed in the batch window.
type StateUpdatePayload struct {
	Zones  []models.ZoneState   `json:"zones"`
	System *models.SystemStatus `json:"system"`
}

// FullSyncPayload is the complete state picture sent on connect and
// periodically while the batch buffer stays empty.
type FullSyncPayload struct {
	Zones           []models.ZoneState     `json:"zones"`
	System          *models.SystemStatus   `json:"system"`
	RecentEvents    []models.EventLogEntry `json:"recent_events"`
	CurrentSequence uint64                 `json:"current_sequence"`
}

// CommandRequest asks the controller to run one named command.
// CommandData stays raw here; the registered handler decodes it.
type CommandRequest struct {
	CommandID   string          `json:"command_id"`
	ZoneName    string          `json:"zone_name,omitempty"`
	CommandType string          `json:"command_type"`
	CommandData json.RawMessage `json:"command_data"`
}

// CommandResponse answers a CommandRequest. Exactly one of Result or
// Error is meaningful, keyed by Success.
type CommandResponse struct {
	CommandID string          `json:"command_id"`
	Success   bool            `json:"success"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// HeartbeatPayload is the publisher's answer to a subscriber heartbeat.
type HeartbeatPayload struct {
	Status            string  `json:"status"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
	LastEventSequence uint64  `json:"last_event_sequence"`
	ConnectedClients  int     `json:"connected_clients"`
	QueuedUpdates     int     `json:"queued_updates"`
}
