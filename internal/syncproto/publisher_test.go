package syncproto

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"heating_controller/internal/models"
)

type fakeSource struct {
	zones []models.ZoneState
	err   error
}

func (f *fakeSource) ListZones(_ context.Context, _ bool) ([]models.ZoneState, error) {
	return f.zones, f.err
}

func dialPublisher(t *testing.T, p *Publisher) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(p.Serve))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	return env
}

func TestPublisher_FullSyncOnConnect(t *testing.T) {
	source := &fakeSource{zones: []models.ZoneState{
		{ZoneName: "Z1", CurrentState: models.StateOff, ControlMode: models.ModeAuto},
		{ZoneName: "Boiler", CurrentState: models.StateOn, ControlMode: models.ModeManual},
	}}
	p := NewPublisher(source, zap.NewNop().Sugar())
	conn := dialPublisher(t, p)

	env := readEnvelope(t, conn)
	if env.EventType != EventFullSyncResponse {
		t.Fatalf("event = %s, want %s", env.EventType, EventFullSyncResponse)
	}
	if env.SequenceID != 1 {
		t.Fatalf("sequence = %d, want 1 on a fresh connection", env.SequenceID)
	}
	var payload FullSyncPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if len(payload.Zones) != 2 || payload.CurrentSequence != 1 {
		t.Fatalf("payload = %+v, want 2 zones at sequence 1", payload)
	}
}

func TestPublisher_FlushCoalescesByZone(t *testing.T) {
	p := NewPublisher(&fakeSource{}, zap.NewNop().Sugar())
	conn := dialPublisher(t, p)
	readEnvelope(t, conn) // initial full sync

	p.QueueUpdate([]models.ZoneState{{ZoneName: "Z1", TargetSetpoint: f64ptr(68)}})
	p.QueueUpdate([]models.ZoneState{
		{ZoneName: "Z1", TargetSetpoint: f64ptr(72)},
		{ZoneName: "Z2", CurrentState: models.StateOn},
	})
	p.flush(context.Background())

	env := readEnvelope(t, conn)
	if env.EventType != EventZoneStateUpdate {
		t.Fatalf("event = %s, want %s", env.EventType, EventZoneStateUpdate)
	}
	if env.SequenceID != 2 {
		t.Fatalf("sequence = %d, want 2", env.SequenceID)
	}
	var payload StateUpdatePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if len(payload.Zones) != 2 {
		t.Fatalf("zones = %d, want coalesced 2", len(payload.Zones))
	}
	if payload.Zones[0].ZoneName != "Z1" || *payload.Zones[0].TargetSetpoint != 72 {
		t.Fatalf("zone0 = %+v, want Z1 with the last written setpoint", payload.Zones[0])
	}
	if p.QueueDepth() != 0 {
		t.Fatalf("queue depth = %d, want drained", p.QueueDepth())
	}
}

func TestPublisher_IdleCyclesTriggerFullSync(t *testing.T) {
	source := &fakeSource{zones: []models.ZoneState{{ZoneName: "Z1"}}}
	p := NewPublisher(source, zap.NewNop().Sugar())
	conn := dialPublisher(t, p)
	readEnvelope(t, conn) // initial full sync

	ctx := context.Background()
	for i := 0; i < idleFullSyncCycles; i++ {
		p.flush(ctx)
	}

	env := readEnvelope(t, conn)
	if env.EventType != EventFullSyncResponse {
		t.Fatalf("event = %s, want keep-fresh %s", env.EventType, EventFullSyncResponse)
	}
}

func TestPublisher_CommandDispatch(t *testing.T) {
	p := NewPublisher(&fakeSource{}, zap.NewNop().Sugar())
	p.RegisterCommandHandler(CommandZoneCommand, func(_ context.Context, req CommandRequest) (any, error) {
		if req.ZoneName != "Z1" {
			return nil, errors.New("wrong zone")
		}
		return map[string]string{"zone": req.ZoneName}, nil
	})

	conn := dialPublisher(t, p)
	readEnvelope(t, conn) // initial full sync

	req := frame(t, EventCommandRequest, 1, CommandRequest{
		CommandID:   "cmd-1",
		ZoneName:    "Z1",
		CommandType: CommandZoneCommand,
		CommandData: json.RawMessage(`{"command":"FORCE_ON"}`),
	})
	if err := conn.WriteMessage(websocket.TextMessage, req); err != nil {
		t.Fatalf("write: %v", err)
	}

	env := readEnvelope(t, conn)
	if env.EventType != EventCommandResponse {
		t.Fatalf("event = %s, want %s", env.EventType, EventCommandResponse)
	}
	var resp CommandResponse
	if err := json.Unmarshal(env.Payload, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.CommandID != "cmd-1" || !resp.Success {
		t.Fatalf("resp = %+v, want success for cmd-1", resp)
	}
}

func TestPublisher_UnknownCommandFailsInBand(t *testing.T) {
	p := NewPublisher(&fakeSource{}, zap.NewNop().Sugar())
	conn := dialPublisher(t, p)
	readEnvelope(t, conn)

	req := frame(t, EventCommandRequest, 1, CommandRequest{CommandID: "cmd-2", CommandType: "reboot"})
	if err := conn.WriteMessage(websocket.TextMessage, req); err != nil {
		t.Fatalf("write: %v", err)
	}

	env := readEnvelope(t, conn)
	var resp CommandResponse
	if err := json.Unmarshal(env.Payload, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Success || resp.Error == "" {
		t.Fatalf("resp = %+v, want in-band failure", resp)
	}

	// Connection survives the bad command.
	req = frame(t, EventHeartbeat, 2, map[string]string{})
	if err := conn.WriteMessage(websocket.TextMessage, req); err != nil {
		t.Fatalf("write heartbeat: %v", err)
	}
	env = readEnvelope(t, conn)
	if env.EventType != EventHeartbeat {
		t.Fatalf("event = %s, want heartbeat echo", env.EventType)
	}
}

func TestPublisher_HeartbeatReportsHealth(t *testing.T) {
	p := NewPublisher(&fakeSource{}, zap.NewNop().Sugar())
	conn := dialPublisher(t, p)
	readEnvelope(t, conn)

	hb := frame(t, EventHeartbeat, 1, map[string]string{"status": "ping"})
	if err := conn.WriteMessage(websocket.TextMessage, hb); err != nil {
		t.Fatalf("write: %v", err)
	}

	env := readEnvelope(t, conn)
	if env.EventType != EventHeartbeat {
		t.Fatalf("event = %s, want %s", env.EventType, EventHeartbeat)
	}
	var payload HeartbeatPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Status != "healthy" || payload.ConnectedClients != 1 {
		t.Fatalf("payload = %+v, want healthy with 1 client", payload)
	}
}

func f64ptr(v float64) *float64 { return &v }
