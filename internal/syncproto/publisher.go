package syncproto

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"heating_controller/internal/models"
)

const (
	writeWait     = 10 * time.Second
	maxMsgSize    = 1 << 16
	batchInterval = 2 * time.Second

	// Number of empty flush cycles between keep-fresh full syncs.
	idleFullSyncCycles = 5
)

// CommandHandler runs one command type on behalf of a subscriber.
// The returned value is marshaled into CommandResponse.Result.
type CommandHandler func(ctx context.Context, req CommandRequest) (any, error)

// StateSource provides the zone snapshots sent in full syncs.
type StateSource interface {
	ListZones(ctx context.Context, includeBoiler bool) ([]models.ZoneState, error)
}

type session struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	seq     atomic.Uint64

	// Empty flush cycles since the last send; flush loop only.
	idle int
}

func (s *session) send(eventType string, payload any) error {
	return s.sendSeq(eventType, s.seq.Add(1), payload)
}

func (s *session) sendSeq(eventType string, sequenceID uint64, payload any) error {
	env, err := newEnvelope(eventType, sequenceID, payload)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(env)
}

// Publisher owns the controller side of the sync protocol: it upgrades
// dashboard connections, pushes coalesced state batches, and dispatches
// inbound commands to registered handlers. It satisfies the services'
// Notifier interface through QueueUpdate.
type Publisher struct {
	source   StateSource
	log      *zap.SugaredLogger
	upgrader websocket.Upgrader
	started  time.Time

	mu       sync.Mutex
	sessions map[*session]struct{}

	batchMu sync.Mutex
	batch   map[string]models.ZoneState
	system  *models.SystemStatus

	handlerMu sync.RWMutex
	handlers  map[string]CommandHandler
}

func NewPublisher(source StateSource, log *zap.SugaredLogger) *Publisher {
	return &Publisher{
		source: source,
		log:    log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		started:  time.Now(),
		sessions: make(map[*session]struct{}),
		batch:    make(map[string]models.ZoneState),
		handlers: make(map[string]CommandHandler),
	}
}

// RegisterCommandHandler binds a command type to its handler.
// Registration happens during wiring, before Serve accepts clients.
func (p *Publisher) RegisterCommandHandler(commandType string, h CommandHandler) {
	p.handlerMu.Lock()
	defer p.handlerMu.Unlock()
	p.handlers[commandType] = h
}

// QueueUpdate buffers zone snapshots for the next flush, newest
// snapshot per zone winning.
func (p *Publisher) QueueUpdate(zones []models.ZoneState) {
	p.batchMu.Lock()
	defer p.batchMu.Unlock()
	for _, z := range zones {
		p.batch[z.ZoneName] = z
	}
}

// QueueSystemUpdate records the latest site-wide reading for the next
// flush and for full syncs.
func (p *Publisher) QueueSystemUpdate(status *models.SystemStatus) {
	p.batchMu.Lock()
	defer p.batchMu.Unlock()
	p.system = status
}

// ClientCount reports the number of connected subscribers.
func (p *Publisher) ClientCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// QueueDepth reports the zones waiting in the batch buffer.
func (p *Publisher) QueueDepth() int {
	p.batchMu.Lock()
	defer p.batchMu.Unlock()
	return len(p.batch)
}

// Run drives the flush loop until the context is canceled.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(batchInterval)
	defer ticker.Stop()
	p.log.Infow("sync publisher started", "flush_interval", batchInterval.String())
	for {
		select {
		case <-ctx.Done():
			p.log.Info("sync publisher stopped")
			return
		case <-ticker.C:
			p.flush(ctx)
		}
	}
}

// flush sends one batched update to every session, or counts idle
// cycles toward a keep-fresh full sync when nothing is buffered.
func (p *Publisher) flush(ctx context.Context) {
	p.batchMu.Lock()
	var zones []models.ZoneState
	for _, z := range p.batch {
		zones = append(zones, z)
	}
	system := p.system
	p.batch = make(map[string]models.ZoneState)
	p.system = nil
	p.batchMu.Unlock()

	sort.Slice(zones, func(i, j int) bool { return zones[i].ZoneName < zones[j].ZoneName })

	for _, s := range p.snapshotSessions() {
		if len(zones) > 0 {
			s.idle = 0
			if err := s.send(EventZoneStateUpdate, StateUpdatePayload{Zones: zones, System: system}); err != nil {
				p.log.Infow("sync send failed, dropping client", "err", err)
				p.dropSession(s)
			}
			continue
		}
		s.idle++
		if s.idle < idleFullSyncCycles {
			continue
		}
		s.idle = 0
		if err := p.sendFullSync(ctx, s); err != nil {
			p.log.Infow("sync full sync failed, dropping client", "err", err)
			p.dropSession(s)
		}
	}
}

// Serve upgrades one dashboard connection, sends an initial full sync,
// and then handles inbound commands and heartbeats until the peer
// disconnects.
func (p *Publisher) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.log.Errorw("sync upgrade failed", "err", err)
		return
	}
	s := &session{conn: conn}
	conn.SetReadLimit(maxMsgSize)

	p.mu.Lock()
	p.sessions[s] = struct{}{}
	total := len(p.sessions)
	p.mu.Unlock()
	p.log.Infow("sync client connected", "remote", conn.RemoteAddr().String(), "clients", total)

	defer func() {
		p.dropSession(s)
		p.log.Infow("sync client disconnected", "remote", conn.RemoteAddr().String())
	}()

	if err := p.sendFullSync(r.Context(), s); err != nil {
		p.log.Errorw("initial full sync failed", "err", err)
		return
	}

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.log.Infow("sync read closed", "err", err)
			}
			return
		}
		switch env.EventType {
		case EventCommandRequest:
			p.handleCommand(r.Context(), s, env)
		case EventHeartbeat:
			p.handleHeartbeat(s)
		default:
			p.log.Infow("sync message ignored", "event_type", env.EventType)
		}
	}
}

func (p *Publisher) sendFullSync(ctx context.Context, s *session) error {
	zones, err := p.source.ListZones(ctx, true)
	if err != nil {
		return fmt.Errorf("list zones for full sync: %w", err)
	}
	p.batchMu.Lock()
	system := p.system
	p.batchMu.Unlock()

	seq := s.seq.Add(1)
	return s.sendSeq(EventFullSyncResponse, seq, FullSyncPayload{
		Zones:           zones,
		System:          system,
		RecentEvents:    []models.EventLogEntry{},
		CurrentSequence: seq,
	})
}

func (p *Publisher) handleCommand(ctx context.Context, s *session, env Envelope) {
	var req CommandRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		p.log.Errorw("malformed command request", "err", err)
		return
	}

	resp := CommandResponse{CommandID: req.CommandID}
	p.handlerMu.RLock()
	handler, ok := p.handlers[req.CommandType]
	p.handlerMu.RUnlock()

	switch {
	case !ok:
		resp.Error = fmt.Sprintf("unknown command type %q", req.CommandType)
	default:
		result, err := handler(ctx, req)
		if err != nil {
			p.log.Errorw("command failed", "command_type", req.CommandType, "zone", req.ZoneName, "err", err)
			resp.Error = err.Error()
		} else if data, err := json.Marshal(result); err != nil {
			resp.Error = fmt.Sprintf("encode result: %v", err)
		} else {
			resp.Success = true
			resp.Result = data
		}
	}

	if err := s.send(EventCommandResponse, resp); err != nil {
		p.log.Infow("command response send failed", "err", err)
	}
}

func (p *Publisher) handleHeartbeat(s *session) {
	payload := HeartbeatPayload{
		Status:            "healthy",
		UptimeSeconds:     time.Since(p.started).Seconds(),
		LastEventSequence: s.seq.Load(),
		ConnectedClients:  p.ClientCount(),
		QueuedUpdates:     p.QueueDepth(),
	}
	if err := s.send(EventHeartbeat, payload); err != nil {
		p.log.Infow("heartbeat send failed", "err", err)
	}
}

func (p *Publisher) snapshotSessions() []*session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*session, 0, len(p.sessions))
	for s := range p.sessions {
		out = append(out, s)
	}
	return out
}

func (p *Publisher) dropSession(s *session) {
	p.mu.Lock()
	_, ok := p.sessions[s]
	delete(p.sessions, s)
	p.mu.Unlock()
	if ok {
		_ = s.conn.Close()
	}
}
