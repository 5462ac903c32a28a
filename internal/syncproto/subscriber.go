package syncproto

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultCommandTimeout = 10 * time.Second
	initialBackoff        = time.Second
	maxBackoff            = 60 * time.Second
)

// StateHandler receives every zone batch the publisher sends, both
// incremental updates and full syncs.
type StateHandler func(StateUpdatePayload)

// Subscriber tracks the dashboard side of the protocol: inbound
// sequence accounting with gap detection, pending command correlation,
// and reconnect backoff. The network connection itself is owned by the
// caller, which feeds frames through HandleMessage.
type Subscriber struct {
	log            *zap.SugaredLogger
	commandTimeout time.Duration

	sendSeq atomic.Uint64

	mu           sync.Mutex
	lastSequence uint64
	gaps         uint64
	pending      map[string]chan CommandResponse
	backoff      time.Duration

	stateHandlers []StateHandler
}

func NewSubscriber(log *zap.SugaredLogger) *Subscriber {
	return &Subscriber{
		log:            log,
		commandTimeout: defaultCommandTimeout,
		pending:        make(map[string]chan CommandResponse),
		backoff:        initialBackoff,
	}
}

// RegisterStateHandler adds a handler for zone state batches.
// Handlers run on the read loop goroutine, in registration order.
func (s *Subscriber) RegisterStateHandler(h StateHandler) {
	s.stateHandlers = append(s.stateHandlers, h)
}

// HandleMessage routes one inbound frame.
func (s *Subscriber) HandleMessage(raw []byte) error {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("malformed sync frame: %w", err)
	}

	switch env.EventType {
	case EventZoneStateUpdate:
		s.trackSequence(env.SequenceID)
		var payload StateUpdatePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return fmt.Errorf("malformed state update: %w", err)
		}
		s.dispatchState(payload)
	case EventFullSyncResponse:
		// A full sync re-baselines the sequence, never a gap.
		s.mu.Lock()
		s.lastSequence = env.SequenceID
		s.mu.Unlock()
		var payload FullSyncPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return fmt.Errorf("malformed full sync: %w", err)
		}
		s.log.Infow("full sync received", "zones", len(payload.Zones), "sequence", env.SequenceID)
		s.dispatchState(StateUpdatePayload{Zones: payload.Zones, System: payload.System})
	case EventCommandResponse:
		var resp CommandResponse
		if err := json.Unmarshal(env.Payload, &resp); err != nil {
			return fmt.Errorf("malformed command response: %w", err)
		}
		s.resolveCommand(resp)
	case EventHeartbeat:
		s.log.Debugw("heartbeat", "sequence", env.SequenceID)
	default:
		s.log.Infow("sync message ignored", "event_type", env.EventType)
	}
	return nil
}

func (s *Subscriber) trackSequence(sequence uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sequence > s.lastSequence+1 {
		s.gaps++
		s.log.Warnw("sequence gap detected",
			"last", s.lastSequence, "received", sequence, "gaps_total", s.gaps)
	}
	s.lastSequence = sequence
}

func (s *Subscriber) dispatchState(payload StateUpdatePayload) {
	for _, h := range s.stateHandlers {
		h(payload)
	}
}

func (s *Subscriber) resolveCommand(resp CommandResponse) {
	s.mu.Lock()
	ch, ok := s.pending[resp.CommandID]
	delete(s.pending, resp.CommandID)
	s.mu.Unlock()
	if !ok {
		s.log.Infow("dropping response for unknown or expired command", "command_id", resp.CommandID)
		return
	}
	ch <- resp
}

// SendCommand frames a command, writes it through the supplied send
// function, and waits for the matching response. The pending entry is
// removed on timeout so a late response is dropped instead of leaking.
func (s *Subscriber) SendCommand(ctx context.Context, write func([]byte) error, commandType, zoneName string, commandData any) (*CommandResponse, error) {
	data, err := json.Marshal(commandData)
	if err != nil {
		return nil, fmt.Errorf("encode command data: %w", err)
	}
	req := CommandRequest{
		CommandID:   uuid.NewString(),
		ZoneName:    zoneName,
		CommandType: commandType,
		CommandData: data,
	}
	env, err := newEnvelope(EventCommandRequest, s.sendSeq.Add(1), req)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}

	ch := make(chan CommandResponse, 1)
	s.mu.Lock()
	s.pending[req.CommandID] = ch
	s.mu.Unlock()
	abandon := func() {
		s.mu.Lock()
		delete(s.pending, req.CommandID)
		s.mu.Unlock()
	}

	if err := write(raw); err != nil {
		abandon()
		return nil, fmt.Errorf("send command: %w", err)
	}

	timer := time.NewTimer(s.commandTimeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		return &resp, nil
	case <-timer.C:
		abandon()
		return nil, fmt.Errorf("%w: %s after %s", ErrCommandTimeout, req.CommandID, s.commandTimeout)
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	}
}

// NextBackoff returns the delay before the next reconnect attempt and
// doubles it for the one after, capped at a minute.
func (s *Subscriber) NextBackoff() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.backoff
	s.backoff *= 2
	if s.backoff > maxBackoff {
		s.backoff = maxBackoff
	}
	return d
}

// ResetBackoff restores the initial delay after a successful connect.
func (s *Subscriber) ResetBackoff() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backoff = initialBackoff
}

// Backoff reports the delay the next reconnect attempt would wait,
// without advancing it.
func (s *Subscriber) Backoff() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backoff
}

// GapCount reports how many sequence gaps have been observed.
func (s *Subscriber) GapCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gaps
}

// LastSequence reports the newest inbound sequence ID seen.
func (s *Subscriber) LastSequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSequence
}
