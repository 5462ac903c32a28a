package dashboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"heating_controller/internal/syncproto"
)

const (
	handshakeTimeout = 5 * time.Second
	writeTimeout     = 10 * time.Second
)

var ErrNotConnected = errors.New("controller connection is down")

// Client keeps one WebSocket subscription to the controller alive,
// feeding received frames into the protocol subscriber and the mirror.
type Client struct {
	url    string
	sub    *syncproto.Subscriber
	mirror *Mirror
	log    *zap.SugaredLogger
	dialer websocket.Dialer

	connected atomic.Bool

	connMu sync.Mutex
	conn   *websocket.Conn
}

func NewClient(url string, mirror *Mirror, log *zap.SugaredLogger) *Client {
	sub := syncproto.NewSubscriber(log)
	sub.RegisterStateHandler(mirror.Apply)
	return &Client{
		url:    url,
		sub:    sub,
		mirror: mirror,
		log:    log,
		dialer: websocket.Dialer{HandshakeTimeout: handshakeTimeout},
	}
}

// Run dials the controller and pumps frames until the context is
// canceled, reconnecting with exponential backoff.
func (c *Client) Run(ctx context.Context) {
	for {
		if err := c.connectAndPump(ctx); err != nil && ctx.Err() == nil {
			c.log.Warnw("controller connection lost", "err", err)
		}
		if ctx.Err() != nil {
			return
		}

		delay := c.sub.NextBackoff()
		c.log.Infow("reconnecting to controller", "in", delay.String())
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (c *Client) connectAndPump(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	c.log.Infow("connected to controller", "url", c.url)
	c.sub.ResetBackoff()

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.connected.Store(true)

	defer func() {
		c.connected.Store(false)
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		_ = conn.Close()
	}()

	// Close the socket when the context ends so ReadMessage unblocks.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := c.sub.HandleMessage(raw); err != nil {
			c.log.Errorw("bad frame from controller", "err", err)
		}
	}
}

// SendCommand relays one command to the controller and waits for its
// in-band response.
func (c *Client) SendCommand(ctx context.Context, commandType, zoneName string, commandData any) (*syncproto.CommandResponse, error) {
	if !c.connected.Load() {
		return nil, ErrNotConnected
	}
	write := func(raw []byte) error {
		// One writer at a time on the shared connection.
		c.connMu.Lock()
		defer c.connMu.Unlock()
		if c.conn == nil {
			return ErrNotConnected
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return c.conn.WriteMessage(websocket.TextMessage, raw)
	}
	return c.sub.SendCommand(ctx, write, commandType, zoneName, commandData)
}

// Connected reports whether the subscription is currently up.
func (c *Client) Connected() bool { return c.connected.Load() }

// SequenceGaps reports how many missed-frame gaps have been seen.
func (c *Client) SequenceGaps() uint64 { return c.sub.GapCount() }

// ReconnectBackoff reports the delay the next reconnect would wait.
func (c *Client) ReconnectBackoff() time.Duration { return c.sub.Backoff() }

// LastSequence reports the newest sequence ID received.
func (c *Client) LastSequence() uint64 { return c.sub.LastSequence() }
