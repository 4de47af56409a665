package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"solana-activity-engine/internal/observability"
)

// ClientConfig configures WebSocket client behavior.
type ClientConfig struct {
	// URL is the feed endpoint (ws:// or wss://).
	URL string
	// SubscribeMessages are sent verbatim after every (re)connect.
	SubscribeMessages []string
	// SnapshotRequest is sent after the subscribe messages to ask for a fresh snapshot.
	// Empty means the server pushes a snapshot on connect by itself.
	SnapshotRequest string
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// HandshakeTimeout bounds the dial.
	HandshakeTimeout time.Duration
}

// DefaultClientConfig returns default WebSocket configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		SnapshotRequest:   `{"type":"RequestSnapshot"}`,
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
	}
}

// Handler receives connection events and raw frames from a Client.
// Calls are made from the client's run goroutine, one at a time.
type Handler interface {
	OnConnect()
	OnDisconnect(err error)
	OnMessage(data []byte)
}

// ErrClientClosed is returned by Run after Close.
var ErrClientClosed = errors.New("feed client closed")

// Client maintains a feed connection, reconnecting with exponential backoff.
type Client struct {
	config  ClientConfig
	handler Handler
	logger  logrus.FieldLogger

	conn    *websocket.Conn
	connMu  sync.Mutex // guards conn and serializes writes
	closed  atomic.Bool
	running atomic.Bool

	connected  atomic.Bool
	reconnects atomic.Uint64

	done chan struct{}
	wg   sync.WaitGroup
}

// NewClient creates a client. Zero config durations fall back to defaults.
func NewClient(config ClientConfig, handler Handler, logger logrus.FieldLogger) *Client {
	def := DefaultClientConfig()
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = def.ReconnectDelay
	}
	if config.MaxReconnectDelay <= 0 {
		config.MaxReconnectDelay = def.MaxReconnectDelay
	}
	if config.MaxReconnectDelay < config.ReconnectDelay {
		config.MaxReconnectDelay = config.ReconnectDelay
	}
	if config.PingInterval <= 0 {
		config.PingInterval = def.PingInterval
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = def.ReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = def.WriteTimeout
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = def.HandshakeTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Client{
		config:  config,
		handler: handler,
		logger:  logger.WithField("component", "feed_client"),
		done:    make(chan struct{}),
	}
}

// Connected reports whether a connection is currently established.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Reconnects returns how many reconnect attempts were made.
func (c *Client) Reconnects() uint64 {
	return c.reconnects.Load()
}

// nextDelay doubles the delay, capped at limit.
func nextDelay(cur, limit time.Duration) time.Duration {
	next := cur * 2
	if next > limit || next <= 0 {
		return limit
	}
	return next
}

// Run connects and reads until ctx is cancelled or Close is called.
// Disconnects are retried with exponential backoff; the wait is cancellable.
func (c *Client) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("feed client already running")
	}
	c.wg.Add(1)
	defer c.wg.Done()

	delay := c.config.ReconnectDelay
	for {
		if c.closed.Load() {
			return ErrClientClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := c.dial(ctx)
		if err != nil {
			c.logger.WithError(err).WithField("retry_in", delay).Warn("feed dial failed")
		} else {
			delay = c.config.ReconnectDelay
			err = c.serve(ctx, conn)
			c.handler.OnDisconnect(err)
			if c.closed.Load() {
				return ErrClientClosed
			}
			c.logger.WithError(err).WithField("retry_in", delay).Warn("feed disconnected")
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-c.done:
			timer.Stop()
			return ErrClientClosed
		case <-timer.C:
		}
		delay = nextDelay(delay, c.config.MaxReconnectDelay)
		c.reconnects.Add(1)
		observability.RecordReconnect()
	}
}

// dial establishes WebSocket connection.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

// serve runs one connection until it fails.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.connected.Store(true)
	observability.SetFeedConnected(true)

	connDone := make(chan struct{})
	defer func() {
		close(connDone)
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		conn.Close()
		c.connected.Store(false)
		observability.SetFeedConnected(false)
	}()

	// Close the socket when the session is torn down to unblock the reader.
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-c.done:
		case <-connDone:
		}
	}()

	c.handler.OnConnect()
	c.logger.WithField("url", c.config.URL).Info("feed connected")

	for _, msg := range c.config.SubscribeMessages {
		if err := c.write(websocket.TextMessage, []byte(msg)); err != nil {
			return fmt.Errorf("write subscribe: %w", err)
		}
	}
	if c.config.SnapshotRequest != "" {
		if err := c.write(websocket.TextMessage, []byte(c.config.SnapshotRequest)); err != nil {
			return fmt.Errorf("write snapshot request: %w", err)
		}
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	go c.pingLoop(connDone)

	for {
		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		c.handler.OnMessage(message)
	}
}

// write sends one frame on the current connection.
func (c *Client) write(messageType int, data []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteMessage(messageType, data)
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *Client) pingLoop(connDone <-chan struct{}) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-connDone:
			return
		case <-c.done:
			return
		case <-ticker.C:
			// A dead connection surfaces as a read error.
			_ = c.write(websocket.PingMessage, nil)
		}
	}
}

// Close closes the WebSocket connection and stops reconnecting.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()
	return nil
}
