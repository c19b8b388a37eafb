// Package websocket manages the long-lived socket to an exchange. Incoming
// frames are delivered on a single buffered event channel consumed by one
// goroutine per connection, so events for an instrument are processed in
// wire-arrival order and handlers never share mutable state with the read
// loop.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/gorilla/websocket"

	"github.com/veiloq/exchange-bridge/pkg/logging"
)

// Connector defines the interface for managing a WebSocket connection.
type Connector interface {
	// Connect establishes the WebSocket connection
	Connect(ctx context.Context) error

	// Close cleanly closes the WebSocket connection
	Close() error

	// Send sends a message through the WebSocket connection
	Send(message interface{}) error

	// Events returns the inbound frame channel. The channel is never closed;
	// consumers select on it together with their context.
	Events() <-chan []byte

	// IsConnected returns the current connection status
	IsConnected() bool
}

// Config holds WebSocket connection configuration
type Config struct {
	URL               string
	HeartbeatInterval time.Duration
	ReconnectInterval time.Duration
	MaxRetries        int

	// EventBuffer sizes the inbound frame channel.
	EventBuffer int

	// OnEstablished runs after every successful connect, including
	// reconnects. Facades use it to send the auth frame and replay
	// subscriptions.
	OnEstablished func()

	Logger logging.Logger
}

// Metrics holds connection and message statistics
type Metrics struct {
	ConnectedTime  time.Time
	MessageCount   int64
	ReconnectCount int64
	ErrorCount     int64
}

// connector implements the Connector interface
type connector struct {
	config Config
	conn   *websocket.Conn

	events chan []byte

	writeMu sync.Mutex

	connected bool
	done      chan struct{}
	doneMu    sync.Mutex
	closed    bool

	shutdown     chan struct{}
	shutdownOnce sync.Once

	reconnectMu  sync.Mutex
	reconnecting bool

	metrics   Metrics
	metricsMu sync.RWMutex

	logger logging.Logger
}

// NewConnector creates a new WebSocket connector with the given configuration
func NewConnector(config Config) Connector {
	if config.EventBuffer <= 0 {
		config.EventBuffer = 1024
	}
	if config.Logger == nil {
		config.Logger = logging.NewLogger()
	}
	return &connector{
		config:   config,
		events:   make(chan []byte, config.EventBuffer),
		shutdown: make(chan struct{}),
		logger:   config.Logger,
	}
}

// GetMetrics returns the current connection metrics
func (c *connector) GetMetrics() Metrics {
	c.metricsMu.RLock()
	defer c.metricsMu.RUnlock()
	return c.metrics
}

// Connect establishes the WebSocket connection and starts background routines
func (c *connector) Connect(ctx context.Context) error {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()

	if c.connected {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("context already cancelled: %w", ctx.Err())
	}

	c.logger.Debug("attempting websocket connection",
		logging.String("url", c.config.URL),
		logging.Duration("heartbeat", c.config.HeartbeatInterval),
		logging.Duration("reconnect", c.config.ReconnectInterval),
	)

	var lastErr error
	attempt := 0

	for {
		attempt++
		if attempt > c.config.MaxRetries {
			return fmt.Errorf("max retries exceeded: %w", lastErr)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		dialer := websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		}
		conn, _, err := dialer.DialContext(ctx, c.config.URL, nil)
		if err != nil {
			lastErr = err
			c.countError()
			c.logger.Warn("connection attempt failed",
				logging.Int("attempt", attempt),
				logging.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.ReconnectInterval):
				continue
			}
		}

		c.conn = conn
		c.connected = true
		c.metricsMu.Lock()
		c.metrics.ConnectedTime = time.Now()
		c.metricsMu.Unlock()

		c.doneMu.Lock()
		c.done = make(chan struct{})
		c.closed = false
		c.doneMu.Unlock()

		go c.readPump(ctx)
		go c.heartbeat()

		// Close the connection when the caller's context goes away.
		go func(done chan struct{}) {
			select {
			case <-ctx.Done():
				c.logger.Info("context cancelled, closing connection")
				_ = c.Close()
			case <-done:
			}
		}(c.done)

		c.logger.Info("websocket connected")

		if c.config.OnEstablished != nil {
			c.config.OnEstablished()
		}

		return nil
	}
}

// readPump continuously reads frames and forwards them to the event channel.
func (c *connector) readPump(ctx context.Context) {
	defer func() {
		c.connected = false
		if c.conn != nil {
			_ = c.conn.Close()
		}

		c.doneMu.Lock()
		if !c.closed {
			close(c.done)
			c.closed = true
		}
		c.doneMu.Unlock()

		c.logger.Info("read loop stopped")

		select {
		case <-c.shutdown:
			return
		default:
		}
		if !c.isReconnecting() && ctx.Err() == nil {
			go c.reconnect()
		}
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(c.config.HeartbeatInterval * 3))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.config.HeartbeatInterval * 3))
	})

	for {
		if ctx.Err() != nil {
			return
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(c.config.HeartbeatInterval * 3))
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("read error", logging.Error(err))
				c.countError()
			}
			return
		}

		c.metricsMu.Lock()
		c.metrics.MessageCount++
		c.metricsMu.Unlock()

		// Blocking send keeps wire order; the consumer is the single event
		// loop, so backpressure here is deliberate.
		select {
		case c.events <- message:
		case <-c.shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

// heartbeat sends periodic ping messages to keep the connection alive
func (c *connector) heartbeat() {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	c.doneMu.Lock()
	done := c.done
	c.doneMu.Unlock()

	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			if !c.connected {
				c.writeMu.Unlock()
				return
			}
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (c *connector) isReconnecting() bool {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()
	return c.reconnecting
}

// reconnect attempts to reestablish the connection
func (c *connector) reconnect() {
	c.reconnectMu.Lock()
	if c.reconnecting {
		c.reconnectMu.Unlock()
		return
	}
	c.reconnecting = true
	c.reconnectMu.Unlock()

	defer func() {
		c.reconnectMu.Lock()
		c.reconnecting = false
		c.reconnectMu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	c.metricsMu.Lock()
	c.metrics.ReconnectCount++
	c.metricsMu.Unlock()

	err := retry.Do(
		func() error {
			select {
			case <-c.shutdown:
				return retry.Unrecoverable(fmt.Errorf("connector shut down"))
			default:
			}
			if ctx.Err() != nil {
				return retry.Unrecoverable(ctx.Err())
			}
			return c.Connect(ctx)
		},
		retry.Attempts(uint(c.config.MaxRetries)),
		retry.Delay(c.config.ReconnectInterval),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("reconnection attempt failed",
				logging.Int("attempt", int(n+1)),
				logging.Error(err))
		}),
	)

	if err != nil {
		c.logger.Error("reconnection failed", logging.Error(err))
		c.countError()
		return
	}

	c.logger.Info("reconnection successful")
}

// Events implements Connector interface
func (c *connector) Events() <-chan []byte {
	return c.events
}

// Send implements Connector interface
func (c *connector) Send(message interface{}) error {
	if !c.connected {
		return fmt.Errorf("websocket not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if data, ok := message.([]byte); ok {
		return c.conn.WriteMessage(websocket.TextMessage, data)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// IsConnected implements Connector interface
func (c *connector) IsConnected() bool {
	return c.connected
}

// Close implements Connector interface. Close is terminal: the connector
// does not reconnect afterwards.
func (c *connector) Close() error {
	c.shutdownOnce.Do(func() {
		close(c.shutdown)
	})

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.doneMu.Lock()
	wasClosed := c.closed
	if !c.closed && c.done != nil {
		close(c.done)
	}
	c.closed = true
	c.doneMu.Unlock()

	if wasClosed {
		return nil
	}

	c.connected = false

	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closed connection"))

		// give the close frame a moment to flush
		time.Sleep(100 * time.Millisecond)

		err := c.conn.Close()
		if err != nil && !strings.Contains(err.Error(), "use of closed network connection") {
			return err
		}
	}

	return nil
}

func (c *connector) countError() {
	c.metricsMu.Lock()
	c.metrics.ErrorCount++
	c.metricsMu.Unlock()
}
