package feed

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"whale-mirror/internal/observability"
)

// State of the feed connection.
type State int32

// Connection states. Terminal only on explicit Close.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "DISCONNECTED"
	}
}

// ClientConfig configures websocket client behavior.
type ClientConfig struct {
	// ReconnectBase is the initial delay before a reconnect attempt.
	ReconnectBase time.Duration
	// ReconnectMax is the maximum delay between reconnect attempts.
	ReconnectMax time.Duration
	// ConnectAttempts bounds retries inside one Connect call.
	ConnectAttempts int
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is the timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration
	// FrameBuffer is the capacity of the outbound frame channel.
	FrameBuffer int
}

// DefaultClientConfig returns default websocket configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ReconnectBase:   1 * time.Second,
		ReconnectMax:    60 * time.Second,
		ConnectAttempts: 6,
		PingInterval:    30 * time.Second,
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		FrameBuffer:     1024,
	}
}

// subscribeMsg is the venue's subscribe/unsubscribe message, keyed by
// whale address.
type subscribeMsg struct {
	Action  string `json:"action"` // "subscribe" | "unsubscribe"
	Channel string `json:"channel"`
	Address string `json:"address"`
}

const activityChannel = "whale_activity"

// Client implements Source over one websocket connection. The read loop is
// the single owner of the connection: all reconnect and backoff logic runs
// there, and subscriptions survive a reconnect.
type Client struct {
	endpoint string
	config   ClientConfig
	metrics  *observability.Metrics
	logger   *log.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	state  atomic.Int32
	closed atomic.Bool

	// subscribed is the reconciliation target restored after reconnects.
	subscribed map[string]struct{}
	subMu      sync.Mutex

	frames chan RawFrame
	done   chan struct{}
	wg     sync.WaitGroup

	reconnecting atomic.Bool
	loopsStarted bool
}

// NewClient creates a feed client. It does not connect; call Connect.
func NewClient(endpoint string, config *ClientConfig, metrics *observability.Metrics, logger *log.Logger) *Client {
	cfg := DefaultClientConfig()
	if config != nil {
		cfg = *config
	}
	if metrics == nil {
		metrics = observability.Nop()
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Client{
		endpoint:   endpoint,
		config:     cfg,
		metrics:    metrics,
		logger:     logger,
		subscribed: make(map[string]struct{}),
		frames:     make(chan RawFrame, cfg.FrameBuffer),
		done:       make(chan struct{}),
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Connect establishes the connection with bounded retries and exponential
// backoff. Exhausting the retries returns an error; the process stays up and
// the caller retries on its next cycle.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return fmt.Errorf("feed: client closed")
	}
	if c.State() == StateConnected {
		return nil
	}

	delay := c.config.ReconnectBase
	var lastErr error

	for attempt := 1; attempt <= c.config.ConnectAttempts; attempt++ {
		c.state.Store(int32(StateConnecting))

		if err := c.dial(ctx); err == nil {
			c.state.Store(int32(StateConnected))
			c.startLoops()
			c.logger.Printf("[feed] connected to %s (attempt %d)", c.endpoint, attempt)
			return nil
		} else {
			lastErr = err
			c.logger.Printf("[feed] connect attempt %d/%d failed: %v (retry in %v)",
				attempt, c.config.ConnectAttempts, err, delay)
		}

		select {
		case <-ctx.Done():
			c.state.Store(int32(StateDisconnected))
			return ctx.Err()
		case <-c.done:
			c.state.Store(int32(StateDisconnected))
			return fmt.Errorf("feed: client closed")
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.config.ReconnectMax {
			delay = c.config.ReconnectMax
		}
	}

	c.state.Store(int32(StateDisconnected))
	c.metrics.ConnectFailures.Inc()
	return fmt.Errorf("feed: connect: %d attempts exhausted: %w", c.config.ConnectAttempts, lastErr)
}

// dial opens the websocket connection.
func (c *Client) dial(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// startLoops starts the read and ping goroutines once per client lifetime.
func (c *Client) startLoops() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.loopsStarted {
		return
	}
	c.loopsStarted = true

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()
}

// ReconcileSubscriptions diffs desired against the current subscription set
// and sends subscribe/unsubscribe messages for the difference only, so the
// call is idempotent.
func (c *Client) ReconcileSubscriptions(desired []string) error {
	if c.closed.Load() {
		return fmt.Errorf("feed: client closed")
	}

	want := make(map[string]struct{}, len(desired))
	for _, a := range desired {
		want[a] = struct{}{}
	}

	c.subMu.Lock()
	var adds, removes []string
	for a := range want {
		if _, ok := c.subscribed[a]; !ok {
			adds = append(adds, a)
		}
	}
	for a := range c.subscribed {
		if _, ok := want[a]; !ok {
			removes = append(removes, a)
		}
	}
	sort.Strings(adds)
	sort.Strings(removes)

	for _, a := range adds {
		if err := c.writeJSON(subscribeMsg{Action: "subscribe", Channel: activityChannel, Address: a}); err != nil {
			c.subMu.Unlock()
			return fmt.Errorf("subscribe %s: %w", a, err)
		}
		c.subscribed[a] = struct{}{}
	}
	for _, a := range removes {
		if err := c.writeJSON(subscribeMsg{Action: "unsubscribe", Channel: activityChannel, Address: a}); err != nil {
			c.subMu.Unlock()
			return fmt.Errorf("unsubscribe %s: %w", a, err)
		}
		delete(c.subscribed, a)
	}
	n := len(c.subscribed)
	c.subMu.Unlock()

	c.metrics.ActiveSubscriptions.Set(float64(n))
	if len(adds) > 0 || len(removes) > 0 {
		c.logger.Printf("[feed] reconciled subscriptions: +%d -%d (total %d)", len(adds), len(removes), n)
	}
	return nil
}

// Subscribed returns the currently subscribed addresses, sorted.
func (c *Client) Subscribed() []string {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	out := make([]string, 0, len(c.subscribed))
	for a := range c.subscribed {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Frames returns the stream of raw frames. Closed only on Close.
func (c *Client) Frames() <-chan RawFrame {
	return c.frames
}

// Close closes the connection and the frame channel. Idempotent.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	started := c.loopsStarted
	c.connMu.Unlock()

	if started {
		c.wg.Wait()
	}
	close(c.frames)
	c.state.Store(int32(StateDisconnected))
	return nil
}

// writeJSON writes one message under the write deadline. Caller holds no
// connection lock.
func (c *Client) writeJSON(v any) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(v)
}

// readLoop reads messages and pushes them onto the frame channel. On a read
// error it triggers reconnection with exponential backoff; the loop itself
// never exits until shutdown.
func (c *Client) readLoop() {
	defer c.wg.Done()

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil || c.State() != StateConnected {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			c.state.Store(int32(StateDisconnected))
			if !c.reconnecting.Swap(true) {
				go c.reconnect()
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		c.metrics.FramesReceived.Inc()
		frame := RawFrame{Data: message, ReceivedAt: time.Now().UnixMilli()}
		select {
		case c.frames <- frame:
		case <-c.done:
			return
		}
	}
}

// reconnect redials with exponential backoff until a dial succeeds or the
// client closes, then restores the subscription set. It owns the backoff:
// the read loop only triggers it, so a venue outage of any length is retried
// and the state machine leaves DISCONNECTED only via CONNECTING or Close.
func (c *Client) reconnect() {
	defer c.reconnecting.Store(false)

	delay := c.config.ReconnectBase

	for !c.closed.Load() {
		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}

		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()

		c.state.Store(int32(StateConnecting))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := c.dial(ctx)
		cancel()
		if err != nil {
			c.state.Store(int32(StateDisconnected))
			c.metrics.ConnectFailures.Inc()
			c.logger.Printf("[feed] reconnect failed: %v (retry in %v)", err, delay)

			delay *= 2
			if delay > c.config.ReconnectMax {
				delay = c.config.ReconnectMax
			}
			continue
		}

		c.state.Store(int32(StateConnected))
		c.metrics.Reconnections.Inc()
		c.logger.Printf("[feed] reconnected")

		c.resubscribeAll()
		return
	}
}

// resubscribeAll restores the pre-drop subscription set after a reconnect.
// The set itself is unchanged, so no duplicates can be introduced.
func (c *Client) resubscribeAll() {
	c.subMu.Lock()
	addrs := make([]string, 0, len(c.subscribed))
	for a := range c.subscribed {
		addrs = append(addrs, a)
	}
	c.subMu.Unlock()
	sort.Strings(addrs)

	for _, a := range addrs {
		if err := c.writeJSON(subscribeMsg{Action: "subscribe", Channel: activityChannel, Address: a}); err != nil {
			c.logger.Printf("[feed] resubscribe %s failed: %v", a, err)
			return
		}
	}
	if len(addrs) > 0 {
		c.logger.Printf("[feed] resubscribed %d addresses", len(addrs))
	}
}

// pingLoop keeps the connection alive.
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil && c.State() == StateConnected {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

var _ Source = (*Client)(nil)
