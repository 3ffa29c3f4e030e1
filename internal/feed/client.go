package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hunterlabs/polyhunter/internal/crypto"
)

const (
	// outBufferSize is the capacity of the parsed-event buffer. Overflow
	// drops the newest event and counts it.
	outBufferSize = 1000

	// appPingInterval is how often the client sends the CLOB's text "PING".
	appPingInterval = 10 * time.Second

	// readDeadline is refreshed on every inbound frame; a silent connection
	// beyond this is treated as dead.
	readDeadline = 30 * time.Second

	// writeWait bounds individual frame writes.
	writeWait = 10 * time.Second

	// reconnectBase doubles per failed attempt up to reconnectMax and
	// resets after a successful connect.
	reconnectBase = 500 * time.Millisecond
	reconnectMax  = 10 * time.Second

	// resubscribeCode is the close code used when the subscription set
	// changes and the connection must be rebuilt.
	resubscribeCode = 4000
)

// ChannelMarket and ChannelUser select which CLOB websocket endpoint a
// Client speaks to.
const (
	ChannelMarket = "market"
	ChannelUser   = "user"
)

// Client maintains one websocket connection to a CLOB channel, reconnecting
// with capped exponential backoff and re-subscribing after every connect.
type Client struct {
	wsHost  string
	channel string
	auth    *crypto.HMACAuth // required for the user channel
	logger  *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	targets []string // asset IDs (market channel) or condition IDs (user channel)

	out chan Event
	seq *atomic.Uint64 // shared across channels so Seq is process-global

	droppedFull    atomic.Uint64 // events dropped because out was full
	droppedBadJSON atomic.Uint64 // frames dropped because they were not JSON
}

// NewClient creates a feed client for one channel.
//
// wsHost is the websocket root, e.g. "wss://ws-subscriptions-clob.polymarket.com".
// seq is the shared ingress sequence counter; pass the same counter to the
// market and user clients.
func NewClient(wsHost, channel string, auth *crypto.HMACAuth, seq *atomic.Uint64, logger *slog.Logger) *Client {
	return &Client{
		wsHost:  wsHost,
		channel: channel,
		auth:    auth,
		logger:  logger.With(slog.String("component", "feed"), slog.String("channel", channel)),
		out:     make(chan Event, outBufferSize),
		seq:     seq,
	}
}

// Events returns the parsed-event stream. The channel is closed when Run
// returns.
func (c *Client) Events() <-chan Event {
	return c.out
}

// Dropped returns the counts of events dropped due to buffer overflow and
// frames dropped as non-JSON.
func (c *Client) Dropped() (full, badJSON uint64) {
	return c.droppedFull.Load(), c.droppedBadJSON.Load()
}

// UpdateTargets replaces the subscription set. An open connection is closed
// with the resubscribe code; the reconnect loop then subscribes with the new
// set.
func (c *Client) UpdateTargets(targets []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.targets = append([]string(nil), targets...)

	if c.conn != nil {
		msg := websocket.FormatCloseMessage(resubscribeCode, "resubscribe")
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.conn.WriteMessage(websocket.CloseMessage, msg)
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Run connects and pumps events until ctx is cancelled. It blocks.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.out)

	delay := reconnectBase
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err != nil {
			c.logger.Warn("connection lost",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", delay),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > reconnectMax {
			delay = reconnectMax
		}

		// A session that survived long enough to subscribe resets the
		// backoff; runOnce returning immediately keeps it growing.
		if err == nil {
			delay = reconnectBase
		}
	}
}

// runOnce dials, subscribes, and pumps frames until the connection dies. A
// nil return means the session was established and later dropped; non-nil
// means the dial or subscribe failed.
func (c *Client) runOnce(ctx context.Context) error {
	c.mu.Lock()
	targets := append([]string(nil), c.targets...)
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	url := c.wsHost + "/ws/" + c.channel

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", url, err)
	}

	if err := c.subscribe(conn, targets); err != nil {
		_ = conn.Close()
		return fmt.Errorf("feed: subscribe: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.logger.Info("connected", slog.Int("targets", len(targets)))

	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()
	}()

	// Application-level keepalive: the CLOB expects a text "PING" and
	// answers with a text "PONG".
	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(appPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, []byte("PING")); err != nil {
					return
				}
			}
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return nil // session drop; Run handles the backoff
		}

		c.ingest(message)
	}
}

// subscribe sends the channel's subscription frame.
func (c *Client) subscribe(conn *websocket.Conn, targets []string) error {
	var frame any
	switch c.channel {
	case ChannelUser:
		if c.auth == nil {
			return fmt.Errorf("user channel requires credentials")
		}
		frame = map[string]any{
			"auth": map[string]string{
				"apikey":     c.auth.Key,
				"secret":     c.auth.Secret,
				"passphrase": c.auth.Passphrase,
			},
			"markets": targets,
			"type":    ChannelUser,
		}
	default:
		frame = map[string]any{
			"assets_ids": targets,
			"type":       "markets",
		}
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal subscribe frame: %w", err)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// ingest parses one inbound frame and pushes the flattened events.
func (c *Client) ingest(message []byte) {
	if string(message) == "PONG" {
		return
	}

	items := flattenFrame(message)
	if items == nil {
		c.droppedBadJSON.Add(1)
		return
	}

	now := time.Now().UTC()
	for _, raw := range items {
		ev, ok := parseEvent(c.channel, raw, now)
		if !ok {
			c.droppedBadJSON.Add(1)
			continue
		}
		ev.Seq = c.seq.Add(1)

		select {
		case c.out <- ev:
		default:
			c.droppedFull.Add(1)
		}
	}
}
