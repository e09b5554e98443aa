package devtools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jilio/laco"
)

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	name             string
	instanceID       string
	header           http.Header
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	logger           *slog.Logger
}

// WithName sets the name the monitor shows for this client.
func WithName(name string) ClientOption {
	return func(c *clientConfig) {
		c.name = name
	}
}

// WithInstanceID overrides the generated instance id.
func WithInstanceID(id string) ClientOption {
	return func(c *clientConfig) {
		c.instanceID = id
	}
}

// WithHeader adds headers to the websocket handshake.
func WithHeader(h http.Header) ClientOption {
	return func(c *clientConfig) {
		c.header = h
	}
}

// WithHandshakeTimeout bounds the websocket handshake.
func WithHandshakeTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.handshakeTimeout = d
	}
}

// WithWriteTimeout bounds each outbound message.
func WithWriteTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.writeTimeout = d
	}
}

// WithClientLogger sets the logger used for connection errors.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// Client is a laco.Bridge backed by a websocket connection to a monitor.
type Client struct {
	conn *websocket.Conn
	cfg  clientConfig

	writeMu sync.Mutex
	closed  bool

	mu       sync.RWMutex
	handlers []func(laco.BridgeMessage)

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the monitor at url.
func Dial(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	cfg := clientConfig{
		instanceID:       uuid.NewString(),
		handshakeTimeout: 10 * time.Second,
		writeTimeout:     5 * time.Second,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, cfg.header)
	if err != nil {
		return nil, fmt.Errorf("devtools: dial %s: %w", url, err)
	}

	c := &Client{
		conn: conn,
		cfg:  cfg,
		done: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// InstanceID returns the id this client reports to the monitor.
func (c *Client) InstanceID() string {
	return c.cfg.instanceID
}

// Init implements laco.Bridge.
func (c *Client) Init(snapshot map[int]any) error {
	payload, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	return c.write(Message{
		Type:       TypeInit,
		InstanceID: c.cfg.instanceID,
		Name:       c.cfg.name,
		Payload:    payload,
	})
}

// Send implements laco.Bridge.
func (c *Client) Send(label string, snapshot map[int]any) error {
	payload, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	return c.write(Message{
		Type:       TypeAction,
		InstanceID: c.cfg.instanceID,
		Action:     &Action{Type: label},
		Payload:    payload,
	})
}

// Subscribe implements laco.Bridge. Handlers run on the read goroutine.
func (c *Client) Subscribe(fn func(laco.BridgeMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

// Done is closed once the connection has stopped reading.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close sends a close frame and waits for the read goroutine to exit.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed = true
		deadline := time.Now().Add(c.cfg.writeTimeout)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		c.writeMu.Unlock()

		err = c.conn.Close()
		<-c.done
	})
	return err
}

func (c *Client) write(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return ErrBridgeClosed
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.writeTimeout)); err != nil {
		return fmt.Errorf("devtools: set write deadline: %w", err)
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("devtools: write %s: %w", msg.Type, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if !c.isClosed() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, net.ErrClosed) {
				c.cfg.logger.Error("devtools: read failed", "instance", c.cfg.instanceID, "error", err)
			}
			return
		}

		bm, ok := bridgeMessage(msg)
		if !ok {
			c.cfg.logger.Debug("devtools: ignoring message", "type", msg.Type)
			continue
		}

		c.mu.RLock()
		handlers := slices.Clone(c.handlers)
		c.mu.RUnlock()
		for _, h := range handlers {
			h(bm)
		}
	}
}

func (c *Client) isClosed() bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.closed
}
