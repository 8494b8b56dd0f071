// Package realtime is the client side of a match's broadcast stream.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/DoyleJ11/league-scorekeeper/internal/platform/logging"
	"github.com/DoyleJ11/league-scorekeeper/pkg/types"
)

var (
	ErrNotOpen           = errors.New("channel is not open")
	ErrRetriesExhausted  = errors.New("reconnect attempts exhausted")
	ErrAlreadyRunning    = errors.New("channel is already running")
	errConnectionDropped = errors.New("connection dropped")
)

type ConnState string

const (
	StateConnecting ConnState = "connecting"
	StateOpen       ConnState = "open"
	StateClosed     ConnState = "closed"
)

// ReconnectPolicy bounds consecutive failed dials. The count resets once a dial succeeds.
type ReconnectPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{MaxAttempts: 5, Interval: 3 * time.Second}
}

func (p ReconnectPolicy) normalize() ReconnectPolicy {
	def := DefaultReconnectPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Interval <= 0 {
		p.Interval = def.Interval
	}
	return p
}

// Handler receives every decoded inbound message on the channel's reader goroutine.
type Handler func(ctx context.Context, msg types.Message)

const (
	writeTimeout = 3 * time.Second
	readLimit    = 1 << 20
)

// Channel is one match's duplex stream to the relay. Sends never queue: a send while the
// connection is down fails immediately with ErrNotOpen.
type Channel struct {
	url    string
	policy ReconnectPolicy
	logger *logging.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	state    ConnState
	running  bool
	handlers []Handler
	onOpen   []func(ctx context.Context)
	onState  []func(ConnState)
}

type Option func(*Channel)

func WithLogger(l *logging.Logger) Option {
	return func(c *Channel) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(c *Channel) { c.policy = p.normalize() }
}

func New(url string, opts ...Option) *Channel {
	c := &Channel{
		url:    url,
		policy: DefaultReconnectPolicy(),
		logger: logging.Default(),
		state:  StateClosed,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "realtime")
	return c
}

func (c *Channel) OnMessage(h Handler) {
	if h == nil {
		return
	}
	c.mu.Lock()
	c.handlers = append(c.handlers, h)
	c.mu.Unlock()
}

// OnOpen runs fn after every successful (re)connect, before any message is read.
func (c *Channel) OnOpen(fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.onOpen = append(c.onOpen, fn)
	c.mu.Unlock()
}

func (c *Channel) OnStateChange(fn func(ConnState)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.onState = append(c.onState, fn)
	c.mu.Unlock()
}

func (c *Channel) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send encodes and writes msg. It does not block waiting for a connection.
func (c *Channel) Send(ctx context.Context, msg types.Message) error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()

	if state != StateOpen || conn == nil {
		c.logger.WarnContext(ctx, "dropping outbound message, channel not open",
			"type", string(msg.Kind()), "state", string(state))
		return ErrNotOpen
	}

	payload, err := types.Encode(msg)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, payload); err != nil {
		c.logger.WarnContext(ctx, "write failed", "type", string(msg.Kind()), "error", err)
		return fmt.Errorf("send %s: %w", msg.Kind(), err)
	}
	return nil
}

// Run dials, reads until the connection drops, and redials under the reconnect policy. It
// returns when ctx is done or the policy gives up.
func (c *Channel) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		c.setState(StateClosed)
	}()

	failures := 0
	for {
		c.setState(StateConnecting)
		conn, _, err := websocket.Dial(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			c.logger.WarnContext(ctx, "dial failed",
				"attempt", failures, "max_attempts", c.policy.MaxAttempts, "error", err)
			if failures >= c.policy.MaxAttempts {
				return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, failures, err)
			}
			if !sleep(ctx, c.policy.Interval) {
				return ctx.Err()
			}
			continue
		}

		failures = 0
		conn.SetReadLimit(readLimit)
		c.install(conn)
		c.logger.InfoContext(ctx, "channel open", "url", c.url)
		for _, fn := range c.openHooks() {
			fn(ctx)
		}

		err = c.readLoop(ctx, conn)
		c.uninstall(conn)
		_ = conn.Close(websocket.StatusNormalClosure, "bye")

		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.WarnContext(ctx, "connection lost, reconnecting", "error", err)
		c.setState(StateConnecting)
		if !sleep(ctx, c.policy.Interval) {
			return ctx.Err()
		}
	}
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return errConnectionDropped
			}
			return err
		}

		msg, err := types.Decode(data)
		if err != nil {
			c.logger.WarnContext(ctx, "dropping malformed message", "error", err, "bytes", len(data))
			continue
		}
		c.logger.DebugContext(ctx, "received", "type", string(msg.Kind()))
		for _, h := range c.messageHandlers() {
			h(ctx, msg)
		}
	}
}

func (c *Channel) install(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateOpen)
}

func (c *Channel) uninstall(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
}

func (c *Channel) setState(s ConnState) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	hooks := append([]func(ConnState){}, c.onState...)
	c.mu.Unlock()

	for _, fn := range hooks {
		fn(s)
	}
}

func (c *Channel) messageHandlers() []Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Handler{}, c.handlers...)
}

func (c *Channel) openHooks() []func(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]func(context.Context){}, c.onOpen...)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
