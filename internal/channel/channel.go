// Package channel implements the room channel: a persistent, authenticated,
// bidirectional message connection to the room hub with named-event
// dispatch and automatic reconnection.
package channel

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-sync/internal/domain"
	pkglog "github.com/weiawesome/wes-io-sync/pkg/log"
)

var (
	// ErrConnection is returned when the hub cannot be reached or rejects
	// the handshake.
	ErrConnection = errors.New("room channel: connection failed")
	// ErrNotConnected is returned by Send while no connection is open.
	ErrNotConnected = errors.New("room channel: not connected")
	// ErrClosed is returned after Stop.
	ErrClosed = errors.New("room channel: closed")
)

// HandlerFunc handles one inbound event. Handlers run sequentially on the
// channel's read goroutine in arrival order.
type HandlerFunc func(ctx context.Context, env *domain.Envelope)

// Status describes the connection state reported to a StatusFunc.
type Status int

const (
	StatusConnected Status = iota
	StatusDisconnected
	StatusReconnecting
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusStopped:
		return "stopped"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// StatusFunc observes connection state changes. err carries the cause for
// StatusDisconnected and StatusReconnecting.
type StatusFunc func(status Status, err error)

// Option configures a Channel.
type Option func(*Channel)

// WithJitter replaces the reconnect delay source.
func WithJitter(fn func() time.Duration) Option {
	return func(c *Channel) { c.jitter = fn }
}

// WithLogger sets the channel logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Channel) { c.logger = l }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Channel) { c.dialer = d }
}

// Channel is a room channel. The zero value is not usable; call New.
type Channel struct {
	cfg    Config
	tokens TokenProvider
	dialer *websocket.Dialer
	jitter func() time.Duration
	logger zerolog.Logger

	handlersMu sync.RWMutex
	handlers   map[string]HandlerFunc
	onStatus   StatusFunc

	// dialMu serialises connect attempts from callers and the reconnect loop.
	dialMu sync.Mutex

	mu      sync.Mutex
	conn    *connection
	stopped bool

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	attempts atomic.Int64
}

type connection struct {
	ws        *websocket.Conn
	out       chan outbound
	done      chan struct{}
	closeOnce sync.Once
}

type outbound struct {
	data   []byte
	result chan error
}

func newConnection(ws *websocket.Conn) *connection {
	return &connection{
		ws:   ws,
		out:  make(chan outbound),
		done: make(chan struct{}),
	}
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// New creates a channel for cfg.URL. No connection is made until Connect.
func New(cfg Config, tokens TokenProvider, opts ...Option) *Channel {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		cfg:      cfg,
		tokens:   tokens,
		dialer:   &websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: cfg.HandshakeTimeout},
		logger:   pkglog.Component("channel"),
		handlers: make(map[string]HandlerFunc),
		ctx:      ctx,
		cancel:   cancel,
	}
	maxDelay := cfg.MaxReconnectDelay
	c.jitter = func() time.Duration { return rand.N(maxDelay) }
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// On registers the handler for event, replacing any previous one.
func (c *Channel) On(event string, h HandlerFunc) {
	c.handlersMu.Lock()
	c.handlers[event] = h
	c.handlersMu.Unlock()
}

// OnStatus registers the connection state observer.
func (c *Channel) OnStatus(fn StatusFunc) {
	c.handlersMu.Lock()
	c.onStatus = fn
	c.handlersMu.Unlock()
}

// Connected reports whether a connection is currently open.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Attempts returns the number of connect attempts made so far.
func (c *Channel) Attempts() int64 {
	return c.attempts.Load()
}

// Connect opens the connection. It is a no-op when already connected.
func (c *Channel) Connect(ctx context.Context) error {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	attempt := c.attempts.Add(1)
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("%w: access token: %w", ErrConnection, err)
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()
	ws, resp, err := c.dialer.DialContext(dialCtx, c.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("%w: handshake status %d: %w", ErrConnection, resp.StatusCode, err)
		}
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	conn := newConnection(ws)
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		ws.Close()
		return ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()

	c.logger.Info().Int64(pkglog.FieldAttempt, attempt).Msg("room channel connected")

	// Status observers reset per-connection state, so they run before any
	// inbound frame is dispatched.
	c.wg.Add(2)
	go c.writePump(conn)
	c.status(StatusConnected, nil)
	go c.readPump(conn)
	return nil
}

// Send encodes and writes one event. It returns once the frame has been
// handed to the transport, or with an error wrapping ErrNotConnected.
// Messages are never queued across a reconnect.
func (c *Channel) Send(ctx context.Context, event string, args ...interface{}) error {
	env, err := domain.NewEnvelope(event, args...)
	if err != nil {
		return err
	}
	data, err := env.Marshal()
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn, stopped := c.conn, c.stopped
	c.mu.Unlock()
	if stopped {
		return fmt.Errorf("%w: %s", ErrClosed, event)
	}
	if conn == nil {
		return fmt.Errorf("%w: %s", ErrNotConnected, event)
	}

	msg := outbound{data: data, result: make(chan error, 1)}
	select {
	case conn.out <- msg:
	case <-conn.done:
		return fmt.Errorf("%w: %s", ErrNotConnected, event)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-msg.result:
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrNotConnected, event, err)
		}
		return nil
	case <-conn.done:
		return fmt.Errorf("%w: %s", ErrNotConnected, event)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Emit sends in the background and logs failures. Handlers use it so a
// reply never blocks dispatch.
func (c *Channel) Emit(event string, args ...interface{}) {
	go func() {
		if err := c.Send(c.ctx, event, args...); err != nil && !errors.Is(err, ErrClosed) && c.ctx.Err() == nil {
			c.logger.Warn().Err(err).Str(pkglog.FieldEvent, event).Msg("send failed")
		}
	}()
}

// Stop closes the connection and disables reconnection. It is idempotent
// and waits for the channel goroutines, so it must not be called from a
// handler.
func (c *Channel) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteWait))
		conn.close()
	}
	c.wg.Wait()
	c.logger.Info().Msg("room channel stopped")
	c.status(StatusStopped, nil)
}

func (c *Channel) status(s Status, err error) {
	c.handlersMu.RLock()
	fn := c.onStatus
	c.handlersMu.RUnlock()
	if fn != nil {
		fn(s, err)
	}
}

func (c *Channel) dispatch(env *domain.Envelope) {
	c.handlersMu.RLock()
	h, ok := c.handlers[env.Event]
	c.handlersMu.RUnlock()
	if !ok {
		c.logger.Debug().Str(pkglog.FieldEvent, env.Event).Msg("no handler for event")
		return
	}
	h(c.ctx, env)
}

// dropped tears down conn after an unexpected close and schedules one
// reconnect attempt.
func (c *Channel) dropped(conn *connection, cause error) {
	conn.close()

	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	stopped := c.stopped
	c.mu.Unlock()
	if stopped || !current {
		return
	}

	c.logger.Warn().Err(cause).Msg("room channel closed unexpectedly")
	c.status(StatusDisconnected, cause)
	c.scheduleReconnect(cause)
}

// scheduleReconnect waits a random delay and tries to connect once. A
// failed attempt is handled like another close notification.
func (c *Channel) scheduleReconnect(cause error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		delay := c.jitter()
		c.logger.Info().Int64(pkglog.FieldDelay, delay.Milliseconds()).Msg("reconnect scheduled")

		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-c.ctx.Done():
			return
		case <-timer.C:
		}

		c.status(StatusReconnecting, cause)
		if err := c.Connect(c.ctx); err != nil {
			if errors.Is(err, ErrClosed) || c.ctx.Err() != nil {
				return
			}
			c.logger.Warn().Err(err).Msg("reconnect attempt failed")
			c.status(StatusDisconnected, err)
			c.scheduleReconnect(err)
		}
	}()
}

func (c *Channel) readPump(conn *connection) {
	defer c.wg.Done()

	ws := conn.ws
	ws.SetReadLimit(c.cfg.MaxMessageSize)
	ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})
	ws.SetPingHandler(func(data string) error {
		ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		err := ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.cfg.WriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.dropped(conn, err)
			return
		}
		env, err := domain.ParseEnvelope(data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("discarding malformed frame")
			continue
		}
		c.dispatch(env)
	}
}

func (c *Channel) writePump(conn *connection) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-conn.done:
			return

		case msg := <-conn.out:
			conn.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			err := conn.ws.WriteMessage(websocket.TextMessage, msg.data)
			msg.result <- err
			if err != nil {
				c.dropped(conn, err)
				return
			}

		case <-ticker.C:
			conn.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.dropped(conn, err)
				return
			}
		}
	}
}
