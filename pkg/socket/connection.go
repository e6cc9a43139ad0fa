// Package socket provides the persistent WebSocket runtime: a single-use
// Connection with listener fan-out and an APIClient that wraps calls in a
// correlated JSON envelope.
package socket

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lxzan/gws"
	"github.com/rs/zerolog"

	"nakula/internal/ws"
	"nakula/pkg/core"
	"nakula/pkg/signer"
)

type ConnState = ws.ConnState

const (
	StateUnopened   = ws.StateUnopened
	StateConnecting = ws.StateConnecting
	StateOpen       = ws.StateOpen
	StateClosing    = ws.StateClosing
	StateClosed     = ws.StateClosed
)

// Config holds the options for a Connection.
type Config struct {
	// URL is the websocket endpoint, e.g. core.ProductionWSAPIURL.
	URL string `json:"url" yaml:"url" validate:"required,url"`
	// Header is sent with the opening handshake.
	Header http.Header `json:"-" yaml:"-"`
	// CloseTimeout bounds the close handshake when the connection closes
	// itself. Zero means 5s.
	CloseTimeout time.Duration `json:"close_timeout" yaml:"close_timeout" validate:"min=0"`

	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" validate:"min=0"`
	Burst             int     `json:"burst" yaml:"burst" validate:"min=0"`
}

var validate = validator.New()

// Validate checks the struct tags and cross-field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.RequestsPerSecond > 0 && c.Burst == 0 {
		return fmt.Errorf("Burst must be positive when RequestsPerSecond is set")
	}
	return nil
}

// Option is a functional option for configuring a Connection or APIClient.
type Option func(*Options)

// Options holds configuration options for a Connection or APIClient.
type Options struct {
	Logger zerolog.Logger
	Signer signer.Signer
}

// WithLogger returns an option that sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithSigner overrides the signer derived from the credentials. Only the
// APIClient signs.
func WithSigner(s signer.Signer) Option {
	return func(o *Options) {
		o.Signer = s
	}
}

func buildOptions(opts []Option) *Options {
	options := &Options{Logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// Handler receives one inbound text frame.
type Handler func(message string)

// Registration is the handle returned when a listener is added.
type Registration struct {
	conn    *Connection
	id      uint64
	handler Handler
	ctx     context.Context
	active  atomic.Bool

	mu   sync.Mutex
	stop func() bool
}

// Cancel removes the listener. It is idempotent. Once Cancel returns no new
// delivery to the listener starts; one already in progress may finish.
func (r *Registration) Cancel() {
	if !r.active.CompareAndSwap(true, false) {
		return
	}
	r.release()
	r.conn.removeListener(r.id)
}

// watch ties the registration to stop, the unregister func of its context
// watcher. If the registration is already gone, stop runs at once.
func (r *Registration) watch(stop func() bool) {
	r.mu.Lock()
	if r.active.Load() {
		r.stop = stop
		stop = nil
	}
	r.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// release unregisters the context watcher, if any.
func (r *Registration) release() {
	r.mu.Lock()
	stop := r.stop
	r.stop = nil
	r.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (r *Registration) deliver(message string) {
	if !r.active.Load() || (r.ctx != nil && r.ctx.Err() != nil) {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.conn.logger.Warn().
				Interface("panic", p).
				Uint64("listener", r.id).
				Msg("listener panicked")
		}
	}()
	r.handler(message)
}

// Connection owns one websocket transport and its receive loop.
//
// A Connection is single use: once Closed it cannot be reopened.
type Connection struct {
	config Config
	state  ws.State
	logger zerolog.Logger

	mu        sync.RWMutex
	conn      *gws.Conn
	listeners []*Registration
	nextID    uint64
	stopWatch func() bool

	done     chan struct{}
	doneOnce sync.Once
}

// New creates an unopened Connection.
func New(config Config, opts ...Option) (*Connection, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	options := buildOptions(opts)
	return newConnection(config, options.Logger), nil
}

func newConnection(config Config, logger zerolog.Logger) *Connection {
	if config.CloseTimeout == 0 {
		config.CloseTimeout = 5 * time.Second
	}
	return &Connection{
		config: config,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// SetLogger configures the logger. Call it before Connect.
func (c *Connection) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

// State returns the current connection state.
func (c *Connection) State() ConnState {
	return c.state.Load()
}

// IsOpen reports whether frames can be sent.
func (c *Connection) IsOpen() bool {
	return c.state.Load() == StateOpen
}

// Done is closed once the receive loop has exited or the connection was
// closed without ever opening.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Connect dials the endpoint and starts the receive loop. It is a no-op when
// the connection is already open.
//
// ctx stays linked to the connection after Connect returns: cancelling it
// closes the connection.
func (c *Connection) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(StateUnopened, StateConnecting) {
		switch current := c.state.Load(); current {
		case StateOpen:
			return nil
		case StateConnecting:
			return fmt.Errorf("connect already in progress")
		default:
			return core.ErrConnectionClosed
		}
	}

	if err := ctx.Err(); err != nil {
		c.abortConnect()
		return &core.TransportError{Op: "connect", Err: err}
	}

	socket, err := dial(ctx, &eventHandler{conn: c}, &gws.ClientOption{
		Addr:          c.config.URL,
		RequestHeader: c.config.Header,
	})
	if err != nil {
		c.abortConnect()
		c.logger.Error().Err(err).Str("url", c.config.URL).Msg("websocket connect failed")
		return &core.TransportError{Op: "connect", Err: err}
	}

	c.mu.Lock()
	c.conn = socket
	c.mu.Unlock()

	if !c.state.CompareAndSwap(StateConnecting, StateOpen) {
		// Closed while dialing.
		_ = socket.NetConn().Close()
		c.finish()
		return core.ErrConnectionClosed
	}

	// The watcher is stored before the loop starts so finish always sees it.
	stop := context.AfterFunc(ctx, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), c.config.CloseTimeout)
		defer cancel()
		_ = c.Disconnect(closeCtx)
	})
	c.mu.Lock()
	c.stopWatch = stop
	c.mu.Unlock()

	go func() {
		socket.ReadLoop()
		c.finish()
	}()

	c.logger.Info().Str("url", c.config.URL).Msg("websocket connected")
	return nil
}

// abortConnect undoes a failed Connect. A Close that ran while dialing has
// already moved the state to Closed; then done is released instead.
func (c *Connection) abortConnect() {
	if !c.state.CompareAndSwap(StateConnecting, StateUnopened) {
		c.doneOnce.Do(func() { close(c.done) })
	}
}

// finish runs once the receive loop has exited.
func (c *Connection) finish() {
	c.mu.Lock()
	stop := c.stopWatch
	conn := c.conn
	c.mu.Unlock()
	if stop != nil {
		stop()
	}

	// Peer close or transport failure: the loop ended without Disconnect.
	if c.state.CompareAndSwap(StateOpen, StateClosed) && conn != nil {
		_ = conn.NetConn().Close()
	}
	c.doneOnce.Do(func() { close(c.done) })
}

// Disconnect performs an orderly close: it sends a close frame, waits for the
// peer to answer it (the receive loop exits) or for ctx to end, then releases
// the transport. It is a no-op unless the connection is open. When ctx ends
// first the transport is still released and the returned error wraps
// ctx.Err().
//
// Do not call it from a listener with a ctx that never ends; the loop cannot
// exit while its listener is running.
func (c *Connection) Disconnect(ctx context.Context) error {
	if !c.state.CompareAndSwap(StateOpen, StateClosing) {
		return nil
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	var err error
	if werr := conn.WriteMessage(gws.OpcodeCloseConnection, normalClosure); werr != nil {
		c.logger.Warn().Err(werr).Str("url", c.config.URL).Msg("websocket close frame failed")
		err = &core.TransportError{Op: "disconnect", Err: werr}
	} else {
		select {
		case <-c.done:
		case <-ctx.Done():
			err = &core.TransportError{Op: "disconnect", Err: ctx.Err()}
		}
	}

	_ = conn.NetConn().Close()
	c.state.Close()

	c.logger.Info().Str("url", c.config.URL).Msg("websocket disconnected")
	return err
}

// normalClosure is the close frame payload for status 1000.
var normalClosure = []byte{0x03, 0xE8}

// Close disconnects, then releases every listener registration. A connection
// that was never opened becomes Closed as well.
func (c *Connection) Close() error {
	closeCtx, cancel := context.WithTimeout(context.Background(), c.config.CloseTimeout)
	defer cancel()
	err := c.Disconnect(closeCtx)

	if c.state.CompareAndSwap(StateUnopened, StateClosed) {
		c.doneOnce.Do(func() { close(c.done) })
	}
	c.state.CompareAndSwap(StateConnecting, StateClosed)

	c.mu.Lock()
	regs := c.listeners
	c.listeners = nil
	c.mu.Unlock()
	for _, r := range regs {
		r.active.Store(false)
		r.release()
	}
	return err
}

// Send writes text as a single text frame.
func (c *Connection) Send(text string) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || c.state.Load() != StateOpen {
		return core.ErrNotConnected
	}

	if err := conn.WriteMessage(gws.OpcodeText, []byte(text)); err != nil {
		c.logger.Error().Err(err).Str("url", c.config.URL).Msg("websocket write failed")
		return &core.TransportError{Op: "send", Err: err}
	}
	c.logger.Debug().Int("size", len(text)).Msg("sent websocket message")
	return nil
}

// OnMessage appends handler to the listeners. Listeners run on the receive
// loop in registration order; a panic in one is logged and does not stop
// delivery to the rest.
func (c *Connection) OnMessage(handler Handler) *Registration {
	return c.addListener(nil, handler)
}

// OnMessageContext is OnMessage with the registration cancelled when ctx ends.
func (c *Connection) OnMessageContext(ctx context.Context, handler Handler) *Registration {
	r := c.addListener(ctx, handler)
	r.watch(context.AfterFunc(ctx, r.Cancel))
	return r
}

func (c *Connection) addListener(ctx context.Context, handler Handler) *Registration {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	r := &Registration{conn: c, id: c.nextID, handler: handler, ctx: ctx}
	r.active.Store(true)
	c.listeners = append(c.listeners, r)
	return r
}

func (c *Connection) removeListener(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listeners = slices.DeleteFunc(c.listeners, func(r *Registration) bool {
		return r.id == id
	})
}

// Listeners returns the number of registered listeners.
func (c *Connection) Listeners() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.listeners)
}

func (c *Connection) dispatch(message string) {
	c.mu.RLock()
	regs := slices.Clone(c.listeners)
	c.mu.RUnlock()

	for _, r := range regs {
		r.deliver(message)
	}
}

type eventHandler struct {
	conn *Connection
}

func (h *eventHandler) OnOpen(socket *gws.Conn) {}

func (h *eventHandler) OnClose(socket *gws.Conn, err error) {
	h.conn.logger.Debug().
		Err(err).
		Str("url", h.conn.config.URL).
		Msg("websocket receive loop ended")
}

func (h *eventHandler) OnPing(socket *gws.Conn, payload []byte) {
	_ = socket.WritePong(payload)
}

func (h *eventHandler) OnPong(socket *gws.Conn, payload []byte) {}

func (h *eventHandler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()

	if message.Opcode != gws.OpcodeText {
		h.conn.logger.Warn().Msg("dropping non-text websocket frame")
		return
	}

	text := string(message.Bytes())
	h.conn.logger.Debug().Int("size", len(text)).Msg("received websocket message")
	h.conn.dispatch(text)
}
