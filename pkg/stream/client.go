// Package stream implements the market-data stream client: SUBSCRIBE,
// UNSUBSCRIBE and LIST_SUBSCRIPTIONS over a socket.Connection, with inbound
// frames passed through to listeners.
package stream

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"nakula/internal/ratelimit"
	"nakula/pkg/core"
	"nakula/pkg/socket"
)

const (
	methodSubscribe         = "SUBSCRIBE"
	methodUnsubscribe       = "UNSUBSCRIBE"
	methodListSubscriptions = "LIST_SUBSCRIPTIONS"
)

type request struct {
	Method string   `json:"method"`
	Params []string `json:"params,omitempty"`
	ID     int64    `json:"id"`
}

// Client manages stream subscriptions on one connection.
type Client struct {
	conn      *socket.Connection
	limiter   *ratelimit.Limiter
	logger    zerolog.Logger
	requestID atomic.Int64

	mu   sync.RWMutex
	subs map[string]struct{}
}

// NewClient creates an unopened stream client.
func NewClient(config socket.Config, opts ...socket.Option) (*Client, error) {
	conn, err := socket.New(config, opts...)
	if err != nil {
		return nil, err
	}

	options := &socket.Options{Logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(options)
	}

	return &Client{
		conn:    conn,
		limiter: ratelimit.New(config.RequestsPerSecond, config.Burst),
		logger:  options.Logger,
		subs:    make(map[string]struct{}),
	}, nil
}

func (c *Client) Connect(ctx context.Context) error {
	if err := c.conn.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) State() socket.ConnState {
	return c.conn.State()
}

func (c *Client) Done() <-chan struct{} {
	return c.conn.Done()
}

// OnMessage registers handler for every inbound frame, events and replies
// alike.
func (c *Client) OnMessage(handler socket.Handler) *socket.Registration {
	return c.conn.OnMessage(handler)
}

func (c *Client) OnMessageContext(ctx context.Context, handler socket.Handler) *socket.Registration {
	return c.conn.OnMessageContext(ctx, handler)
}

// Subscribe sends a SUBSCRIBE for streams and returns the request id. The
// streams are recorded locally once the request is written.
func (c *Client) Subscribe(ctx context.Context, streams ...string) (int64, error) {
	if len(streams) == 0 {
		return 0, core.NewValidationError("streams", "at least one stream is required")
	}
	id, err := c.send(ctx, methodSubscribe, streams)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	for _, s := range streams {
		c.subs[s] = struct{}{}
	}
	c.mu.Unlock()

	c.logger.Debug().Strs("streams", streams).Int64("id", id).Msg("subscribed to streams")
	return id, nil
}

// Unsubscribe sends an UNSUBSCRIBE for streams and returns the request id.
func (c *Client) Unsubscribe(ctx context.Context, streams ...string) (int64, error) {
	if len(streams) == 0 {
		return 0, core.NewValidationError("streams", "at least one stream is required")
	}
	id, err := c.send(ctx, methodUnsubscribe, streams)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	for _, s := range streams {
		delete(c.subs, s)
	}
	c.mu.Unlock()

	c.logger.Debug().Strs("streams", streams).Int64("id", id).Msg("unsubscribed from streams")
	return id, nil
}

// ListSubscriptions asks the server for its subscription list. The answer
// arrives as a reply frame carrying the returned id.
func (c *Client) ListSubscriptions(ctx context.Context) (int64, error) {
	return c.send(ctx, methodListSubscriptions, nil)
}

// Subscriptions returns the locally recorded streams, sorted.
func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	subs := make([]string, 0, len(c.subs))
	for s := range c.subs {
		subs = append(subs, s)
	}
	slices.Sort(subs)
	return subs
}

func (c *Client) send(ctx context.Context, method string, streams []string) (int64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, &core.TransportError{Op: method, Err: err}
	}

	req := request{
		Method: method,
		Params: streams,
		ID:     c.requestID.Add(1),
	}
	data, err := sonic.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("marshal %s: %w", method, err)
	}
	if err := c.conn.Send(string(data)); err != nil {
		c.logger.Error().Err(err).Strs("streams", streams).Str("method", method).Msg("failed to send stream request")
		return 0, err
	}
	return req.ID, nil
}

// StreamName builds a stream name such as "btcusdt@trade" from a symbol in
// either "BTCUSDT" or "BTC/USDT" form.
func StreamName(symbol, kind string) string {
	return strings.ToLower(strings.ReplaceAll(symbol, "/", "")) + "@" + kind
}
