// Package spot provides representative spot endpoint wrappers over the REST
// dispatcher and the WebSocket API client.
package spot

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"nakula/pkg/core"
	"nakula/pkg/rest"
)

// Client wraps a subset of the spot REST API.
type Client struct {
	rest *rest.Dispatcher
	now  func() time.Time
}

// NewClient returns a Client that sends through d.
func NewClient(d *rest.Dispatcher) *Client {
	return &Client{rest: d, now: time.Now}
}

// Ping tests connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rest.SendPublic(ctx, rest.Call{Method: http.MethodGet, Path: "/api/v3/ping"}, nil)
}

// ServerTime returns the exchange clock.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	resp, err := rest.Public[struct {
		ServerTime int64 `json:"serverTime"`
	}](ctx, c.rest, rest.Call{Method: http.MethodGet, Path: "/api/v3/time"})
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(resp.ServerTime), nil
}

// TickerPrice returns the latest price for symbol.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (*Price, error) {
	if symbol == "" {
		return nil, core.NewValidationError("symbol", "symbol is required")
	}

	wire, err := rest.Public[priceWire](ctx, c.rest, rest.Call{
		Method: http.MethodGet,
		Path:   "/api/v3/ticker/price",
		Query:  core.NewParams("symbol", symbol),
	})
	if err != nil {
		return nil, err
	}

	p := &Price{Symbol: wire.Symbol}
	if err := parseDecimal(&p.Price, wire.Price); err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	return p, nil
}

// NewOrder places an order. The timestamp is added last, after recvWindow.
func (c *Client) NewOrder(ctx context.Context, req *OrderRequest) (*Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	query := req.params().Set("timestamp", c.now().UnixMilli())
	wire, err := rest.Signed[orderWire](ctx, c.rest, rest.Call{
		Method: http.MethodPost,
		Path:   "/api/v3/order",
		Query:  query,
	})
	if err != nil {
		return nil, err
	}
	return wire.order()
}

// Account returns the raw account information document.
func (c *Client) Account(ctx context.Context, recvWindow time.Duration) ([]byte, error) {
	query := core.Params{}
	if recvWindow > 0 {
		query = query.Set("recvWindow", recvWindow.Milliseconds())
	}
	query = query.Set("timestamp", c.now().UnixMilli())

	var raw []byte
	err := c.rest.SendSigned(ctx, rest.Call{Method: http.MethodGet, Path: "/api/v3/account", Query: query}, &raw)
	return raw, err
}
