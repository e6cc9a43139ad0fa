package spot

import (
	"context"

	"nakula/pkg/socket"
)

// WSClient wraps a subset of the WebSocket API.
type WSClient struct {
	api *socket.APIClient
}

func NewWSClient(api *socket.APIClient) *WSClient {
	return &WSClient{api: api}
}

// WSPing tests connectivity over the WebSocket API.
func (c *WSClient) WSPing(ctx context.Context) error {
	return c.api.Call(ctx, socket.Request{Method: "ping"}, nil)
}

// WSOrderPlace places an order with a signed order.place request.
func (c *WSClient) WSOrderPlace(ctx context.Context, req *OrderRequest) (*Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var wire orderWire
	err := c.api.Call(ctx, socket.Request{
		Method:   "order.place",
		Params:   req.params(),
		Security: socket.SecuritySigned,
	}, &wire)
	if err != nil {
		return nil, err
	}
	return wire.order()
}
