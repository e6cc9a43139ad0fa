package spot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nakula/pkg/core"
	"nakula/pkg/rest"
)

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config := core.DefaultConfig().WithCredentials(&core.Credentials{APIKey: "K", SecretKey: "S"})
	config.BaseURL = server.URL
	d, err := rest.New(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	c := NewClient(d)
	c.now = func() time.Time { return time.UnixMilli(1499827319559) }
	return c
}

func dec(t *testing.T, s string) *apd.Decimal {
	t.Helper()
	d, _, err := apd.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestClient_Ping(t *testing.T) {
	var path string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(`{}`))
	})

	require.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, "/api/v3/ping", path)
}

func TestClient_ServerTime(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"serverTime":1499827319559}`))
	})

	got, err := c.ServerTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1499827319559), got.UnixMilli())
}

func TestClient_TickerPrice(t *testing.T) {
	var query string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Write([]byte(`{"symbol":"LTCBTC","price":"4.00000200"}`))
	})

	p, err := c.TickerPrice(context.Background(), "LTCBTC")
	require.NoError(t, err)
	assert.Equal(t, "symbol=LTCBTC", query)
	assert.Equal(t, "LTCBTC", p.Symbol)
	assert.Equal(t, "4.00000200", p.Price.Text('f'))

	_, err = c.TickerPrice(context.Background(), "")
	assert.True(t, core.IsValidationError(err))
}

func TestClient_TickerPrice_BadDecimal(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"LTCBTC","price":"abc"}`))
	})

	_, err := c.TickerPrice(context.Background(), "LTCBTC")
	assert.ErrorContains(t, err, "parse price")
}

func TestClient_NewOrder(t *testing.T) {
	var method, query string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		query = r.URL.RawQuery
		w.Write([]byte(`{"symbol":"BTCUSDT","orderId":28,"clientOrderId":"6gCrw2kRUAF9CvJDGP16IP","transactTime":1507725176595,"price":"0.10000000","origQty":"10.00000000","executedQty":"0.00000000","status":"NEW","timeInForce":"GTC","type":"LIMIT","side":"SELL"}`))
	})

	order, err := c.NewOrder(context.Background(), &OrderRequest{
		Symbol:      "BTCUSDT",
		Side:        Sell,
		Type:        Limit,
		TimeInForce: GTC,
		Quantity:    dec(t, "10"),
		Price:       dec(t, "0.1"),
		RecvWindow:  5 * time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, method)
	assert.True(t, strings.HasPrefix(query,
		"symbol=BTCUSDT&side=SELL&type=LIMIT&timeInForce=GTC&quantity=10&price=0.1&recvWindow=5000&timestamp=1499827319559&signature="),
		query)

	assert.Equal(t, int64(28), order.OrderID)
	assert.Equal(t, Sell, order.Side)
	assert.Equal(t, Limit, order.Type)
	assert.Equal(t, "0.10000000", order.Price.Text('f'))
	assert.Equal(t, "10.00000000", order.OrigQty.Text('f'))
	assert.Equal(t, int64(1507725176595), order.TransactTime.UnixMilli())
}

func TestOrderRequest_Validate(t *testing.T) {
	qty, _, _ := apd.NewFromString("1")
	tests := []struct {
		name    string
		req     OrderRequest
		field   string
		wantErr bool
	}{
		{"market", OrderRequest{Symbol: "BTCUSDT", Side: Buy, Type: Market, Quantity: qty}, "", false},
		{"quote_qty", OrderRequest{Symbol: "BTCUSDT", Side: Buy, Type: Market, QuoteOrderQty: qty}, "", false},
		{"missing_symbol", OrderRequest{Side: Buy, Type: Market, Quantity: qty}, "OrderRequest", true},
		{"bad_side", OrderRequest{Symbol: "BTCUSDT", Side: "HOLD", Type: Market, Quantity: qty}, "OrderRequest", true},
		{"bad_tif", OrderRequest{Symbol: "BTCUSDT", Side: Buy, Type: Limit, TimeInForce: "DAY", Quantity: qty, Price: qty}, "OrderRequest", true},
		{"recv_window_too_large", OrderRequest{Symbol: "BTCUSDT", Side: Buy, Type: Market, Quantity: qty, RecvWindow: time.Minute + time.Second}, "OrderRequest", true},
		{"no_quantity", OrderRequest{Symbol: "BTCUSDT", Side: Buy, Type: Market}, "Quantity", true},
		{"limit_no_price", OrderRequest{Symbol: "BTCUSDT", Side: Buy, Type: Limit, Quantity: qty}, "Price", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var vErr *core.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestClient_NewOrder_InvalidSkipsIO(t *testing.T) {
	called := false
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := c.NewOrder(context.Background(), &OrderRequest{Symbol: "BTCUSDT"})
	assert.True(t, core.IsValidationError(err))
	assert.False(t, called)
}

func TestClient_NewOrder_Rejected(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-2010,"msg":"Account has insufficient balance for requested action."}`))
	})

	_, err := c.NewOrder(context.Background(), &OrderRequest{Symbol: "BTCUSDT", Side: Buy, Type: Market, Quantity: dec(t, "1")})
	var cErr *core.ClientError
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, core.ErrorTypeInsufficientFunds, cErr.Type())
}

func TestClient_Account(t *testing.T) {
	var query string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Write([]byte(`{"makerCommission":15,"balances":[]}`))
	})

	raw, err := c.Account(context.Background(), 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"makerCommission":15,"balances":[]}`, string(raw))
	assert.True(t, strings.HasPrefix(query, "timestamp=1499827319559&signature="), query)

	_, err = c.Account(context.Background(), 2*time.Second)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(query, "recvWindow=2000&timestamp=1499827319559&signature="), query)
}
