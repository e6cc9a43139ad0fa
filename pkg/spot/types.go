package spot

import (
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/go-playground/validator/v10"

	"nakula/pkg/core"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

type OrderType string

const (
	Limit      OrderType = "LIMIT"
	Market     OrderType = "MARKET"
	LimitMaker OrderType = "LIMIT_MAKER"
)

type TimeInForce string

const (
	GTC TimeInForce = "GTC"
	IOC TimeInForce = "IOC"
	FOK TimeInForce = "FOK"
)

// OrderRequest contains the parameters for placing a new order.
type OrderRequest struct {
	Symbol           string      `validate:"required"`
	Side             Side        `validate:"required,oneof=BUY SELL"`
	Type             OrderType   `validate:"required,oneof=LIMIT MARKET LIMIT_MAKER STOP_LOSS STOP_LOSS_LIMIT TAKE_PROFIT TAKE_PROFIT_LIMIT"`
	TimeInForce      TimeInForce `validate:"omitempty,oneof=GTC IOC FOK"`
	Quantity         *apd.Decimal
	QuoteOrderQty    *apd.Decimal
	Price            *apd.Decimal
	NewClientOrderID string
	// RecvWindow is sent in milliseconds when positive.
	RecvWindow time.Duration `validate:"min=0,max=60s"`
}

var validate = validator.New()

func (r *OrderRequest) validate() error {
	if err := validate.Struct(r); err != nil {
		return core.NewValidationError("OrderRequest", err.Error())
	}
	if r.Quantity == nil && r.QuoteOrderQty == nil {
		return core.NewValidationError("Quantity", "quantity or quote order quantity is required")
	}
	if r.Type == Limit && r.Price == nil {
		return core.NewValidationError("Price", "limit orders require a price")
	}
	return nil
}

// params renders the request without timestamp or signature. Unset fields are
// left out entirely so that both REST and WebSocket calls omit them.
func (r *OrderRequest) params() core.Params {
	p := core.NewParams("symbol", r.Symbol, "side", string(r.Side), "type", string(r.Type))
	if r.TimeInForce != "" {
		p = p.Set("timeInForce", string(r.TimeInForce))
	}
	if r.Quantity != nil {
		p = p.Set("quantity", r.Quantity)
	}
	if r.QuoteOrderQty != nil {
		p = p.Set("quoteOrderQty", r.QuoteOrderQty)
	}
	if r.Price != nil {
		p = p.Set("price", r.Price)
	}
	if r.NewClientOrderID != "" {
		p = p.Set("newClientOrderId", r.NewClientOrderID)
	}
	if r.RecvWindow > 0 {
		p = p.Set("recvWindow", r.RecvWindow.Milliseconds())
	}
	return p
}

// Order is the exchange's view of an order.
type Order struct {
	Symbol        string
	OrderID       int64
	ClientOrderID string
	TransactTime  time.Time
	Price         apd.Decimal
	OrigQty       apd.Decimal
	ExecutedQty   apd.Decimal
	Status        string
	Type          OrderType
	Side          Side
	TimeInForce   TimeInForce
}

type orderWire struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	TransactTime  int64  `json:"transactTime"`
	Price         string `json:"price"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	Status        string `json:"status"`
	Type          string `json:"type"`
	Side          string `json:"side"`
	TimeInForce   string `json:"timeInForce"`
}

func (w *orderWire) order() (*Order, error) {
	o := &Order{
		Symbol:        w.Symbol,
		OrderID:       w.OrderID,
		ClientOrderID: w.ClientOrderID,
		Status:        w.Status,
		Type:          OrderType(w.Type),
		Side:          Side(w.Side),
		TimeInForce:   TimeInForce(w.TimeInForce),
	}
	if w.TransactTime > 0 {
		o.TransactTime = time.UnixMilli(w.TransactTime)
	}
	if err := parseDecimal(&o.Price, w.Price); err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	if err := parseDecimal(&o.OrigQty, w.OrigQty); err != nil {
		return nil, fmt.Errorf("parse origQty: %w", err)
	}
	if err := parseDecimal(&o.ExecutedQty, w.ExecutedQty); err != nil {
		return nil, fmt.Errorf("parse executedQty: %w", err)
	}
	return o, nil
}

// Price is a symbol's latest price.
type Price struct {
	Symbol string
	Price  apd.Decimal
}

type priceWire struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func parseDecimal(dest *apd.Decimal, s string) error {
	if s == "" {
		*dest = apd.Decimal{}
		return nil
	}

	_, _, err := apd.BaseContext.SetString(dest, s)
	if err != nil {
		return fmt.Errorf("set decimal from string: %w", err)
	}

	return nil
}
