package feed

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order types carried by the "order_type" field of a received frame.
const (
	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"
)

// OrderType is the order_type dependent part of a Received frame:
// MarketOrder or LimitOrder.
type OrderType interface {
	OrderTypeName() string
	isOrderType()
}

// MarketOrder carries the funds of a market order.
type MarketOrder struct {
	Funds decimal.Decimal
}

// LimitOrder carries the size and price of a limit order.
type LimitOrder struct {
	Size  decimal.Decimal
	Price decimal.Decimal
}

func (MarketOrder) OrderTypeName() string { return OrderTypeMarket }
func (LimitOrder) OrderTypeName() string  { return OrderTypeLimit }

func (MarketOrder) isOrderType() {}
func (LimitOrder) isOrderType()  {}

// Received indicates the matching engine accepted an order. The order_type
// discriminator and its fields sit beside the other fields on the wire.
// ClientOID is nil when client-oid is absent, null or empty.
type Received struct {
	Time      time.Time
	ProductID string
	Sequence  uint64
	OrderID   string
	OrderType OrderType
	Side      string
	ClientOID *string
}

// Open indicates the order is now resting on the book.
type Open struct {
	Time          time.Time       `json:"time"`
	ProductID     string          `json:"product_id"`
	Sequence      uint64          `json:"sequence"`
	OrderID       string          `json:"order_id"`
	Price         decimal.Decimal `json:"price"`
	RemainingSize decimal.Decimal `json:"remaining_size"`
	Side          string          `json:"side"`
}

// Done indicates the order is no longer on the book. Price is nil for
// market orders that never quoted one.
type Done struct {
	Time          time.Time        `json:"time"`
	ProductID     string           `json:"product_id"`
	Sequence      uint64           `json:"sequence"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	OrderID       string           `json:"order_id"`
	Reason        string           `json:"reason"`
	CancelReason  *string          `json:"cancel_reason,omitempty"`
	Side          string           `json:"side"`
	RemainingSize decimal.Decimal  `json:"remaining_size"`
}

// Match is a trade between a maker and a taker order.
type Match struct {
	TradeID      uint64          `json:"trade_id"`
	Sequence     uint64          `json:"sequence"`
	MakerOrderID string          `json:"maker_order_id"`
	TakerOrderID string          `json:"taker_order_id"`
	Time         time.Time       `json:"time"`
	ProductID    string          `json:"product_id"`
	Size         decimal.Decimal `json:"size"`
	Price        decimal.Decimal `json:"price"`
	Side         string          `json:"side"`
}

// Change reports an order modified in place. Self-trade prevention and
// user modifies send different subsets of the size and price fields, so
// each one is independently optional.
type Change struct {
	Reason    string           `json:"reason"`
	Time      time.Time        `json:"time"`
	Sequence  uint64           `json:"sequence"`
	OrderID   string           `json:"order_id"`
	Side      string           `json:"side"`
	ProductID string           `json:"product_id"`
	OldSize   *decimal.Decimal `json:"old_size,omitempty"`
	NewSize   *decimal.Decimal `json:"new_size,omitempty"`
	Size      *decimal.Decimal `json:"size,omitempty"`
	OldPrice  *decimal.Decimal `json:"old_price,omitempty"`
	NewPrice  *decimal.Decimal `json:"new_price,omitempty"`
	Price     *decimal.Decimal `json:"price,omitempty"`
}

// Activate reports a stop order activation. Timestamp is kept exactly as
// sent ("1483736448.299000").
type Activate struct {
	ProductID string          `json:"product_id"`
	Timestamp string          `json:"timestamp"`
	UserID    string          `json:"user_id"`
	ProfileID string          `json:"profile_id"`
	OrderID   string          `json:"order_id,omitempty"`
	StopType  string          `json:"stop_type"`
	Side      string          `json:"side"`
	StopPrice decimal.Decimal `json:"stop_price"`
	Size      decimal.Decimal `json:"size"`
	Funds     decimal.Decimal `json:"funds"`
	Private   bool            `json:"private"`
}
