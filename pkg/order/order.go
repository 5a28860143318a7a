// Package order quantizes user-entered orders to exchange-legal units and
// validates them against market constraints and available margin before
// anything is signed or sent.
package order

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

func (s Side) Valid() bool { return s == Buy || s == Sell }

type Kind string

const (
	Market Kind = "MARKET"
	Limit  Kind = "LIMIT"
)

func (k Kind) Valid() bool { return k == Market || k == Limit }

// TimeInForce is sent as the order "instruction".
type TimeInForce string

const (
	GTC      TimeInForce = "GTC"
	IOC      TimeInForce = "IOC"
	PostOnly TimeInForce = "POST_ONLY"
)

func (t TimeInForce) Valid() bool {
	switch t {
	case "", GTC, IOC, PostOnly:
		return true
	}
	return false
}

// MarketConstraints are the trading rules of one market. Immutable per fetch.
type MarketConstraints struct {
	Symbol      string          `json:"symbol"`
	PriceTick   decimal.Decimal `json:"price_tick"`
	SizeStep    decimal.Decimal `json:"size_step"`
	MinNotional decimal.Decimal `json:"min_notional"`
	MaxSize     decimal.Decimal `json:"max_size"`
	FetchedAt   time.Time       `json:"fetched_at"`
}

// Stale reports whether the constraints are older than ttl.
func (c MarketConstraints) Stale(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(c.FetchedAt) >= ttl
}

// Request is a raw, user-entered order.
type Request struct {
	Market      string
	Side        Side
	Kind        Kind
	RawSize     decimal.Decimal
	LimitPrice  decimal.NullDecimal
	TimeInForce TimeInForce
	// ReferencePrice values market orders for the notional and margin
	// checks, typically the mark price. Limit orders use LimitPrice.
	ReferencePrice decimal.NullDecimal
}

// QuantizedOrder is a validated order whose size sits on the market's step.
// It is never mutated after signing.
type QuantizedOrder struct {
	Market         string
	Side           Side
	Kind           Kind
	Size           decimal.Decimal
	Price          decimal.NullDecimal // set for limit orders only
	TimeInForce    TimeInForce
	Notional       decimal.Decimal
	RequiredMargin decimal.Decimal
}

func (o QuantizedOrder) String() string {
	if o.Price.Valid {
		return fmt.Sprintf("%s %s %s %s @ %s", o.Kind, o.Side, o.Size, o.Market, o.Price.Decimal)
	}
	return fmt.Sprintf("%s %s %s %s", o.Kind, o.Side, o.Size, o.Market)
}
