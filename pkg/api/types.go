package api

import (
	"github.com/shopspring/decimal"

	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/exchange"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/session"
)

// API request and response types for REST endpoints and WebSocket messages

// ==============================
// REST Request Types
// ==============================

// ConnectRequest is the payload for POST /api/v1/session/connect.
// Signature is the owner's wallet signature over the document served by
// GET /api/v1/session/typed-data.
type ConnectRequest struct {
	Owner     string `json:"owner"`     // e.g., "0x2c75..."
	Signature string `json:"signature"` // 0x-prefixed, 65 bytes
}

// PlaceOrderRequest is the payload for POST /api/v1/orders
type PlaceOrderRequest struct {
	Market         string              `json:"market"`          // e.g., "BTC-USD-PERP"
	Side           string              `json:"side"`            // "BUY" or "SELL"
	Type           string              `json:"type"`            // "LIMIT" or "MARKET"
	Size           decimal.Decimal     `json:"size"`            // base asset units
	Price          decimal.NullDecimal `json:"price"`           // limit orders only
	ReferencePrice decimal.NullDecimal `json:"reference_price"` // mark price for market orders
	Instruction    string              `json:"instruction"`     // "GTC", "IOC", "POST_ONLY"
	Leverage       decimal.Decimal     `json:"leverage"`
}

// ==============================
// REST Response Types
// ==============================

// BalanceResponse reports the collateral token balance
type BalanceResponse struct {
	Token   string          `json:"token"`
	Balance decimal.Decimal `json:"balance"`
}

// OrdersResponse wraps order lists
type OrdersResponse struct {
	Results []exchange.Order `json:"results"`
}

// PositionsResponse wraps open positions
type PositionsResponse struct {
	Results []exchange.Position `json:"results"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`            // error kind, e.g. "invalid_state"
	Message string `json:"message"`          // human readable detail
	Reason  string `json:"reason,omitempty"` // reject reason or exchange error code
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["session"]
}

// SessionUpdate is pushed on the session channel after every state or
// balance/position change
type SessionUpdate struct {
	Type    string           `json:"type"` // "session"
	Session session.Snapshot `json:"session"`
}
