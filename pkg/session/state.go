package session

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/exchange"
)

type State string

const (
	Idle           State = "IDLE"
	Deriving       State = "DERIVING"
	Onboarding     State = "ONBOARDING"
	Authenticating State = "AUTHENTICATING"
	Authenticated  State = "AUTHENTICATED"
	TradingEnabled State = "TRADING_ENABLED"
	Disconnected   State = "DISCONNECTED"
	Failed         State = "FAILED"
)

// Connecting reports whether a connect is in flight.
func (s State) Connecting() bool {
	return s == Deriving || s == Onboarding || s == Authenticating
}

// Live reports whether the session holds a usable bearer token.
func (s State) Live() bool {
	return s == Authenticated || s == TradingEnabled
}

// Snapshot is the read-only view of a session published to observers.
// It never carries key material or the bearer token.
type Snapshot struct {
	State          State               `json:"state"`
	FailureReason  string              `json:"failure_reason,omitempty"`
	Owner          string              `json:"owner,omitempty"`
	Account        string              `json:"account,omitempty"`
	PublicKey      string              `json:"public_key,omitempty"`
	TradingEnabled bool                `json:"trading_enabled"`
	TokenIssuedAt  *time.Time          `json:"token_issued_at,omitempty"`
	TokenExpiresAt *time.Time          `json:"token_expires_at,omitempty"`
	Balance        decimal.NullDecimal `json:"balance"`
	Positions      []exchange.Position `json:"positions,omitempty"`
	// Seq increases with every published snapshot. Observers drop anything
	// older than what they already hold.
	Seq uint64 `json:"seq"`
}

// Observer receives every snapshot after a state or cache change. It runs
// on the goroutine that caused the change and must not block.
type Observer func(Snapshot)
