package exchange

import (
	"github.com/shopspring/decimal"
)

// SystemConfig is the public exchange configuration (GET /system/config).
type SystemConfig struct {
	GatewayURL                string         `json:"starknet_gateway_url"`
	ChainID                   string         `json:"starknet_chain_id"`
	BlockExplorerURL          string         `json:"block_explorer_url"`
	ParaclearAddress          string         `json:"paraclear_address"`
	ParaclearDecimals         int            `json:"paraclear_decimals"`
	ParaclearAccountProxyHash string         `json:"paraclear_account_proxy_hash"`
	ParaclearAccountHash      string         `json:"paraclear_account_hash"`
	BridgedTokens             []BridgedToken `json:"bridged_tokens"`
	L1ChainID                 string         `json:"l1_chain_id"`
}

type BridgedToken struct {
	Name           string `json:"name"`
	Symbol         string `json:"symbol"`
	Decimals       int    `json:"decimals"`
	L1TokenAddress string `json:"l1_token_address"`
	L2TokenAddress string `json:"l2_token_address"`
}

type Balance struct {
	Token         string          `json:"token"`
	Size          decimal.Decimal `json:"size"`
	LastUpdatedAt int64           `json:"last_updated_at"`
}

type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

// Position is a position snapshot. Optional numeric fields the exchange may
// leave empty stay strings.
type Position struct {
	ID                   string          `json:"id"`
	Market               string          `json:"market"`
	Side                 PositionSide    `json:"side"`
	Status               string          `json:"status"`
	Size                 decimal.Decimal `json:"size"`
	AverageEntryPrice    decimal.Decimal `json:"average_entry_price"`
	AverageEntryPriceUSD decimal.Decimal `json:"average_entry_price_usd"`
	UnrealizedPnl        decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnl          decimal.Decimal `json:"realized_pnl"`
	Leverage             string          `json:"leverage"`
	LiquidationPrice     string          `json:"liquidation_price"`
	UpdatedAt            int64           `json:"updated_at"`
}

// Order is an order as reported by the exchange; also the submit ack.
type Order struct {
	ID            string `json:"id"`
	ClientID      string `json:"client_id,omitempty"`
	Market        string `json:"market"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Size          string `json:"size"`
	RemainingSize string `json:"remaining_size,omitempty"`
	Price         string `json:"price,omitempty"`
	Instruction   string `json:"instruction,omitempty"`
	Status        string `json:"status"`
	CancelReason  string `json:"cancel_reason,omitempty"`
	CreatedAt     int64  `json:"created_at"`
}

type AccountSummary struct {
	Account                      string          `json:"account"`
	Status                       string          `json:"status"`
	AccountValue                 decimal.Decimal `json:"account_value"`
	FreeCollateral               decimal.Decimal `json:"free_collateral"`
	TotalCollateral              decimal.Decimal `json:"total_collateral"`
	InitialMarginRequirement     decimal.Decimal `json:"initial_margin_requirement"`
	MaintenanceMarginRequirement decimal.Decimal `json:"maintenance_margin_requirement"`
	UpdatedAt                    int64           `json:"updated_at"`
}

// Market is a market definition from GET /markets. Numeric fields are kept
// as the exchange sends them and parsed by the market registry.
type Market struct {
	Symbol             string `json:"symbol"`
	BaseCurrency       string `json:"base_currency"`
	QuoteCurrency      string `json:"quote_currency"`
	SettlementCurrency string `json:"settlement_currency"`
	AssetKind          string `json:"asset_kind"`
	OrderSizeIncrement string `json:"order_size_increment"`
	PriceTickSize      string `json:"price_tick_size"`
	MinNotional        string `json:"min_notional"`
	MaxOrderSize       string `json:"max_order_size"`
	OpenAt             int64  `json:"open_at"`
	ExpiryAt           int64  `json:"expiry_at"`
}

// OrderBody is the POST /orders payload. Size and price are decimal
// strings; the exchange re-quantizes them to verify the signature.
type OrderBody struct {
	Market             string `json:"market"`
	Side               string `json:"side"`
	Type               string `json:"type"`
	Size               string `json:"size"`
	Price              string `json:"price,omitempty"`
	Instruction        string `json:"instruction,omitempty"`
	Signature          string `json:"signature"`
	SignatureTimestamp int64  `json:"signature_timestamp"`
	ClientID           string `json:"client_id,omitempty"`
}

// OnboardingRequest carries the signed onboarding headers. Timestamp is unix ms.
type OnboardingRequest struct {
	EthereumAccount string
	StarknetAccount string
	PublicKey       string
	Signature       string
	Timestamp       int64
}

// AuthRequest carries the signed auth headers. Times are unix seconds.
type AuthRequest struct {
	StarknetAccount string
	Signature       string
	Timestamp       int64
	Expiration      int64
}

type resultsEnvelope[T any] struct {
	Results []T `json:"results"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type onboardingBody struct {
	PublicKey string `json:"public_key"`
}

type authResponse struct {
	JWTToken string `json:"jwt_token"`
}
