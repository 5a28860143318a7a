package exchange

import (
	"github.com/google/uuid"

	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/order"
)

// NewOrderBody renders a quantized order for the wire. timestampMs must be
// the value that was signed. Market orders carry no price.
func NewOrderBody(o order.QuantizedOrder, signature string, timestampMs int64) OrderBody {
	body := OrderBody{
		Market:             o.Market,
		Side:               string(o.Side),
		Type:               string(o.Kind),
		Size:               o.Size.String(),
		Instruction:        string(o.TimeInForce),
		Signature:          signature,
		SignatureTimestamp: timestampMs,
		ClientID:           uuid.NewString(),
	}
	if o.Price.Valid {
		body.Price = o.Price.Decimal.String()
	}
	return body
}
