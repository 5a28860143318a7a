package typeddata

import (
	"strconv"
	"time"

	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/crypto"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/order"
)

// Onboarding is the constant message signed to register an account.
func Onboarding() Message {
	return Message{
		Type:   OnboardingType,
		Values: map[string]string{"action": "Onboarding"},
	}
}

// AuthRequest describes the request being authorized. Times are unix seconds.
type AuthRequest struct {
	Method     string
	Path       string
	Body       string
	Timestamp  int64
	Expiration int64
}

// NewAuthRequest returns the POST /v1/auth request valid for window from now.
func NewAuthRequest(now time.Time, window time.Duration) AuthRequest {
	return AuthRequest{
		Method:     "POST",
		Path:       "/v1/auth",
		Body:       "",
		Timestamp:  now.Unix(),
		Expiration: now.Add(window).Unix(),
	}
}

func (r AuthRequest) Message() Message {
	return Message{
		Type: AuthType,
		Values: map[string]string{
			"method":     r.Method,
			"path":       r.Path,
			"body":       r.Body,
			"timestamp":  strconv.FormatInt(r.Timestamp, 10),
			"expiration": strconv.FormatInt(r.Expiration, 10),
		},
	}
}

// Order builds the order message. timestampMs must be the same value sent as
// signature_timestamp. Size and price are signed in quantums, side as 1/2 and
// market and type as short strings.
func Order(o order.QuantizedOrder, timestampMs int64) (Message, error) {
	market, err := crypto.EncodeShortString(o.Market)
	if err != nil {
		return Message{}, err
	}
	kind, err := crypto.EncodeShortString(string(o.Kind))
	if err != nil {
		return Message{}, err
	}
	side := "1"
	if o.Side == order.Sell {
		side = "2"
	}
	return Message{
		Type: OrderType,
		Values: map[string]string{
			"timestamp": strconv.FormatInt(timestampMs, 10),
			"market":    crypto.FeltHex(market),
			"side":      side,
			"orderType": crypto.FeltHex(kind),
			"size":      o.SizeQuantums().String(),
			"price":     o.PriceQuantums().String(),
		},
	}, nil
}
