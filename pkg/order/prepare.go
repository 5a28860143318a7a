package order

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// QuantumDecimals is the fixed precision of signed order amounts.
const QuantumDecimals = 8

// ToQuantums converts a decimal to integer units of 10^-8, rounding toward
// negative infinity. The signed value is never larger than the transmitted one.
func ToQuantums(d decimal.Decimal) *big.Int {
	return d.Shift(QuantumDecimals).Floor().BigInt()
}

// FloorToStep rounds size down to a multiple of step. step must be positive.
func FloorToStep(size, step decimal.Decimal) decimal.Decimal {
	q, _ := size.QuoRem(step, 0)
	if size.Sign() < 0 && !q.Mul(step).Equal(size) {
		q = q.Sub(decimal.NewFromInt(1))
	}
	return q.Mul(step)
}

// PrepareOrder quantizes req to the market's size step and runs the local
// checks in order: step, min notional, margin, max size. It performs no I/O.
func PrepareOrder(req Request, c MarketConstraints, availableBalance, leverage decimal.Decimal) (QuantizedOrder, error) {
	if req.Market == "" || req.Market != c.Symbol {
		return QuantizedOrder{}, reject(UnknownMarket, "no constraints for %q", req.Market)
	}
	if !req.Side.Valid() || !req.Kind.Valid() || !req.TimeInForce.Valid() {
		return QuantizedOrder{}, reject(InvalidOrder, "side=%q type=%q instruction=%q", req.Side, req.Kind, req.TimeInForce)
	}
	if leverage.Sign() <= 0 {
		return QuantizedOrder{}, reject(InvalidLeverage, "leverage %s", leverage)
	}
	if c.SizeStep.Sign() <= 0 {
		return QuantizedOrder{}, reject(UnknownMarket, "market %s has no size step", c.Symbol)
	}

	var price decimal.Decimal
	switch req.Kind {
	case Limit:
		if !req.LimitPrice.Valid || req.LimitPrice.Decimal.Sign() <= 0 {
			return QuantizedOrder{}, reject(InvalidPrice, "limit order needs a positive price")
		}
		price = req.LimitPrice.Decimal
		if c.PriceTick.Sign() > 0 && !price.Mod(c.PriceTick).IsZero() {
			return QuantizedOrder{}, reject(PriceNotOnTick, "price %s, tick %s", price, c.PriceTick)
		}
	case Market:
		if !req.ReferencePrice.Valid || req.ReferencePrice.Decimal.Sign() <= 0 {
			return QuantizedOrder{}, reject(MissingReferencePrice, "market order on %s", req.Market)
		}
		price = req.ReferencePrice.Decimal
	}

	size := FloorToStep(req.RawSize, c.SizeStep)
	if size.Sign() <= 0 {
		return QuantizedOrder{}, reject(SizeBelowStep, "size %s, step %s", req.RawSize, c.SizeStep)
	}

	notional := size.Mul(price)
	if notional.LessThan(c.MinNotional) {
		return QuantizedOrder{}, reject(BelowMinNotional, "notional %s < %s", notional, c.MinNotional)
	}

	// notional/leverage > balance, compared without dividing.
	required := notional.DivRound(leverage, QuantumDecimals)
	if notional.GreaterThan(availableBalance.Mul(leverage)) {
		return QuantizedOrder{}, reject(InsufficientMargin, "required %s, available %s", required, availableBalance)
	}

	if c.MaxSize.Sign() > 0 && size.GreaterThan(c.MaxSize) {
		return QuantizedOrder{}, reject(ExceedsMaxSize, "size %s > %s", size, c.MaxSize)
	}

	out := QuantizedOrder{
		Market:         req.Market,
		Side:           req.Side,
		Kind:           req.Kind,
		Size:           size,
		TimeInForce:    req.TimeInForce,
		Notional:       notional,
		RequiredMargin: required,
	}
	if req.Kind == Limit {
		out.Price = decimal.NewNullDecimal(price)
	}
	return out, nil
}

// SizeQuantums is the size as signed.
func (o QuantizedOrder) SizeQuantums() *big.Int {
	return ToQuantums(o.Size)
}

// PriceQuantums is the price as signed; market orders sign 0.
func (o QuantizedOrder) PriceQuantums() *big.Int {
	if !o.Price.Valid {
		return new(big.Int)
	}
	return ToQuantums(o.Price.Decimal)
}
