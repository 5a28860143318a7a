package order

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func btcPerp() MarketConstraints {
	return MarketConstraints{
		Symbol:      "BTC-USD-PERP",
		PriceTick:   d("0.1"),
		SizeStep:    d("0.00001"),
		MinNotional: d("10"),
		MaxSize:     d("100"),
	}
}

func limitReq(size, price string) Request {
	return Request{
		Market:     "BTC-USD-PERP",
		Side:       Buy,
		Kind:       Limit,
		RawSize:    d(size),
		LimitPrice: decimal.NewNullDecimal(d(price)),
	}
}

func requireReason(t *testing.T, err error, want RejectReason) {
	t.Helper()
	require.Error(t, err)
	got, ok := ReasonOf(err)
	require.True(t, ok, "not a reject error: %v", err)
	require.Equal(t, want, got)
}

func TestSizeBelowStep(t *testing.T) {
	_, err := PrepareOrder(limitReq("0.0000049", "90000"), btcPerp(), d("100000"), d("10"))
	requireReason(t, err, SizeBelowStep)
	require.ErrorIs(t, err, &RejectError{Reason: SizeBelowStep})
}

func TestInsufficientMargin(t *testing.T) {
	// notional 45000, margin 4500 at 10x
	_, err := PrepareOrder(limitReq("0.5", "90000"), btcPerp(), d("4000"), d("10"))
	requireReason(t, err, InsufficientMargin)

	o, err := PrepareOrder(limitReq("0.5", "90000"), btcPerp(), d("4500"), d("10"))
	require.NoError(t, err)
	require.Equal(t, "45000", o.Notional.String())
	require.Equal(t, "4500", o.RequiredMargin.String())
}

func TestBelowMinNotional(t *testing.T) {
	_, err := PrepareOrder(limitReq("0.0001", "90000"), btcPerp(), d("1000"), d("1"))
	requireReason(t, err, BelowMinNotional)
}

func TestExceedsMaxSize(t *testing.T) {
	c := btcPerp()
	_, err := PrepareOrder(limitReq("100.00001", "1"), c, d("1000000"), d("10"))
	requireReason(t, err, ExceedsMaxSize)
}

func TestCheckOrder(t *testing.T) {
	// A tiny order with no margin fails on step first.
	_, err := PrepareOrder(limitReq("0.000001", "90000"), btcPerp(), d("0"), d("10"))
	requireReason(t, err, SizeBelowStep)

	// Below min notional and no margin: notional is checked first.
	_, err = PrepareOrder(limitReq("0.0001", "90000"), btcPerp(), d("0"), d("10"))
	requireReason(t, err, BelowMinNotional)

	// Too large and unaffordable: margin is checked before max size.
	_, err = PrepareOrder(limitReq("200", "1000"), btcPerp(), d("1"), d("10"))
	requireReason(t, err, InsufficientMargin)
}

func TestInputValidation(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		lev  string
		want RejectReason
	}{
		{"zero leverage", limitReq("1", "100"), "0", InvalidLeverage},
		{"negative leverage", limitReq("1", "100"), "-2", InvalidLeverage},
		{"unknown market", func() Request { r := limitReq("1", "100"); r.Market = "ETH-USD-PERP"; return r }(), "1", UnknownMarket},
		{"limit without price", func() Request { r := limitReq("1", "100"); r.LimitPrice = decimal.NullDecimal{}; return r }(), "1", InvalidPrice},
		{"price off tick", limitReq("1", "100.05"), "1", PriceNotOnTick},
		{"market without reference", Request{Market: "BTC-USD-PERP", Side: Sell, Kind: Market, RawSize: d("1")}, "1", MissingReferencePrice},
		{"bad side", func() Request { r := limitReq("1", "100"); r.Side = "HOLD"; return r }(), "1", InvalidOrder},
		{"bad instruction", func() Request { r := limitReq("1", "100"); r.TimeInForce = "FOK"; return r }(), "1", InvalidOrder},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := PrepareOrder(tc.req, btcPerp(), d("1000000"), d(tc.lev))
			requireReason(t, err, tc.want)
		})
	}
}

func TestMarketOrderUsesReferencePrice(t *testing.T) {
	req := Request{
		Market:         "BTC-USD-PERP",
		Side:           Sell,
		Kind:           Market,
		RawSize:        d("0.123456"),
		ReferencePrice: decimal.NewNullDecimal(d("90000")),
		TimeInForce:    IOC,
	}
	o, err := PrepareOrder(req, btcPerp(), d("100000"), d("5"))
	require.NoError(t, err)
	require.Equal(t, "0.12345", o.Size.String())
	require.False(t, o.Price.Valid)
	require.Equal(t, "0", o.PriceQuantums().String())
	require.Equal(t, "12345000", o.SizeQuantums().String())
}

func TestToQuantumsFloors(t *testing.T) {
	tests := map[string]string{
		"1":            "100000000",
		"0.5":          "50000000",
		"90000.1":      "9000010000000",
		"0.000000019":  "1",
		"0.000000009":  "0",
		"-0.000000001": "-1",
		"-0.000000011": "-2",
	}
	for in, want := range tests {
		require.Equal(t, want, ToQuantums(d(in)).String(), in)
	}
}

func TestFloorToStepNegative(t *testing.T) {
	require.Equal(t, "-0.2", FloorToStep(d("-0.15"), d("0.1")).String())
	require.Equal(t, "-0.1", FloorToStep(d("-0.1"), d("0.1")).String())
}

// Property: quantized size never exceeds the raw size, is an exact multiple
// of the step and is a fixed point of quantization.
func TestQuantizationProperties(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	steps := []decimal.Decimal{d("0.00001"), d("0.001"), d("0.1"), d("1"), d("0.25")}

	for i := 0; i < 2000; i++ {
		step := steps[rng.IntN(len(steps))]
		raw := decimal.New(rng.Int64N(1_000_000_000)+1, -int32(rng.IntN(10)))
		c := MarketConstraints{Symbol: "X", SizeStep: step}

		req := Request{
			Market:         "X",
			Side:           Buy,
			Kind:           Market,
			RawSize:        raw,
			ReferencePrice: decimal.NewNullDecimal(d("1")),
		}
		o, err := PrepareOrder(req, c, d("1e12"), d("1"))
		if errors.Is(err, &RejectError{Reason: SizeBelowStep}) {
			require.True(t, raw.LessThan(step), "raw %s step %s", raw, step)
			continue
		}
		require.NoError(t, err, "raw %s step %s", raw, step)

		require.True(t, o.Size.LessThanOrEqual(raw), "raw %s size %s", raw, o.Size)
		require.True(t, o.Size.Mod(step).IsZero(), "size %s step %s", o.Size, step)
		require.True(t, raw.Sub(o.Size).LessThan(step))

		req.RawSize = o.Size
		again, err := PrepareOrder(req, c, d("1e12"), d("1"))
		require.NoError(t, err)
		require.True(t, again.Size.Equal(o.Size))
	}
}

func TestStale(t *testing.T) {
	c := btcPerp()
	now := c.FetchedAt
	require.False(t, c.Stale(now, 0))
	require.True(t, c.Stale(now.Add(time.Minute), time.Minute))
}
