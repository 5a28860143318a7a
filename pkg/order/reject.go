package order

import (
	"errors"
	"fmt"
)

// RejectReason names a local validation failure. Rejected orders never
// reach the network.
type RejectReason string

const (
	SizeBelowStep         RejectReason = "SIZE_BELOW_STEP"
	BelowMinNotional      RejectReason = "BELOW_MIN_NOTIONAL"
	InsufficientMargin    RejectReason = "INSUFFICIENT_MARGIN"
	ExceedsMaxSize        RejectReason = "EXCEEDS_MAX_SIZE"
	InvalidLeverage       RejectReason = "INVALID_LEVERAGE"
	InvalidPrice          RejectReason = "INVALID_PRICE"
	PriceNotOnTick        RejectReason = "PRICE_NOT_ON_TICK"
	MissingReferencePrice RejectReason = "MISSING_REFERENCE_PRICE"
	UnknownMarket         RejectReason = "UNKNOWN_MARKET"
	InvalidOrder          RejectReason = "INVALID_ORDER"
)

// RejectError reports why an order was refused before submission.
type RejectError struct {
	Reason RejectReason
	Detail string
}

func (e *RejectError) Error() string {
	if e.Detail == "" {
		return "order rejected: " + string(e.Reason)
	}
	return fmt.Sprintf("order rejected: %s: %s", e.Reason, e.Detail)
}

// Is matches on Reason, so errors.Is(err, &RejectError{Reason: SizeBelowStep}) works.
func (e *RejectError) Is(target error) bool {
	t, ok := target.(*RejectError)
	return ok && t.Reason == e.Reason
}

func reject(reason RejectReason, format string, args ...any) error {
	return &RejectError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the reject reason from err.
func ReasonOf(err error) (RejectReason, bool) {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Reason, true
	}
	return "", false
}
