package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	apimetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/scr1ptjunk13/paradex-trade-hub/session"

// Metrics are the session instruments. A nil *Metrics records nothing.
type Metrics struct {
	connects        apimetric.Int64Counter
	connectDuration apimetric.Float64Histogram
	reauths         apimetric.Int64Counter
	orders          apimetric.Int64Counter
	rejects         apimetric.Int64Counter
	refreshFailures apimetric.Int64Counter
}

// NewMetrics creates the instruments on mp. A nil mp uses a no-op provider.
func NewMetrics(mp apimetric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter(meterName)

	var m Metrics
	var err error
	if m.connects, err = meter.Int64Counter("tradehub.session.connects",
		apimetric.WithDescription("connect attempts by outcome")); err != nil {
		return nil, err
	}
	if m.connectDuration, err = meter.Float64Histogram("tradehub.session.connect.duration",
		apimetric.WithDescription("time from connect to authenticated"),
		apimetric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.reauths, err = meter.Int64Counter("tradehub.session.reauths",
		apimetric.WithDescription("re-authentications by trigger and outcome")); err != nil {
		return nil, err
	}
	if m.orders, err = meter.Int64Counter("tradehub.orders.submitted",
		apimetric.WithDescription("orders accepted by the exchange")); err != nil {
		return nil, err
	}
	if m.rejects, err = meter.Int64Counter("tradehub.orders.rejected",
		apimetric.WithDescription("orders refused locally or by the exchange")); err != nil {
		return nil, err
	}
	if m.refreshFailures, err = meter.Int64Counter("tradehub.refresh.failures",
		apimetric.WithDescription("failed post-order balance/position refreshes")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metrics) Connect(ctx context.Context, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := apimetric.WithAttributes(attribute.String("outcome", outcome))
	m.connects.Add(ctx, 1, attrs)
	m.connectDuration.Record(ctx, elapsed.Seconds(), attrs)
}

func (m *Metrics) Reauth(ctx context.Context, trigger, outcome string) {
	if m == nil {
		return
	}
	m.reauths.Add(ctx, 1, apimetric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) OrderSubmitted(ctx context.Context, market, side string) {
	if m == nil {
		return
	}
	m.orders.Add(ctx, 1, apimetric.WithAttributes(
		attribute.String("market", market),
		attribute.String("side", side),
	))
}

func (m *Metrics) OrderRejected(ctx context.Context, source, reason string) {
	if m == nil {
		return
	}
	m.rejects.Add(ctx, 1, apimetric.WithAttributes(
		attribute.String("source", source),
		attribute.String("reason", reason),
	))
}

func (m *Metrics) RefreshFailed(ctx context.Context) {
	if m == nil {
		return
	}
	m.refreshFailures.Add(ctx, 1)
}
