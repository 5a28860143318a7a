// Package market resolves per-symbol trading constraints from the exchange,
// caching them in memory and in pebble until they go stale.
package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/errs"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/exchange"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/order"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/util"
)

// Source lists markets, optionally one symbol.
type Source interface {
	GetMarkets(ctx context.Context, market string) ([]exchange.Market, error)
}

// Cache persists constraints between runs. *storage.PebbleStore implements it.
type Cache interface {
	SaveMarket(c order.MarketConstraints) error
	LoadMarket(symbol string) (order.MarketConstraints, bool, error)
	LoadAllMarkets() ([]order.MarketConstraints, error)
}

// Registry manages market constraints in a thread-safe manner
type Registry struct {
	source Source
	cache  Cache
	ttl    time.Duration
	clock  util.Clock
	log    *zap.SugaredLogger
	group  util.FlightGroup

	mu      sync.RWMutex
	markets map[string]order.MarketConstraints // symbol -> constraints
}

// NewRegistry creates a registry. cache may be nil; ttl <= 0 never expires.
func NewRegistry(source Source, cache Cache, ttl time.Duration, clock util.Clock, log *zap.SugaredLogger) *Registry {
	if clock == nil {
		clock = util.RealClock{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Registry{
		source:  source,
		cache:   cache,
		ttl:     ttl,
		clock:   clock,
		log:     log,
		markets: make(map[string]order.MarketConstraints),
	}
}

// Warm loads every cached market into memory, stale or not.
func (r *Registry) Warm() error {
	if r.cache == nil {
		return nil
	}
	all, err := r.cache.LoadAllMarkets()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range all {
		r.markets[c.Symbol] = c
	}
	return nil
}

// Constraints returns fresh constraints for symbol, fetching them when the
// memory and disk copies are missing or stale. Concurrent fetches of the
// same symbol are coalesced; a caller that gives up leaves the fetch running
// for the others.
func (r *Registry) Constraints(ctx context.Context, symbol string) (order.MarketConstraints, error) {
	now := r.clock.Now()

	r.mu.RLock()
	c, ok := r.markets[symbol]
	r.mu.RUnlock()
	if ok && !c.Stale(now, r.ttl) {
		return c, nil
	}

	if r.cache != nil {
		cached, found, err := r.cache.LoadMarket(symbol)
		if err != nil {
			r.log.Warnw("market_cache_read_failed", "symbol", symbol, "err", err)
		} else if found && !cached.Stale(now, r.ttl) {
			r.store(cached, false)
			return cached, nil
		}
	}

	v, err := r.group.Do(ctx, symbol, func(ctx context.Context) (any, error) {
		return r.fetch(ctx, symbol)
	})
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return order.MarketConstraints{}, errs.New(errs.KindTransient, errs.WithMessage("fetch market "+symbol), errs.WithCause(err))
	}
	if err != nil {
		return order.MarketConstraints{}, err
	}
	return v.(order.MarketConstraints), nil
}

func (r *Registry) fetch(ctx context.Context, symbol string) (order.MarketConstraints, error) {
	markets, err := r.source.GetMarkets(ctx, symbol)
	if err != nil {
		return order.MarketConstraints{}, fmt.Errorf("fetch market %s: %w", symbol, err)
	}
	for _, m := range markets {
		if m.Symbol != symbol {
			continue
		}
		c, err := ConstraintsFromMarket(m, r.clock.Now())
		if err != nil {
			return order.MarketConstraints{}, err
		}
		r.store(c, true)
		r.log.Infow("market_refreshed", "symbol", symbol, "size_step", c.SizeStep, "price_tick", c.PriceTick)
		return c, nil
	}
	return order.MarketConstraints{}, &order.RejectError{Reason: order.UnknownMarket, Detail: symbol}
}

// Refresh re-fetches every perpetual market and returns how many were stored.
func (r *Registry) Refresh(ctx context.Context) (int, error) {
	markets, err := r.source.GetMarkets(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("fetch markets: %w", err)
	}
	now := r.clock.Now()
	n := 0
	for _, m := range markets {
		if !IsPerpetual(m) {
			continue
		}
		c, err := ConstraintsFromMarket(m, now)
		if err != nil {
			r.log.Warnw("market_skipped", "symbol", m.Symbol, "err", err)
			continue
		}
		r.store(c, true)
		n++
	}
	return n, nil
}

// List returns known markets sorted by symbol.
func (r *Registry) List() []order.MarketConstraints {
	r.mu.RLock()
	out := make([]order.MarketConstraints, 0, len(r.markets))
	for _, c := range r.markets {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (r *Registry) store(c order.MarketConstraints, persist bool) {
	r.mu.Lock()
	r.markets[c.Symbol] = c
	r.mu.Unlock()
	if persist && r.cache != nil {
		if err := r.cache.SaveMarket(c); err != nil {
			r.log.Warnw("market_cache_write_failed", "symbol", c.Symbol, "err", err)
		}
	}
}

// IsPerpetual reports whether m is a perpetual future.
func IsPerpetual(m exchange.Market) bool {
	if m.AssetKind != "" {
		return strings.EqualFold(m.AssetKind, "PERP")
	}
	return strings.HasSuffix(m.Symbol, "-PERP")
}

// ConstraintsFromMarket parses the exchange's market definition. Empty
// notional or size limits mean no limit.
func ConstraintsFromMarket(m exchange.Market, fetchedAt time.Time) (order.MarketConstraints, error) {
	step, err := parseDecimal(m.OrderSizeIncrement)
	if err != nil || step.Sign() <= 0 {
		return order.MarketConstraints{}, fmt.Errorf("market %s: invalid order_size_increment %q", m.Symbol, m.OrderSizeIncrement)
	}
	tick, err := parseDecimal(m.PriceTickSize)
	if err != nil {
		return order.MarketConstraints{}, fmt.Errorf("market %s: invalid price_tick_size %q", m.Symbol, m.PriceTickSize)
	}
	minNotional, err := parseDecimal(m.MinNotional)
	if err != nil {
		return order.MarketConstraints{}, fmt.Errorf("market %s: invalid min_notional %q", m.Symbol, m.MinNotional)
	}
	maxSize, err := parseDecimal(m.MaxOrderSize)
	if err != nil {
		return order.MarketConstraints{}, fmt.Errorf("market %s: invalid max_order_size %q", m.Symbol, m.MaxOrderSize)
	}
	return order.MarketConstraints{
		Symbol:      m.Symbol,
		PriceTick:   tick,
		SizeStep:    step,
		MinNotional: minNotional,
		MaxSize:     maxSize,
		FetchedAt:   fetchedAt,
	}, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
