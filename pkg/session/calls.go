package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"

	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/errs"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/exchange"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/order"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/typeddata"
)

// call runs op with a bearer token. An expired token, or a 401 answer to op,
// triggers one re-authentication and one retry. It returns the epoch the
// token belongs to so callers can drop results of a replaced session.
func (s *Session) call(ctx context.Context, op func(token string) error) (uint64, error) {
	token, epoch, err := s.liveToken(ctx)
	if err != nil {
		return epoch, err
	}
	err = op(token)
	if !errs.IsUnauthorized(err) {
		return epoch, err
	}

	s.log.Infow("token_rejected", "err", err)
	token, err = s.reauthenticate(ctx, epoch, token, "unauthorized")
	if err != nil {
		return epoch, err
	}
	if err = op(token); errs.IsUnauthorized(err) {
		return epoch, errs.New(errs.KindSessionExpired, errs.WithMessage("token rejected after re-authentication"), errs.WithCause(err))
	}
	return epoch, err
}

func (s *Session) liveToken(ctx context.Context) (string, uint64, error) {
	s.mu.Lock()
	if !s.state.Live() {
		st, epoch := s.state, s.epoch
		s.mu.Unlock()
		return "", epoch, invalidState("not authenticated (state %s)", st)
	}
	token, issuedAt, epoch := s.token, s.issuedAt, s.epoch
	s.mu.Unlock()

	if !s.expired(issuedAt) {
		return token, epoch, nil
	}
	token, err := s.reauthenticate(ctx, epoch, token, "expired")
	return token, epoch, err
}

func (s *Session) expired(issuedAt time.Time) bool {
	ttl := s.cfg.Session.TokenTTL
	return ttl > 0 && !s.clock.Now().Before(issuedAt.Add(ttl))
}

// reauthenticate replaces stale with a new token. Concurrent callers share a
// single auth request, which one caller giving up does not abort. A failed
// attempt moves the session to Failed with a SessionExpired reason, except
// when every caller gave up.
func (s *Session) reauthenticate(ctx context.Context, epoch uint64, stale, trigger string) (string, error) {
	v, err := s.reauths.Do(ctx, "auth", func(ctx context.Context) (any, error) {
		s.mu.Lock()
		if s.epoch != epoch || !s.state.Live() {
			s.mu.Unlock()
			return "", errDisconnected
		}
		if s.token != stale && !s.expired(s.issuedAt) {
			token := s.token
			s.mu.Unlock()
			return token, nil
		}
		acct, domain := s.account, s.domain
		s.mu.Unlock()

		token, issuedAt, err := s.authenticate(ctx, acct, domain)

		s.mu.Lock()
		if s.epoch != epoch {
			s.mu.Unlock()
			return "", errDisconnected
		}
		if err != nil {
			if isCancellation(err) {
				s.mu.Unlock()
				s.metrics.Reauth(ctx, trigger, "cancelled")
				return "", err
			}
			expired := errs.New(errs.KindSessionExpired, errs.WithMessage("re-authentication failed"), errs.WithCause(err))
			s.state = Failed
			s.failure = expired
			s.token = ""
			notify := s.publishLocked()
			s.mu.Unlock()
			notify()
			s.metrics.Reauth(ctx, trigger, "failed")
			s.log.Warnw("reauth_failed", "trigger", trigger, "err", err)
			return "", expired
		}
		s.token = token
		s.issuedAt = issuedAt
		notify := s.publishLocked()
		s.mu.Unlock()
		notify()
		s.metrics.Reauth(ctx, trigger, "ok")
		s.log.Infow("reauthenticated", "trigger", trigger)
		return token, nil
	})
	if left(ctx, err) {
		return "", errs.New(errs.KindTransient, errs.WithMessage("re-authentication"), errs.WithCause(err))
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// GetBalances fetches every token balance and updates the cache.
func (s *Session) GetBalances(ctx context.Context) ([]exchange.Balance, error) {
	var out []exchange.Balance
	epoch, err := s.call(ctx, func(token string) (err error) {
		out, err = s.ex.GetBalances(ctx, token)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return out, nil
	}
	s.balances = out
	s.balancesAt = s.clock.Now()
	notify := s.publishLocked()
	s.mu.Unlock()
	notify()
	return out, nil
}

// GetBalance returns the balance of the configured collateral token. A token
// the exchange does not report counts as zero.
func (s *Session) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	balances, err := s.GetBalances(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return s.selectBalance(balances), nil
}

func (s *Session) selectBalance(balances []exchange.Balance) decimal.Decimal {
	for _, b := range balances {
		if strings.EqualFold(b.Token, s.cfg.Session.BalanceToken) {
			return b.Size
		}
	}
	return decimal.Zero
}

// availableBalance prefers the cached balance and only fetches when none
// was loaded yet.
func (s *Session) availableBalance(ctx context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	if !s.balancesAt.IsZero() {
		b := s.selectBalance(s.balances)
		s.mu.Unlock()
		return b, nil
	}
	s.mu.Unlock()
	return s.GetBalance(ctx)
}

// GetPositions returns open positions and updates the cache.
func (s *Session) GetPositions(ctx context.Context) ([]exchange.Position, error) {
	var all []exchange.Position
	epoch, err := s.call(ctx, func(token string) (err error) {
		all, err = s.ex.GetPositions(ctx, token)
		return err
	})
	if err != nil {
		return nil, err
	}

	open := make([]exchange.Position, 0, len(all))
	for _, p := range all {
		if strings.EqualFold(p.Status, "CLOSED") {
			continue
		}
		open = append(open, p)
	}

	s.mu.Lock()
	if s.epoch == epoch {
		s.positions = open
		notify := s.publishLocked()
		s.mu.Unlock()
		notify()
	} else {
		s.mu.Unlock()
	}
	return open, nil
}

func (s *Session) GetOpenOrders(ctx context.Context, market string) ([]exchange.Order, error) {
	var out []exchange.Order
	_, err := s.call(ctx, func(token string) (err error) {
		out, err = s.ex.GetOpenOrders(ctx, token, market)
		return err
	})
	return out, err
}

func (s *Session) GetAccountSummary(ctx context.Context) (exchange.AccountSummary, error) {
	var out exchange.AccountSummary
	_, err := s.call(ctx, func(token string) (err error) {
		out, err = s.ex.GetAccountSummary(ctx, token)
		return err
	})
	return out, err
}

// PlaceOrder validates req against the market's constraints and the cached
// balance, signs it and submits it. Local rejections never reach the network.
// On success balances and positions are refreshed in the background.
func (s *Session) PlaceOrder(ctx context.Context, req order.Request, leverage decimal.Decimal) (exchange.Order, error) {
	s.mu.Lock()
	if s.state != TradingEnabled {
		st := s.state
		s.mu.Unlock()
		return exchange.Order{}, invalidState("trading not enabled (state %s)", st)
	}
	acct, domain := s.account, s.domain
	s.mu.Unlock()

	constraints, err := s.markets.Constraints(ctx, req.Market)
	if err != nil {
		if reason, ok := order.ReasonOf(err); ok {
			s.metrics.OrderRejected(ctx, "local", string(reason))
		}
		return exchange.Order{}, err
	}
	balance, err := s.availableBalance(ctx)
	if err != nil {
		return exchange.Order{}, err
	}

	q, err := order.PrepareOrder(req, constraints, balance, leverage)
	if err != nil {
		reason, _ := order.ReasonOf(err)
		s.metrics.OrderRejected(ctx, "local", string(reason))
		s.log.Infow("order_rejected_locally", "market", req.Market, "side", req.Side, "err", err)
		return exchange.Order{}, err
	}

	ts := s.clock.Now().UnixMilli()
	msg, err := typeddata.Order(q, ts)
	if err != nil {
		return exchange.Order{}, err
	}
	signed, err := sign(acct, domain, msg)
	if err != nil {
		return exchange.Order{}, err
	}
	body := exchange.NewOrderBody(q, signed.Signature(), ts)

	var ack exchange.Order
	_, err = s.call(ctx, func(token string) (err error) {
		ack, err = s.ex.SubmitOrder(ctx, token, body)
		return err
	})
	if err != nil {
		if errors.Is(err, errs.ErrRejectedByExchange) {
			s.metrics.OrderRejected(ctx, "exchange", errs.Reason(err))
		}
		s.log.Warnw("order_submit_failed", "order", q.String(), "client_id", body.ClientID, "err", err)
		return exchange.Order{}, err
	}

	s.metrics.OrderSubmitted(ctx, q.Market, string(q.Side))
	s.log.Infow("order_submitted", "id", ack.ID, "client_id", body.ClientID, "order", q.String())
	s.refreshInBackground()
	return ack, nil
}

func (s *Session) CancelOrder(ctx context.Context, orderID string) error {
	_, err := s.call(ctx, func(token string) error {
		return s.ex.CancelOrder(ctx, token, orderID)
	})
	if err == nil {
		s.log.Infow("order_cancelled", "id", orderID)
	}
	return err
}

// CancelAllOrders cancels every open order, or only those of market when set.
func (s *Session) CancelAllOrders(ctx context.Context, market string) error {
	_, err := s.call(ctx, func(token string) error {
		return s.ex.CancelAllOrders(ctx, token, market)
	})
	if err == nil {
		s.log.Infow("orders_cancelled", "market", market)
	}
	return err
}

// Refresh reloads balances and positions in parallel. Transient failures
// are retried with backoff; everything else fails fast.
func (s *Session) Refresh(ctx context.Context) error {
	var (
		wg             conc.WaitGroup
		balErr, posErr error
	)
	wg.Go(func() {
		_, balErr = retryRead(ctx, func() ([]exchange.Balance, error) { return s.GetBalances(ctx) })
	})
	wg.Go(func() {
		_, posErr = retryRead(ctx, func() ([]exchange.Position, error) { return s.GetPositions(ctx) })
	})
	wg.Wait()
	return errors.Join(balErr, posErr)
}

// refreshInBackground never affects the order that triggered it.
func (s *Session) refreshInBackground() {
	s.refreshes.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if err := s.Refresh(ctx); err != nil {
			s.metrics.RefreshFailed(ctx)
			s.log.Warnw("post_order_refresh_failed", "err", err)
		}
	})
}

func retryRead[T any](ctx context.Context, read func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return backoff.Retry(ctx, func() (T, error) {
		v, err := read()
		if err != nil && !errors.Is(err, errs.ErrTransient) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(3))
}
