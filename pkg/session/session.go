// Package session drives one trading account connection: key derivation,
// onboarding, authentication, token refresh and order placement.
//
// A Session is the only mutable shared resource of a connection. Every state
// transition and cache update happens under one mutex; network calls run
// outside it. Concurrent connects share one in-flight attempt, and so do
// concurrent re-authentications. A shared attempt runs until its last caller
// gives up or the session disconnects.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/scr1ptjunk13/paradex-trade-hub/params"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/account"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/errs"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/exchange"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/order"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/storage"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/telemetry"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/typeddata"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/util"
)

// Exchange is the part of the REST client a session drives.
type Exchange interface {
	GetSystemConfig(ctx context.Context) (exchange.SystemConfig, error)
	Onboard(ctx context.Context, req exchange.OnboardingRequest) (bool, error)
	Authenticate(ctx context.Context, req exchange.AuthRequest) (string, error)
	GetBalances(ctx context.Context, token string) ([]exchange.Balance, error)
	GetPositions(ctx context.Context, token string) ([]exchange.Position, error)
	GetOpenOrders(ctx context.Context, token, market string) ([]exchange.Order, error)
	GetAccountSummary(ctx context.Context, token string) (exchange.AccountSummary, error)
	SubmitOrder(ctx context.Context, token string, body exchange.OrderBody) (exchange.Order, error)
	CancelOrder(ctx context.Context, token, orderID string) error
	CancelAllOrders(ctx context.Context, token, market string) error
}

// Markets resolves trading rules for a symbol.
type Markets interface {
	Constraints(ctx context.Context, symbol string) (order.MarketConstraints, error)
}

// AccountStore remembers onboarded accounts.
type AccountStore interface {
	SaveAccount(rec storage.AccountRecord) error
}

// Deps are the collaborators of a session. Exchange and Markets are
// required; the rest fall back to defaults.
type Deps struct {
	Exchange Exchange
	Markets  Markets
	Accounts AccountStore
	Clock    util.Clock
	Logger   *zap.SugaredLogger
	Metrics  *telemetry.Metrics
}

type Session struct {
	cfg      params.Config
	ex       Exchange
	markets  Markets
	accounts AccountStore
	clock    util.Clock
	log      *zap.SugaredLogger
	metrics  *telemetry.Metrics

	connects  util.FlightGroup
	reauths   util.FlightGroup
	refreshes conc.WaitGroup

	mu         sync.Mutex
	state      State
	failure    error
	epoch      uint64 // bumped by every connect and disconnect
	owner      string
	account    *account.ExchangeAccount
	domain     typeddata.Domain
	token      string
	issuedAt   time.Time
	balances   []exchange.Balance
	balancesAt time.Time
	positions  []exchange.Position
	seq        uint64
	observers  map[int]Observer
	nextObs    int
}

const refreshTimeout = time.Minute

var errDisconnected = errs.New(errs.KindInvalidState, errs.WithMessage("session disconnected"))

func New(cfg params.Config, deps Deps) *Session {
	s := &Session{
		cfg:       cfg,
		ex:        deps.Exchange,
		markets:   deps.Markets,
		accounts:  deps.Accounts,
		clock:     deps.Clock,
		log:       deps.Logger,
		metrics:   deps.Metrics,
		state:     Idle,
		observers: make(map[int]Observer),
	}
	if s.clock == nil {
		s.clock = util.RealClock{}
	}
	if s.log == nil {
		s.log = zap.NewNop().Sugar()
	}
	return s
}

// Observe registers fn for every published snapshot and returns a func that
// removes it.
func (s *Session) Observe(fn Observer) (cancel func()) {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the reason of a Failed session, nil otherwise.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:          s.state,
		Owner:          s.owner,
		TradingEnabled: s.state == TradingEnabled,
		Positions:      append([]exchange.Position(nil), s.positions...),
		Seq:            s.seq,
	}
	if s.failure != nil {
		snap.FailureReason = s.failure.Error()
	}
	if s.account != nil {
		snap.Account = s.account.AddressHex()
		snap.PublicKey = s.account.Identity.PublicKeyHex()
	}
	if s.token != "" {
		issued := s.issuedAt
		snap.TokenIssuedAt = &issued
		if ttl := s.cfg.Session.TokenTTL; ttl > 0 {
			expires := issued.Add(ttl)
			snap.TokenExpiresAt = &expires
		}
	}
	if !s.balancesAt.IsZero() {
		snap.Balance = decimal.NewNullDecimal(s.selectBalance(s.balances))
	}
	return snap
}

// publishLocked bumps the snapshot sequence and returns a func that delivers
// the snapshot to observers. Call it after releasing the mutex.
func (s *Session) publishLocked() func() {
	s.seq++
	snap := s.snapshotLocked()
	obs := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		obs = append(obs, o)
	}
	return func() {
		for _, o := range obs {
			o(snap)
		}
	}
}

// Connect derives the signing identity through wallet, onboards the account
// if needed and authenticates it. A connect already in flight for the same
// owner is joined rather than repeated.
func (s *Session) Connect(ctx context.Context, wallet account.WalletSigner, owner string) error {
	s.mu.Lock()
	st, current := s.state, s.owner
	s.mu.Unlock()
	if st.Connecting() && !strings.EqualFold(current, owner) {
		return invalidState("connect for %s in flight", current)
	}

	_, err := s.connects.Do(ctx, "connect", func(ctx context.Context) (any, error) {
		return nil, s.connect(ctx, wallet, owner)
	})
	if left(ctx, err) {
		return errs.New(errs.KindTransient, errs.WithMessage("connect"), errs.WithCause(err))
	}
	return err
}

func (s *Session) connect(ctx context.Context, wallet account.WalletSigner, owner string) error {
	s.mu.Lock()
	switch {
	case s.state.Live():
		same := strings.EqualFold(s.owner, owner)
		current := s.owner
		s.mu.Unlock()
		if same {
			return nil
		}
		return invalidState("connected as %s, disconnect first", current)
	case s.state == Idle || s.state == Disconnected:
	default:
		st := s.state
		s.mu.Unlock()
		return invalidState("connect not allowed in state %s", st)
	}
	s.epoch++
	epoch := s.epoch
	s.owner = owner
	s.failure = nil
	s.state = Deriving
	notify := s.publishLocked()
	s.mu.Unlock()
	notify()

	start := s.clock.Now()
	s.log.Infow("session_connecting", "owner", owner)

	if err := s.establish(ctx, epoch, wallet, owner); err != nil {
		s.metrics.Connect(ctx, "failed", s.clock.Now().Sub(start))
		return s.fail(epoch, err)
	}
	s.metrics.Connect(ctx, "ok", s.clock.Now().Sub(start))

	if err := s.Refresh(ctx); err != nil {
		s.log.Warnw("initial_refresh_failed", "err", err)
	}
	return nil
}

// establish runs Deriving, Onboarding and Authenticating. The identity is
// wiped on any failure.
func (s *Session) establish(ctx context.Context, epoch uint64, wallet account.WalletSigner, owner string) (err error) {
	identity, err := account.DeriveSigningIdentity(ctx, wallet, owner, s.cfg.Exchange.WalletDomain())
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			identity.Wipe()
		}
	}()

	domain, hashes, err := s.resolveChain(ctx)
	if err != nil {
		return err
	}
	acct, err := account.NewExchangeAccount(identity, hashes)
	if err != nil {
		return errs.New(errs.KindDerivationFailed, errs.WithMessage("account address"), errs.WithCause(err))
	}

	if err = s.advance(epoch, Onboarding, func() {
		s.owner = identity.OwnerAddress
		s.account = acct
		s.domain = domain
	}); err != nil {
		return err
	}
	if err = s.onboard(ctx, acct, domain); err != nil {
		return err
	}

	if err = s.advance(epoch, Authenticating, nil); err != nil {
		return err
	}
	token, issuedAt, err := s.authenticate(ctx, acct, domain)
	if err != nil {
		return err
	}

	return s.advance(epoch, Authenticated, func() {
		s.token = token
		s.issuedAt = issuedAt
		s.log.Infow("session_authenticated",
			"owner", identity.OwnerAddress,
			"account", acct.AddressHex(),
			"public_key", identity.PublicKeyHex())
	})
}

// advance moves a connect to the next state unless a disconnect happened
// since it started.
func (s *Session) advance(epoch uint64, next State, apply func()) error {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return errDisconnected
	}
	if apply != nil {
		apply()
	}
	s.state = next
	notify := s.publishLocked()
	s.mu.Unlock()
	notify()
	return nil
}

// fail moves the session to Failed unless a disconnect already reset it.
func (s *Session) fail(epoch uint64, cause error) error {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return errDisconnected
	}
	s.state = Failed
	s.failure = cause
	s.token = ""
	notify := s.publishLocked()
	s.mu.Unlock()
	notify()
	s.log.Warnw("session_failed", "reason", cause)
	return cause
}

// resolveChain fills the chain id and class hashes missing from config
// from GET /system/config.
func (s *Session) resolveChain(ctx context.Context) (typeddata.Domain, account.ClassHashes, error) {
	ex := s.cfg.Exchange
	if ex.ChainID == "" || ex.AccountClassHash == "" || ex.AccountProxyClassHash == "" {
		sc, err := s.ex.GetSystemConfig(ctx)
		if err != nil {
			return typeddata.Domain{}, account.ClassHashes{}, err
		}
		if ex.ChainID == "" {
			ex.ChainID = sc.ChainID
		}
		if ex.AccountClassHash == "" {
			ex.AccountClassHash = sc.ParaclearAccountHash
		}
		if ex.AccountProxyClassHash == "" {
			ex.AccountProxyClassHash = sc.ParaclearAccountProxyHash
		}
	}

	chainID, err := ex.ChainIDFelt()
	if err != nil {
		return typeddata.Domain{}, account.ClassHashes{}, errs.New(errs.KindProtocol, errs.WithMessage("chain id"), errs.WithCause(err))
	}
	hashes, err := account.ParseClassHashes(ex.AccountClassHash, ex.AccountProxyClassHash)
	if err != nil {
		return typeddata.Domain{}, account.ClassHashes{}, errs.New(errs.KindProtocol, errs.WithMessage("class hashes"), errs.WithCause(err))
	}
	return typeddata.NewDomain(ex.Name, chainID), hashes, nil
}

func (s *Session) onboard(ctx context.Context, acct *account.ExchangeAccount, domain typeddata.Domain) error {
	now := s.clock.Now()
	signed, err := sign(acct, domain, typeddata.Onboarding())
	if err != nil {
		return fmt.Errorf("sign onboarding: %w", err)
	}
	already, err := s.ex.Onboard(ctx, exchange.OnboardingRequest{
		EthereumAccount: acct.Identity.OwnerAddress,
		StarknetAccount: acct.AddressHex(),
		PublicKey:       acct.Identity.PublicKeyHex(),
		Signature:       signed.Signature(),
		Timestamp:       now.UnixMilli(),
	})
	if err != nil {
		return err
	}
	s.log.Infow("account_onboarded", "account", acct.AddressHex(), "already_onboarded", already)

	if s.accounts != nil {
		rec := storage.AccountRecord{
			Owner:       acct.Identity.OwnerAddress,
			Address:     acct.AddressHex(),
			PublicKey:   acct.Identity.PublicKeyHex(),
			OnboardedAt: now,
		}
		if err := s.accounts.SaveAccount(rec); err != nil {
			s.log.Warnw("account_record_save_failed", "account", rec.Address, "err", err)
		}
	}
	return nil
}

func (s *Session) authenticate(ctx context.Context, acct *account.ExchangeAccount, domain typeddata.Domain) (string, time.Time, error) {
	now := s.clock.Now()
	req := typeddata.NewAuthRequest(now, s.cfg.Session.SignatureExpiry)
	signed, err := sign(acct, domain, req.Message())
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign auth request: %w", err)
	}
	token, err := s.ex.Authenticate(ctx, exchange.AuthRequest{
		StarknetAccount: acct.AddressHex(),
		Signature:       signed.Signature(),
		Timestamp:       req.Timestamp,
		Expiration:      req.Expiration,
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return token, now, nil
}

// EnableTrading opens the order placement gate of an authenticated session.
func (s *Session) EnableTrading() error {
	s.mu.Lock()
	switch s.state {
	case TradingEnabled:
		s.mu.Unlock()
		return nil
	case Authenticated:
		s.state = TradingEnabled
		notify := s.publishLocked()
		s.mu.Unlock()
		notify()
		s.log.Infow("trading_enabled", "account", s.Snapshot().Account)
		return nil
	default:
		st := s.state
		s.mu.Unlock()
		return invalidState("enable trading not allowed in state %s", st)
	}
}

// Disconnect clears the bearer token and wipes the private key. It is
// accepted in every state, including mid-connect and Failed.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.epoch++
	if s.account != nil {
		s.account.Identity.Wipe()
	}
	prev := s.state
	s.account = nil
	s.domain = typeddata.Domain{}
	s.owner = ""
	s.token = ""
	s.issuedAt = time.Time{}
	s.balances = nil
	s.balancesAt = time.Time{}
	s.positions = nil
	s.failure = nil
	s.state = Disconnected
	notify := s.publishLocked()
	s.mu.Unlock()
	// In-flight attempts belong to the old epoch. Later calls start afresh.
	s.connects.Cancel("connect")
	s.reauths.Cancel("auth")
	notify()
	s.log.Infow("session_disconnected", "from", prev)
}

// Close disconnects and waits for background refreshes to finish.
func (s *Session) Close() {
	s.Disconnect()
	s.refreshes.Wait()
}

// Wait blocks until background refreshes started by PlaceOrder finish.
func (s *Session) Wait() {
	s.refreshes.Wait()
}

func invalidState(format string, args ...any) error {
	return errs.New(errs.KindInvalidState, errs.WithMessage(fmt.Sprintf(format, args...)))
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// left reports whether err is the caller's own ctx ending while it waited on
// a shared attempt.
func left(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err())
}

// sign signs msg with the account key. A key wiped by a concurrent
// disconnect is an invalid state, not an internal error.
func sign(acct *account.ExchangeAccount, domain typeddata.Domain, msg typeddata.Message) (typeddata.SignedMessage, error) {
	signed, err := typeddata.Sign(acct.Identity, domain, acct.Address, msg)
	if err != nil && acct.Identity.Wiped() {
		return signed, errs.New(errs.KindInvalidState, errs.WithMessage("session disconnected while signing"), errs.WithCause(err))
	}
	return signed, err
}
