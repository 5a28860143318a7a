// Package api exposes a session to a local UI over HTTP and WebSocket.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/scr1ptjunk13/paradex-trade-hub/params"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/account"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/crypto"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/errs"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/exchange"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/order"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/session"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/wallet"
)

// Trader is the session surface the API drives. *session.Session implements it.
type Trader interface {
	Connect(ctx context.Context, w account.WalletSigner, owner string) error
	Disconnect()
	EnableTrading() error
	Snapshot() session.Snapshot
	Observe(fn session.Observer) (cancel func())
	PlaceOrder(ctx context.Context, req order.Request, leverage decimal.Decimal) (exchange.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	CancelAllOrders(ctx context.Context, market string) error
	GetBalance(ctx context.Context) (decimal.Decimal, error)
	GetPositions(ctx context.Context) ([]exchange.Position, error)
	GetOpenOrders(ctx context.Context, market string) ([]exchange.Order, error)
}

// Markets resolves trading rules. *market.Registry implements it.
type Markets interface {
	Constraints(ctx context.Context, symbol string) (order.MarketConstraints, error)
}

const maxBodyBytes = 1 << 16

// Server handles REST API and WebSocket connections
type Server struct {
	trader   Trader
	markets  Markets
	cfg      params.Config
	log      *zap.SugaredLogger
	router   *mux.Router
	hub      *Hub
	upgrader websocket.Upgrader
	stop     func()
}

// NewServer wires the routes and starts forwarding session snapshots to
// WebSocket clients. Call Close to stop forwarding.
func NewServer(trader Trader, markets Markets, cfg params.Config, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		trader:  trader,
		markets: markets,
		cfg:     cfg,
		log:     log,
		router:  mux.NewRouter(),
		hub:     NewHub(log),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.originAllowed,
	}
	s.stop = trader.Observe(func(snap session.Snapshot) {
		s.hub.BroadcastToChannel(ChannelSession, SessionUpdate{Type: ChannelSession, Session: snap})
	})

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Session lifecycle
	api.HandleFunc("/session", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/session/typed-data", s.handleGetTypedData).Methods(http.MethodGet)
	api.HandleFunc("/session/connect", s.handleConnect).Methods(http.MethodPost)
	api.HandleFunc("/session/disconnect", s.handleDisconnect).Methods(http.MethodPost)
	api.HandleFunc("/session/enable-trading", s.handleEnableTrading).Methods(http.MethodPost)

	// Account endpoints
	api.HandleFunc("/balance", s.handleGetBalance).Methods(http.MethodGet)
	api.HandleFunc("/positions", s.handleGetPositions).Methods(http.MethodGet)

	// Orders
	api.HandleFunc("/orders", s.handleGetOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders", s.handlePlaceOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders", s.handleCancelAll).Methods(http.MethodDelete)
	api.HandleFunc("/orders/{id}", s.handleCancelOrder).Methods(http.MethodDelete)

	// Market endpoints
	api.HandleFunc("/markets/{symbol}", s.handleGetMarket).Methods(http.MethodGet)

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
}

// Handler returns the router wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.API.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("api_listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Close()
		return srv.Shutdown(shutdownCtx)
	}
}

// Close stops snapshot forwarding and disconnects WebSocket clients.
func (s *Server) Close() {
	s.stop()
	s.hub.CloseAll()
}

func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.API.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.trader.Snapshot())
}

// handleGetTypedData serves the EIP-712 document a browser wallet signs
// with eth_signTypedData_v4 before connecting.
func (s *Server) handleGetTypedData(w http.ResponseWriter, _ *http.Request) {
	doc, err := crypto.StarkKeyToJSON(s.cfg.Exchange.WalletDomain())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", err.Error(), "")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, doc)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	signer, err := wallet.NewPresigned(req.Owner, req.Signature)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error(), "")
		return
	}
	if err := signer.Check(crypto.StarkKeyTypedData(s.cfg.Exchange.WalletDomain())); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_signature", err.Error(), "")
		return
	}

	if err := s.trader.Connect(r.Context(), signer, req.Owner); err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.trader.Snapshot())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	s.trader.Disconnect()
	respondJSON(w, http.StatusOK, s.trader.Snapshot())
}

func (s *Server) handleEnableTrading(w http.ResponseWriter, _ *http.Request) {
	if err := s.trader.EnableTrading(); err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.trader.Snapshot())
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.trader.GetBalance(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, BalanceResponse{Token: s.cfg.Session.BalanceToken, Balance: balance})
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.trader.GetPositions(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, PositionsResponse{Results: positions})
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.trader.GetOpenOrders(r.Context(), r.URL.Query().Get("market"))
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, OrdersResponse{Results: orders})
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ack, err := s.trader.PlaceOrder(r.Context(), order.Request{
		Market:         req.Market,
		Side:           order.Side(strings.ToUpper(req.Side)),
		Kind:           order.Kind(strings.ToUpper(req.Type)),
		RawSize:        req.Size,
		LimitPrice:     req.Price,
		TimeInForce:    order.TimeInForce(strings.ToUpper(req.Instruction)),
		ReferencePrice: req.ReferencePrice,
	}, req.Leverage)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, ack)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.trader.CancelOrder(r.Context(), id); err != nil {
		s.respondFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancelAll(w http.ResponseWriter, r *http.Request) {
	if err := s.trader.CancelAllOrders(r.Context(), r.URL.Query().Get("market")); err != nil {
		s.respondFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	c, err := s.markets.Constraints(r.Context(), symbol)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"session": string(s.trader.Snapshot().State),
	})
}

// ==============================
// Helper Functions
// ==============================

// respondFailure maps local rejects and the session error taxonomy to HTTP.
func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	var reject *order.RejectError
	if errors.As(err, &reject) {
		status := http.StatusUnprocessableEntity
		if reject.Reason == order.UnknownMarket {
			status = http.StatusNotFound
		}
		respondError(w, status, "rejected_locally", err.Error(), string(reject.Reason))
		return
	}

	kind := errs.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case errs.KindInvalidState:
		status = http.StatusConflict
	case errs.KindDerivationCancelled, errs.KindDerivationFailed:
		status = http.StatusBadRequest
	case errs.KindSessionExpired:
		status = http.StatusUnauthorized
	case errs.KindRejectedByExchange:
		status = http.StatusUnprocessableEntity
	case errs.KindTransient:
		status = http.StatusServiceUnavailable
	case errs.KindProtocol:
		status = http.StatusBadGateway
	default:
		kind = "internal"
		s.log.Errorw("api_unexpected_error", "err", err)
	}
	respondError(w, status, string(kind), err.Error(), errs.Reason(err))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "failed to read body", "")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error(), "")
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, kind, message, reason string) {
	respondJSON(w, status, ErrorResponse{
		Error:   kind,
		Message: message,
		Reason:  reason,
	})
}
