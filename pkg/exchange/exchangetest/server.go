// Package exchangetest provides an in-process fake of the exchange REST API
// for tests.
package exchangetest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/exchange"
)

// Route names used for call counting and failure injection.
const (
	RouteSystemConfig = "GET /system/config"
	RouteMarkets      = "GET /markets"
	RouteOnboarding   = "POST /onboarding"
	RouteAuth         = "POST /auth"
	RouteBalance      = "GET /balance"
	RoutePositions    = "GET /positions"
	RouteOrders       = "GET /orders"
	RouteSubmitOrder  = "POST /orders"
	RouteCancelOrder  = "DELETE /orders/{id}"
	RouteCancelAll    = "DELETE /orders"
	RouteSummary      = "GET /account/summary"
)

// Failure is a canned error response. When Raw is set it is sent verbatim
// instead of the {error, message} body.
type Failure struct {
	Status  int
	Code    string
	Message string
	Raw     string
}

// Request is a recorded request.
type Request struct {
	Route   string
	Header  http.Header
	Body    []byte
	Query   string
	Account string
}

// Server is a fake exchange. Zero or more failures can be queued per route.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	calls      map[string]int
	failures   map[string][]Failure
	holds      map[string]chan struct{}
	tokens     map[string]bool
	onboarded  map[string]bool
	open       map[string]exchange.Order
	requests   []Request
	orderSeq   int
	config     exchange.SystemConfig
	markets    []exchange.Market
	balances   []exchange.Balance
	positions  []exchange.Position
	summary    exchange.AccountSummary
	tokenCount int
}

// New starts a fake exchange serving under /v1.
func New() *Server {
	s := &Server{
		calls:     make(map[string]int),
		failures:  make(map[string][]Failure),
		holds:     make(map[string]chan struct{}),
		tokens:    make(map[string]bool),
		onboarded: make(map[string]bool),
		open:      make(map[string]exchange.Order),
		config: exchange.SystemConfig{
			ChainID:                   "PRIVATE_SN_PARACLEAR_MAINNET",
			ParaclearAccountHash:      "0x1234",
			ParaclearAccountProxyHash: "0x5678",
			L1ChainID:                 "1",
		},
	}

	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/system/config", s.route(RouteSystemConfig, false, s.handleSystemConfig)).Methods(http.MethodGet)
	v1.HandleFunc("/markets", s.route(RouteMarkets, false, s.handleMarkets)).Methods(http.MethodGet)
	v1.HandleFunc("/onboarding", s.route(RouteOnboarding, false, s.handleOnboarding)).Methods(http.MethodPost)
	v1.HandleFunc("/auth", s.route(RouteAuth, false, s.handleAuth)).Methods(http.MethodPost)
	v1.HandleFunc("/balance", s.route(RouteBalance, true, s.handleBalance)).Methods(http.MethodGet)
	v1.HandleFunc("/positions", s.route(RoutePositions, true, s.handlePositions)).Methods(http.MethodGet)
	v1.HandleFunc("/account/summary", s.route(RouteSummary, true, s.handleSummary)).Methods(http.MethodGet)
	v1.HandleFunc("/orders", s.route(RouteOrders, true, s.handleOpenOrders)).Methods(http.MethodGet)
	v1.HandleFunc("/orders", s.route(RouteSubmitOrder, true, s.handleSubmit)).Methods(http.MethodPost)
	v1.HandleFunc("/orders", s.route(RouteCancelAll, true, s.handleCancelAll)).Methods(http.MethodDelete)
	v1.HandleFunc("/orders/{id}", s.route(RouteCancelOrder, true, s.handleCancel)).Methods(http.MethodDelete)

	s.Server = httptest.NewServer(r)
	return s
}

// BaseURL is the REST root to hand to exchange.NewClient.
func (s *Server) BaseURL() string {
	return s.URL + "/v1"
}

// Fail queues a failure for the next call of route.
func (s *Server) Fail(route string, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], f)
}

// Hold blocks calls of route until the returned release func is called.
func (s *Server) Hold(route string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.holds[route] = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.holds, route)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// RevokeTokens invalidates every issued bearer token.
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]bool)
}

// Calls returns how many times route was hit.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// Requests returns recorded requests of route.
func (s *Server) Requests(route string) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, r := range s.requests {
		if r.Route == route {
			out = append(out, r)
		}
	}
	return out
}

// TokensIssued counts successful authentications.
func (s *Server) TokensIssued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenCount
}

func (s *Server) SetSystemConfig(c exchange.SystemConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = c
}

func (s *Server) SetMarkets(m ...exchange.Market) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets = m
}

func (s *Server) SetBalances(b ...exchange.Balance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances = b
}

func (s *Server) SetPositions(p ...exchange.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = p
}

func (s *Server) SetAccountSummary(a exchange.AccountSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = a
}

func (s *Server) route(name string, authenticated bool, h func(w http.ResponseWriter, r *http.Request, body []byte)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := readBody(r)

		s.mu.Lock()
		s.calls[name]++
		s.requests = append(s.requests, Request{
			Route:   name,
			Header:  r.Header.Clone(),
			Body:    body,
			Query:   r.URL.RawQuery,
			Account: r.Header.Get("PARADEX-STARKNET-ACCOUNT"),
		})
		hold := s.holds[name]
		s.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}

		s.mu.Lock()
		var fail *Failure
		if queue := s.failures[name]; len(queue) > 0 {
			fail = &queue[0]
			s.failures[name] = queue[1:]
		}
		s.mu.Unlock()
		if fail != nil {
			writeFailure(w, *fail)
			return
		}

		if authenticated && !s.validToken(r) {
			writeFailure(w, Failure{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: "invalid bearer token"})
			return
		}
		h(w, r, body)
	}
}

func (s *Server) validToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[token]
}

func (s *Server) handleSystemConfig(w http.ResponseWriter, _ *http.Request, _ []byte) {
	s.mu.Lock()
	cfg := s.config
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request, _ []byte) {
	want := r.URL.Query().Get("market")
	s.mu.Lock()
	var out []exchange.Market
	for _, m := range s.markets {
		if want == "" || m.Symbol == want {
			out = append(out, m)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (s *Server) handleOnboarding(w http.ResponseWriter, r *http.Request, body []byte) {
	for _, h := range []string{"PARADEX-ETHEREUM-ACCOUNT", "PARADEX-STARKNET-ACCOUNT", "PARADEX-STARKNET-SIGNATURE", "PARADEX-TIMESTAMP"} {
		if r.Header.Get(h) == "" {
			writeFailure(w, Failure{Status: http.StatusBadRequest, Code: "INVALID_REQUEST_HEADER", Message: "missing " + h})
			return
		}
	}
	var req struct {
		PublicKey string `json:"public_key"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.PublicKey == "" {
		writeFailure(w, Failure{Status: http.StatusBadRequest, Code: "INVALID_REQUEST", Message: "public_key required"})
		return
	}

	acct := r.Header.Get("PARADEX-STARKNET-ACCOUNT")
	s.mu.Lock()
	already := s.onboarded[acct]
	s.onboarded[acct] = true
	s.mu.Unlock()
	if already {
		writeFailure(w, Failure{Status: http.StatusBadRequest, Code: "ALREADY_ONBOARDED", Message: "account already onboarded"})
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request, _ []byte) {
	for _, h := range []string{"PARADEX-STARKNET-ACCOUNT", "PARADEX-STARKNET-SIGNATURE", "PARADEX-TIMESTAMP", "PARADEX-SIGNATURE-EXPIRATION"} {
		if r.Header.Get(h) == "" {
			writeFailure(w, Failure{Status: http.StatusBadRequest, Code: "INVALID_REQUEST_HEADER", Message: "missing " + h})
			return
		}
	}
	acct := r.Header.Get("PARADEX-STARKNET-ACCOUNT")
	token := "jwt-" + uuid.NewString()

	s.mu.Lock()
	if !s.onboarded[acct] {
		s.mu.Unlock()
		writeFailure(w, Failure{Status: http.StatusBadRequest, Code: "NOT_ONBOARDED", Message: "account not onboarded"})
		return
	}
	s.tokens[token] = true
	s.tokenCount++
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"jwt_token": token})
}

func (s *Server) handleBalance(w http.ResponseWriter, _ *http.Request, _ []byte) {
	s.mu.Lock()
	out := append([]exchange.Balance(nil), s.balances...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (s *Server) handlePositions(w http.ResponseWriter, _ *http.Request, _ []byte) {
	s.mu.Lock()
	out := append([]exchange.Position(nil), s.positions...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request, _ []byte) {
	s.mu.Lock()
	out := s.summary
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOpenOrders(w http.ResponseWriter, r *http.Request, _ []byte) {
	market := r.URL.Query().Get("market")
	s.mu.Lock()
	out := make([]exchange.Order, 0, len(s.open))
	for _, o := range s.open {
		if market == "" || o.Market == market {
			out = append(out, o)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (s *Server) handleSubmit(w http.ResponseWriter, _ *http.Request, body []byte) {
	var req exchange.OrderBody
	if err := json.Unmarshal(body, &req); err != nil {
		writeFailure(w, Failure{Status: http.StatusBadRequest, Code: "INVALID_REQUEST", Message: err.Error()})
		return
	}
	if req.Market == "" || req.Side == "" || req.Type == "" || req.Size == "" || req.Signature == "" || req.SignatureTimestamp == 0 {
		writeFailure(w, Failure{Status: http.StatusBadRequest, Code: "INVALID_REQUEST", Message: "missing order field"})
		return
	}
	if req.Type == "LIMIT" && req.Price == "" {
		writeFailure(w, Failure{Status: http.StatusBadRequest, Code: "INVALID_PRICE", Message: "limit order without price"})
		return
	}

	s.mu.Lock()
	s.orderSeq++
	o := exchange.Order{
		ID:            fmt.Sprintf("ord-%d", s.orderSeq),
		ClientID:      req.ClientID,
		Market:        req.Market,
		Side:          req.Side,
		Type:          req.Type,
		Size:          req.Size,
		RemainingSize: req.Size,
		Price:         req.Price,
		Instruction:   req.Instruction,
		Status:        "NEW",
		CreatedAt:     req.SignatureTimestamp,
	}
	s.open[o.ID] = o
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, _ []byte) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	_, ok := s.open[id]
	delete(s.open, id)
	s.mu.Unlock()
	if !ok {
		writeFailure(w, Failure{Status: http.StatusNotFound, Code: "ORDER_ID_NOT_FOUND", Message: "order " + id + " not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancelAll(w http.ResponseWriter, r *http.Request, _ []byte) {
	market := r.URL.Query().Get("market")
	s.mu.Lock()
	for id, o := range s.open {
		if market == "" || o.Market == market {
			delete(s.open, id)
		}
	}
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, f Failure) {
	if f.Raw != "" {
		w.WriteHeader(f.Status)
		_, _ = w.Write([]byte(f.Raw))
		return
	}
	writeJSON(w, f.Status, map[string]string{"error": f.Code, "message": f.Message})
}
