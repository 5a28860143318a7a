package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/scr1ptjunk13/paradex-trade-hub/params"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/crypto"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/exchange"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/exchange/exchangetest"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/market"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/session"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/util"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/wallet"
)

const ownerKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type fixture struct {
	exch   *exchangetest.Server
	http   *httptest.Server
	cfg    params.Config
	wallet *wallet.Local
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	exch := exchangetest.New()
	t.Cleanup(exch.Close)
	exch.SetMarkets(exchange.Market{
		Symbol:             "BTC-USD-PERP",
		AssetKind:          "PERP",
		OrderSizeIncrement: "0.00001",
		PriceTickSize:      "0.1",
		MinNotional:        "10",
		MaxOrderSize:       "100",
	})
	exch.SetBalances(exchange.Balance{Token: "USDC", Size: decimal.NewFromInt(4000)})

	cfg := params.Default()
	cfg.Exchange.APIBaseURL = exch.BaseURL()
	cfg.API.AllowedOrigins = []string{"http://localhost:3000"}

	clock := util.NewManualClock(time.Unix(1700000000, 0))
	client := exchange.NewClient(exch.BaseURL())
	registry := market.NewRegistry(client, nil, 0, clock, nil)
	sess := session.New(cfg, session.Deps{Exchange: client, Markets: registry, Clock: clock})
	t.Cleanup(sess.Close)

	srv := NewServer(sess, registry, cfg, nil)
	t.Cleanup(srv.Close)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	w, err := wallet.FromPrivateKeyHex(ownerKeyHex)
	require.NoError(t, err)
	return &fixture{exch: exch, http: ts, cfg: cfg, wallet: w}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.http.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func (f *fixture) connectRequest(t *testing.T) ConnectRequest {
	t.Helper()
	sig, err := f.wallet.SignTypedData(context.Background(), crypto.StarkKeyTypedData(f.cfg.Exchange.WalletDomain()))
	require.NoError(t, err)
	return ConnectRequest{Owner: f.wallet.Address().Hex(), Signature: hexutil.Encode(sig)}
}

func (f *fixture) connect(t *testing.T) session.Snapshot {
	t.Helper()
	status, body := f.do(t, http.MethodPost, "/api/v1/session/connect", f.connectRequest(t))
	require.Equal(t, http.StatusOK, status, string(body))
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	return snap
}

func decodeError(t *testing.T, body []byte) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	return e
}

func TestHealthAndTypedData(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(body), `"session":"IDLE"`)

	status, body = f.do(t, http.MethodGet, "/api/v1/session/typed-data", nil)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(body), crypto.StarkKeyAction)
	require.Contains(t, string(body), `"primaryType": "Constant"`)
}

func TestConnectAndEnableTrading(t *testing.T) {
	f := newFixture(t)

	snap := f.connect(t)
	require.Equal(t, session.Authenticated, snap.State)
	require.True(t, strings.EqualFold(f.wallet.Address().Hex(), snap.Owner))
	require.NotEmpty(t, snap.Account)

	status, body := f.do(t, http.MethodPost, "/api/v1/session/enable-trading", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &snap))
	require.True(t, snap.TradingEnabled)

	status, body = f.do(t, http.MethodGet, "/api/v1/balance", nil)
	require.Equal(t, http.StatusOK, status)
	var bal BalanceResponse
	require.NoError(t, json.Unmarshal(body, &bal))
	require.Equal(t, "USDC", bal.Token)
	require.True(t, decimal.NewFromInt(4000).Equal(bal.Balance))

	status, _ = f.do(t, http.MethodPost, "/api/v1/session/disconnect", nil)
	require.Equal(t, http.StatusOK, status)
	status, body = f.do(t, http.MethodGet, "/api/v1/balance", nil)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "invalid_state", decodeError(t, body).Error)
}

func TestConnectRejectsForeignSignature(t *testing.T) {
	f := newFixture(t)
	stranger, err := wallet.Generate()
	require.NoError(t, err)
	sig, err := stranger.SignTypedData(context.Background(), crypto.StarkKeyTypedData(f.cfg.Exchange.WalletDomain()))
	require.NoError(t, err)

	status, body := f.do(t, http.MethodPost, "/api/v1/session/connect", ConnectRequest{
		Owner:     f.wallet.Address().Hex(),
		Signature: hexutil.Encode(sig),
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "invalid_signature", decodeError(t, body).Error)
	require.Zero(t, f.exch.Calls(exchangetest.RouteOnboarding))

	status, _ = f.do(t, http.MethodPost, "/api/v1/session/connect", map[string]string{"owner": "0x1"})
	require.Equal(t, http.StatusBadRequest, status)
}

func TestPlaceOrderFlow(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	order := PlaceOrderRequest{
		Market:      "BTC-USD-PERP",
		Side:        "buy",
		Type:        "limit",
		Size:        decimal.RequireFromString("0.5"),
		Price:       decimal.NewNullDecimal(decimal.NewFromInt(90000)),
		Instruction: "gtc",
		Leverage:    decimal.NewFromInt(10),
	}

	status, _ := f.do(t, http.MethodPost, "/api/v1/orders", order)
	require.Equal(t, http.StatusConflict, status, "trading not enabled yet")

	status, _ = f.do(t, http.MethodPost, "/api/v1/session/enable-trading", nil)
	require.Equal(t, http.StatusOK, status)

	// 4,500 margin against a 4,000 balance.
	status, body := f.do(t, http.MethodPost, "/api/v1/orders", order)
	require.Equal(t, http.StatusUnprocessableEntity, status)
	e := decodeError(t, body)
	require.Equal(t, "rejected_locally", e.Error)
	require.Equal(t, "INSUFFICIENT_MARGIN", e.Reason)
	require.Zero(t, f.exch.Calls(exchangetest.RouteSubmitOrder))

	order.Size = decimal.RequireFromString("0.1")
	status, body = f.do(t, http.MethodPost, "/api/v1/orders", order)
	require.Equal(t, http.StatusCreated, status, string(body))
	var ack exchange.Order
	require.NoError(t, json.Unmarshal(body, &ack))
	require.Equal(t, "BUY", ack.Side)
	require.True(t, decimal.RequireFromString("0.1").Equal(decimal.RequireFromString(ack.Size)))

	status, body = f.do(t, http.MethodGet, "/api/v1/orders?market=BTC-USD-PERP", nil)
	require.Equal(t, http.StatusOK, status)
	var open OrdersResponse
	require.NoError(t, json.Unmarshal(body, &open))
	require.Len(t, open.Results, 1)

	status, _ = f.do(t, http.MethodDelete, "/api/v1/orders/"+ack.ID, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, body = f.do(t, http.MethodDelete, "/api/v1/orders/"+ack.ID, nil)
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Equal(t, "ORDER_ID_NOT_FOUND", decodeError(t, body).Reason)

	status, _ = f.do(t, http.MethodDelete, "/api/v1/orders", nil)
	require.Equal(t, http.StatusNoContent, status)
}

func TestExchangeOutageMapsToServiceUnavailable(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	f.exch.Fail(exchangetest.RoutePositions, exchangetest.Failure{Status: 502, Message: "bad gateway"})
	status, body := f.do(t, http.MethodGet, "/api/v1/positions", nil)
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Equal(t, "transient", decodeError(t, body).Error)
}

func TestGetMarket(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/api/v1/markets/BTC-USD-PERP", nil)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(body), `"symbol":"BTC-USD-PERP"`)

	status, body = f.do(t, http.MethodGet, "/api/v1/markets/DOGE-USD-PERP", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "UNKNOWN_MARKET", decodeError(t, body).Reason)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodOptions, f.http.URL+"/api/v1/orders", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := f.http.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://evil.example")
	resp, err = f.http.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestWebSocketStreamsSessionUpdates(t *testing.T) {
	f := newFixture(t)

	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	next := func() SessionUpdate {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var u SessionUpdate
		require.NoError(t, json.Unmarshal(msg, &u))
		return u
	}

	first := next()
	require.Equal(t, ChannelSession, first.Type)
	require.Equal(t, session.Idle, first.Session.State)

	f.connect(t)
	seen := map[session.State]bool{}
	for !seen[session.Authenticated] {
		seen[next().Session.State] = true
	}
	require.True(t, seen[session.Deriving])
	require.True(t, seen[session.Authenticating])

	f.do(t, http.MethodPost, "/api/v1/session/disconnect", nil)
	for {
		if u := next(); u.Session.State == session.Disconnected {
			require.Empty(t, u.Session.Account)
			break
		}
	}
}
