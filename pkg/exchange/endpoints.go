package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/errs"
)

// alreadyOnboardedCode is the structured code for a repeated onboarding.
const alreadyOnboardedCode = "ALREADY_ONBOARDED"

// GetSystemConfig fetches chain id and account class hashes. Public.
func (c *Client) GetSystemConfig(ctx context.Context) (SystemConfig, error) {
	var out SystemConfig
	err := c.do(ctx, request{method: http.MethodGet, path: "/system/config"}, &out)
	return out, err
}

// GetMarkets lists markets, optionally only one symbol. Public.
func (c *Client) GetMarkets(ctx context.Context, market string) ([]Market, error) {
	var out resultsEnvelope[Market]
	if err := c.do(ctx, request{method: http.MethodGet, path: "/markets", query: marketQuery(market)}, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Onboard registers the account. A response saying the account already
// exists is success; the returned bool reports that case.
func (c *Client) Onboard(ctx context.Context, req OnboardingRequest) (bool, error) {
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/onboarding",
		headers: map[string]string{
			headerEthereumAccount:   req.EthereumAccount,
			headerStarknetAccount:   req.StarknetAccount,
			headerStarknetSignature: req.Signature,
			headerTimestamp:         strconv.FormatInt(req.Timestamp, 10),
		},
		body: onboardingBody{PublicKey: req.PublicKey},
	}, nil)
	if err == nil {
		return false, nil
	}
	if IsAlreadyOnboarded(err) {
		return true, nil
	}
	return false, err
}

// IsAlreadyOnboarded matches the structured code first and falls back to
// the word "already" in the error or message.
func IsAlreadyOnboarded(err error) bool {
	var e *errs.E
	if !errors.As(err, &e) || e.Kind != errs.KindRejectedByExchange {
		return false
	}
	if strings.EqualFold(e.Code, alreadyOnboardedCode) {
		return true
	}
	return strings.Contains(strings.ToLower(e.Code), "already") ||
		strings.Contains(strings.ToLower(e.Message), "already")
}

// Authenticate exchanges a signed auth request for a bearer token.
func (c *Client) Authenticate(ctx context.Context, req AuthRequest) (string, error) {
	var out authResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth",
		headers: map[string]string{
			headerStarknetAccount:     req.StarknetAccount,
			headerStarknetSignature:   req.Signature,
			headerTimestamp:           strconv.FormatInt(req.Timestamp, 10),
			headerSignatureExpiration: strconv.FormatInt(req.Expiration, 10),
		},
		body: struct{}{},
	}, &out)
	if err != nil {
		return "", err
	}
	if out.JWTToken == "" {
		return "", errs.New(errs.KindProtocol, errs.WithMessage("auth response without jwt_token"))
	}
	return out.JWTToken, nil
}

func (c *Client) GetBalances(ctx context.Context, token string) ([]Balance, error) {
	var out resultsEnvelope[Balance]
	if err := c.do(ctx, request{method: http.MethodGet, path: "/balance", token: token}, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (c *Client) GetPositions(ctx context.Context, token string) ([]Position, error) {
	var out resultsEnvelope[Position]
	if err := c.do(ctx, request{method: http.MethodGet, path: "/positions", token: token}, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// GetOpenOrders lists open orders, optionally for one market.
func (c *Client) GetOpenOrders(ctx context.Context, token, market string) ([]Order, error) {
	var out resultsEnvelope[Order]
	if err := c.do(ctx, request{method: http.MethodGet, path: "/orders", query: marketQuery(market), token: token}, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (c *Client) GetAccountSummary(ctx context.Context, token string) (AccountSummary, error) {
	var out AccountSummary
	err := c.do(ctx, request{method: http.MethodGet, path: "/account/summary", token: token}, &out)
	return out, err
}

// SubmitOrder posts a signed order. It is never retried here: a retried
// signed order could be filled twice.
func (c *Client) SubmitOrder(ctx context.Context, token string, body OrderBody) (Order, error) {
	var out Order
	err := c.do(ctx, request{method: http.MethodPost, path: "/orders", token: token, body: body}, &out)
	return out, err
}

func (c *Client) CancelOrder(ctx context.Context, token, orderID string) error {
	if orderID == "" {
		return fmt.Errorf("cancel order: empty order id")
	}
	return c.do(ctx, request{method: http.MethodDelete, path: "/orders/" + url.PathEscape(orderID), token: token}, nil)
}

// CancelAllOrders cancels open orders, optionally for one market only.
func (c *Client) CancelAllOrders(ctx context.Context, token, market string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/orders", query: marketQuery(market), token: token}, nil)
}

func marketQuery(market string) url.Values {
	if market == "" {
		return nil
	}
	return url.Values{"market": []string{market}}
}
