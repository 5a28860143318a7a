// Package exchange is the stateless REST client of the trading API.
// Every authenticated call takes the bearer token explicitly; the client
// never retries and classifies every failure into the errs taxonomy.
package exchange

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/errs"
)

const (
	headerEthereumAccount     = "PARADEX-ETHEREUM-ACCOUNT"
	headerStarknetAccount     = "PARADEX-STARKNET-ACCOUNT"
	headerStarknetSignature   = "PARADEX-STARKNET-SIGNATURE"
	headerTimestamp           = "PARADEX-TIMESTAMP"
	headerSignatureExpiration = "PARADEX-SIGNATURE-EXPIRATION"
	headerRequestID           = "X-Request-ID"

	// maxErrorBody bounds how much of a failed response is kept in errors.
	maxErrorBody = 4 << 10
)

// Client talks to one exchange REST root, e.g. https://api.prod.paradex.trade/v1.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *zap.SugaredLogger
}

type Option func(*Client)

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRateLimit paces outgoing requests. rps <= 0 disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the REST root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type request struct {
	method  string
	path    string
	query   url.Values
	token   string
	headers map[string]string
	body    any
}

// do sends req and decodes a 2xx body into out (if non-nil).
//
// Classification: 4xx -> RejectedByExchange, 5xx / network / cancellation ->
// Transient, undecodable success body or unexpected status -> Protocol.
func (c *Client) do(ctx context.Context, req request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errs.New(errs.KindTransient, errs.WithMessage("rate limiter"), errs.WithCause(err))
		}
	}

	endpoint := c.baseURL + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", req.method, req.path, err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create %s %s request: %w", req.method, req.path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set(headerRequestID, requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return errs.New(errs.KindTransient, errs.WithMessage(req.method+" "+req.path), errs.WithCause(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	c.log.Debugw("exchange_request",
		"method", req.method,
		"path", req.path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	switch {
	case resp.StatusCode >= 500:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return errs.New(errs.KindTransient,
			errs.WithHTTP(resp.StatusCode),
			errs.WithMessage(errorMessage(raw)),
		)
	case resp.StatusCode >= 400:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var eb errorBody
		if err := json.Unmarshal(raw, &eb); err != nil || (eb.Error == "" && eb.Message == "") {
			// A 401 stays a rejection whatever its body, so the caller re-authenticates.
			kind := errs.KindProtocol
			if resp.StatusCode == http.StatusUnauthorized {
				kind = errs.KindRejectedByExchange
			}
			return errs.New(kind,
				errs.WithHTTP(resp.StatusCode),
				errs.WithMessage(strings.TrimSpace(string(raw))),
			)
		}
		return errs.New(errs.KindRejectedByExchange,
			errs.WithHTTP(resp.StatusCode),
			errs.WithCode(eb.Error),
			errs.WithMessage(eb.Message),
		)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return errs.New(errs.KindProtocol,
			errs.WithHTTP(resp.StatusCode),
			errs.WithMessage("unexpected status "+strconv.Itoa(resp.StatusCode)),
		)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.New(errs.KindTransient, errs.WithMessage("read "+req.path), errs.WithCause(err))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errs.New(errs.KindProtocol,
			errs.WithHTTP(resp.StatusCode),
			errs.WithMessage("decode "+req.path),
			errs.WithCause(err),
		)
	}
	return nil
}

func errorMessage(raw []byte) string {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil && eb.Message != "" {
		return eb.Message
	}
	return strings.TrimSpace(string(raw))
}
