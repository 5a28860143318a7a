// Package errs provides the error taxonomy shared by the trading session,
// key derivation and the exchange REST client.
package errs

import (
	"errors"
	"strings"
)

// Kind identifies an error category callers branch on.
type Kind string

const (
	// KindDerivationCancelled: the wallet declined or cancelled the key-derivation signature.
	KindDerivationCancelled Kind = "derivation_cancelled"
	// KindDerivationFailed: the wallet returned unusable signature bytes.
	KindDerivationFailed Kind = "derivation_failed"
	// KindSessionExpired: the bearer token expired and re-authentication failed.
	KindSessionExpired Kind = "session_expired"
	// KindRejectedByExchange: the exchange answered 4xx with a structured reason.
	KindRejectedByExchange Kind = "rejected_by_exchange"
	// KindTransient: 5xx, network failure or cancellation. Safe for the caller to retry reads.
	KindTransient Kind = "transient"
	// KindProtocol: the exchange response could not be decoded.
	KindProtocol Kind = "protocol_error"
	// KindInvalidState: the operation is not allowed in the current session state.
	KindInvalidState Kind = "invalid_state"
)

// Sentinels usable with errors.Is.
var (
	ErrDerivationCancelled = &E{Kind: KindDerivationCancelled}
	ErrDerivationFailed    = &E{Kind: KindDerivationFailed}
	ErrSessionExpired      = &E{Kind: KindSessionExpired}
	ErrRejectedByExchange  = &E{Kind: KindRejectedByExchange}
	ErrTransient           = &E{Kind: KindTransient}
	ErrProtocol            = &E{Kind: KindProtocol}
	ErrInvalidState        = &E{Kind: KindInvalidState}
)

// E captures structured error information.
type E struct {
	Kind    Kind
	HTTP    int    // HTTP status, 0 when no response was received
	Code    string // exchange error code, e.g. "ORDER_SIZE_TOO_SMALL"
	Message string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope of the given kind.
func New(kind Kind, opts ...Option) *E {
	e := &E{Kind: kind}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithHTTP records the HTTP status code.
func WithHTTP(status int) Option {
	return func(e *E) {
		e.HTTP = status
	}
}

// WithCode captures the raw exchange error code.
func WithCode(code string) Option {
	trimmed := strings.TrimSpace(code)
	return func(e *E) {
		e.Code = trimmed
	}
}

// WithCause sets the underlying cause.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// Error implements the error interface.
func (e *E) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Code != "" {
		b.WriteString(": ")
		b.WriteString(e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause.
func (e *E) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches on Kind so that errors.Is(err, errs.ErrTransient) holds for any
// transient envelope.
func (e *E) Is(target error) bool {
	t, ok := target.(*E)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf returns the Kind of the first envelope in err's chain, or "".
func KindOf(err error) Kind {
	var e *E
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Reason returns the exchange's reason for a rejection: code, then message.
func Reason(err error) string {
	var e *E
	if !errors.As(err, &e) {
		return ""
	}
	if e.Code != "" {
		return e.Code
	}
	return e.Message
}

// IsUnauthorized reports whether err is an exchange rejection with HTTP 401.
func IsUnauthorized(err error) bool {
	var e *E
	return errors.As(err, &e) && e.Kind == KindRejectedByExchange && e.HTTP == 401
}
