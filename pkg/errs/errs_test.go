package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsMatchesKind(t *testing.T) {
	err := New(KindTransient, WithHTTP(503), WithMessage("upstream unavailable"))
	wrapped := fmt.Errorf("get balances: %w", err)

	require.ErrorIs(t, wrapped, ErrTransient)
	require.NotErrorIs(t, wrapped, ErrProtocol)
	require.Equal(t, KindTransient, KindOf(wrapped))
}

func TestUnwrapCause(t *testing.T) {
	err := New(KindTransient, WithCause(context.Canceled))
	require.ErrorIs(t, err, context.Canceled)
	require.Contains(t, err.Error(), "context canceled")
}

func TestReasonPrefersCode(t *testing.T) {
	err := New(KindRejectedByExchange, WithHTTP(400), WithCode("ORDER_SIZE_TOO_SMALL"), WithMessage("size below minimum"))
	require.Equal(t, "ORDER_SIZE_TOO_SMALL", Reason(err))
	require.Equal(t, "rejected_by_exchange: ORDER_SIZE_TOO_SMALL: size below minimum", err.Error())

	noCode := New(KindRejectedByExchange, WithMessage("nope"))
	require.Equal(t, "nope", Reason(noCode))
	require.Equal(t, "", Reason(errors.New("plain")))
}

func TestIsUnauthorized(t *testing.T) {
	require.True(t, IsUnauthorized(New(KindRejectedByExchange, WithHTTP(401))))
	require.False(t, IsUnauthorized(New(KindRejectedByExchange, WithHTTP(400))))
	require.False(t, IsUnauthorized(New(KindTransient, WithHTTP(401))))
}
