package storage

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/order"
)

func TestMarketPersistence(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPebbleStore(dir)
	require.NoError(t, err)

	fetched := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	btc := order.MarketConstraints{
		Symbol:      "BTC-USD-PERP",
		PriceTick:   decimal.RequireFromString("0.1"),
		SizeStep:    decimal.RequireFromString("0.00001"),
		MinNotional: decimal.RequireFromString("10"),
		MaxSize:     decimal.RequireFromString("100"),
		FetchedAt:   fetched,
	}
	require.NoError(t, store.SaveMarket(btc))
	require.NoError(t, store.SaveMarket(order.MarketConstraints{Symbol: "ETH-USD-PERP", SizeStep: decimal.RequireFromString("0.001")}))
	require.NoError(t, store.Close())

	// Reopen and verify
	store, err = NewPebbleStore(dir)
	require.NoError(t, err)
	defer store.Close()

	got, ok, err := store.LoadMarket("BTC-USD-PERP")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.SizeStep.Equal(btc.SizeStep))
	require.True(t, got.PriceTick.Equal(btc.PriceTick))
	require.True(t, got.FetchedAt.Equal(fetched))

	_, ok, err = store.LoadMarket("SOL-USD-PERP")
	require.NoError(t, err)
	require.False(t, ok)

	all, err := store.LoadAllMarkets()
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestAccountRecord(t *testing.T) {
	store, err := NewPebbleStore("")
	require.NoError(t, err)
	defer store.Close()

	rec := AccountRecord{
		Owner:       "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23",
		Address:     "0x4fee0f0152666bc022a92ca9721393b32cc71214870c2ece5e352240e06d801",
		PublicKey:   "0x77a3b314db07c45076d11f62b6f9e748a39790441823307743cf00d6597ea43",
		OnboardedAt: time.Unix(1700000000, 0).UTC(),
	}
	require.NoError(t, store.SaveAccount(rec))

	got, ok, err := store.LoadAccount(rec.Owner)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec.Address, got.Address)
	require.True(t, got.OnboardedAt.Equal(rec.OnboardedAt))
}
