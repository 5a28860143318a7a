package params

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFromEnvOverrides(t *testing.T) {
	envFile := writeFile(t, ".env", "API_ADDR=127.0.0.1:9999\nSESSION_TOKEN_TTL=1h\n")
	t.Cleanup(func() { os.Unsetenv("API_ADDR") })
	t.Setenv("PARADEX_API_URL", "http://localhost:1234/v1")
	t.Setenv("API_ALLOWED_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("HTTP_TIMEOUT_MS", "1500")
	// ENV wins over the .env file.
	t.Setenv("SESSION_TOKEN_TTL", "2h")

	cfg := LoadFromEnv(envFile)
	require.Equal(t, "http://localhost:1234/v1", cfg.Exchange.APIBaseURL)
	require.Equal(t, "127.0.0.1:9999", cfg.API.Addr)
	require.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.API.AllowedOrigins)
	require.Equal(t, 1500*time.Millisecond, cfg.HTTP.Timeout)
	require.Equal(t, 2*time.Hour, cfg.Session.TokenTTL)
}

func TestLoadFromEnvTestnet(t *testing.T) {
	t.Setenv("PARADEX_ENV", "testnet")
	cfg := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))
	require.Equal(t, "testnet", cfg.Exchange.Environment)
	require.Equal(t, int64(11155111), cfg.Exchange.L1ChainID)
	require.Equal(t, "PRIVATE_SN_POTC_SEPOLIA", cfg.Exchange.ChainID)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "tradehub.yaml", `
exchange:
  apiBaseUrl: http://exchange.test/v1
  accountClassHash: "0x1"
  accountProxyClassHash: "0x2"
session:
  tokenTtl: 30m
market:
  cachePath: ""
`)
	cfg, err := LoadFile(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.Equal(t, "http://exchange.test/v1", cfg.Exchange.APIBaseURL)
	require.Equal(t, "0x1", cfg.Exchange.AccountClassHash)
	require.Equal(t, 30*time.Minute, cfg.Session.TokenTTL)
	require.Empty(t, cfg.Market.CachePath)
	// Untouched fields keep their defaults.
	require.Equal(t, "Paradex", cfg.Exchange.Name)
	require.Equal(t, 7*24*time.Hour, cfg.Session.SignatureExpiry)

	_, err = LoadFile(filepath.Join(t.TempDir(), "nope.yaml"), "")
	require.Error(t, err)
}

func TestChainIDFelt(t *testing.T) {
	felt, err := Exchange{ChainID: "0x1234"}.ChainIDFelt()
	require.NoError(t, err)
	require.Zero(t, big.NewInt(0x1234).Cmp(felt))

	felt, err = Default().Exchange.ChainIDFelt()
	require.NoError(t, err)
	require.Equal(t, 1, felt.Sign())

	_, err = Exchange{}.ChainIDFelt()
	require.Error(t, err)
}

func TestWalletDomain(t *testing.T) {
	d := Testnet().Exchange.WalletDomain()
	require.Equal(t, "Paradex", d.Name)
	require.Equal(t, "1", d.Version)
	require.Zero(t, big.NewInt(11155111).Cmp(d.ChainID))
}
