package params

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/crypto"
)

type Exchange struct {
	Name        string `yaml:"name"`        // typed-data domain name
	APIBaseURL  string `yaml:"apiBaseUrl"`  // REST root including the version segment
	Environment string `yaml:"environment"` // prod | testnet
	L1ChainID   int64  `yaml:"l1ChainId"`   // chain id of the wallet-signed derivation message
	// ChainID is the L2 chain id, either as its short-string name
	// (PRIVATE_SN_PARACLEAR_MAINNET) or already felt-encoded (0x...).
	// Empty means resolve from GET /system/config.
	ChainID string `yaml:"chainId"`
	// Class hashes used to derive the account address. Empty means resolve
	// from GET /system/config.
	AccountClassHash      string `yaml:"accountClassHash"`
	AccountProxyClassHash string `yaml:"accountProxyClassHash"`
}

type Session struct {
	TokenTTL        time.Duration `yaml:"tokenTtl"`        // how long a bearer token is trusted locally
	SignatureExpiry time.Duration `yaml:"signatureExpiry"` // expiration window signed into auth requests
	BalanceToken    string        `yaml:"balanceToken"`    // collateral token reported by GetBalance
}

type HTTP struct {
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rateLimit"` // requests per second, 0 disables pacing
	Burst     int           `yaml:"burst"`
}

type Market struct {
	CachePath string        `yaml:"cachePath"` // pebble directory, empty keeps the cache in memory
	CacheTTL  time.Duration `yaml:"cacheTtl"`
}

type API struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type Telemetry struct {
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	ServiceName  string `yaml:"serviceName"`
}

type Log struct {
	File string `yaml:"file"`
}

// Config is an immutable configuration record. It is passed by value into
// every component so that independent sessions never share mutable state.
type Config struct {
	Exchange  Exchange  `yaml:"exchange"`
	Session   Session   `yaml:"session"`
	HTTP      HTTP      `yaml:"http"`
	Market    Market    `yaml:"market"`
	API       API       `yaml:"api"`
	Telemetry Telemetry `yaml:"telemetry"`
	Log       Log       `yaml:"log"`
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			Name:        "Paradex",
			APIBaseURL:  "https://api.prod.paradex.trade/v1",
			Environment: "prod",
			L1ChainID:   1,
			ChainID:     "PRIVATE_SN_PARACLEAR_MAINNET",
		},
		Session: Session{
			TokenTTL:        7 * 24 * time.Hour,
			SignatureExpiry: 7 * 24 * time.Hour,
			BalanceToken:    "USDC",
		},
		HTTP: HTTP{
			Timeout:   30 * time.Second,
			RateLimit: 10,
			Burst:     5,
		},
		Market: Market{
			CachePath: "data/markets",
			CacheTTL:  10 * time.Minute,
		},
		API: API{
			Addr:           "127.0.0.1:8090",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Telemetry: Telemetry{
			ServiceName: "paradex-trade-hub",
		},
		Log: Log{
			File: "data/tradehub.log",
		},
	}
}

// Testnet returns defaults for the Paradex testnet.
func Testnet() Config {
	cfg := Default()
	cfg.Exchange.APIBaseURL = "https://api.testnet.paradex.trade/v1"
	cfg.Exchange.Environment = "testnet"
	cfg.Exchange.L1ChainID = 11155111
	cfg.Exchange.ChainID = "PRIVATE_SN_POTC_SEPOLIA"
	return cfg
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()
	if os.Getenv("PARADEX_ENV") == "testnet" {
		cfg = Testnet()
	}
	return applyEnv(cfg, envPath)
}

// LoadFile overlays a YAML file on the defaults, then applies .env and ENV.
// Priority: ENV > .env file > YAML > defaults
func LoadFile(path, envPath string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return applyEnv(cfg, envPath), nil
}

func applyEnv(cfg Config, envPath string) Config {
	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Exchange.APIBaseURL = getEnv("PARADEX_API_URL", cfg.Exchange.APIBaseURL)
	cfg.Exchange.Environment = getEnv("PARADEX_ENV", cfg.Exchange.Environment)
	cfg.Exchange.ChainID = getEnv("PARADEX_CHAIN_ID", cfg.Exchange.ChainID)
	cfg.Exchange.AccountClassHash = getEnv("PARADEX_ACCOUNT_CLASS_HASH", cfg.Exchange.AccountClassHash)
	cfg.Exchange.AccountProxyClassHash = getEnv("PARADEX_ACCOUNT_PROXY_CLASS_HASH", cfg.Exchange.AccountProxyClassHash)
	if v := os.Getenv("PARADEX_L1_CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Exchange.L1ChainID = id
		}
	}

	cfg.Session.TokenTTL = getDuration("SESSION_TOKEN_TTL", cfg.Session.TokenTTL)
	cfg.Session.SignatureExpiry = getDuration("SESSION_SIGNATURE_EXPIRY", cfg.Session.SignatureExpiry)
	cfg.Session.BalanceToken = getEnv("SESSION_BALANCE_TOKEN", cfg.Session.BalanceToken)

	if ms := os.Getenv("HTTP_TIMEOUT_MS"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil {
			cfg.HTTP.Timeout = time.Duration(v) * time.Millisecond
		}
	}
	if rps := os.Getenv("HTTP_RATE_LIMIT"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil {
			cfg.HTTP.RateLimit = v
		}
	}

	cfg.Market.CachePath = getEnv("MARKET_CACHE_PATH", cfg.Market.CachePath)
	cfg.Market.CacheTTL = getDuration("MARKET_CACHE_TTL", cfg.Market.CacheTTL)

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	// Example: "http://localhost:3000,http://localhost:3001"
	if origins := os.Getenv("API_ALLOWED_ORIGINS"); origins != "" {
		cfg.API.AllowedOrigins = strings.Split(origins, ",")
	}

	cfg.Telemetry.OTLPEndpoint = getEnv("OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)

	return cfg
}

// ChainIDFelt returns the L2 chain id as a field element.
func (e Exchange) ChainIDFelt() (*big.Int, error) {
	if e.ChainID == "" {
		return nil, fmt.Errorf("chain id not configured")
	}
	return crypto.FeltFromString(e.ChainID)
}

// WalletDomain returns the EIP-712 domain of the key-derivation message.
func (e Exchange) WalletDomain() crypto.EIP712Domain {
	return crypto.EIP712Domain{
		Name:    e.Name,
		Version: "1",
		ChainID: big.NewInt(e.L1ChainID),
	}
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
