package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/scr1ptjunk13/paradex-trade-hub/params"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/account"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/exchange"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/order"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/typeddata"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/wallet"
)

// sign-order derives a trading key from a wallet key and prints a signed
// order body, offline. Useful for checking signatures against another
// client before trading.
func main() {
	walletKey := flag.String("key", "", "wallet private key (hex), empty generates one")
	accountHash := flag.String("account-class-hash", "", "account class hash (defaults to config)")
	proxyHash := flag.String("proxy-class-hash", "", "account proxy class hash (defaults to config)")
	symbol := flag.String("market", "BTC-USD-PERP", "market symbol")
	side := flag.String("side", "BUY", "BUY or SELL")
	size := flag.String("size", "0.01", "order size")
	price := flag.String("price", "50000", "limit price")
	flag.Parse()

	cfg := params.LoadFromEnv("")
	if *accountHash == "" {
		*accountHash = cfg.Exchange.AccountClassHash
	}
	if *proxyHash == "" {
		*proxyHash = cfg.Exchange.AccountProxyClassHash
	}

	// Step 1: Generate or load wallet key
	var w *wallet.Local
	var err error
	if *walletKey == "" {
		fmt.Println("Generating new wallet key...")
		w, err = wallet.Generate()
	} else {
		w, err = wallet.FromPrivateKeyHex(*walletKey)
	}
	if err != nil {
		fail("wallet", err)
	}
	fmt.Printf("Owner: %s\n\n", w.Address().Hex())

	// Step 2: Derive the trading identity and account
	identity, err := account.DeriveSigningIdentity(context.Background(), w, w.Address().Hex(), cfg.Exchange.WalletDomain())
	if err != nil {
		fail("derive", err)
	}
	defer identity.Wipe()

	hashes, err := account.ParseClassHashes(*accountHash, *proxyHash)
	if err != nil {
		fail("class hashes (set -account-class-hash and -proxy-class-hash)", err)
	}
	acct, err := account.NewExchangeAccount(identity, hashes)
	if err != nil {
		fail("account", err)
	}
	fmt.Printf("Stark public key: %s\n", identity.PublicKeyHex())
	fmt.Printf("Account: %s\n\n", acct.AddressHex())

	// Step 3: Quantize the order. Constraints here are permissive; the
	// exchange applies the real ones.
	req := order.Request{
		Market:     *symbol,
		Side:       order.Side(*side),
		Kind:       order.Limit,
		RawSize:    decimal.RequireFromString(*size),
		LimitPrice: decimal.NewNullDecimal(decimal.RequireFromString(*price)),
	}
	constraints := order.MarketConstraints{
		Symbol:   *symbol,
		SizeStep: decimal.New(1, -order.QuantumDecimals),
	}
	q, err := order.PrepareOrder(req, constraints, decimal.NewFromInt(1_000_000_000), decimal.NewFromInt(1))
	if err != nil {
		fail("prepare", err)
	}

	// Step 4: Sign order as StarkNet typed data
	chainID, err := cfg.Exchange.ChainIDFelt()
	if err != nil {
		fail("chain id", err)
	}
	domain := typeddata.NewDomain(cfg.Exchange.Name, chainID)
	ts := time.Now().UnixMilli()
	msg, err := typeddata.Order(q, ts)
	if err != nil {
		fail("order message", err)
	}
	signed, err := typeddata.Sign(identity, domain, acct.Address, msg)
	if err != nil {
		fail("sign", err)
	}
	fmt.Printf("Message hash: 0x%x\n\n", signed.Hash)

	// Step 5: Serialize the body as POST /orders expects it
	body := exchange.NewOrderBody(q, signed.Signature(), ts)
	bodyJSON, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		fail("marshal", err)
	}
	fmt.Println("Signed order body (JSON):")
	fmt.Println(string(bodyJSON))
	fmt.Println()

	// Step 6: Verify signature
	fmt.Println("Verifying signature...")
	ok, err := typeddata.Verify(identity.PublicPoint(), domain, acct.Address, signed)
	if err != nil {
		fail("verify", err)
	}
	if !ok {
		fmt.Println("✗ Signature INVALID")
		os.Exit(1)
	}
	fmt.Println("✓ Signature VALID")
	fmt.Println()
	fmt.Println("Submit with headers:")
	fmt.Println("  POST " + cfg.Exchange.APIBaseURL + "/orders")
	fmt.Println("  Authorization: Bearer <jwt>")
}

func fail(step string, err error) {
	fmt.Printf("Error (%s): %v\n", step, err)
	os.Exit(1)
}
