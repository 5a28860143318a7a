package account

import (
	"fmt"
	"math/big"

	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/crypto"
)

// addressBound is 2^251 - 256, the upper bound of a contract address.
var addressBound = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 251), big.NewInt(256))

var contractAddressPrefix = crypto.MustEncodeShortString("STARKNET_CONTRACT_ADDRESS")

// ClassHashes are the two exchange-published constants the account address
// depends on.
type ClassHashes struct {
	Account *big.Int // account implementation class
	Proxy   *big.Int // proxy the account is deployed behind
}

// ParseClassHashes parses hex class hashes.
func ParseClassHashes(accountHash, proxyHash string) (ClassHashes, error) {
	a, err := crypto.FeltFromString(accountHash)
	if err != nil {
		return ClassHashes{}, fmt.Errorf("account class hash: %w", err)
	}
	p, err := crypto.FeltFromString(proxyHash)
	if err != nil {
		return ClassHashes{}, fmt.Errorf("proxy class hash: %w", err)
	}
	if a.Sign() == 0 || p.Sign() == 0 {
		return ClassHashes{}, fmt.Errorf("class hashes must be non-zero")
	}
	return ClassHashes{Account: a, Proxy: p}, nil
}

// ExchangeAccount is the trading account derived from a signing identity.
type ExchangeAccount struct {
	Address  *big.Int
	Identity *SigningIdentity
}

// AddressHex returns the account address as 0x-prefixed hex.
func (a *ExchangeAccount) AddressHex() string {
	return crypto.FeltHex(a.Address)
}

// NewExchangeAccount computes the account address for identity.
func NewExchangeAccount(identity *SigningIdentity, hashes ClassHashes) (*ExchangeAccount, error) {
	addr, err := AccountAddress(identity.PublicKey(), hashes)
	if err != nil {
		return nil, err
	}
	return &ExchangeAccount{Address: addr, Identity: identity}, nil
}

// AccountAddress computes the counterfactual address of a proxy account
// deployed with salt 0 and constructor calldata
// [accountClassHash, selector("initialize"), 2, publicKey, 0].
// It is a pure function of its inputs.
func AccountAddress(publicKey *big.Int, hashes ClassHashes) (*big.Int, error) {
	if hashes.Account == nil || hashes.Proxy == nil {
		return nil, fmt.Errorf("class hashes not set")
	}
	calldataHash, err := crypto.PedersenArray(
		hashes.Account,
		crypto.Selector("initialize"),
		big.NewInt(2),
		publicKey,
		big.NewInt(0),
	)
	if err != nil {
		return nil, fmt.Errorf("hash constructor calldata: %w", err)
	}

	addr, err := crypto.PedersenArray(
		contractAddressPrefix,
		big.NewInt(0), // deployer
		publicKey,     // salt
		hashes.Proxy,
		calldataHash,
	)
	if err != nil {
		return nil, fmt.Errorf("hash contract address: %w", err)
	}
	return addr.Mod(addr, addressBound), nil
}
