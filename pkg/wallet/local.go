// Package wallet provides WalletSigner implementations for the key
// derivation step.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/crypto"
)

// Local signs typed data with an in-process secp256k1 key.
// Intended for bots, tooling and tests; UI users sign in their own wallet.
type Local struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// Generate creates a Local wallet with a random key.
func Generate() (*Local, error) {
	privateKey, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return newLocal(privateKey), nil
}

// FromPrivateKeyHex loads a key in "0x1234..." or "1234..." form.
func FromPrivateKeyHex(hexKey string) (*Local, error) {
	privateKey, err := ethcrypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return newLocal(privateKey), nil
}

func newLocal(privateKey *ecdsa.PrivateKey) *Local {
	return &Local{
		privateKey: privateKey,
		address:    ethcrypto.PubkeyToAddress(privateKey.PublicKey),
	}
}

// Address returns the owner address of the key.
func (w *Local) Address() common.Address {
	return w.address
}

// SignTypedData returns the 65-byte [R || S || V] signature of the EIP-712
// digest, with V in {27, 28} as browser wallets return it.
func (w *Local) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest, err := crypto.HashTypedData(data)
	if err != nil {
		return nil, err
	}
	sig, err := ethcrypto.Sign(digest, w.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// Recover returns the address that produced sig over data.
func Recover(data apitypes.TypedData, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	digest, err := crypto.HashTypedData(data)
	if err != nil {
		return common.Address{}, err
	}
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
