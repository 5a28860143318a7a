// Package account derives the exchange trading identity from a wallet
// signature and computes the account address bound to it.
package account

import (
	"context"
	"crypto/sha256"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/crypto"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/errs"
)

// walletSignatureLen is r || s || v as produced by eth_signTypedData_v4.
const walletSignatureLen = 65

// WalletSigner is the capability to sign one EIP-712 message with the
// owner's wallet. Browser wallets, hardware keys and test stubs all fit.
type WalletSigner interface {
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)
}

// WalletFunc adapts a plain function to WalletSigner.
type WalletFunc func(ctx context.Context, data apitypes.TypedData) ([]byte, error)

func (f WalletFunc) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	return f(ctx, data)
}

// DeriveSigningIdentity asks the wallet to sign the fixed "STARK Key"
// message and turns the signature into a Stark key pair.
// The same wallet signature always yields the same key pair.
func DeriveSigningIdentity(ctx context.Context, wallet WalletSigner, ownerAddress string, domain crypto.EIP712Domain) (*SigningIdentity, error) {
	if !common.IsHexAddress(ownerAddress) {
		return nil, errs.New(errs.KindDerivationFailed, errs.WithMessage("invalid owner address "+ownerAddress))
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.New(errs.KindDerivationCancelled, errs.WithCause(err))
	}

	sig, err := wallet.SignTypedData(ctx, crypto.StarkKeyTypedData(domain))
	if err != nil {
		return nil, errs.New(errs.KindDerivationCancelled, errs.WithMessage("wallet declined to sign"), errs.WithCause(err))
	}

	priv, err := PrivateKeyFromWalletSignature(sig)
	if err != nil {
		return nil, err
	}
	defer priv.SetInt64(0)

	signer, err := crypto.FromPrivateKey(priv)
	if err != nil {
		return nil, errs.New(errs.KindDerivationFailed, errs.WithCause(err))
	}
	return &SigningIdentity{
		OwnerAddress: common.HexToAddress(ownerAddress).Hex(),
		signer:       signer,
	}, nil
}

// PrivateKeyFromWalletSignature grinds the r component of a 65-byte wallet
// signature into a Stark private scalar.
func PrivateKeyFromWalletSignature(sig []byte) (*big.Int, error) {
	if len(sig) != walletSignatureLen {
		return nil, errs.New(errs.KindDerivationFailed, errs.WithMessage("wallet signature must be 65 bytes"))
	}
	r := sig[:32]
	if new(big.Int).SetBytes(r).Sign() == 0 {
		return nil, errs.New(errs.KindDerivationFailed, errs.WithMessage("wallet signature has zero r"))
	}
	return GrindKey(r)
}

var errGrindExhausted = errors.New("key grinding exhausted")

// GrindKey hashes seed with an increasing index until the digest falls
// below the largest multiple of the curve order under 2^256, then reduces it
// mod the order. This keeps the resulting scalar uniform.
func GrindKey(seed []byte) (*big.Int, error) {
	order := crypto.CurveOrder()
	limit := new(big.Int).Lsh(big.NewInt(1), 256)
	limit.Sub(limit, new(big.Int).Mod(limit, order))

	buf := make([]byte, len(seed)+1)
	copy(buf, seed)
	defer clear(buf)

	for i := 0; i < 256; i++ {
		buf[len(seed)] = byte(i)
		digest := sha256.Sum256(buf)
		k := new(big.Int).SetBytes(digest[:])
		clear(digest[:])
		if k.Cmp(limit) < 0 {
			k.Mod(k, order)
			if k.Sign() == 0 {
				continue
			}
			return k, nil
		}
	}
	return nil, errs.New(errs.KindDerivationFailed, errs.WithCause(errGrindExhausted))
}
