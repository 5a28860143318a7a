package account

import (
	"context"
	"errors"
	"math/big"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/require"

	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/crypto"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/errs"
)

const ownerKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func testWallet(t *testing.T) (WalletSigner, string) {
	t.Helper()
	key, err := ethcrypto.HexToECDSA(ownerKeyHex)
	require.NoError(t, err)
	owner := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()

	return WalletFunc(func(_ context.Context, data apitypes.TypedData) ([]byte, error) {
		digest, err := crypto.HashTypedData(data)
		if err != nil {
			return nil, err
		}
		sig, err := ethcrypto.Sign(digest, key)
		if err != nil {
			return nil, err
		}
		sig[64] += 27
		return sig, nil
	}), owner
}

func TestDeriveIsDeterministic(t *testing.T) {
	wallet, owner := testWallet(t)
	ctx := context.Background()

	id1, err := DeriveSigningIdentity(ctx, wallet, owner, crypto.DefaultDomain())
	require.NoError(t, err)
	id2, err := DeriveSigningIdentity(ctx, wallet, owner, crypto.DefaultDomain())
	require.NoError(t, err)

	require.Equal(t, id1.PublicKeyHex(), id2.PublicKeyHex())
	require.Equal(t, owner, id1.OwnerAddress)

	hashes := ClassHashes{Account: big.NewInt(0x1234), Proxy: big.NewInt(0x5678)}
	a1, err := NewExchangeAccount(id1, hashes)
	require.NoError(t, err)
	a2, err := NewExchangeAccount(id2, hashes)
	require.NoError(t, err)
	require.Equal(t, a1.AddressHex(), a2.AddressHex())
}

func TestDeriveDependsOnDomain(t *testing.T) {
	wallet, owner := testWallet(t)
	ctx := context.Background()

	mainnet, err := DeriveSigningIdentity(ctx, wallet, owner, crypto.DefaultDomain())
	require.NoError(t, err)

	other := crypto.DefaultDomain()
	other.ChainID = big.NewInt(11155111)
	testnet, err := DeriveSigningIdentity(ctx, wallet, owner, other)
	require.NoError(t, err)

	require.NotEqual(t, mainnet.PublicKeyHex(), testnet.PublicKeyHex())
}

func TestDeriveWalletDeclines(t *testing.T) {
	declined := WalletFunc(func(context.Context, apitypes.TypedData) ([]byte, error) {
		return nil, errors.New("user rejected the request")
	})
	_, err := DeriveSigningIdentity(context.Background(), declined, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", crypto.DefaultDomain())
	require.ErrorIs(t, err, errs.ErrDerivationCancelled)
}

func TestDeriveCancelledContext(t *testing.T) {
	wallet, owner := testWallet(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DeriveSigningIdentity(ctx, wallet, owner, crypto.DefaultDomain())
	require.ErrorIs(t, err, errs.ErrDerivationCancelled)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDeriveMalformedSignature(t *testing.T) {
	short := WalletFunc(func(context.Context, apitypes.TypedData) ([]byte, error) {
		return make([]byte, 64), nil
	})
	_, err := DeriveSigningIdentity(context.Background(), short, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", crypto.DefaultDomain())
	require.ErrorIs(t, err, errs.ErrDerivationFailed)

	zeroR := WalletFunc(func(context.Context, apitypes.TypedData) ([]byte, error) {
		return make([]byte, 65), nil
	})
	_, err = DeriveSigningIdentity(context.Background(), zeroR, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", crypto.DefaultDomain())
	require.ErrorIs(t, err, errs.ErrDerivationFailed)
}

func TestDeriveRejectsBadOwner(t *testing.T) {
	wallet, _ := testWallet(t)
	_, err := DeriveSigningIdentity(context.Background(), wallet, "not-an-address", crypto.DefaultDomain())
	require.ErrorIs(t, err, errs.ErrDerivationFailed)
}

func TestGrindKeyKnownAnswer(t *testing.T) {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	k, err := GrindKey(seed)
	require.NoError(t, err)
	require.Equal(t, "0x15eda6d1c5d63ed2dbb5930b50d7ae1142a9996f8a1dc6c69c45faa1947e0fa", crypto.FeltHex(k))
	require.Equal(t, byte(1), seed[0], "seed is not modified")
}

func TestAccountAddressKnownAnswer(t *testing.T) {
	signer, err := crypto.FromPrivateKeyHex("0x3c1e9550e66958296d11b60f8e8e7a7ad990d07fa65d5f7652c4a6c87d4e3cc")
	require.NoError(t, err)

	hashes, err := ParseClassHashes("0x1234", "0x5678")
	require.NoError(t, err)

	addr, err := AccountAddress(signer.StarkKey(), hashes)
	require.NoError(t, err)
	require.Equal(t, "0x4fee0f0152666bc022a92ca9721393b32cc71214870c2ece5e352240e06d801", crypto.FeltHex(addr))

	again, err := AccountAddress(signer.StarkKey(), hashes)
	require.NoError(t, err)
	require.Equal(t, addr.String(), again.String())
}

func TestParseClassHashesRejectsZero(t *testing.T) {
	_, err := ParseClassHashes("", "0x5678")
	require.Error(t, err)
}

func TestIdentityWipe(t *testing.T) {
	wallet, owner := testWallet(t)
	id, err := DeriveSigningIdentity(context.Background(), wallet, owner, crypto.DefaultDomain())
	require.NoError(t, err)

	pub := id.PublicKeyHex()
	r, s, err := id.Sign(big.NewInt(7))
	require.NoError(t, err)
	require.True(t, crypto.VerifySignature(id.PublicPoint(), big.NewInt(7), r, s))

	id.Wipe()
	require.True(t, id.Wiped())
	require.Equal(t, pub, id.PublicKeyHex())
	_, _, err = id.Sign(big.NewInt(7))
	require.Error(t, err)
}
