package wallet

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Presigned replays a signature the owner produced out of band, typically a
// browser wallet answering eth_signTypedData_v4 for the control API.
type Presigned struct {
	owner     common.Address
	signature []byte
}

// NewPresigned parses a 0x-prefixed 65-byte signature made by owner.
func NewPresigned(owner, signatureHex string) (*Presigned, error) {
	if !common.IsHexAddress(owner) {
		return nil, fmt.Errorf("invalid owner address %q", owner)
	}
	sig, err := hexutil.Decode(signatureHex)
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	return &Presigned{owner: common.HexToAddress(owner), signature: sig}, nil
}

func (p *Presigned) Owner() common.Address {
	return p.owner
}

// Check reports an error unless the signature was made by the owner over data.
func (p *Presigned) Check(data apitypes.TypedData) error {
	signer, err := Recover(data, p.signature)
	if err != nil {
		return err
	}
	if signer != p.owner {
		return fmt.Errorf("signature made by %s, not %s", signer.Hex(), p.owner.Hex())
	}
	return nil
}

// SignTypedData returns the stored signature if it covers data.
func (p *Presigned) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.Check(data); err != nil {
		return nil, err
	}
	return append([]byte(nil), p.signature...), nil
}
