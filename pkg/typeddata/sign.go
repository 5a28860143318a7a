package typeddata

import (
	"fmt"
	"math/big"

	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/crypto"
)

// Signer signs a message hash with the derived Stark key.
type Signer interface {
	Sign(msgHash *big.Int) (r, s *big.Int, err error)
}

// SignedMessage is immutable once produced.
type SignedMessage struct {
	Payload Message
	Hash    *big.Int
	R, S    *big.Int
}

// Signature renders the pair as the exchange expects it: ["r","s"].
func (m SignedMessage) Signature() string {
	return crypto.FormatSignature(m.R, m.S)
}

// Sign hashes msg for account under domain and signs it.
// Nonces are deterministic, so equal inputs give equal signatures.
func Sign(signer Signer, domain Domain, account *big.Int, msg Message) (SignedMessage, error) {
	hash, err := MessageHash(domain, account, msg)
	if err != nil {
		return SignedMessage{}, fmt.Errorf("hash %s: %w", msg.Type.Name, err)
	}
	r, s, err := signer.Sign(hash)
	if err != nil {
		return SignedMessage{}, fmt.Errorf("sign %s: %w", msg.Type.Name, err)
	}
	return SignedMessage{Payload: msg, Hash: hash, R: r, S: s}, nil
}

// Verify recomputes the message hash and checks the signature against pub.
func Verify(pub crypto.Point, domain Domain, account *big.Int, m SignedMessage) (bool, error) {
	hash, err := MessageHash(domain, account, m.Payload)
	if err != nil {
		return false, err
	}
	return crypto.VerifySignature(pub, hash, m.R, m.S), nil
}
