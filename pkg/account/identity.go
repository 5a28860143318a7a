package account

import (
	"math/big"
	"sync"

	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/crypto"
)

// SigningIdentity owns the derived key pair of one connect cycle.
// The private scalar never leaves it; Wipe zeroes it in place.
type SigningIdentity struct {
	OwnerAddress string

	mu     sync.RWMutex
	signer *crypto.Signer
}

// NewSigningIdentity wraps an existing signer. Used by tools that already
// hold a Stark key.
func NewSigningIdentity(ownerAddress string, signer *crypto.Signer) *SigningIdentity {
	return &SigningIdentity{OwnerAddress: ownerAddress, signer: signer}
}

// PublicKey returns the stark key (x coordinate of the public point).
func (id *SigningIdentity) PublicKey() *big.Int {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.signer.StarkKey()
}

func (id *SigningIdentity) PublicKeyHex() string {
	return crypto.FeltHex(id.PublicKey())
}

// PublicPoint returns the full public point for signature verification.
func (id *SigningIdentity) PublicPoint() crypto.Point {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.signer.PublicKey()
}

// Sign signs a message hash with the derived private key.
func (id *SigningIdentity) Sign(msgHash *big.Int) (r, s *big.Int, err error) {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.signer.Sign(msgHash)
}

// Wipe zeroes the private scalar. Further Sign calls fail.
func (id *SigningIdentity) Wipe() {
	id.mu.Lock()
	defer id.mu.Unlock()
	id.signer.Wipe()
}

func (id *SigningIdentity) Wiped() bool {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.signer.Wiped()
}
