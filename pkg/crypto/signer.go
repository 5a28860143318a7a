package crypto

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// ecdsaBound is 2^251. StarkEx ECDSA requires the message hash, r and w to be below it.
var ecdsaBound = new(big.Int).Lsh(big.NewInt(1), 251)

// Signer holds a Stark curve key pair.
// The private scalar lives only inside the Signer; Wipe zeroes it.
type Signer struct {
	privateKey *big.Int
	publicKey  Point
}

// GenerateKey creates a random Stark key pair.
func GenerateKey() (*Signer, error) {
	k, err := rand.Int(rand.Reader, new(big.Int).Sub(CurveOrder(), big.NewInt(1)))
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return FromPrivateKey(k.Add(k, big.NewInt(1)))
}

// FromPrivateKey creates a Signer from a private scalar in [1, n).
// The scalar is copied; the caller may wipe its own copy.
func FromPrivateKey(priv *big.Int) (*Signer, error) {
	if priv == nil || priv.Sign() <= 0 || priv.Cmp(CurveOrder()) >= 0 {
		return nil, fmt.Errorf("private key out of range")
	}
	k := new(big.Int).Set(priv)
	return &Signer{
		privateKey: k,
		publicKey:  ScalarBaseMult(k),
	}, nil
}

// FromPrivateKeyHex creates a Signer from a hex private key.
// Format: "0x1234..." or "1234..."
func FromPrivateKeyHex(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X")
	k, ok := new(big.Int).SetString(hexKey, 16)
	if !ok {
		return nil, fmt.Errorf("failed to parse private key")
	}
	return FromPrivateKey(k)
}

// PublicKey returns the full public point.
func (s *Signer) PublicKey() Point {
	return s.publicKey
}

// StarkKey returns the public key as exchanges see it: the x coordinate.
func (s *Signer) StarkKey() *big.Int {
	return PointX(&s.publicKey)
}

// PublicKeyHex returns the stark key as 0x-prefixed hex.
func (s *Signer) PublicKeyHex() string {
	return FeltHex(s.StarkKey())
}

// PrivateKeyHex returns the private key as hex string (WITHOUT 0x prefix)
// WARNING: Keep this secret! Never expose to users or logs
func (s *Signer) PrivateKeyHex() string {
	return fmt.Sprintf("%064x", s.privateKey)
}

// Wiped reports whether Wipe has been called.
func (s *Signer) Wiped() bool {
	return s.privateKey.Sign() == 0
}

// Wipe overwrites the private scalar in place. The Signer is unusable afterwards.
func (s *Signer) Wipe() {
	words := s.privateKey.Bits()
	for i := range words {
		words[i] = 0
	}
	s.privateKey.SetInt64(0)
}

// Sign produces a StarkEx ECDSA signature (r, s) over a message hash.
// Nonces are deterministic (RFC 6979), so signing is a pure function of
// (key, hash).
func (s *Signer) Sign(msgHash *big.Int) (r, sig *big.Int, err error) {
	if s.Wiped() {
		return nil, nil, fmt.Errorf("signer has been wiped")
	}
	if msgHash.Sign() < 0 || msgHash.Cmp(ecdsaBound) >= 0 {
		return nil, nil, fmt.Errorf("message hash out of range")
	}
	n := CurveOrder()

	for seed := 0; ; seed++ {
		k := generateK(msgHash, s.privateKey, seed)

		kG := ScalarBaseMult(k)
		r = PointX(&kG)
		if r.Sign() == 0 || r.Cmp(ecdsaBound) >= 0 {
			continue
		}

		// t = z + r*priv (mod n)
		t := new(big.Int).Mul(r, s.privateKey)
		t.Add(t, msgHash).Mod(t, n)
		if t.Sign() == 0 {
			continue
		}

		// w = k / t; the signature carries s = 1/w.
		w := new(big.Int).ModInverse(t, n)
		w.Mul(w, k).Mod(w, n)
		if w.Sign() == 0 || w.Cmp(ecdsaBound) >= 0 {
			continue
		}
		return r, new(big.Int).ModInverse(w, n), nil
	}
}

// VerifySignature checks a StarkEx ECDSA signature against a public point.
func VerifySignature(pub Point, msgHash, r, s *big.Int) bool {
	n := CurveOrder()
	if msgHash.Sign() < 0 || msgHash.Cmp(ecdsaBound) >= 0 {
		return false
	}
	if r.Sign() <= 0 || r.Cmp(ecdsaBound) >= 0 {
		return false
	}
	if s.Sign() <= 0 || s.Cmp(n) >= 0 {
		return false
	}
	w := new(big.Int).ModInverse(s, n)
	if w == nil || w.Cmp(ecdsaBound) >= 0 {
		return false
	}

	u1 := new(big.Int).Mul(msgHash, w)
	u1.Mod(u1, n)
	u2 := new(big.Int).Mul(r, w)
	u2.Mod(u2, n)

	a := ScalarBaseMult(u1)
	b := scalarMult(&pub, u2)
	sum := addPoints(&a, &b)
	if sum.IsInfinity() {
		return false
	}
	return PointX(&sum).Cmp(r) == 0
}

// FormatSignature renders (r, s) the way the exchange expects it in headers
// and order bodies: a JSON array of two decimal strings.
func FormatSignature(r, s *big.Int) string {
	return fmt.Sprintf(`["%s","%s"]`, r.String(), s.String())
}

// ParseSignature is the inverse of FormatSignature.
func ParseSignature(sig string) (r, s *big.Int, err error) {
	trimmed := strings.TrimSpace(sig)
	if !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
		return nil, nil, fmt.Errorf("invalid signature format")
	}
	parts := strings.Split(trimmed[1:len(trimmed)-1], ",")
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("signature must have 2 components, got %d", len(parts))
	}
	out := make([]*big.Int, 2)
	for i, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `"`)
		v, ok := new(big.Int).SetString(p, 0)
		if !ok {
			return nil, nil, fmt.Errorf("invalid signature component %q", p)
		}
		out[i] = v
	}
	return out[0], out[1], nil
}
