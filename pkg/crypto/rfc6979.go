package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"math/big"
)

// generateK derives the deterministic ECDSA nonce of RFC 6979 (HMAC-SHA256)
// over the Stark curve order. seed > 0 is appended as extra entropy, which the
// signer uses to move past nonces that yield out-of-range signatures.
func generateK(msgHash, priv *big.Int, seed int) *big.Int {
	order := CurveOrder()
	qlen := order.BitLen()
	rolen := (qlen + 7) / 8

	// Hashes one nibble short of 256 bits are left-padded by one nibble so
	// nonces match the reference JavaScript signer.
	h := new(big.Int).Set(msgHash)
	if bl := h.BitLen(); bl >= 248 && bl%8 >= 1 && bl%8 <= 4 {
		h.Lsh(h, 4)
	}

	var extra []byte
	if seed > 0 {
		extra = big.NewInt(int64(seed)).Bytes()
	}

	x := leftPad(priv.Bytes(), rolen)
	data := bits2octets(h.Bytes(), order, qlen, rolen)

	v := make([]byte, sha256.Size)
	k := make([]byte, sha256.Size)
	for i := range v {
		v[i] = 0x01
	}

	k = mac(k, v, []byte{0x00}, x, data, extra)
	v = mac(k, v)
	k = mac(k, v, []byte{0x01}, x, data, extra)
	v = mac(k, v)

	for {
		var t []byte
		for len(t) < rolen {
			v = mac(k, v)
			t = append(t, v...)
		}
		secret := bits2int(t, qlen)
		if secret.Sign() > 0 && secret.Cmp(order) < 0 {
			return secret
		}
		k = mac(k, v, []byte{0x00})
		v = mac(k, v)
	}
}

func mac(key []byte, parts ...[]byte) []byte {
	m := hmac.New(sha256.New, key)
	for _, p := range parts {
		m.Write(p)
	}
	return m.Sum(nil)
}

func bits2int(b []byte, qlen int) *big.Int {
	v := new(big.Int).SetBytes(b)
	if l := len(b) * 8; l > qlen {
		v.Rsh(v, uint(l-qlen))
	}
	return v
}

func bits2octets(b []byte, order *big.Int, qlen, rolen int) []byte {
	z1 := bits2int(b, qlen)
	z2 := new(big.Int).Sub(z1, order)
	if z2.Sign() < 0 {
		z2 = z1
	}
	return leftPad(z2.Bytes(), rolen)
}

func leftPad(b []byte, size int) []byte {
	if len(b) >= size {
		return b[len(b)-size:]
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}
