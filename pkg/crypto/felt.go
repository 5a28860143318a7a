package crypto

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
)

// maxShortStringLen is the number of ASCII bytes that fit in one field element.
const maxShortStringLen = 31

// FieldPrime returns the Stark field modulus p = 2^251 + 17*2^192 + 1.
func FieldPrime() *big.Int {
	return fp.Modulus()
}

// EncodeShortString packs an ASCII string into a field element (big-endian bytes).
// Example: "BUY" -> 0x425559
func EncodeShortString(s string) (*big.Int, error) {
	if len(s) > maxShortStringLen {
		return nil, fmt.Errorf("short string %q exceeds %d characters", s, maxShortStringLen)
	}
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return nil, fmt.Errorf("short string %q is not ASCII", s)
		}
	}
	return new(big.Int).SetBytes([]byte(s)), nil
}

// MustEncodeShortString is EncodeShortString for compile-time constants.
func MustEncodeShortString(s string) *big.Int {
	v, err := EncodeShortString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// DecodeShortString unpacks a field element back into its ASCII form.
func DecodeShortString(v *big.Int) string {
	return string(v.Bytes())
}

// FeltFromString interprets a typed-data felt value.
// Hex ("0x..") and decimal numerals are numbers, "" is zero, anything else
// is packed as a short string.
func FeltFromString(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, ok := new(big.Int).SetString(s[2:], 16)
		if !ok {
			return nil, fmt.Errorf("invalid hex felt %q", s)
		}
		return checkFelt(v)
	}
	if isDecimal(s) {
		v, _ := new(big.Int).SetString(s, 10)
		return checkFelt(v)
	}
	return EncodeShortString(s)
}

// FeltHex renders a felt as 0x-prefixed lowercase hex without padding.
func FeltHex(v *big.Int) string {
	return "0x" + v.Text(16)
}

func checkFelt(v *big.Int) (*big.Int, error) {
	if v.Sign() < 0 || v.Cmp(fp.Modulus()) >= 0 {
		return nil, fmt.Errorf("value %s out of field range", v.String())
	}
	return v, nil
}

func isDecimal(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
