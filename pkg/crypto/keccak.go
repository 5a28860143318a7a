package crypto

import (
	"math/big"

	"golang.org/x/crypto/sha3"
)

// mask250 keeps the low 250 bits of a keccak digest so the result is a valid felt.
var mask250 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 250), big.NewInt(1))

// StarknetKeccak is keccak256(data) truncated to 250 bits.
// Used for typed-data type hashes and entry point selectors.
func StarknetKeccak(data []byte) *big.Int {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	sum := h.Sum(nil)
	v := new(big.Int).SetBytes(sum)
	return v.And(v, mask250)
}

// Selector returns the entry point selector for a contract function name.
func Selector(name string) *big.Int {
	return StarknetKeccak([]byte(name))
}
