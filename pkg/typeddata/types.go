// Package typeddata builds and signs domain-separated StarkNet typed-data
// messages (revision 0): onboarding, auth requests and orders.
package typeddata

import (
	"math/big"
	"strings"

	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/crypto"
)

// Type is a struct schema whose members are all felts.
type Type struct {
	Name   string
	Fields []string
}

var (
	DomainType     = Type{Name: "StarkNetDomain", Fields: []string{"name", "chainId", "version"}}
	OnboardingType = Type{Name: "Constant", Fields: []string{"action"}}
	AuthType       = Type{Name: "Request", Fields: []string{"method", "path", "body", "timestamp", "expiration"}}
	OrderType      = Type{Name: "Order", Fields: []string{"timestamp", "market", "side", "orderType", "size", "price"}}
)

// EncodeType renders the schema, e.g. "Constant(action:felt)".
func (t Type) EncodeType() string {
	var b strings.Builder
	b.WriteString(t.Name)
	b.WriteByte('(')
	for i, f := range t.Fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f)
		b.WriteString(":felt")
	}
	b.WriteByte(')')
	return b.String()
}

// TypeHash is starknet_keccak of the encoded type.
func (t Type) TypeHash() *big.Int {
	return crypto.StarknetKeccak([]byte(t.EncodeType()))
}
