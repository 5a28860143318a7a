package typeddata

import (
	"fmt"
	"math/big"

	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/crypto"
)

var messagePrefix = crypto.MustEncodeShortString("StarkNet Message")

// Domain scopes every message to one exchange, chain and protocol version.
type Domain struct {
	Name    string
	ChainID *big.Int
	Version string
}

// NewDomain returns a version 1 domain.
func NewDomain(name string, chainID *big.Int) Domain {
	return Domain{Name: name, ChainID: chainID, Version: "1"}
}

// HashStruct hashes the domain as a StarkNetDomain struct.
func (d Domain) HashStruct() (*big.Int, error) {
	if d.ChainID == nil {
		return nil, fmt.Errorf("domain chain id not set")
	}
	name, err := crypto.FeltFromString(d.Name)
	if err != nil {
		return nil, fmt.Errorf("domain name: %w", err)
	}
	version, err := crypto.FeltFromString(d.Version)
	if err != nil {
		return nil, fmt.Errorf("domain version: %w", err)
	}
	return crypto.PedersenArray(DomainType.TypeHash(), name, d.ChainID, version)
}

// Message is a typed record. Values are felt strings: decimal or 0x-hex
// numerals are numbers, anything else is packed as a short string.
type Message struct {
	Type   Type
	Values map[string]string
}

// Felts returns the encoded field values in schema order.
func (m Message) Felts() ([]*big.Int, error) {
	out := make([]*big.Int, 0, len(m.Type.Fields))
	for _, name := range m.Type.Fields {
		raw, ok := m.Values[name]
		if !ok {
			return nil, fmt.Errorf("%s: missing field %q", m.Type.Name, name)
		}
		v, err := crypto.FeltFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", m.Type.Name, name, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// HashStruct is pedersenArray(typeHash, fields...).
func (m Message) HashStruct() (*big.Int, error) {
	felts, err := m.Felts()
	if err != nil {
		return nil, err
	}
	return crypto.PedersenArray(append([]*big.Int{m.Type.TypeHash()}, felts...)...)
}

// MessageHash computes the hash that gets signed:
// pedersenArray("StarkNet Message", hash(domain), account, hash(message)).
func MessageHash(domain Domain, account *big.Int, msg Message) (*big.Int, error) {
	dh, err := domain.HashStruct()
	if err != nil {
		return nil, err
	}
	mh, err := msg.HashStruct()
	if err != nil {
		return nil, err
	}
	return crypto.PedersenArray(messagePrefix, dh, account, mh)
}
