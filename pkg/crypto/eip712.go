package crypto

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	json "github.com/goccy/go-json"
)

// StarkKeyAction is the constant a wallet signs to derive the trading key.
const StarkKeyAction = "STARK Key"

// EIP712Domain represents the domain separator of the wallet-signed message.
// It binds the derivation signature to one exchange on one L1 chain.
type EIP712Domain struct {
	Name    string   // Exchange name (e.g., "Paradex")
	Version string   // Protocol version (e.g., "1")
	ChainID *big.Int // L1 chain id (1 for Ethereum mainnet)
}

// DefaultDomain returns the production wallet domain.
func DefaultDomain() EIP712Domain {
	return EIP712Domain{
		Name:    "Paradex",
		Version: "1",
		ChainID: big.NewInt(1),
	}
}

// StarkKeyTypedData builds the EIP-712 message {action: "STARK Key"} that
// a wallet signs once per connect.
func StarkKeyTypedData(domain EIP712Domain) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Constant": []apitypes.Type{
				{Name: "action", Type: "string"},
			},
		},
		PrimaryType: "Constant",
		Domain: apitypes.TypedDataDomain{
			Name:    domain.Name,
			Version: domain.Version,
			ChainId: (*math.HexOrDecimal256)(domain.ChainID),
		},
		Message: apitypes.TypedDataMessage{
			"action": StarkKeyAction,
		},
	}
}

// HashTypedData hashes EIP-712 typed data.
// Returns the digest that a wallet signs.
func HashTypedData(typedData apitypes.TypedData) ([]byte, error) {
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	// Final digest: keccak256("\x19\x01" || domainSeparator || typedDataHash)
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	digest := crypto.Keccak256Hash(rawData)

	return digest.Bytes(), nil
}

// StarkKeyToJSON renders the message for browser wallets (eth_signTypedData_v4).
func StarkKeyToJSON(domain EIP712Domain) (string, error) {
	typedData := map[string]interface{}{
		"types": map[string]interface{}{
			"EIP712Domain": []map[string]string{
				{"name": "name", "type": "string"},
				{"name": "version", "type": "string"},
				{"name": "chainId", "type": "uint256"},
			},
			"Constant": []map[string]string{
				{"name": "action", "type": "string"},
			},
		},
		"primaryType": "Constant",
		"domain": map[string]interface{}{
			"name":    domain.Name,
			"version": domain.Version,
			"chainId": domain.ChainID.String(),
		},
		"message": map[string]interface{}{
			"action": StarkKeyAction,
		},
	}

	jsonBytes, err := json.MarshalIndent(typedData, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return string(jsonBytes), nil
}
