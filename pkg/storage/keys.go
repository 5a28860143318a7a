package storage

import "fmt"

// Key schema:
//
//	mkt:<symbol>   -> market constraints (JSON)
//	acct:<owner>   -> known exchange account (JSON)
const (
	prefixMarket  = "mkt:"
	prefixAccount = "acct:"
)

// marketKey returns the key for a market
// Format: "mkt:{symbol}"
func marketKey(symbol string) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixMarket, symbol))
}

// accountKey returns the key for an account record
// Format: "acct:{owner}"
func accountKey(owner string) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixAccount, owner))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
