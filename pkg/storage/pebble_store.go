// Package storage persists market constraints and known accounts in pebble.
package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	json "github.com/goccy/go-json"

	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/order"
)

// AccountRecord remembers which exchange account an owner onboarded.
// It holds public data only.
type AccountRecord struct {
	Owner       string    `json:"owner"`
	Address     string    `json:"address"`
	PublicKey   string    `json:"public_key"`
	OnboardedAt time.Time `json:"onboarded_at"`
}

type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens a store at path. An empty path keeps everything in memory.
func NewPebbleStore(path string) (*PebbleStore, error) {
	opts := &pebble.Options{}
	if path == "" {
		opts.FS = vfs.NewMem()
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}
func (s *PebbleStore) Close() error { return s.db.Close() }

// SaveMarket persists market constraints
func (s *PebbleStore) SaveMarket(c order.MarketConstraints) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal market %s: %w", c.Symbol, err)
	}
	if err := s.db.Set(marketKey(c.Symbol), data, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save market %s: %w", c.Symbol, err)
	}
	return nil
}

// LoadMarket loads market constraints.
// Returns false if the market was never cached.
func (s *PebbleStore) LoadMarket(symbol string) (order.MarketConstraints, bool, error) {
	data, closer, err := s.db.Get(marketKey(symbol))
	if errors.Is(err, pebble.ErrNotFound) {
		return order.MarketConstraints{}, false, nil
	}
	if err != nil {
		return order.MarketConstraints{}, false, fmt.Errorf("failed to get market %s: %w", symbol, err)
	}
	defer closer.Close()

	var c order.MarketConstraints
	if err := json.Unmarshal(data, &c); err != nil {
		return order.MarketConstraints{}, false, fmt.Errorf("failed to unmarshal market %s: %w", symbol, err)
	}
	return c, true, nil
}

// LoadAllMarkets loads every cached market
func (s *PebbleStore) LoadAllMarkets() ([]order.MarketConstraints, error) {
	prefix := []byte(prefixMarket)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []order.MarketConstraints
	for iter.First(); iter.Valid(); iter.Next() {
		var c order.MarketConstraints
		if err := json.Unmarshal(iter.Value(), &c); err != nil {
			continue // Skip invalid entries
		}
		out = append(out, c)
	}
	return out, nil
}

// SaveAccount persists an account record
func (s *PebbleStore) SaveAccount(rec AccountRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}
	if err := s.db.Set(accountKey(rec.Owner), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// LoadAccount loads an account record by owner address
func (s *PebbleStore) LoadAccount(owner string) (AccountRecord, bool, error) {
	data, closer, err := s.db.Get(accountKey(owner))
	if errors.Is(err, pebble.ErrNotFound) {
		return AccountRecord{}, false, nil
	}
	if err != nil {
		return AccountRecord{}, false, fmt.Errorf("failed to get account: %w", err)
	}
	defer closer.Close()

	var rec AccountRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return AccountRecord{}, false, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	return rec, true, nil
}
