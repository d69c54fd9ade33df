// Package rates maintains the current fiat conversion rate snapshot and
// refreshes it from the external market-data feed.
package rates

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoSnapshot is returned before the first successful rate refresh.
var ErrNoSnapshot = errors.New("rate snapshot not available yet")

// Snapshot is one full rate refresh: units of fiat per unit of each
// currency. A Snapshot is immutable after construction; readers share
// it without locking.
type Snapshot struct {
	Rates     map[string]decimal.Decimal
	Timestamp time.Time
}

// Rate returns the fiat conversion rate for a symbol.
func (s *Snapshot) Rate(symbol string) (decimal.Decimal, bool) {
	r, ok := s.Rates[symbol]
	return r, ok
}

// Store holds the current snapshot behind a single atomically swapped
// reference, so readers always observe either the old or the complete
// new snapshot.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore creates an empty snapshot store.
func NewStore() *Store {
	return &Store{}
}

// Current returns the latest snapshot, or ErrNoSnapshot before the
// first refresh.
func (s *Store) Current() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// Replace swaps in a new snapshot wholesale.
func (s *Store) Replace(snap *Snapshot) {
	s.current.Store(snap)
}

// snapshotJSON is the serialized form shared by the database row and
// the redis mirror. Rates are decimal strings.
type snapshotJSON struct {
	Rates     map[string]string `json:"rates"`
	Timestamp time.Time         `json:"timestamp"`
}

func marshalSnapshot(snap *Snapshot) ([]byte, error) {
	out := snapshotJSON{
		Rates:     make(map[string]string, len(snap.Rates)),
		Timestamp: snap.Timestamp,
	}
	for symbol, rate := range snap.Rates {
		out.Rates[symbol] = rate.String()
	}
	return json.Marshal(out)
}

func unmarshalSnapshot(data []byte) (*Snapshot, error) {
	var in snapshotJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	snap := &Snapshot{
		Rates:     make(map[string]decimal.Decimal, len(in.Rates)),
		Timestamp: in.Timestamp,
	}
	for symbol, raw := range in.Rates {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse rate for %s: %w", symbol, err)
		}
		snap.Rates[symbol] = rate
	}
	return snap, nil
}
