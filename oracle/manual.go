// Package oracle provides price sources satisfying the lending engine's
// PriceSource interface.
package oracle

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"lendnet/native/lending"
)

// ErrNoQuote is returned when no observation exists for the asset.
var ErrNoQuote = errors.New("oracle: no quote for asset")

// ManualFeed is an operator-fed price source. Quotes carry the timestamp
// reported when posted; the engine enforces the freshness bound, so a feed
// that stops updating makes dependent markets untouchable rather than
// serving stale data.
type ManualFeed struct {
	mu     sync.RWMutex
	quotes map[common.Address]lending.PriceQuote
}

// NewManualFeed constructs an empty feed.
func NewManualFeed() *ManualFeed {
	return &ManualFeed{quotes: make(map[common.Address]lending.PriceQuote)}
}

// SetPrice records a fresh observation for the asset.
func (f *ManualFeed) SetPrice(asset common.Address, value *big.Int, decimals uint8, updatedAt uint64, source string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	quote := lending.PriceQuote{Decimals: decimals, UpdatedAt: updatedAt, Source: source}
	if value != nil {
		quote.Value = new(big.Int).Set(value)
	}
	f.quotes[asset] = quote
}

// GetPrice implements lending.PriceSource. The returned quote is a copy.
func (f *ManualFeed) GetPrice(asset common.Address) (lending.PriceQuote, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	quote, ok := f.quotes[asset]
	if !ok {
		return lending.PriceQuote{}, ErrNoQuote
	}
	return quote.Clone(), nil
}

// Assets lists every asset with a posted quote.
func (f *ManualFeed) Assets() []common.Address {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]common.Address, 0, len(f.quotes))
	for asset := range f.quotes {
		out = append(out, asset)
	}
	return out
}
