package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	maxCollateralFactorBps = 9000
	maxReserveFactorBps    = 5000
)

// Validate rejects configurations that would produce an unsafe or
// unservable deployment.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory", "leveldb", "bolt":
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}
	if c.Interest.KinkBps == 0 || c.Interest.KinkBps > 10_000 {
		return fmt.Errorf("interest: kink_bps must be in (0, 10000]")
	}
	for _, addr := range append(append([]string{}, c.Auth.Admins...), c.Auth.Liquidators...) {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("auth: invalid address %q", addr)
		}
	}
	seen := make(map[string]bool)
	for i, market := range c.Markets {
		if !common.IsHexAddress(market.Asset) {
			return fmt.Errorf("market[%d]: invalid asset address %q", i, market.Asset)
		}
		key := strings.ToLower(market.Asset)
		if seen[key] {
			return fmt.Errorf("market[%d]: duplicate asset %s", i, market.Asset)
		}
		seen[key] = true
		if market.CollateralFactorBps > maxCollateralFactorBps {
			return fmt.Errorf("market[%d]: collateral factor %d bps exceeds %d", i, market.CollateralFactorBps, maxCollateralFactorBps)
		}
		if market.ReserveFactorBps > maxReserveFactorBps {
			return fmt.Errorf("market[%d]: reserve factor %d bps exceeds %d", i, market.ReserveFactorBps, maxReserveFactorBps)
		}
		if _, err := parseCap(market.BorrowCap); err != nil {
			return fmt.Errorf("market[%d]: borrow cap: %v", i, err)
		}
		if _, err := parseCap(market.SupplyCap); err != nil {
			return fmt.Errorf("market[%d]: supply cap: %v", i, err)
		}
	}
	return nil
}

// ParseCap converts a decimal cap string into an amount; empty and "0" mean
// uncapped (nil).
func ParseCap(value string) (*big.Int, error) { return parseCap(value) }

func parseCap(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "0" {
		return nil, nil
	}
	cap, ok := new(big.Int).SetString(value, 10)
	if !ok || cap.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return cap, nil
}
