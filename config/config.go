// Package config loads and validates the daemon's TOML runtime
// configuration.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the root of the lendnetd configuration file.
type Config struct {
	Service  ServiceConfig  `toml:"service"`
	Storage  StorageConfig  `toml:"storage"`
	Oracle   OracleConfig   `toml:"oracle"`
	Interest InterestConfig `toml:"interest"`
	Auth     AuthConfig     `toml:"auth"`
	Markets  []MarketConfig `toml:"market"`
}

// ServiceConfig controls the HTTP surface and logging.
type ServiceConfig struct {
	ListenAddress string  `toml:"ListenAddress"`
	Environment   string  `toml:"Environment"`
	LogFile       string  `toml:"LogFile"`
	RatePerSecond float64 `toml:"RatePerSecond"`
	RateBurst     int     `toml:"RateBurst"`
}

// StorageConfig selects the ledger database backend.
type StorageConfig struct {
	// Backend is one of "memory", "leveldb" or "bolt".
	Backend string `toml:"Backend"`
	Path    string `toml:"Path"`
}

// OracleConfig bounds price quote freshness.
type OracleConfig struct {
	MaxAgeSeconds uint64 `toml:"MaxAgeSeconds"`
}

// InterestConfig parameterises the kinked rate curve in basis points.
type InterestConfig struct {
	BaseBps           uint64 `toml:"BaseBps"`
	MultiplierBps     uint64 `toml:"MultiplierBps"`
	JumpMultiplierBps uint64 `toml:"JumpMultiplierBps"`
	KinkBps           uint64 `toml:"KinkBps"`
}

// AuthConfig seeds the role registry and the request-auth secret.
type AuthConfig struct {
	JWTSecret   string   `toml:"JWTSecret"`
	Admins      []string `toml:"Admins"`
	Liquidators []string `toml:"Liquidators"`
}

// MarketConfig describes a market auto-listed at boot when absent from the
// ledger. Caps are decimal strings in the asset's smallest unit; empty or
// "0" means uncapped.
type MarketConfig struct {
	Asset               string `toml:"Asset"`
	CollateralFactorBps uint64 `toml:"CollateralFactorBps"`
	ReserveFactorBps    uint64 `toml:"ReserveFactorBps"`
	BorrowCap           string `toml:"BorrowCap"`
	SupplyCap           string `toml:"SupplyCap"`
}

// Load reads the configuration from the given path, applying defaults for
// unset fields.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Service.ListenAddress == "" {
		c.Service.ListenAddress = ":8645"
	}
	if c.Service.RatePerSecond <= 0 {
		c.Service.RatePerSecond = 50
	}
	if c.Service.RateBurst <= 0 {
		c.Service.RateBurst = 100
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "leveldb"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "./lendnet-data"
	}
	if c.Oracle.MaxAgeSeconds == 0 {
		c.Oracle.MaxAgeSeconds = 3600
	}
	if c.Interest == (InterestConfig{}) {
		c.Interest = InterestConfig{
			BaseBps:           200,
			MultiplierBps:     1000,
			JumpMultiplierBps: 10_900,
			KinkBps:           8000,
		}
	}
}
