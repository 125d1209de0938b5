package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[service]
Environment = "test"
`))
	require.NoError(t, err)
	require.Equal(t, ":8645", cfg.Service.ListenAddress)
	require.Equal(t, float64(50), cfg.Service.RatePerSecond)
	require.Equal(t, 100, cfg.Service.RateBurst)
	require.Equal(t, "leveldb", cfg.Storage.Backend)
	require.Equal(t, uint64(3600), cfg.Oracle.MaxAgeSeconds)
	require.Equal(t, uint64(200), cfg.Interest.BaseBps)
	require.Equal(t, uint64(1000), cfg.Interest.MultiplierBps)
	require.Equal(t, uint64(10_900), cfg.Interest.JumpMultiplierBps)
	require.Equal(t, uint64(8000), cfg.Interest.KinkBps)
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[service]
ListenAddress = ":9000"
Environment = "prod"

[storage]
Backend = "bolt"
Path = "/var/lib/lendnet"

[oracle]
MaxAgeSeconds = 600

[auth]
JWTSecret = "topsecret"
Admins = ["0x00000000000000000000000000000000000000aa"]
Liquidators = ["0x00000000000000000000000000000000000000bb"]

[[market]]
Asset = "0x0000000000000000000000000000000000000001"
CollateralFactorBps = 7500
ReserveFactorBps = 1000
SupplyCap = "1000000"
`))
	require.NoError(t, err)
	require.Equal(t, "bolt", cfg.Storage.Backend)
	require.Equal(t, uint64(600), cfg.Oracle.MaxAgeSeconds)
	require.Len(t, cfg.Markets, 1)
	require.Equal(t, uint64(7500), cfg.Markets[0].CollateralFactorBps)

	cap, err := ParseCap(cfg.Markets[0].SupplyCap)
	require.NoError(t, err)
	require.Zero(t, cap.Cmp(big.NewInt(1_000_000)))
}

func TestValidateRejectsBadBackend(t *testing.T) {
	_, err := Load(writeConfig(t, `
[storage]
Backend = "postgres"
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown backend")
}

func TestValidateRejectsFactorBounds(t *testing.T) {
	_, err := Load(writeConfig(t, `
[[market]]
Asset = "0x0000000000000000000000000000000000000001"
CollateralFactorBps = 9001
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "collateral factor")

	_, err = Load(writeConfig(t, `
[[market]]
Asset = "0x0000000000000000000000000000000000000001"
ReserveFactorBps = 5001
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "reserve factor")
}

func TestValidateRejectsDuplicateMarkets(t *testing.T) {
	_, err := Load(writeConfig(t, `
[[market]]
Asset = "0x0000000000000000000000000000000000000001"

[[market]]
Asset = "0x0000000000000000000000000000000000000001"
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate asset")
}

func TestValidateRejectsBadAddresses(t *testing.T) {
	_, err := Load(writeConfig(t, `
[auth]
Admins = ["not-an-address"]
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid address")
}

func TestParseCapSemantics(t *testing.T) {
	cap, err := ParseCap("")
	require.NoError(t, err)
	require.Nil(t, cap)

	cap, err = ParseCap("0")
	require.NoError(t, err)
	require.Nil(t, cap)

	cap, err = ParseCap("42")
	require.NoError(t, err)
	require.Zero(t, cap.Cmp(big.NewInt(42)))

	_, err = ParseCap("-1")
	require.Error(t, err)

	_, err = ParseCap("1.5")
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}
