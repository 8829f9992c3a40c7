package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"p2pexchange/crypto"
)

func testAddress(fill byte) string {
	var raw [20]byte
	for i := range raw {
		raw[i] = fill
	}
	return crypto.FormatAddress(raw)
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Gateway.ListenAddress)
	require.FileExists(t, path)

	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, again)

	params, err := again.LedgerParams()
	require.NoError(t, err)
	require.Equal(t, 48*time.Hour, params.EvidenceWindow)
	require.Equal(t, 7*24*time.Hour, params.VotingWindow)
	require.Zero(t, params.Reserve.Sign())
	require.EqualValues(t, 10_000_000, params.MinRewardVolume.Int64())
	require.Equal(t, 5*time.Minute, params.OfferCooldown)
	require.Equal(t, time.Hour, params.DisputeCooldown)
}

func TestLoadParsesTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `DataDir = "./data"

[ledger]
Reserve = "5000"
EvidenceWindow = "1h"
VotingWindow = "3h"
OfferCooldown = "30s"

[gateway]
ListenAddress = "127.0.0.1:9000"
ReadHeaderTimeout = "2s"
ShutdownTimeout = "5s"
SignatureSkew = "1m"
RateLimitPerSecond = 5.0
RateLimitBurst = 10

[pauses]
Dispute = true
Rewards = true

[[genesis]]
Address = "` + testAddress(0x01) + `"
Amount = "1000000000"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.Gateway.ListenAddress)
	require.Equal(t, []string{"dispute", "rewards"}, cfg.Pauses.Modules())

	params, err := cfg.LedgerParams()
	require.NoError(t, err)
	require.Equal(t, big.NewInt(5000), params.Reserve)
	require.Equal(t, 30*time.Second, params.OfferCooldown)

	allocs, err := cfg.GenesisAllocations()
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	require.EqualValues(t, 1_000_000_000, allocs[0].Amount.Int64())

	_, _, skew := cfg.Gateway.Durations()
	require.Equal(t, time.Minute, skew)
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := `data_dir: ./data
ledger:
  voting_window: 96h
logging:
  level: debug
genesis:
  - address: ` + testAddress(0x02) + `
    amount: "42"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Logging.Level)
	params, err := cfg.LedgerParams()
	require.NoError(t, err)
	require.Equal(t, 96*time.Hour, params.VotingWindow)
	require.Equal(t, 48*time.Hour, params.EvidenceWindow)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte("Bootnodes = [\"x\"]\n"), 0o644))
	_, err := Load(tomlPath)
	require.ErrorContains(t, err, "unknown key")

	yamlPath := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("bootnodes: []\n"), 0o644))
	_, err = Load(yamlPath)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"voting not after evidence", func(c *Config) { c.Ledger.VotingWindow = "24h" }},
		{"bad duration", func(c *Config) { c.Ledger.OfferCooldown = "soon" }},
		{"negative reserve", func(c *Config) { c.Ledger.Reserve = "-1" }},
		{"missing data dir", func(c *Config) { c.DataDir = "" }},
		{"zero rate", func(c *Config) { c.Gateway.RateLimitPerSecond = 0 }},
		{"unknown level", func(c *Config) { c.Logging.Level = "loud" }},
		{"sample ratio", func(c *Config) { c.Telemetry.SampleRatio = 2 }},
		{"foreign genesis address", func(c *Config) {
			c.Genesis = []Allocation{{Address: crypto.NewAddress("cosmos", make([]byte, 20)).String(), Amount: "1"}}
		}},
		{"duplicate genesis", func(c *Config) {
			c.Genesis = []Allocation{{Address: testAddress(1), Amount: "1"}, {Address: testAddress(1), Amount: "2"}}
		}},
		{"zero genesis amount", func(c *Config) {
			c.Genesis = []Allocation{{Address: testAddress(1), Amount: "0"}}
		}},
	}
	require.NoError(t, Default().Validate())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}

	inMemory := Default()
	inMemory.DataDir = ""
	inMemory.InMemory = true
	require.NoError(t, inMemory.Validate())
}
