package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"trustflow/crypto"
	"trustflow/native/lending"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DefaultListenAddress, cfg.ListenAddress)
	require.Equal(t, uint64(DefaultChainID), cfg.ChainID)
	require.Equal(t, "sqlite", cfg.Indexer.Driver)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config is written to disk")

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.RPC, reloaded.RPC)
}

func TestLoadParsesSections(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.toml", `ListenAddress = " 127.0.0.1:9000 "
DataDir = "/var/lib/trustflow"
ChainID = 42
GenesisFile = "genesis.yaml"

[rpc]
RateLimitPerMinute = 120
Burst = 10

[rpc.jwt]
Enable = true
Issuer = "trustflow-auth"
Audience = "lending"
HSSecretEnv = "TF_JWT_SECRET"

[logging]
Env = "prod"
Level = "DEBUG"

[pauses]
Lending = true

[quota]
MaxRequestsPerEpoch = 30
MaxValuePerEpoch = "2.5"
EpochSeconds = 3600

[indexer]
Enable = true
Driver = "Postgres"
DSN = "postgres://indexer@localhost/trustflow"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	require.Equal(t, uint64(42), cfg.ChainID)
	require.Equal(t, filepath.Join(dir, "genesis.yaml"), cfg.GenesisFile)
	require.Equal(t, int64(DefaultMaxBodyBytes), cfg.RPC.MaxBodyBytes)
	require.True(t, cfg.RPC.JWT.Enable)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "postgres", cfg.Indexer.Driver)
	require.Equal(t, map[string]bool{"lending": true}, cfg.PauseFlags())
	require.Equal(t, filepath.Join("/var/lib/trustflow", "ledger"), cfg.DatabasePath())

	quota, err := cfg.QuotaLimits()
	require.NoError(t, err)
	require.Equal(t, uint32(30), quota.MaxRequestsPerEpoch)
	require.Equal(t, "2500000000000000000", quota.MaxValuePerEpoch.String())
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown key":      "Bogus = 1\n",
		"jwt secret":       "[rpc.jwt]\nEnable = true\nIssuer = \"x\"\n",
		"sample ratio":     "[telemetry]\nSampleRatio = 1.5\n",
		"quota epoch":      "[quota]\nMaxRequestsPerEpoch = 3\n",
		"quota value":      "[quota]\nMaxValuePerEpoch = \"lots\"\nEpochSeconds = 60\n",
		"indexer driver":   "[indexer]\nDriver = \"mysql\"\n",
		"postgres dsn":     "[indexer]\nEnable = true\nDriver = \"postgres\"\n",
		"telemetry target": "[telemetry]\nTraces = true\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.toml", contents)
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestIndexerDSNDefaultsToDataDir(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/data"
	require.Equal(t, filepath.Join("/data", "indexer.db"), cfg.IndexerDSN())
	cfg.Indexer.Driver = "postgres"
	require.Empty(t, cfg.IndexerDSN())
}

func testAddress(fill byte) string {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = fill
	}
	return crypto.MustNewAddress(crypto.TFPrefix, raw).String()
}

func TestLoadGenesis(t *testing.T) {
	dir := t.TempDir()
	contents := strings.Join([]string{
		"owner: " + testAddress(0x01),
		"platformFeeBps: 200",
		"allocations:",
		"  - address: " + testAddress(0x02),
		"    amount: \"1000\"",
		"  - address: " + testAddress(0x03),
		"    amount: \"0.5\"",
		"",
	}, "\n")
	path := writeFile(t, dir, "genesis.yaml", contents)
	g, err := LoadGenesis(path)
	require.NoError(t, err)
	resolved, err := g.Resolve()
	require.NoError(t, err)
	require.Equal(t, uint64(200), resolved.PlatformFeeBps)
	require.Len(t, resolved.Allocations, 2)
	require.Equal(t, "500000000000000000", resolved.Allocations[1].Amount.String())
	require.Equal(t, byte(0x01), resolved.Owner[0])
}

func TestGenesisDefaultsAndValidation(t *testing.T) {
	g := &Genesis{Owner: testAddress(0x01)}
	resolved, err := g.Resolve()
	require.NoError(t, err)
	require.Equal(t, lending.DefaultPlatformFeeBps, resolved.PlatformFeeBps)

	high := uint64(900)
	_, err = (&Genesis{Owner: testAddress(0x01), PlatformFeeBps: &high}).Resolve()
	require.Error(t, err)

	_, err = (&Genesis{Owner: testAddress(0x00)}).Resolve()
	require.Error(t, err)

	dup := &Genesis{Owner: testAddress(0x01), Allocations: []GenesisAllocation{
		{Address: testAddress(0x02), Amount: "1"},
		{Address: testAddress(0x02), Amount: "2"},
	}}
	_, err = dup.Resolve()
	require.Error(t, err)

	path := writeFile(t, t.TempDir(), "genesis.yaml", "owner: x\nextra: 1\n")
	_, err = LoadGenesis(path)
	require.Error(t, err, "unknown fields are rejected")
}
