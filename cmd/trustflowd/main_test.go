package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/stretchr/testify/require"

	"trustflow/config"
	"trustflow/crypto"
)

func TestResolveGenesisPathPrecedence(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key != genesisPathEnv {
			t.Fatalf("unexpected lookup key: %s", key)
		}
		return "env-path", true
	}
	if got := resolveGenesisPath(" cli-path ", "cfg-path", lookup); got != "cli-path" {
		t.Fatalf("flag should win, got %q", got)
	}
	if got := resolveGenesisPath("", "cfg-path", lookup); got != "env-path" {
		t.Fatalf("environment should override config, got %q", got)
	}
	blank := func(string) (string, bool) { return "  ", true }
	if got := resolveGenesisPath("", " cfg-path ", blank); got != "cfg-path" {
		t.Fatalf("config should be used when env is blank, got %q", got)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.ChainID = 31
	return cfg
}

func writeGenesis(t *testing.T, owner string, allocations map[string]string) string {
	t.Helper()
	body := fmt.Sprintf("owner: %q\nplatformFeeBps: 200\nallocations:\n", owner)
	for addr, amount := range allocations {
		body += fmt.Sprintf("  - address: %s\n    amount: %q\n", addr, amount)
	}
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDaemonServesAndShutsDown(t *testing.T) {
	owner, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	holder, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.Indexer.Enable = true
	genesis := writeGenesis(t, owner.PubKey().Address().String(), map[string]string{
		holder.PubKey().Address().String(): "5",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d, err := newDaemon(ctx, cfg, daemonOptions{GenesisPath: genesis})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	url := fmt.Sprintf("http://%s/healthz", d.Addr().String())
	var health struct {
		Status      string `json:"status"`
		ChainID     uint64 `json:"chainId"`
		Initialized bool   `json:"initialized"`
	}
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK && json.NewDecoder(resp.Body).Decode(&health) == nil
	}, 5*time.Second, 25*time.Millisecond)
	require.True(t, health.Initialized)
	require.Equal(t, uint64(31), health.ChainID)

	balance, err := d.node.Balance(holder.PubKey().Address().Raw())
	require.NoError(t, err)
	require.Equal(t, "5000000000000000000", balance.String())
	ledger, err := d.node.Ledger()
	require.NoError(t, err)
	require.Equal(t, uint64(200), ledger.PlatformFeeBps)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
	d.Close()
	d.Close()

	// A restart over the same data directory skips genesis.
	cfg.ListenAddress = "127.0.0.1:0"
	restarted, err := newDaemon(context.Background(), cfg, daemonOptions{})
	require.NoError(t, err)
	restarted.Close()
}

func TestDaemonRequiresGenesisOnFirstStart(t *testing.T) {
	_, err := newDaemon(context.Background(), testConfig(t), daemonOptions{})
	require.ErrorContains(t, err, "no genesis file")
}

func TestDaemonTakesOwnerFromKeystore(t *testing.T) {
	lightKeystores(t)
	owner, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	keystore := filepath.Join(t.TempDir(), "owner.json")
	require.NoError(t, crypto.SaveToKeystore(keystore, owner, "correct horse"))

	cfg := testConfig(t)
	cfg.OwnerKeystorePath = keystore
	genesis := writeGenesis(t, "", nil)

	d, err := newDaemon(context.Background(), cfg, daemonOptions{
		GenesisPath: genesis,
		Passphrase:  func() (string, error) { return "correct horse", nil },
	})
	require.NoError(t, err)
	defer d.Close()

	ledger, err := d.node.Ledger()
	require.NoError(t, err)
	require.Equal(t, owner.PubKey().Address().Raw(), ledger.Owner)
}

func TestDaemonRequiresJWTSecret(t *testing.T) {
	owner, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	cfg := testConfig(t)
	cfg.RPC.JWT.Enable = true
	cfg.RPC.JWT.Issuer = "trustflow"
	cfg.RPC.JWT.HSSecretEnv = "TF_TEST_JWT"
	genesis := writeGenesis(t, owner.PubKey().Address().String(), nil)

	empty := func(string) (string, bool) { return "", false }
	_, err = newDaemon(context.Background(), cfg, daemonOptions{GenesisPath: genesis, Lookup: empty})
	require.ErrorContains(t, err, "TF_TEST_JWT")
}

// lightKeystores lowers the scrypt cost of keystores written by the test.
func lightKeystores(t *testing.T) {
	t.Helper()
	n, p := crypto.KeystoreScryptN, crypto.KeystoreScryptP
	crypto.KeystoreScryptN, crypto.KeystoreScryptP = keystore.LightScryptN, keystore.LightScryptP
	t.Cleanup(func() { crypto.KeystoreScryptN, crypto.KeystoreScryptP = n, p })
}
