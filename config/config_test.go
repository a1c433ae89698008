package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"tally/crypto"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, StorageLevelDB, cfg.Storage)
	require.Equal(t, filepath.Join(dir, "keeper.keystore"), cfg.KeeperKeystorePath)
	require.NotNil(t, cfg.Genesis)
	require.NoError(t, ValidateGenesis(cfg.Genesis))

	key, err := crypto.LoadFromKeystore(cfg.KeeperKeystorePath, "")
	require.NoError(t, err)
	require.Equal(t, key.Address().String(), cfg.Genesis.UpgradeAuthority)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.KeeperKeystorePath, reloaded.KeeperKeystorePath)
	require.Equal(t, cfg.Genesis.Protocol, reloaded.Genesis.Protocol)
}

func TestLoadParsesSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	keystorePath := filepath.Join(dir, "ops.keystore")
	contents := fmt.Sprintf(`DataDir = "/var/lib/tally"
Storage = "Memory"
MetricsAddress = "127.0.0.1:9100"
LogLevel = "debug"
GenesisFile = "genesis.json"
KeeperConfig = "keeper.yaml"
KeeperKeystorePath = "%s"

[telemetry]
Endpoint = "otel:4318"
Traces = true
SampleRatio = 0.25
`, keystorePath)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/tally", cfg.DataDir)
	require.Equal(t, StorageMemory, cfg.Storage)
	require.Equal(t, "127.0.0.1:9100", cfg.MetricsAddress)
	require.Equal(t, "local", cfg.Environment)
	require.Equal(t, "keeper.yaml", cfg.KeeperConfig)
	require.True(t, cfg.Telemetry.Traces)
	require.InDelta(t, 0.25, cfg.Telemetry.SampleRatio, 1e-9)
	require.Nil(t, cfg.Genesis)

	_, err = os.Stat(keystorePath)
	require.NoError(t, err, "keystore should be generated at the configured path")
}

func TestLoadRejectsUnknownKeysAndBackends(t *testing.T) {
	dir := t.TempDir()

	unknown := filepath.Join(dir, "unknown.toml")
	require.NoError(t, os.WriteFile(unknown, []byte("ListenAddress = \"0.0.0.0:7000\"\n"), 0o644))
	_, err := Load(unknown)
	require.ErrorContains(t, err, "unknown key")

	backend := filepath.Join(dir, "backend.toml")
	require.NoError(t, os.WriteFile(backend, []byte("Storage = \"badger\"\nKeeperKeyEnv = \"TALLY_KEEPER_KEY\"\n"), 0o644))
	_, err = Load(backend)
	require.ErrorContains(t, err, "unknown storage backend")
}

func TestValidateGenesis(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(g *Genesis)
		ok     bool
	}{
		{name: "default", mutate: func(*Genesis) {}, ok: true},
		{name: "fee bounds inverted", mutate: func(g *Genesis) { g.Protocol.MinFeeBps = 60 }},
		{name: "keeper fee too high", mutate: func(g *Genesis) { g.Protocol.KeeperFeeBps = 101 }},
		{name: "zero min period", mutate: func(g *Genesis) { g.Protocol.MinPeriodSeconds = 0 }},
		{name: "zero withdrawal cap", mutate: func(g *Genesis) { g.Protocol.MaxWithdrawalAmount = 0 }},
		{name: "zero allowance periods", mutate: func(g *Genesis) { g.Protocol.DefaultAllowancePeriods = 0 }},
		{name: "bad upgrade authority", mutate: func(g *Genesis) { g.UpgradeAuthority = "nope" }},
		{name: "no protocol", mutate: func(g *Genesis) { g.Protocol = nil }, ok: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := DefaultGenesis(key.Address())
			tc.mutate(g)
			err := ValidateGenesis(g)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}

	require.Error(t, ValidateGenesis(nil))
}

func TestGenesisSpecConversion(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	g := DefaultGenesis(key.Address())

	spec := g.Spec()
	require.NoError(t, spec.Validate())
	require.Equal(t, g.MintAddress, spec.Mint.Address)
	require.Equal(t, uint64(1_000_000_000_000), spec.Alloc[key.Address().String()].Tokens)
	require.Equal(t, g.Protocol.KeeperFeeBps, spec.Protocol.KeeperFeeBps)
}

func TestLoadUsesPassphraseSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	calls := 0
	source := func() (string, error) {
		calls++
		return "correct horse", nil
	}

	cfg, err := Load(path, WithKeystorePassphraseSource(source))
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	_, err = crypto.LoadFromKeystore(cfg.KeeperKeystorePath, "")
	require.Error(t, err)
	key, err := crypto.LoadFromKeystore(cfg.KeeperKeystorePath, "correct horse")
	require.NoError(t, err)
	require.Equal(t, key.Address().String(), cfg.Genesis.UpgradeAuthority)
}
