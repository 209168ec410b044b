package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	AddNodeFlags(fs)
	AddClientFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestNewConfig_Defaults(t *testing.T) {
	home := t.TempDir()
	v, err := BuildViper(newFlags(t, "--home", home))
	require.NoError(t, err)
	cfg, err := NewConfig(v)
	require.NoError(t, err)

	require.Equal(t, home, cfg.Home)
	require.Equal(t, "tcp://127.0.0.1:26658", cfg.ABCIAddress)
	require.Equal(t, "goleveldb", cfg.DBBackend)
	require.Equal(t, ":8645", cfg.OracleListen)
	require.Equal(t, 5*time.Minute, cfg.ClockSkew)
	require.EqualValues(t, 10, cfg.DurationDays)
	require.Equal(t, filepath.Join(home, "config", "genesis.json"), cfg.GenesisFile())
	require.Equal(t, filepath.Join(home, "keys", "default.key"), cfg.KeyFile())
	require.Equal(t, cfg.FHEChainID, cfg.Domain().ChainID)
}

func TestBuildViper_Precedence(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, "config", "config.json"),
		[]byte(`{"oracle-listen": ":1111", "workers": 3, "clock-skew": "30s"}`), 0o644))

	t.Setenv("ZSPHERE_ORACLE_LISTEN", ":2222")
	t.Setenv("ZSPHERE_FHE_CHAIN_ID", "77")

	v, err := BuildViper(newFlags(t, "--home", home, "--workers", "8"))
	require.NoError(t, err)
	cfg, err := NewConfig(v)
	require.NoError(t, err)

	require.Equal(t, ":2222", cfg.OracleListen, "env over file")
	require.Equal(t, 8, cfg.Workers, "flag over file")
	require.Equal(t, 30*time.Second, cfg.ClockSkew, "file over default")
	require.EqualValues(t, 77, cfg.FHEChainID, "env over default")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"log level":     func(c *Config) { c.LogLevel = "loud" },
		"chain id":      func(c *Config) { c.ChainID = "" },
		"abci scheme":   func(c *Config) { c.ABCIAddress = "127.0.0.1:26658" },
		"db backend":    func(c *Config) { c.DBBackend = "rocksdb" },
		"workers":       func(c *Config) { c.Workers = 0 },
		"cache":         func(c *Config) { c.SignerCacheSize = 0 },
		"skew":          func(c *Config) { c.ClockSkew = 2 * time.Hour },
		"contract":      func(c *Config) { c.Contract = "nope" },
		"verifier":      func(c *Config) { c.Verifier = "0x12" },
		"fhe chain":     func(c *Config) { c.FHEChainID = 0 },
		"duration low":  func(c *Config) { c.DurationDays = 0 },
		"duration high": func(c *Config) { c.DurationDays = 366 },
		"node":          func(c *Config) { c.Node = "localhost" },
		"key name":      func(c *Config) { c.KeyName = "../x" },
	}
	require.NoError(t, Defaults(t.TempDir()).Validate())
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Defaults(t.TempDir())
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLogger(t *testing.T) {
	cfg := Defaults(t.TempDir())
	_, err := cfg.Logger(os.Stderr)
	require.NoError(t, err)

	cfg.LogLevel = "nope"
	_, err = cfg.Logger(os.Stderr)
	require.Error(t, err)
}
