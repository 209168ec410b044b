package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"zsphere/internal/fhe"
	"zsphere/internal/oracle"
)

const (
	defaultLogLevel      = "info"
	defaultChainID       = "zsphere-1"
	defaultABCIAddress   = "tcp://127.0.0.1:26658"
	defaultDBBackend     = "goleveldb"
	defaultOracleListen  = ":8645"
	defaultMetricsListen = ":9645"
	defaultContract      = "0x0000000000000000000000000000000000005a53"
	defaultVerifier      = "0x0000000000000000000000000000000000005a44"
	defaultFHEChainID    = 9000
	defaultNode          = "http://127.0.0.1:26657"
	defaultOracleURL     = "http://127.0.0.1:8645"
	defaultDurationDays  = 10
	defaultKeyName       = "default"
)

func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".zsphere"
	}
	return filepath.Join(home, ".zsphere")
}

// NewConfig builds and validates the configuration.
func NewConfig(v *viper.Viper) (Config, error) {
	cfg, err := BuildConfig(v)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("failed to validate configuration: %w", err)
	}
	return cfg, nil
}

// BuildViper layers flags over ZSPHERE_* environment variables over
// <home>/config/config.json over defaults. The config file is optional.
func BuildViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	// Flag names map to env names with hyphens replaced by underscores.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	SetDefaultConfigValues(v)
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, err
		}
	}

	file := filepath.Join(v.GetString(HomeKey), "config", "config.json")
	if _, err := os.Stat(file); err == nil {
		v.SetConfigFile(file)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return v, nil
}

func SetDefaultConfigValues(v *viper.Viper) {
	v.SetDefault(HomeKey, DefaultHome())
	v.SetDefault(LogLevelKey, defaultLogLevel)
	v.SetDefault(ChainIDKey, defaultChainID)
	v.SetDefault(ABCIAddressKey, defaultABCIAddress)
	v.SetDefault(DBBackendKey, defaultDBBackend)
	v.SetDefault(OracleListenKey, defaultOracleListen)
	v.SetDefault(MetricsListenKey, defaultMetricsListen)
	v.SetDefault(WorkersKey, runtime.GOMAXPROCS(0))
	v.SetDefault(SignerCacheSizeKey, oracle.DefaultSignerCacheSize)
	v.SetDefault(ClockSkewKey, oracle.DefaultClockSkew)
	v.SetDefault(ContractKey, defaultContract)
	v.SetDefault(VerifierKey, defaultVerifier)
	v.SetDefault(FHEChainIDKey, defaultFHEChainID)
	v.SetDefault(ProtocolIDKey, fhe.ProtocolID)
	v.SetDefault(IndexerKey, true)
	v.SetDefault(NodeKey, defaultNode)
	v.SetDefault(OracleURLKey, defaultOracleURL)
	v.SetDefault(DurationDaysKey, defaultDurationDays)
	v.SetDefault(KeyNameKey, defaultKeyName)
}

func BuildConfig(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal viper config: %w", err)
	}
	return cfg, nil
}

// Defaults returns the configuration with every default applied under home.
func Defaults(home string) Config {
	v := viper.New()
	SetDefaultConfigValues(v)
	v.Set(HomeKey, home)
	cfg, _ := BuildConfig(v)
	return cfg
}

// AddFlags registers the shared flags on a command's flag set.
func AddFlags(flags *pflag.FlagSet) {
	flags.String(HomeKey, DefaultHome(), "node and client home directory")
	flags.String(LogLevelKey, defaultLogLevel, "log level (debug, info, warn, error)")
}

// AddNodeFlags registers flags used by the node process.
func AddNodeFlags(flags *pflag.FlagSet) {
	flags.String(ChainIDKey, defaultChainID, "CometBFT chain id")
	flags.String(ABCIAddressKey, defaultABCIAddress, "ABCI listen address")
	flags.String(DBBackendKey, defaultDBBackend, "state database backend (goleveldb, memdb)")
	flags.String(OracleListenKey, defaultOracleListen, "decryption oracle listen address, empty to disable")
	flags.String(MetricsListenKey, defaultMetricsListen, "prometheus listen address, empty to disable")
	flags.Int(WorkersKey, runtime.GOMAXPROCS(0), "concurrent round evaluations")
	flags.Duration(ClockSkewKey, oracle.DefaultClockSkew, "tolerated grant start skew")
	flags.Bool(IndexerKey, true, "index game events into sqlite")
}

// AddClientFlags registers flags used by commands that talk to a node.
func AddClientFlags(flags *pflag.FlagSet) {
	flags.String(NodeKey, defaultNode, "CometBFT RPC endpoint")
	flags.String(OracleURLKey, defaultOracleURL, "decryption oracle URL")
	flags.String(KeyNameKey, defaultKeyName, "identity key name under <home>/keys")
	flags.Uint64(DurationDaysKey, defaultDurationDays, "decryption grant lifetime in days")
}
