package config

import (
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"zsphere/internal/grant"
)

// Config is shared by the node and the client commands.
type Config struct {
	Home            string        `mapstructure:"home" json:"-"`
	LogLevel        string        `mapstructure:"log-level" json:"log-level"`
	ChainID         string        `mapstructure:"chain-id" json:"chain-id"`
	ABCIAddress     string        `mapstructure:"abci-address" json:"abci-address"`
	DBBackend       string        `mapstructure:"db-backend" json:"db-backend"`
	OracleListen    string        `mapstructure:"oracle-listen" json:"oracle-listen"`
	MetricsListen   string        `mapstructure:"metrics-listen" json:"metrics-listen"`
	Workers         int           `mapstructure:"workers" json:"workers"`
	SignerCacheSize int           `mapstructure:"signer-cache-size" json:"signer-cache-size"`
	ClockSkew       time.Duration `mapstructure:"clock-skew" json:"clock-skew"`
	Contract        string        `mapstructure:"contract" json:"contract"`
	Verifier        string        `mapstructure:"verifying-contract" json:"verifying-contract"`
	FHEChainID      uint64        `mapstructure:"fhe-chain-id" json:"fhe-chain-id"`
	ProtocolID      uint64        `mapstructure:"protocol-id" json:"protocol-id"`
	Indexer         bool          `mapstructure:"indexer" json:"indexer"`
	Node            string        `mapstructure:"node" json:"node"`
	OracleURL       string        `mapstructure:"oracle-url" json:"oracle-url"`
	DurationDays    uint64        `mapstructure:"duration-days" json:"duration-days"`
	KeyName         string        `mapstructure:"key" json:"key"`
}

func (c Config) Validate() error {
	if c.Home == "" {
		return fmt.Errorf("%s is required", HomeKey)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid %s %q", LogLevelKey, c.LogLevel)
	}
	if c.ChainID == "" {
		return fmt.Errorf("%s is required", ChainIDKey)
	}
	if !strings.HasPrefix(c.ABCIAddress, "tcp://") && !strings.HasPrefix(c.ABCIAddress, "unix://") {
		return fmt.Errorf("%s must be tcp:// or unix://, got %q", ABCIAddressKey, c.ABCIAddress)
	}
	switch c.DBBackend {
	case "goleveldb", "memdb":
	default:
		return fmt.Errorf("unsupported %s %q", DBBackendKey, c.DBBackend)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%s must be positive", WorkersKey)
	}
	if c.SignerCacheSize < 1 {
		return fmt.Errorf("%s must be positive", SignerCacheSizeKey)
	}
	if c.ClockSkew < 0 || c.ClockSkew > time.Hour {
		return fmt.Errorf("%s must be within [0, 1h]", ClockSkewKey)
	}
	for key, addr := range map[string]string{ContractKey: c.Contract, VerifierKey: c.Verifier} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid %s address %q", key, addr)
		}
	}
	if c.FHEChainID == 0 {
		return fmt.Errorf("%s must be non-zero", FHEChainIDKey)
	}
	if c.DurationDays < 1 || c.DurationDays > grant.MaxDurationDays {
		return fmt.Errorf("%s must be within [1, %d]", DurationDaysKey, grant.MaxDurationDays)
	}
	for key, raw := range map[string]string{NodeKey: c.Node, OracleURLKey: c.OracleURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s %q", key, raw)
		}
	}
	if c.KeyName == "" || strings.ContainsAny(c.KeyName, `/\`) {
		return fmt.Errorf("invalid %s %q", KeyNameKey, c.KeyName)
	}
	return nil
}

func (c Config) ContractAddress() common.Address { return common.HexToAddress(c.Contract) }

// Domain is the EIP-712 domain decryption grants are signed under.
func (c Config) Domain() grant.Domain {
	return grant.Domain{ChainID: c.FHEChainID, VerifyingContract: common.HexToAddress(c.Verifier)}
}

func (c Config) ConfigDir() string      { return filepath.Join(c.Home, "config") }
func (c Config) ConfigFile() string     { return filepath.Join(c.ConfigDir(), "config.json") }
func (c Config) GenesisFile() string    { return filepath.Join(c.ConfigDir(), "genesis.json") }
func (c Config) NetworkKeyFile() string { return filepath.Join(c.ConfigDir(), "network_key.json") }
func (c Config) DataDir() string        { return filepath.Join(c.Home, "data") }
func (c Config) IndexerFile() string    { return filepath.Join(c.DataDir(), "index.db") }
func (c Config) KeysDir() string        { return filepath.Join(c.Home, "keys") }
func (c Config) KeyFile() string        { return filepath.Join(c.KeysDir(), c.KeyName+".key") }

// Logger builds the process logger at the configured level.
func (c Config) Logger(w io.Writer) (log.Logger, error) {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	return log.NewLogger(w, log.LevelOption(level)), nil
}
