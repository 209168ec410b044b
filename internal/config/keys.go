package config

const (
	EnvPrefix = "ZSPHERE"

	HomeKey            = "home"
	LogLevelKey        = "log-level"
	ChainIDKey         = "chain-id"
	ABCIAddressKey     = "abci-address"
	DBBackendKey       = "db-backend"
	OracleListenKey    = "oracle-listen"
	MetricsListenKey   = "metrics-listen"
	WorkersKey         = "workers"
	SignerCacheSizeKey = "signer-cache-size"
	ClockSkewKey       = "clock-skew"
	ContractKey        = "contract"
	VerifierKey        = "verifying-contract"
	FHEChainIDKey      = "fhe-chain-id"
	ProtocolIDKey      = "protocol-id"
	IndexerKey         = "indexer"
	NodeKey            = "node"
	OracleURLKey       = "oracle-url"
	DurationDaysKey    = "duration-days"
	KeyNameKey         = "key"
)
