package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"zsphere/internal/fhe"
)

// networkKeyFile holds the coprocessor secret. Only the node reads it.
type networkKeyFile struct {
	Secret    hexutil.Bytes `json:"secret"`
	PublicKey hexutil.Bytes `json:"publicKey"`
}

func writeNetworkKey(path string, keys *fhe.KeySet) error {
	b, err := json.MarshalIndent(networkKeyFile{Secret: keys.SecretBytes(), PublicKey: keys.Public.Bytes()}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func readNetworkKey(path string) (*fhe.KeySet, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read network key: %w", err)
	}
	var f networkKeyFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode network key: %w", err)
	}
	keys, err := fhe.KeySetFromSecret(f.Secret)
	if err != nil {
		return nil, err
	}
	if len(f.PublicKey) > 0 && hexutil.Encode(f.PublicKey) != hexutil.Encode(keys.Public.Bytes()) {
		return nil, fmt.Errorf("network key file: public key does not match secret")
	}
	return keys, nil
}
