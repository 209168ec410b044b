package cmd

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"zsphere/internal/app"
	"zsphere/internal/config"
	"zsphere/internal/fhe"
)

const flagForce = "force"

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the network key, config file and genesis app_state under --home",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			force, _ := cmd.Flags().GetBool(flagForce)
			if _, err := os.Stat(cfg.NetworkKeyFile()); err == nil && !force {
				return fmt.Errorf("%s exists, use --%s to overwrite", cfg.NetworkKeyFile(), flagForce)
			}

			keys, err := fhe.GenerateKeySet(rand.Reader)
			if err != nil {
				return err
			}
			if err := writeNetworkKey(cfg.NetworkKeyFile(), keys); err != nil {
				return err
			}
			if err := writeJSONFile(cfg.ConfigFile(), cfg, 0o644); err != nil {
				return err
			}
			if err := writeJSONFile(cfg.GenesisFile(), app.DefaultGenesisState(), 0o644); err != nil {
				return err
			}
			logger.Info("initialized", "home", cfg.Home, "chain_id", cfg.ChainID, "contract", cfg.Contract)
			_, err = fmt.Fprintf(cmd.OutOrStdout(),
				"network public key: 0x%x\nuse %s as the app_state of the CometBFT genesis\n",
				keys.Public.Bytes(), cfg.GenesisFile())
			return err
		},
	}
	config.AddNodeFlags(cmd.Flags())
	cmd.Flags().Bool(flagForce, false, "overwrite an existing network key")
	return cmd
}

func writeJSONFile(path string, v any, perm os.FileMode) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, perm)
}
