package cmd

import (
	"crypto/ecdsa"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"zsphere/internal/config"
)

func keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage identity keys under <home>/keys",
	}
	cmd.AddCommand(keysNewCmd(), keysShowCmd())
	return cmd
}

func keysNewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Generate a secp256k1 identity key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.KeyFile()); err == nil {
				return fmt.Errorf("key %q already exists", cfg.KeyName)
			}
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.KeysDir(), 0o700); err != nil {
				return err
			}
			if err := crypto.SaveECDSA(cfg.KeyFile(), key); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), crypto.PubkeyToAddress(key.PublicKey).Hex())
			return err
		},
	}
	config.AddClientFlags(cmd.Flags())
	return cmd
}

func keysShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the address of an identity key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			key, err := loadKey(cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), crypto.PubkeyToAddress(key.PublicKey).Hex())
			return err
		},
	}
	config.AddClientFlags(cmd.Flags())
	return cmd
}

func loadKey(cfg config.Config) (*ecdsa.PrivateKey, error) {
	key, err := crypto.LoadECDSA(cfg.KeyFile())
	if err != nil {
		return nil, fmt.Errorf("load key %q: %w", cfg.KeyName, err)
	}
	return key, nil
}
