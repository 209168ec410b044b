package cmd

import (
	"encoding/json"
	"fmt"

	"cosmossdk.io/log"
	"github.com/spf13/cobra"

	"zsphere/internal/config"
)

const binaryName = "zsphered"

// NewRootCmd creates the zsphered command tree. It is called once in main.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           binaryName,
		Short:         "ZSphere confidential scoring game node and client",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	config.AddFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		initCmd(),
		startCmd(),
		oracleCmd(),
		keysCmd(),
		txCmd(),
		queryCmd(),
		decryptStateCmd(),
	)
	return rootCmd
}

// loadConfig resolves flags, environment and the optional config file.
func loadConfig(cmd *cobra.Command) (config.Config, log.Logger, error) {
	v, err := config.BuildViper(cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.NewConfig(v)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := cfg.Logger(cmd.ErrOrStderr())
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}
