package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"zsphere/internal/client"
	"zsphere/internal/config"
)

const (
	flagBig     = "big"
	flagSmall   = "small"
	flagDecrypt = "decrypt"
)

func txCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Submit game transactions",
	}
	cmd.AddCommand(txStartCmd(), txPlayCmd())
	return cmd
}

func dialNode(cmd *cobra.Command) (*client.Client, config.Config, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, config.Config{}, err
	}
	key, err := loadKey(cfg)
	if err != nil {
		return nil, config.Config{}, err
	}
	c, err := client.Dial(cfg.Node, key, logger)
	if err != nil {
		return nil, config.Config{}, err
	}
	return c, cfg, nil
}

func txStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a game for the key's identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := dialNode(cmd)
			if err != nil {
				return err
			}
			res, err := c.Start(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "game started for %s (tx %s, height %d)\n", c.Address().Hex(), res.Hash, res.Height)
			return err
		},
	}
	config.AddClientFlags(cmd.Flags())
	return cmd
}

func txPlayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play one round with encrypted big and small picks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			big, _ := cmd.Flags().GetUint32(flagBig)
			small, _ := cmd.Flags().GetUint32(flagSmall)
			c, cfg, err := dialNode(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			res, err := c.Play(ctx, big, small)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "round played for %s (tx %s, height %d)\n", c.Address().Hex(), res.Hash, res.Height); err != nil {
				return err
			}
			if reveal, _ := cmd.Flags().GetBool(flagDecrypt); !reveal {
				return nil
			}

			ps, err := c.PlayerState(ctx, c.Address())
			if err != nil {
				return err
			}
			cr, err := c.Contract(ctx)
			if err != nil {
				return err
			}
			auth, err := newAuthorizer(cmd, cfg)
			if err != nil {
				return err
			}
			out := clearState{Player: c.Address().Hex(), Started: ps.Started, RoundsPlayed: ps.RoundsPlayed}
			fields := []clearField{{ps.Score, &out.Score}, {ps.LastOutcome, &out.LastOutcome}}
			if err := decryptFields(ctx, auth, common.HexToAddress(cr.Contract), fields); err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	config.AddClientFlags(cmd.Flags())
	cmd.Flags().Uint32(flagBig, 0, "big ball pick (0-3)")
	cmd.Flags().Uint32(flagSmall, 1, "small ball pick (1-3)")
	cmd.Flags().Bool(flagDecrypt, false, "decrypt the new score and outcome through the oracle")
	_ = cmd.MarkFlagRequired(flagBig)
	_ = cmd.MarkFlagRequired(flagSmall)
	return cmd
}
