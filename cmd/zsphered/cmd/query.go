package cmd

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"zsphere/internal/config"
	"zsphere/internal/indexer"
)

const flagLimit = "limit"

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "query",
		Aliases: []string{"q"},
		Short:   "Read game state from a node",
	}
	cmd.AddCommand(queryStateCmd(), queryAnswerCmd(), queryProtocolCmd(), queryHistoryCmd())
	return cmd
}

// playerArg returns the address argument or the local key's address.
func playerArg(cfg config.Config, args []string) (common.Address, error) {
	if len(args) == 1 {
		if !common.IsHexAddress(args[0]) {
			return common.Address{}, fmt.Errorf("invalid address %q", args[0])
		}
		return common.HexToAddress(args[0]), nil
	}
	key, err := loadKey(cfg)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

func queryStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state [address]",
		Short: "Show a player's encrypted state handles",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cfg, err := dialNode(cmd)
			if err != nil {
				return err
			}
			player, err := playerArg(cfg, args)
			if err != nil {
				return err
			}
			ps, err := c.PlayerState(cmd.Context(), player)
			if err != nil {
				return err
			}
			return printJSON(cmd, ps)
		},
	}
	config.AddClientFlags(cmd.Flags())
	return cmd
}

func queryAnswerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "answer <index>",
		Short: "Show the encrypted answer handle for a big ball",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return err
			}
			c, _, err := dialNode(cmd)
			if err != nil {
				return err
			}
			ans, err := c.EncryptedAnswer(cmd.Context(), idx)
			if err != nil {
				return err
			}
			return printJSON(cmd, ans)
		},
	}
	config.AddClientFlags(cmd.Flags())
	return cmd
}

func queryProtocolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "protocol",
		Short: "Show the confidential protocol id and network key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := dialNode(cmd)
			if err != nil {
				return err
			}
			p, err := c.Protocol(cmd.Context())
			if err != nil {
				return err
			}
			nk, err := c.NetworkKey(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"protocolId": p.ProtocolID, "networkKey": nk})
		},
	}
	config.AddClientFlags(cmd.Flags())
	return cmd
}

func queryHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [address]",
		Short: "List a player's indexed game events from the local node",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			player, err := playerArg(cfg, args)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt(flagLimit)
			ix, err := indexer.Open(cfg.IndexerFile(), logger)
			if err != nil {
				return err
			}
			defer ix.Close()
			events, err := ix.History(cmd.Context(), player, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, events)
		},
	}
	config.AddClientFlags(cmd.Flags())
	cmd.Flags().Int(flagLimit, 0, "maximum events, 0 for all")
	return cmd
}
