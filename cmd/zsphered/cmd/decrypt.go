package cmd

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"zsphere/internal/codec"
	"zsphere/internal/config"
	"zsphere/internal/fhe"
	"zsphere/internal/grant"
	"zsphere/internal/userdecrypt"
)

const flagPlayer = "player"

type clearState struct {
	Player        string `json:"player"`
	Started       bool   `json:"started"`
	RoundsPlayed  uint32 `json:"roundsPlayed"`
	Score         string `json:"score,omitempty"`
	LastBigBall   string `json:"lastBigBall,omitempty"`
	LastSmallBall string `json:"lastSmallBall,omitempty"`
	LastOutcome   string `json:"lastOutcome,omitempty"`
}

// clearField is a handle and where its plaintext goes.
type clearField struct {
	h   fhe.Handle
	dst *string
}

func stateFields(ps codec.PlayerStateResponse, out *clearState) []clearField {
	return []clearField{
		{ps.Score, &out.Score},
		{ps.LastBigBall, &out.LastBigBall},
		{ps.LastSmallBall, &out.LastSmallBall},
		{ps.LastOutcome, &out.LastOutcome},
	}
}

type handleDecrypter interface {
	Decrypt(ctx context.Context, pairs []grant.HandleContractPair) (map[fhe.Handle]*uint256.Int, error)
}

// decryptFields decrypts the non-zero handles in fields in one grant and
// writes their decimal plaintexts.
func decryptFields(ctx context.Context, auth handleDecrypter, contract common.Address, fields []clearField) error {
	var pairs []grant.HandleContractPair
	for _, f := range fields {
		if !f.h.IsZero() {
			pairs = append(pairs, grant.HandleContractPair{Handle: f.h, ContractAddress: contract})
		}
	}
	if len(pairs) == 0 {
		return nil
	}
	plain, err := auth.Decrypt(ctx, pairs)
	if err != nil {
		return err
	}
	for _, f := range fields {
		if v, ok := plain[f.h]; ok {
			*f.dst = v.Dec()
		}
	}
	return nil
}

func newAuthorizer(cmd *cobra.Command, cfg config.Config) (*userdecrypt.Authorizer, error) {
	key, err := loadKey(cfg)
	if err != nil {
		return nil, err
	}
	logger, err := cfg.Logger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return userdecrypt.NewAuthorizer(
		userdecrypt.NewClient(cfg.OracleURL, logger),
		cfg.Domain(), key,
		userdecrypt.WithDurationDays(cfg.DurationDays),
	), nil
}

func decryptStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decrypt-state",
		Short: "Decrypt a player's state through a user decryption grant",
		Long: "Reads the player's handles from the node, signs a short-lived grant with the local key " +
			"and asks the oracle to re-encrypt the plaintexts to an ephemeral key.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, cfg, err := dialNode(cmd)
			if err != nil {
				return err
			}
			player := c.Address()
			if p, _ := cmd.Flags().GetString(flagPlayer); p != "" {
				if player, err = playerArg(cfg, []string{p}); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			ps, err := c.PlayerState(ctx, player)
			if err != nil {
				return err
			}
			out := clearState{Player: player.Hex(), Started: ps.Started, RoundsPlayed: ps.RoundsPlayed}
			if !ps.Started {
				return printJSON(cmd, out)
			}
			cr, err := c.Contract(ctx)
			if err != nil {
				return err
			}
			auth, err := newAuthorizer(cmd, cfg)
			if err != nil {
				return err
			}
			if err := decryptFields(ctx, auth, common.HexToAddress(cr.Contract), stateFields(ps, &out)); err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	config.AddClientFlags(cmd.Flags())
	cmd.Flags().String(flagPlayer, "", "player address (defaults to the key's address)")
	return cmd
}
