package app

import (
	"strconv"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"

	"zsphere/internal/codec"
)

func requireSignedEnvelope(env codec.TxEnvelope) error {
	if env.Nonce == "" {
		return errorsmod.Wrap(ErrBadTx, "missing tx.nonce")
	}
	if env.Signer == "" {
		return errorsmod.Wrap(ErrBadTx, "missing tx.signer")
	}
	if !common.IsHexAddress(env.Signer) {
		return errorsmod.Wrapf(ErrBadTx, "tx.signer is not an address: %q", env.Signer)
	}
	if len(env.Sig) == 0 {
		return errorsmod.Wrap(ErrBadTx, "missing tx.sig")
	}
	return nil
}

type nonceReader interface {
	Nonce(addr common.Address) (uint64, error)
}

// authenticate checks the envelope signature and the nonce against nonces
// and returns the signer with the nonce to record on success.
func (a *App) authenticate(env codec.TxEnvelope, nonces nonceReader) (common.Address, uint64, error) {
	if err := requireSignedEnvelope(env); err != nil {
		return common.Address{}, 0, err
	}
	nonce, err := strconv.ParseUint(env.Nonce, 10, 64)
	if err != nil {
		return common.Address{}, 0, errorsmod.Wrapf(ErrBadTx, "invalid tx.nonce %q", env.Nonce)
	}
	signer := common.HexToAddress(env.Signer)
	got, err := env.RecoverSigner(a.chainID)
	if err != nil {
		return common.Address{}, 0, errorsmod.Wrap(ErrUnauthorized, err.Error())
	}
	if got != signer {
		return common.Address{}, 0, errorsmod.Wrapf(ErrUnauthorized, "signature by %s, signer %s", got.Hex(), signer.Hex())
	}
	last, err := nonces.Nonce(signer)
	if err != nil {
		return common.Address{}, 0, err
	}
	if nonce <= last {
		return common.Address{}, 0, errorsmod.Wrapf(ErrReplay, "nonce %d, last %d", nonce, last)
	}
	return signer, nonce, nil
}

// requirePlayer binds the tx body's player field to the authenticated signer.
func requirePlayer(player string, signer common.Address) error {
	if !common.IsHexAddress(player) {
		return errorsmod.Wrapf(ErrBadTx, "player is not an address: %q", player)
	}
	if common.HexToAddress(player) != signer {
		return errorsmod.Wrapf(ErrUnauthorized, "player %s is not the signer", player)
	}
	return nil
}
