package app

import errorsmod "cosmossdk.io/errors"

const Codespace = "tx"

var (
	ErrBadTx        = errorsmod.Register(Codespace, 2, "malformed transaction")
	ErrUnauthorized = errorsmod.Register(Codespace, 3, "unauthorized")
	ErrReplay       = errorsmod.Register(Codespace, 4, "replayed tx.nonce")
	ErrUnknownTx    = errorsmod.Register(Codespace, 5, "unknown tx type")
)
