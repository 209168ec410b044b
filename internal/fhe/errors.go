package fhe

import errorsmod "cosmossdk.io/errors"

const Codespace = "fhe"

var (
	ErrMalformedInput = errorsmod.Register(Codespace, 2, "malformed encrypted input")
	ErrProofRejected  = errorsmod.Register(Codespace, 3, "input proof rejected")
	ErrUnknownHandle  = errorsmod.Register(Codespace, 4, "unknown ciphertext handle")
	ErrTypeMismatch   = errorsmod.Register(Codespace, 5, "ciphertext type mismatch")
	ErrNotAllowed     = errorsmod.Register(Codespace, 6, "handle not allowed for caller")
	ErrHandleReused   = errorsmod.Register(Codespace, 7, "input handle already imported")
)
