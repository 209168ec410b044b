package game

import errorsmod "cosmossdk.io/errors"

const ModuleName = "game"

var (
	ErrInvalidProof        = errorsmod.Register(ModuleName, 2, "invalid input proof")
	ErrNotStarted          = errorsmod.Register(ModuleName, 3, "game not started")
	ErrAlreadyStarted      = errorsmod.Register(ModuleName, 4, "game already started")
	ErrUnsupportedProtocol = errorsmod.Register(ModuleName, 5, "confidential protocol unsupported")
	ErrIndexOutOfRange     = errorsmod.Register(ModuleName, 6, "answer index out of range")
	ErrAnswerKeyNotSet     = errorsmod.Register(ModuleName, 7, "answer key not initialised")
)
