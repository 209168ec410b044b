package grant

import errorsmod "cosmossdk.io/errors"

const Codespace = "decrypt"

var (
	ErrDecryptionUnauthorized  = errorsmod.Register(Codespace, 2, "decryption unauthorized")
	ErrDecryptionWindowExpired = errorsmod.Register(Codespace, 3, "decryption window expired")
	ErrBadRequest              = errorsmod.Register(Codespace, 4, "malformed decryption request")
)
