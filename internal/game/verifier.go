package game

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"

	"zsphere/internal/fhe"
)

// InputVerifier checks that an encrypted move was produced for this
// contract and this identity. It fails closed.
type InputVerifier struct {
	chainID uint64
}

func NewInputVerifier(chainID uint64) *InputVerifier {
	return &InputVerifier{chainID: chainID}
}

// Verify returns the proven ciphertexts, or an error wrapping ErrInvalidProof.
func (v *InputVerifier) Verify(in fhe.EncryptedInput, identity, contract common.Address) ([]fhe.Ciphertext, error) {
	if len(in.Handles) != 2 {
		return nil, errorsmod.Wrapf(ErrInvalidProof, "expected 2 handles, got %d", len(in.Handles))
	}
	for i, h := range in.Handles {
		if h.Type() != fhe.TypeUint32 {
			return nil, errorsmod.Wrapf(ErrInvalidProof, "handle %d is %s", i, h.Type())
		}
	}
	binding := fhe.InputBinding{ChainID: v.chainID, Contract: contract, User: identity}
	cts, err := fhe.VerifyInputProof(binding, in.Handles, in.Proof)
	if err != nil {
		return nil, errorsmod.Wrap(ErrInvalidProof, err.Error())
	}
	return cts, nil
}
