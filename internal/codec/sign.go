package codec

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignHash is the digest the envelope signature covers.
func (env TxEnvelope) SignHash(chainID string) common.Hash {
	return crypto.Keccak256Hash(SignBytes(chainID, env.Type, env.Value, env.Nonce, env.Signer))
}

// Sign fills Signer from key and signs the envelope.
func (env *TxEnvelope) Sign(chainID string, key *ecdsa.PrivateKey) error {
	env.Signer = crypto.PubkeyToAddress(key.PublicKey).Hex()
	sig, err := crypto.Sign(env.SignHash(chainID).Bytes(), key)
	if err != nil {
		return fmt.Errorf("sign tx: %w", err)
	}
	env.Sig = sig
	return nil
}

// RecoverSigner returns the address that produced env.Sig.
func (env TxEnvelope) RecoverSigner(chainID string) (common.Address, error) {
	if len(env.Sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid tx.sig length: got %d want %d", len(env.Sig), crypto.SignatureLength)
	}
	pub, err := crypto.SigToPub(env.SignHash(chainID).Bytes(), env.Sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
