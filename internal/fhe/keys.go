package fhe

import (
	"fmt"
	"io"

	"github.com/holiman/uint256"

	"zsphere/internal/zcrypto"
)

// PublicKey is the network encryption key clients encrypt inputs to.
type PublicKey struct {
	p zcrypto.Point
}

func (pk PublicKey) Bytes() []byte { return pk.p.Bytes() }

func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	p, err := zcrypto.PointFromBytesCanonical(b)
	if err != nil {
		return PublicKey{}, fmt.Errorf("public key: %w", err)
	}
	return PublicKey{p: p}, nil
}

// KeySet holds the network secret key. Only the coprocessor and the
// decryption oracle load it.
type KeySet struct {
	secret zcrypto.Scalar
	Public PublicKey
}

func GenerateKeySet(r io.Reader) (*KeySet, error) {
	sk, err := zcrypto.RandomScalar(r)
	if err != nil {
		return nil, err
	}
	return &KeySet{secret: sk, Public: PublicKey{p: zcrypto.MulBase(sk)}}, nil
}

func KeySetFromSecret(b []byte) (*KeySet, error) {
	sk, err := zcrypto.ScalarFromBytesCanonical(b)
	if err != nil {
		return nil, fmt.Errorf("network key: %w", err)
	}
	if sk.IsZero() {
		return nil, fmt.Errorf("network key: zero scalar")
	}
	return &KeySet{secret: sk, Public: PublicKey{p: zcrypto.MulBase(sk)}}, nil
}

func (k *KeySet) SecretBytes() []byte { return k.secret.Bytes() }

// Decrypt recovers the plaintext word of ct, reduced to its type's width.
func (k *KeySet) Decrypt(ct Ciphertext) *uint256.Int {
	word := zcrypto.Decrypt(k.secret, ct.Inner)
	return ct.Type.wrap(new(uint256.Int).SetBytes32(word[:]))
}

// deterministic per-handle randomness, derived from the secret so it cannot
// be recomputed by observers.
func (k *KeySet) evalScalar(h Handle) (zcrypto.Scalar, error) {
	return zcrypto.HashToScalar("zsphere/v1/eval-r", k.secret.Bytes(), h[:])
}

func encryptWord(pk PublicKey, t Type, v *uint256.Int, r zcrypto.Scalar) (Ciphertext, error) {
	word := t.wrap(new(uint256.Int).Set(v)).Bytes32()
	inner, err := zcrypto.Encrypt(pk.p, word, r)
	if err != nil {
		return Ciphertext{}, err
	}
	return Ciphertext{Type: t, Inner: inner}, nil
}
