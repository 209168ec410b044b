package fhe

import (
	"fmt"

	"zsphere/internal/zcrypto"
)

// CiphertextBytes is type(1) || hashed ElGamal(64).
const CiphertextBytes = 1 + zcrypto.HashedElGamalBytes

type Ciphertext struct {
	Type  Type
	Inner zcrypto.HashedElGamal
}

func (c Ciphertext) Bytes() []byte {
	out := make([]byte, 0, CiphertextBytes)
	out = append(out, byte(c.Type))
	return append(out, c.Inner.Bytes()...)
}

func DecodeCiphertext(b []byte) (Ciphertext, error) {
	if len(b) != CiphertextBytes {
		return Ciphertext{}, fmt.Errorf("ciphertext: expected %d bytes, got %d", CiphertextBytes, len(b))
	}
	t := Type(b[0])
	if !t.Valid() {
		return Ciphertext{}, fmt.Errorf("ciphertext: unknown type %d", b[0])
	}
	inner, err := zcrypto.DecodeHashedElGamal(b[1:])
	if err != nil {
		return Ciphertext{}, fmt.Errorf("ciphertext: %w", err)
	}
	return Ciphertext{Type: t, Inner: inner}, nil
}
