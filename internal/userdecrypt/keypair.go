package userdecrypt

import (
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/box"
)

// Keypair is a single-use box keypair that receives sealed plaintexts.
type Keypair struct {
	Public  *[32]byte
	private *[32]byte
}

func GenerateKeypair(r io.Reader) (*Keypair, error) {
	pub, priv, err := box.GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("generate box keypair: %w", err)
	}
	return &Keypair{Public: pub, private: priv}, nil
}

// Open returns the 32-byte word sealed to this keypair.
func (k *Keypair) Open(sealed []byte) ([]byte, error) {
	if k.private == nil {
		return nil, fmt.Errorf("keypair already zeroed")
	}
	word, ok := box.OpenAnonymous(nil, sealed, k.Public, k.private)
	if !ok || len(word) != 32 {
		return nil, fmt.Errorf("sealed result does not open")
	}
	return word, nil
}

// Zero wipes the private key. The keypair is unusable afterwards.
func (k *Keypair) Zero() {
	if k.private != nil {
		clear(k.private[:])
		k.private = nil
	}
}
