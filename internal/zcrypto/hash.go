package zcrypto

import (
	"crypto/sha512"
	"fmt"
	"hash"
)

var (
	hashToScalarPrefix = []byte("ZSPHEREv1|hash_to_scalar|")
	maskPrefix         = []byte("ZSPHEREv1|mask|")
)

func updateLenBytes(h hash.Hash, b []byte) {
	h.Write(u32le(uint32(len(b))))
	h.Write(b)
}

// HashToScalar maps domain-separated messages to a uniformly distributed scalar.
func HashToScalar(domainSep string, msgs ...[]byte) (Scalar, error) {
	h := sha512.New()
	h.Write(hashToScalarPrefix)
	updateLenBytes(h, []byte(domainSep))
	for _, m := range msgs {
		if m == nil {
			return Scalar{}, fmt.Errorf("hashToScalar: nil msg")
		}
		updateLenBytes(h, m)
	}
	return ScalarFromUniformBytes(h.Sum(nil))
}

// mask derives a 32-byte one-time pad from a shared point.
func mask(shared Point) [32]byte {
	h := sha512.New()
	h.Write(maskPrefix)
	updateLenBytes(h, shared.Bytes())
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
