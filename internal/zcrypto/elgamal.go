package zcrypto

import "fmt"

// HashedElGamalBytes is R(32) || body(32).
const HashedElGamalBytes = PointBytes + 32

// HashedElGamal encrypts a 32-byte message block as (R = r*G, body = m XOR H(r*Y)).
type HashedElGamal struct {
	R    Point
	Body [32]byte
}

func Encrypt(pk Point, msg [32]byte, r Scalar) (HashedElGamal, error) {
	if r.IsZero() {
		return HashedElGamal{}, fmt.Errorf("elgamal: r must be non-zero")
	}
	pad := mask(MulPoint(pk, r))
	var body [32]byte
	for i := range body {
		body[i] = msg[i] ^ pad[i]
	}
	return HashedElGamal{R: MulBase(r), Body: body}, nil
}

func Decrypt(sk Scalar, ct HashedElGamal) [32]byte {
	pad := mask(MulPoint(ct.R, sk))
	var out [32]byte
	for i := range out {
		out[i] = ct.Body[i] ^ pad[i]
	}
	return out
}

func (ct HashedElGamal) Bytes() []byte {
	return concatBytes(ct.R.Bytes(), ct.Body[:])
}

func DecodeHashedElGamal(b []byte) (HashedElGamal, error) {
	if len(b) != HashedElGamalBytes {
		return HashedElGamal{}, fmt.Errorf("elgamal: expected %d bytes", HashedElGamalBytes)
	}
	r, err := PointFromBytesCanonical(b[:PointBytes])
	if err != nil {
		return HashedElGamal{}, err
	}
	ct := HashedElGamal{R: r}
	copy(ct.Body[:], b[PointBytes:])
	return ct, nil
}
