package zcrypto

import (
	"crypto/sha512"
	"fmt"
)

// SchnorrProof proves knowledge of r such that R = r*G, bound to a context.
type SchnorrProof struct {
	// a = k*G
	A Point
	// z = k + e*r
	Z Scalar
}

const SchnorrProofBytes = PointBytes + ScalarBytes

const schnorrDomain = "zsphere/v1/schnorr-dlog"

var challengePrefix = []byte("ZSPHEREv1|challenge|")

// Label/value pairs that bind the proof to its context.
type Binding struct {
	Label string
	Value []byte
}

// schnorrChallenge hashes every binding as a length-prefixed label/value
// pair, then the statement R and the commitment A.
func schnorrChallenge(R, A Point, ctx []Binding) (Scalar, error) {
	h := sha512.New()
	h.Write(challengePrefix)
	updateLenBytes(h, []byte(schnorrDomain))
	for _, b := range ctx {
		if b.Value == nil {
			return Scalar{}, fmt.Errorf("schnorr: nil binding %q", b.Label)
		}
		updateLenBytes(h, []byte(b.Label))
		updateLenBytes(h, b.Value)
	}
	updateLenBytes(h, R.Bytes())
	updateLenBytes(h, A.Bytes())
	return ScalarFromUniformBytes(h.Sum(nil))
}

func SchnorrProve(r Scalar, k Scalar, ctx ...Binding) (SchnorrProof, error) {
	if k.IsZero() {
		return SchnorrProof{}, fmt.Errorf("schnorr: k must be non-zero")
	}
	R := MulBase(r)
	A := MulBase(k)
	e, err := schnorrChallenge(R, A, ctx)
	if err != nil {
		return SchnorrProof{}, err
	}
	return SchnorrProof{A: A, Z: ScalarAdd(k, ScalarMul(e, r))}, nil
}

func SchnorrVerify(R Point, proof SchnorrProof, ctx ...Binding) (bool, error) {
	e, err := schnorrChallenge(R, proof.A, ctx)
	if err != nil {
		return false, err
	}
	// z*G == A + e*R
	return PointEq(MulBase(proof.Z), PointAdd(proof.A, MulPoint(R, e))), nil
}

// Encoding: A(32) || z(32 le)
func EncodeSchnorrProof(p SchnorrProof) []byte {
	return concatBytes(p.A.Bytes(), p.Z.Bytes())
}

func DecodeSchnorrProof(b []byte) (SchnorrProof, error) {
	if len(b) != SchnorrProofBytes {
		return SchnorrProof{}, fmt.Errorf("schnorr: expected %d bytes", SchnorrProofBytes)
	}
	a, err := PointFromBytesCanonical(b[:PointBytes])
	if err != nil {
		return SchnorrProof{}, err
	}
	z, err := ScalarFromBytesCanonical(b[PointBytes:])
	if err != nil {
		return SchnorrProof{}, err
	}
	return SchnorrProof{A: a, Z: z}, nil
}
