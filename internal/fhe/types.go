package fhe

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Type tags the plaintext domain of a ciphertext.
type Type uint8

const (
	TypeBool   Type = 0
	TypeUint8  Type = 2
	TypeUint16 Type = 3
	TypeUint32 Type = 4
	TypeUint64 Type = 5
)

func (t Type) Valid() bool {
	switch t {
	case TypeBool, TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		return true
	}
	return false
}

func (t Type) Bits() uint {
	switch t {
	case TypeBool:
		return 1
	case TypeUint8:
		return 8
	case TypeUint16:
		return 16
	case TypeUint32:
		return 32
	case TypeUint64:
		return 64
	}
	return 0
}

func (t Type) String() string {
	switch t {
	case TypeBool:
		return "ebool"
	case TypeUint8:
		return "euint8"
	case TypeUint16:
		return "euint16"
	case TypeUint32:
		return "euint32"
	case TypeUint64:
		return "euint64"
	}
	return fmt.Sprintf("etype(%d)", uint8(t))
}

// wrap reduces v modulo 2^bits in place.
func (t Type) wrap(v *uint256.Int) *uint256.Int {
	m := new(uint256.Int).Lsh(uint256.NewInt(1), t.Bits())
	m.SubUint64(m, 1)
	return v.And(v, m)
}

func boolWord(b bool) *uint256.Int {
	if b {
		return uint256.NewInt(1)
	}
	return uint256.NewInt(0)
}
