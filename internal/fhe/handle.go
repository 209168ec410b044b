package fhe

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const HandleVersion = 0

// Handle references a ciphertext without revealing it.
//
// Layout: digest[0:21] || index(1) || chainID(8, big-endian) || type(1) || version(1).
type Handle [32]byte

// computedIndex marks handles produced by evaluation rather than user input.
const computedIndex = 0xff

func newHandle(digest common.Hash, index uint8, chainID uint64, t Type) Handle {
	var h Handle
	copy(h[:21], digest[:21])
	h[21] = index
	binary.BigEndian.PutUint64(h[22:30], chainID)
	h[30] = byte(t)
	h[31] = HandleVersion
	return h
}

func digest(domain string, parts ...[]byte) common.Hash {
	chunks := make([][]byte, 0, len(parts)+1)
	chunks = append(chunks, []byte("ZSPHEREv1|"+domain))
	chunks = append(chunks, parts...)
	return crypto.Keccak256Hash(chunks...)
}

func (h Handle) IsZero() bool { return h == Handle{} }

func (h Handle) Type() Type { return Type(h[30]) }

func (h Handle) Index() uint8 { return h[21] }

func (h Handle) ChainID() uint64 { return binary.BigEndian.Uint64(h[22:30]) }

func (h Handle) Hex() string { return hexutil.Encode(h[:]) }

func (h Handle) String() string { return h.Hex() }

func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

func (h *Handle) UnmarshalText(b []byte) error {
	out, err := HandleFromHex(string(b))
	if err != nil {
		return err
	}
	*h = out
	return nil
}

func HandleFromHex(s string) (Handle, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return Handle{}, fmt.Errorf("handle: %w", err)
	}
	if len(b) != len(Handle{}) {
		return Handle{}, fmt.Errorf("handle: expected 32 bytes, got %d", len(b))
	}
	var h Handle
	copy(h[:], b)
	return h, nil
}
