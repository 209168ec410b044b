package fhe

import (
	"encoding/binary"
	"io"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"zsphere/internal/zcrypto"
)

const (
	inputProofVersion = 1
	maxInputs         = 254
	inputItemBytes    = CiphertextBytes + zcrypto.SchnorrProofBytes
)

// InputBinding is the (chain, contract, user) triple an encrypted input is
// produced for.
type InputBinding struct {
	ChainID  uint64
	Contract common.Address
	User     common.Address
}

func (b InputBinding) context(index uint8, t Type) []zcrypto.Binding {
	var chain [8]byte
	binary.BigEndian.PutUint64(chain[:], b.ChainID)
	return []zcrypto.Binding{
		{Label: "chain", Value: chain[:]},
		{Label: "contract", Value: b.Contract.Bytes()},
		{Label: "user", Value: b.User.Bytes()},
		{Label: "index", Value: []byte{index}},
		{Label: "type", Value: []byte{byte(t)}},
	}
}

func (b InputBinding) inputHandle(ct Ciphertext, index uint8) Handle {
	var chain [8]byte
	binary.BigEndian.PutUint64(chain[:], b.ChainID)
	d := digest("input", ct.Bytes(), []byte{index}, chain[:], b.Contract.Bytes(), b.User.Bytes())
	return newHandle(d, index, b.ChainID, ct.Type)
}

// EncryptedInput is what a client submits: handles plus one proof blob that
// carries the ciphertexts and a proof of knowledge for each of them.
type EncryptedInput struct {
	Handles []Handle      `json:"handles"`
	Proof   hexutil.Bytes `json:"inputProof"`
}

type pendingValue struct {
	t Type
	v *uint256.Int
}

// InputBuilder encrypts values client-side for a single binding.
type InputBuilder struct {
	pk      PublicKey
	binding InputBinding
	values  []pendingValue
}

func NewInputBuilder(pk PublicKey, binding InputBinding) *InputBuilder {
	return &InputBuilder{pk: pk, binding: binding}
}

func (b *InputBuilder) AddBool(v bool) *InputBuilder {
	b.values = append(b.values, pendingValue{t: TypeBool, v: boolWord(v)})
	return b
}

func (b *InputBuilder) Add8(v uint8) *InputBuilder {
	b.values = append(b.values, pendingValue{t: TypeUint8, v: uint256.NewInt(uint64(v))})
	return b
}

func (b *InputBuilder) Add32(v uint32) *InputBuilder {
	b.values = append(b.values, pendingValue{t: TypeUint32, v: uint256.NewInt(uint64(v))})
	return b
}

func (b *InputBuilder) Add64(v uint64) *InputBuilder {
	b.values = append(b.values, pendingValue{t: TypeUint64, v: uint256.NewInt(v)})
	return b
}

func (b *InputBuilder) Encrypt(rng io.Reader) (EncryptedInput, error) {
	if len(b.values) == 0 || len(b.values) > maxInputs {
		return EncryptedInput{}, errorsmod.Wrapf(ErrMalformedInput, "input count %d", len(b.values))
	}
	out := EncryptedInput{Handles: make([]Handle, 0, len(b.values))}
	proof := []byte{inputProofVersion, byte(len(b.values))}
	for i, pv := range b.values {
		idx := uint8(i)
		r, err := zcrypto.RandomScalar(rng)
		if err != nil {
			return EncryptedInput{}, err
		}
		k, err := zcrypto.RandomScalar(rng)
		if err != nil {
			return EncryptedInput{}, err
		}
		ct, err := encryptWord(b.pk, pv.t, pv.v, r)
		if err != nil {
			return EncryptedInput{}, err
		}
		ctx := append(b.binding.context(idx, pv.t), zcrypto.Binding{Label: "body", Value: ct.Inner.Body[:]})
		pok, err := zcrypto.SchnorrProve(r, k, ctx...)
		if err != nil {
			return EncryptedInput{}, err
		}
		proof = append(proof, ct.Bytes()...)
		proof = append(proof, zcrypto.EncodeSchnorrProof(pok)...)
		out.Handles = append(out.Handles, b.binding.inputHandle(ct, idx))
	}
	out.Proof = proof
	return out, nil
}

// VerifyInputProof checks every handle against the proof blob under binding
// and returns the ciphertexts in handle order. Any mismatch rejects the
// whole input.
func VerifyInputProof(binding InputBinding, handles []Handle, proof []byte) ([]Ciphertext, error) {
	if len(proof) < 2 || proof[0] != inputProofVersion {
		return nil, errorsmod.Wrap(ErrMalformedInput, "bad proof header")
	}
	n := int(proof[1])
	if n == 0 || n != len(handles) {
		return nil, errorsmod.Wrapf(ErrMalformedInput, "proof carries %d items for %d handles", n, len(handles))
	}
	if len(proof) != 2+n*inputItemBytes {
		return nil, errorsmod.Wrapf(ErrMalformedInput, "proof length %d", len(proof))
	}

	out := make([]Ciphertext, 0, n)
	for i := 0; i < n; i++ {
		idx := uint8(i)
		item := proof[2+i*inputItemBytes : 2+(i+1)*inputItemBytes]
		ct, err := DecodeCiphertext(item[:CiphertextBytes])
		if err != nil {
			return nil, errorsmod.Wrap(ErrMalformedInput, err.Error())
		}
		pok, err := zcrypto.DecodeSchnorrProof(item[CiphertextBytes:])
		if err != nil {
			return nil, errorsmod.Wrap(ErrMalformedInput, err.Error())
		}
		if handles[i] != binding.inputHandle(ct, idx) {
			return nil, errorsmod.Wrapf(ErrProofRejected, "handle %d not bound to this input", i)
		}
		ctx := append(binding.context(idx, ct.Type), zcrypto.Binding{Label: "body", Value: ct.Inner.Body[:]})
		ok, err := zcrypto.SchnorrVerify(ct.Inner.R, pok, ctx...)
		if err != nil || !ok {
			return nil, errorsmod.Wrapf(ErrProofRejected, "proof of knowledge %d", i)
		}
		out = append(out, ct)
	}
	return out, nil
}
