package fhe

import (
	"encoding/binary"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ProtocolID identifies this coprocessor implementation to the instances
// that use it.
const ProtocolID uint64 = 0x5a53_0001

// Reader is the persisted view of ciphertexts and their access lists.
type Reader interface {
	Ciphertext(h Handle) (Ciphertext, bool, error)
	IsAllowed(h Handle, addr common.Address) (bool, error)
}

// Coprocessor evaluates operations over ciphertexts. It holds the network
// key, so it is the trust anchor of the instance.
type Coprocessor struct {
	keys    *KeySet
	chainID uint64
}

func NewCoprocessor(keys *KeySet, chainID uint64) *Coprocessor {
	return &Coprocessor{keys: keys, chainID: chainID}
}

func (c *Coprocessor) ProtocolID() uint64 { return ProtocolID }

func (c *Coprocessor) ChainID() uint64 { return c.chainID }

func (c *Coprocessor) PublicKey() PublicKey { return c.keys.Public }

// NewSession opens an evaluation scope for contract acting on behalf of
// caller. Results stay in the session until the caller persists Changes.
func (c *Coprocessor) NewSession(r Reader, contract, caller common.Address) *Session {
	return &Session{
		cp:       c,
		reader:   r,
		contract: contract,
		caller:   caller,
		created:  map[Handle]Ciphertext{},
		keep:     map[Handle]bool{},
		allowed:  map[Handle]map[common.Address]struct{}{},
	}
}

type opcode byte

const (
	opTrivial opcode = iota + 1
	opSealed
	opEq
	opLt
	opAnd
	opOr
	opAdd
	opSub
	opSelect
)

// StoredCiphertext is a handle with its ciphertext.
type StoredCiphertext struct {
	Handle     Handle
	Ciphertext Ciphertext
}

// ACLEntry grants addr the right to use or decrypt handle.
type ACLEntry struct {
	Handle  Handle
	Address common.Address
}

// ChangeSet is everything a session wants persisted.
type ChangeSet struct {
	Ciphertexts []StoredCiphertext
	ACL         []ACLEntry
}

type Session struct {
	cp       *Coprocessor
	reader   Reader
	contract common.Address
	caller   common.Address

	created map[Handle]Ciphertext
	order   []Handle
	keep    map[Handle]bool
	allowed map[Handle]map[common.Address]struct{}
	aclLog  []ACLEntry
}

// Import registers verified user input ciphertexts. A handle can only be
// imported once across the lifetime of the store.
func (s *Session) Import(handles []Handle, cts []Ciphertext) error {
	if len(handles) != len(cts) {
		return errorsmod.Wrap(ErrMalformedInput, "handle and ciphertext counts differ")
	}
	for i, h := range handles {
		if h.Type() != cts[i].Type {
			return errorsmod.Wrapf(ErrTypeMismatch, "input %d", i)
		}
		if _, ok := s.created[h]; ok {
			return errorsmod.Wrapf(ErrHandleReused, "input %d", i)
		}
		_, exists, err := s.reader.Ciphertext(h)
		if err != nil {
			return err
		}
		if exists {
			return errorsmod.Wrapf(ErrHandleReused, "input %d", i)
		}
		s.put(h, cts[i])
		s.keep[h] = true
	}
	return nil
}

func (s *Session) TrivialEncrypt(v uint64, t Type) (Handle, error) {
	if !t.Valid() {
		return Handle{}, errorsmod.Wrapf(ErrTypeMismatch, "type %d", t)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	h := s.resultHandle(opTrivial, t, nil, buf[:])
	return h, s.emit(h, t, uint256.NewInt(v))
}

// Seal encrypts a private constant. Unlike TrivialEncrypt the handle depends
// only on label, never on the value.
func (s *Session) Seal(v uint64, t Type, label string) (Handle, error) {
	if !t.Valid() {
		return Handle{}, errorsmod.Wrapf(ErrTypeMismatch, "type %d", t)
	}
	h := s.resultHandle(opSealed, t, nil, []byte(label))
	return h, s.emit(h, t, uint256.NewInt(v))
}

func (s *Session) Eq(a, b Handle) (Handle, error) {
	va, vb, _, err := s.binary(a, b)
	if err != nil {
		return Handle{}, err
	}
	h := s.resultHandle(opEq, TypeBool, []Handle{a, b}, nil)
	return h, s.emit(h, TypeBool, boolWord(va.Eq(vb)))
}

func (s *Session) Lt(a, b Handle) (Handle, error) {
	va, vb, _, err := s.binary(a, b)
	if err != nil {
		return Handle{}, err
	}
	h := s.resultHandle(opLt, TypeBool, []Handle{a, b}, nil)
	return h, s.emit(h, TypeBool, boolWord(va.Lt(vb)))
}

func (s *Session) And(a, b Handle) (Handle, error) {
	va, vb, t, err := s.binary(a, b)
	if err != nil {
		return Handle{}, err
	}
	h := s.resultHandle(opAnd, t, []Handle{a, b}, nil)
	return h, s.emit(h, t, new(uint256.Int).And(va, vb))
}

func (s *Session) Or(a, b Handle) (Handle, error) {
	va, vb, t, err := s.binary(a, b)
	if err != nil {
		return Handle{}, err
	}
	h := s.resultHandle(opOr, t, []Handle{a, b}, nil)
	return h, s.emit(h, t, new(uint256.Int).Or(va, vb))
}

// Add wraps modulo 2^bits of the operand type.
func (s *Session) Add(a, b Handle) (Handle, error) {
	va, vb, t, err := s.binary(a, b)
	if err != nil {
		return Handle{}, err
	}
	h := s.resultHandle(opAdd, t, []Handle{a, b}, nil)
	return h, s.emit(h, t, new(uint256.Int).Add(va, vb))
}

// Sub wraps modulo 2^bits of the operand type.
func (s *Session) Sub(a, b Handle) (Handle, error) {
	va, vb, t, err := s.binary(a, b)
	if err != nil {
		return Handle{}, err
	}
	h := s.resultHandle(opSub, t, []Handle{a, b}, nil)
	return h, s.emit(h, t, new(uint256.Int).Sub(va, vb))
}

// Select returns ifTrue when cond decrypts to 1 and ifFalse otherwise,
// computed as ifFalse + cond*(ifTrue-ifFalse).
func (s *Session) Select(cond, ifTrue, ifFalse Handle) (Handle, error) {
	vc, tc, err := s.load(cond)
	if err != nil {
		return Handle{}, err
	}
	if tc != TypeBool {
		return Handle{}, errorsmod.Wrapf(ErrTypeMismatch, "select condition is %s", tc)
	}
	va, vb, t, err := s.binary(ifTrue, ifFalse)
	if err != nil {
		return Handle{}, err
	}
	diff := new(uint256.Int).Sub(va, vb)
	diff.Mul(diff, vc)
	h := s.resultHandle(opSelect, t, []Handle{cond, ifTrue, ifFalse}, nil)
	return h, s.emit(h, t, diff.Add(diff, vb))
}

// Allow grants addr access to h once the session is persisted.
func (s *Session) Allow(h Handle, addr common.Address) error {
	if _, ok := s.created[h]; !ok {
		ok, err := s.reader.IsAllowed(h, s.contract)
		if err != nil {
			return err
		}
		if !ok {
			return errorsmod.Wrapf(ErrNotAllowed, "%s", h)
		}
	}
	set := s.allowed[h]
	if set == nil {
		set = map[common.Address]struct{}{}
		s.allowed[h] = set
	}
	if _, ok := set[addr]; ok {
		return nil
	}
	set[addr] = struct{}{}
	if _, ok := s.created[h]; ok {
		s.keep[h] = true
	}
	s.aclLog = append(s.aclLog, ACLEntry{Handle: h, Address: addr})
	return nil
}

// Changes returns the imported inputs and every result that was granted to
// someone. Unreferenced intermediates are dropped.
func (s *Session) Changes() ChangeSet {
	cs := ChangeSet{
		Ciphertexts: make([]StoredCiphertext, 0, len(s.keep)),
		ACL:         append([]ACLEntry(nil), s.aclLog...),
	}
	for _, h := range s.order {
		if !s.keep[h] {
			continue
		}
		cs.Ciphertexts = append(cs.Ciphertexts, StoredCiphertext{Handle: h, Ciphertext: s.created[h]})
	}
	return cs
}

func (s *Session) put(h Handle, ct Ciphertext) {
	if _, ok := s.created[h]; !ok {
		s.order = append(s.order, h)
	}
	s.created[h] = ct
}

func (s *Session) emit(h Handle, t Type, v *uint256.Int) error {
	r, err := s.cp.keys.evalScalar(h)
	if err != nil {
		return err
	}
	ct, err := encryptWord(s.cp.keys.Public, t, v, r)
	if err != nil {
		return err
	}
	s.put(h, ct)
	return nil
}

func (s *Session) load(h Handle) (*uint256.Int, Type, error) {
	ct, ok := s.created[h]
	if !ok {
		var err error
		ct, ok, err = s.reader.Ciphertext(h)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			return nil, 0, errorsmod.Wrapf(ErrUnknownHandle, "%s", h)
		}
		allowed, err := s.reader.IsAllowed(h, s.contract)
		if err != nil {
			return nil, 0, err
		}
		if !allowed {
			return nil, 0, errorsmod.Wrapf(ErrNotAllowed, "%s", h)
		}
	}
	return s.cp.keys.Decrypt(ct), ct.Type, nil
}

func (s *Session) binary(a, b Handle) (*uint256.Int, *uint256.Int, Type, error) {
	va, ta, err := s.load(a)
	if err != nil {
		return nil, nil, 0, err
	}
	vb, tb, err := s.load(b)
	if err != nil {
		return nil, nil, 0, err
	}
	if ta != tb {
		return nil, nil, 0, errorsmod.Wrapf(ErrTypeMismatch, "%s vs %s", ta, tb)
	}
	return va, vb, ta, nil
}

func (s *Session) resultHandle(op opcode, t Type, operands []Handle, extra []byte) Handle {
	parts := make([][]byte, 0, len(operands)+4)
	parts = append(parts, []byte{byte(op)})
	for _, o := range operands {
		parts = append(parts, o[:])
	}
	if extra == nil {
		extra = []byte{}
	}
	parts = append(parts, extra, s.contract.Bytes(), s.caller.Bytes())
	return newHandle(digest("op", parts...), computedIndex, s.cp.chainID, t)
}
