package state

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	dbm "github.com/cosmos/cosmos-db"
	"github.com/ethereum/go-ethereum/common"

	"zsphere/internal/fhe"
)

const dbName = "zsphere"

var (
	prefixPlayer     = []byte("p/")
	prefixCiphertext = []byte("c/")
	prefixACL        = []byte("a/")
	prefixAnswer     = []byte("k/")
	prefixNonce      = []byte("n/")
	keyMeta          = []byte("m/meta")
)

// PlayerState is the per-identity game record. Handles are zero until the
// game is started.
type PlayerState struct {
	Score         fhe.Handle `json:"score"`
	LastBigBall   fhe.Handle `json:"lastBigBall"`
	LastSmallBall fhe.Handle `json:"lastSmallBall"`
	LastOutcome   fhe.Handle `json:"lastOutcome"`
	RoundsPlayed  uint32     `json:"roundsPlayed"`
	Started       bool       `json:"started"`
}

// Meta is node bookkeeping. It is not part of the app hash.
type Meta struct {
	Height  int64  `json:"height"`
	AppHash []byte `json:"appHash,omitempty"`
}

// Store is the authoritative state, backed by a cosmos-db database. Writes
// are staged in memory until Commit; reads through the Store see staged
// writes first, reads through Committed see only what is on disk.
type Store struct {
	View
	db dbm.DB

	mu      sync.RWMutex
	pending map[string][]byte
}

func NewStore(db dbm.DB) *Store {
	s := &Store{db: db, pending: map[string][]byte{}}
	s.View = View{src: s}
	return s
}

// Open opens (or creates) the on-disk store under home/data.
func Open(home string, backend string) (*Store, error) {
	db, err := dbm.NewDB(dbName, dbm.BackendType(backend), filepath.Join(home, "data"))
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", backend, err)
	}
	return NewStore(db), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Committed returns a read-only view of the last committed block.
func (s *Store) Committed() View {
	return View{src: committed{db: s.db}}
}

func playerKey(addr common.Address) []byte { return append(append([]byte{}, prefixPlayer...), addr.Bytes()...) }

func ciphertextKey(h fhe.Handle) []byte { return append(append([]byte{}, prefixCiphertext...), h[:]...) }

func aclKey(h fhe.Handle, addr common.Address) []byte {
	k := append(append([]byte{}, prefixACL...), h[:]...)
	return append(k, addr.Bytes()...)
}

func answerKey(i uint8) []byte { return append(append([]byte{}, prefixAnswer...), i) }

func nonceKey(addr common.Address) []byte { return append(append([]byte{}, prefixNonce...), addr.Bytes()...) }

// source is a point lookup and ordered range scan over the key space.
type source interface {
	get(key []byte) ([]byte, error)
	scan(start, end []byte, fn func(k, v []byte)) error
}

// View decodes ledger records from a source.
type View struct {
	src source
}

// Player returns the stored state, or the zero state for an unknown identity.
func (v View) Player(addr common.Address) (PlayerState, error) {
	bz, err := v.src.get(playerKey(addr))
	if err != nil {
		return PlayerState{}, err
	}
	if bz == nil {
		return PlayerState{}, nil
	}
	var ps PlayerState
	if err := json.Unmarshal(bz, &ps); err != nil {
		return PlayerState{}, fmt.Errorf("decode player %s: %w", addr, err)
	}
	return ps, nil
}

func (v View) Ciphertext(h fhe.Handle) (fhe.Ciphertext, bool, error) {
	bz, err := v.src.get(ciphertextKey(h))
	if err != nil {
		return fhe.Ciphertext{}, false, err
	}
	if bz == nil {
		return fhe.Ciphertext{}, false, nil
	}
	ct, err := fhe.DecodeCiphertext(bz)
	if err != nil {
		return fhe.Ciphertext{}, false, err
	}
	return ct, true, nil
}

func (v View) IsAllowed(h fhe.Handle, addr common.Address) (bool, error) {
	bz, err := v.src.get(aclKey(h, addr))
	return bz != nil, err
}

// AnswerKey returns the stored answer handles in index order.
func (v View) AnswerKey() ([]fhe.Handle, error) {
	var (
		out []fhe.Handle
		bad []byte
	)
	err := v.src.scan(prefixAnswer, prefixEnd(prefixAnswer), func(k, val []byte) {
		var h fhe.Handle
		if len(val) != len(h) {
			bad = append([]byte{}, k...)
			return
		}
		copy(h[:], val)
		out = append(out, h)
	})
	if err != nil {
		return nil, err
	}
	if bad != nil {
		return nil, fmt.Errorf("answer %x: bad handle length", bad)
	}
	return out, nil
}

func (v View) Nonce(addr common.Address) (uint64, error) {
	bz, err := v.src.get(nonceKey(addr))
	if err != nil || bz == nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(bz), nil
}

// AppHash commits to every consensus key in sorted order.
func (v View) AppHash() ([]byte, error) {
	h := sha256.New()
	var lenBuf [4]byte
	err := v.src.scan(nil, nil, func(k, val []byte) {
		if string(k) == string(keyMeta) {
			return
		}
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(k)))
		h.Write(lenBuf[:])
		h.Write(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(val)))
		h.Write(lenBuf[:])
		h.Write(val)
	})
	if err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// Meta is always read from disk.
func (s *Store) Meta() (Meta, error) {
	bz, err := s.db.Get(keyMeta)
	if err != nil || bz == nil {
		return Meta{}, err
	}
	var m Meta
	if err := json.Unmarshal(bz, &m); err != nil {
		return Meta{}, fmt.Errorf("decode meta: %w", err)
	}
	return m, nil
}

// Update is one atomic state transition.
type Update struct {
	Changes fhe.ChangeSet

	Player      *common.Address
	PlayerState PlayerState

	// Signer/Nonce record the accepted tx nonce, if any.
	Signer *common.Address
	Nonce  uint64

	AnswerKey []fhe.Handle
}

// Apply stages u: either all of it becomes visible or none of it.
func (s *Store) Apply(u Update) error {
	writes := map[string][]byte{}
	for _, c := range u.Changes.Ciphertexts {
		writes[string(ciphertextKey(c.Handle))] = c.Ciphertext.Bytes()
	}
	for _, e := range u.Changes.ACL {
		writes[string(aclKey(e.Handle, e.Address))] = []byte{1}
	}
	if u.Player != nil {
		bz, err := json.Marshal(u.PlayerState)
		if err != nil {
			return err
		}
		writes[string(playerKey(*u.Player))] = bz
	}
	if u.Signer != nil {
		n := make([]byte, 8)
		binary.BigEndian.PutUint64(n, u.Nonce)
		writes[string(nonceKey(*u.Signer))] = n
	}
	for i, h := range u.AnswerKey {
		writes[string(answerKey(uint8(i)))] = append([]byte{}, h[:]...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(u.AnswerKey) > 0 {
		k := answerKey(0)
		_, staged := s.pending[string(k)]
		onDisk, err := s.db.Has(k)
		if err != nil {
			return err
		}
		if staged || onDisk {
			return errors.New("answer key already set")
		}
	}
	for k, v := range writes {
		s.pending[k] = v
	}
	return nil
}

// Commit writes every staged change together with m in one synced batch.
// On error nothing is written and the staged changes are kept.
func (s *Store) Commit(m Meta) error {
	bz, err := json.Marshal(m)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.db.NewBatch()
	defer b.Close()
	for k, v := range s.pending {
		if err := b.Set([]byte(k), v); err != nil {
			return err
		}
	}
	if err := b.Set(keyMeta, bz); err != nil {
		return err
	}
	if err := b.WriteSync(); err != nil {
		return err
	}
	s.pending = map[string][]byte{}
	return nil
}

// Discard drops every staged change.
func (s *Store) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = map[string][]byte{}
}

func (s *Store) get(key []byte) ([]byte, error) {
	s.mu.RLock()
	v, ok := s.pending[string(key)]
	s.mu.RUnlock()
	if ok {
		return v, nil
	}
	return s.db.Get(key)
}

// scan merges staged writes over the database range [start, end).
func (s *Store) scan(start, end []byte, fn func(k, v []byte)) error {
	s.mu.RLock()
	staged := make([]string, 0, len(s.pending))
	vals := make(map[string][]byte, len(s.pending))
	for k, v := range s.pending {
		if inRange(k, start, end) {
			staged = append(staged, k)
			vals[k] = v
		}
	}
	s.mu.RUnlock()
	sort.Strings(staged)

	it, err := s.db.Iterator(start, end)
	if err != nil {
		return err
	}
	defer it.Close()

	i := 0
	for ; it.Valid(); it.Next() {
		k := string(it.Key())
		for i < len(staged) && staged[i] < k {
			fn([]byte(staged[i]), vals[staged[i]])
			i++
		}
		if i < len(staged) && staged[i] == k {
			fn([]byte(k), vals[k])
			i++
			continue
		}
		fn(it.Key(), it.Value())
	}
	for ; i < len(staged); i++ {
		fn([]byte(staged[i]), vals[staged[i]])
	}
	return it.Error()
}

type committed struct {
	db dbm.DB
}

func (c committed) get(key []byte) ([]byte, error) { return c.db.Get(key) }

func (c committed) scan(start, end []byte, fn func(k, v []byte)) error {
	it, err := c.db.Iterator(start, end)
	if err != nil {
		return err
	}
	defer it.Close()
	for ; it.Valid(); it.Next() {
		fn(it.Key(), it.Value())
	}
	return it.Error()
}

func inRange(k string, start, end []byte) bool {
	if start != nil && k < string(start) {
		return false
	}
	return end == nil || k < string(end)
}

func prefixEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
