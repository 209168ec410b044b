package userdecrypt

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"zsphere/internal/fhe"
	"zsphere/internal/grant"
)

const DefaultDurationDays = 10

// Oracle is anything that answers user decryption requests: the HTTP
// Client, or an in-process *oracle.Oracle.
type Oracle interface {
	UserDecrypt(ctx context.Context, req grant.UserDecryptRequest) (grant.UserDecryptResponse, error)
}

type Option func(*Authorizer)

func WithDurationDays(days uint64) Option {
	return func(a *Authorizer) { a.durationDays = days }
}

func WithClock(now func() time.Time) Option {
	return func(a *Authorizer) { a.now = now }
}

func WithRandom(r io.Reader) Option {
	return func(a *Authorizer) { a.rand = r }
}

// Authorizer runs the user side of the decryption protocol for one identity.
type Authorizer struct {
	oracle       Oracle
	domain       grant.Domain
	key          *ecdsa.PrivateKey
	durationDays uint64
	now          func() time.Time
	rand         io.Reader
}

func NewAuthorizer(o Oracle, domain grant.Domain, key *ecdsa.PrivateKey, opts ...Option) *Authorizer {
	a := &Authorizer{
		oracle:       o,
		domain:       domain,
		key:          key,
		durationDays: DefaultDurationDays,
		now:          time.Now,
		rand:         rand.Reader,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Authorizer) Address() common.Address { return crypto.PubkeyToAddress(a.key.PublicKey) }

// Decrypt obtains the plaintext of every handle through a fresh grant. The
// ephemeral keypair is zeroed before returning.
func (a *Authorizer) Decrypt(ctx context.Context, pairs []grant.HandleContractPair) (map[fhe.Handle]*uint256.Int, error) {
	if len(pairs) == 0 {
		return map[fhe.Handle]*uint256.Int{}, nil
	}
	kp, err := GenerateKeypair(a.rand)
	if err != nil {
		return nil, err
	}
	defer kp.Zero()

	contracts := make([]common.Address, 0, len(pairs))
	seen := make(map[common.Address]bool)
	for _, p := range pairs {
		if !seen[p.ContractAddress] {
			seen[p.ContractAddress] = true
			contracts = append(contracts, p.ContractAddress)
		}
	}
	g := grant.Request{
		PublicKey:         kp.Public[:],
		ContractAddresses: contracts,
		StartTimestamp:    uint64(a.now().Unix()),
		DurationDays:      a.durationDays,
		ExtraData:         []byte{0},
	}
	sig, err := grant.Sign(a.domain, g, a.key)
	if err != nil {
		return nil, err
	}

	res, err := a.oracle.UserDecrypt(ctx, grant.UserDecryptRequest{
		Pairs:       pairs,
		Grant:       g,
		UserAddress: a.Address(),
		Signature:   sig,
	})
	if err != nil {
		return nil, err
	}

	want := make(map[fhe.Handle]bool, len(pairs))
	for _, p := range pairs {
		want[p.Handle] = true
	}
	out := make(map[fhe.Handle]*uint256.Int, len(pairs))
	for _, r := range res.Results {
		if !want[r.Handle] {
			return nil, fmt.Errorf("oracle returned unrequested handle %s", r.Handle)
		}
		word, err := kp.Open(r.Sealed)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", r.Handle, err)
		}
		out[r.Handle] = new(uint256.Int).SetBytes32(word)
	}
	for h := range want {
		if _, ok := out[h]; !ok {
			return nil, fmt.Errorf("oracle omitted handle %s", h)
		}
	}
	return out, nil
}
