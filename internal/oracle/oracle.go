package oracle

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/nacl/box"

	"zsphere/internal/fhe"
	"zsphere/internal/grant"
	"zsphere/internal/metrics"
)

const (
	DefaultSignerCacheSize = 1024
	DefaultClockSkew       = 5 * time.Minute

	// MaxPairs bounds one request.
	MaxPairs = 64
)

// Reader is the committed ciphertext and ACL view the oracle decrypts from.
type Reader interface {
	Ciphertext(h fhe.Handle) (fhe.Ciphertext, bool, error)
	IsAllowed(h fhe.Handle, addr common.Address) (bool, error)
}

type Config struct {
	Domain          grant.Domain
	SignerCacheSize int
	ClockSkew       time.Duration
}

type Option func(*Oracle)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Oracle) { o.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Oracle) { o.metrics = m }
}

// Oracle validates user decryption grants and re-encrypts plaintexts to
// the grant's ephemeral key. It never takes engine locks.
type Oracle struct {
	keys    *fhe.KeySet
	reader  Reader
	domain  grant.Domain
	skew    time.Duration
	signers *lru.Cache[common.Hash, common.Address]
	now     func() time.Time
	metrics *metrics.Metrics
	logger  log.Logger
}

func New(keys *fhe.KeySet, reader Reader, cfg Config, logger log.Logger, opts ...Option) (*Oracle, error) {
	size := cfg.SignerCacheSize
	if size <= 0 {
		size = DefaultSignerCacheSize
	}
	signers, err := lru.New[common.Hash, common.Address](size)
	if err != nil {
		return nil, fmt.Errorf("signer cache: %w", err)
	}
	skew := cfg.ClockSkew
	if skew < 0 {
		skew = 0
	}
	o := &Oracle{
		keys:    keys,
		reader:  reader,
		domain:  cfg.Domain,
		skew:    skew,
		signers: signers,
		now:     time.Now,
		logger:  logger.With("module", "oracle"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// UserDecrypt checks the grant and every requested pair, then seals each
// plaintext to the grant's public key. Any failure rejects the whole request.
func (o *Oracle) UserDecrypt(_ context.Context, req grant.UserDecryptRequest) (grant.UserDecryptResponse, error) {
	res, err := o.userDecrypt(req)
	switch {
	case err == nil:
		o.metrics.DecryptRequest("ok", len(res.Results))
	case errorsmod.IsOf(err, grant.ErrDecryptionWindowExpired):
		o.metrics.DecryptRequest("expired", 0)
	case errorsmod.IsOf(err, grant.ErrDecryptionUnauthorized):
		o.metrics.DecryptRequest("unauthorized", 0)
	default:
		o.metrics.DecryptRequest("error", 0)
	}
	return res, err
}

func (o *Oracle) userDecrypt(req grant.UserDecryptRequest) (grant.UserDecryptResponse, error) {
	if len(req.Pairs) == 0 || len(req.Pairs) > MaxPairs {
		return grant.UserDecryptResponse{}, errorsmod.Wrapf(grant.ErrBadRequest, "%d handle pairs", len(req.Pairs))
	}
	if len(req.Grant.PublicKey) != 32 {
		return grant.UserDecryptResponse{}, errorsmod.Wrap(grant.ErrBadRequest, "public key must be 32 bytes")
	}
	if len(req.Grant.ContractAddresses) == 0 {
		return grant.UserDecryptResponse{}, errorsmod.Wrap(grant.ErrBadRequest, "no contract addresses")
	}

	signer, err := o.recoverSigner(req)
	if err != nil {
		return grant.UserDecryptResponse{}, errorsmod.Wrap(grant.ErrDecryptionUnauthorized, err.Error())
	}
	if signer != req.UserAddress {
		return grant.UserDecryptResponse{}, errorsmod.Wrapf(grant.ErrDecryptionUnauthorized, "grant signed by %s, not %s", signer.Hex(), req.UserAddress.Hex())
	}
	if err := o.checkWindow(req.Grant); err != nil {
		return grant.UserDecryptResponse{}, err
	}

	signed := make(map[common.Address]bool, len(req.Grant.ContractAddresses))
	for _, c := range req.Grant.ContractAddresses {
		signed[c] = true
	}

	var recipient [32]byte
	copy(recipient[:], req.Grant.PublicKey)

	out := grant.UserDecryptResponse{
		RequestID: uuid.NewString(),
		Results:   make([]grant.SealedResult, 0, len(req.Pairs)),
	}
	for _, p := range req.Pairs {
		if p.ContractAddress == req.UserAddress {
			return grant.UserDecryptResponse{}, errorsmod.Wrap(grant.ErrDecryptionUnauthorized, "user address used as contract")
		}
		if !signed[p.ContractAddress] {
			return grant.UserDecryptResponse{}, errorsmod.Wrapf(grant.ErrDecryptionUnauthorized, "contract %s not in grant", p.ContractAddress.Hex())
		}
		ct, err := o.authorizedCiphertext(p, req.UserAddress)
		if err != nil {
			return grant.UserDecryptResponse{}, err
		}
		word := o.keys.Decrypt(ct).Bytes32()
		sealed, err := box.SealAnonymous(nil, word[:], &recipient, rand.Reader)
		if err != nil {
			return grant.UserDecryptResponse{}, fmt.Errorf("seal %s: %w", p.Handle, err)
		}
		out.Results = append(out.Results, grant.SealedResult{Handle: p.Handle, Sealed: sealed})
	}
	o.logger.Debug("user decrypt", "request_id", out.RequestID, "user", req.UserAddress.Hex(), "handles", len(out.Results))
	return out, nil
}

func (o *Oracle) authorizedCiphertext(p grant.HandleContractPair, user common.Address) (fhe.Ciphertext, error) {
	for _, who := range []common.Address{user, p.ContractAddress} {
		ok, err := o.reader.IsAllowed(p.Handle, who)
		if err != nil {
			return fhe.Ciphertext{}, err
		}
		if !ok {
			return fhe.Ciphertext{}, errorsmod.Wrapf(grant.ErrDecryptionUnauthorized, "%s not allowed on %s", who.Hex(), p.Handle)
		}
	}
	ct, ok, err := o.reader.Ciphertext(p.Handle)
	if err != nil {
		return fhe.Ciphertext{}, err
	}
	if !ok {
		return fhe.Ciphertext{}, errorsmod.Wrapf(grant.ErrDecryptionUnauthorized, "unknown handle %s", p.Handle)
	}
	return ct, nil
}

func (o *Oracle) checkWindow(g grant.Request) error {
	if g.DurationDays == 0 || g.DurationDays > grant.MaxDurationDays {
		return errorsmod.Wrapf(grant.ErrDecryptionUnauthorized, "duration %d days", g.DurationDays)
	}
	now := o.now()
	start, end := g.Window()
	if start.After(now.Add(o.skew)) {
		return errorsmod.Wrapf(grant.ErrDecryptionWindowExpired, "grant starts at %s", start.UTC().Format(time.RFC3339))
	}
	if !now.Before(end) {
		return errorsmod.Wrapf(grant.ErrDecryptionWindowExpired, "expired at %s", end.UTC().Format(time.RFC3339))
	}
	return nil
}

// recoverSigner memoizes signature recovery keyed by (digest, signature).
func (o *Oracle) recoverSigner(req grant.UserDecryptRequest) (common.Address, error) {
	h, err := grant.SigningHash(o.domain, req.Grant)
	if err != nil {
		return common.Address{}, err
	}
	key := crypto.Keccak256Hash(h.Bytes(), req.Signature)
	if addr, ok := o.signers.Get(key); ok {
		return addr, nil
	}
	addr, err := grant.RecoverSigner(h, req.Signature)
	if err != nil {
		return common.Address{}, err
	}
	o.signers.Add(key, addr)
	return addr, nil
}
