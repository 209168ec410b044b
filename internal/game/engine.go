package game

import (
	"context"
	"runtime"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/semaphore"

	"zsphere/internal/fhe"
	"zsphere/internal/metrics"
	"zsphere/internal/state"
)

// Store is the ledger view the engine needs.
type Store interface {
	fhe.Reader
	Player(addr common.Address) (state.PlayerState, error)
	AnswerKey() ([]fhe.Handle, error)
	Apply(u state.Update) error
}

type Config struct {
	// Contract is the address this instance binds inputs and ACLs to.
	Contract common.Address
	// ProtocolID is the confidential protocol the instance was deployed for.
	ProtocolID uint64
	// Workers bounds concurrent evaluations. Zero means GOMAXPROCS.
	Workers int
}

type Option func(*Engine)

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine is the round state machine. Transitions for one identity are
// linearized; transitions for different identities run in parallel.
type Engine struct {
	cp       *fhe.Coprocessor
	store    Store
	verifier *InputVerifier
	contract common.Address

	locks    *keyedMutex
	workers  *semaphore.Weighted
	notifier Notifier
	metrics  *metrics.Metrics
	logger   log.Logger
}

func NewEngine(cp *fhe.Coprocessor, st Store, cfg Config, logger log.Logger, opts ...Option) (*Engine, error) {
	if cp == nil {
		return nil, errorsmod.Wrap(ErrUnsupportedProtocol, "no coprocessor")
	}
	if cp.ProtocolID() != cfg.ProtocolID {
		return nil, errorsmod.Wrapf(ErrUnsupportedProtocol, "instance wants %#x, coprocessor speaks %#x", cfg.ProtocolID, cp.ProtocolID())
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	e := &Engine{
		cp:       cp,
		store:    st,
		verifier: NewInputVerifier(cp.ChainID()),
		contract: cfg.Contract,
		locks:    newKeyedMutex(),
		workers:  semaphore.NewWeighted(int64(workers)),
		notifier: &Bus{},
		logger:   logger.With("module", ModuleName),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

func (e *Engine) Contract() common.Address { return e.contract }

// ConfidentialProtocolID reports the protocol of the backing coprocessor.
func (e *Engine) ConfidentialProtocolID() uint64 { return e.cp.ProtocolID() }

// CallOption carries ledger metadata that must commit with the transition.
type CallOption func(*state.Update)

// WithNonce records signer's tx nonce in the same batch as the transition.
func WithNonce(signer common.Address, nonce uint64) CallOption {
	return func(u *state.Update) {
		u.Signer = &signer
		u.Nonce = nonce
	}
}

// InitAnswerKey seals the answer key. It fails if a key is already stored
// or staged.
func (e *Engine) InitAnswerKey(ctx context.Context, values []uint32) ([]fhe.Handle, error) {
	if err := ValidateAnswerKey(values); err != nil {
		return nil, err
	}
	if err := e.workers.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.workers.Release(1)

	s := e.cp.NewSession(e.store, e.contract, e.contract)
	handles, err := sealAnswerKey(s, values)
	if err != nil {
		return nil, err
	}
	for _, h := range handles {
		if err := s.Allow(h, e.contract); err != nil {
			return nil, err
		}
	}
	if err := e.store.Apply(state.Update{Changes: s.Changes(), AnswerKey: handles}); err != nil {
		return nil, err
	}
	e.logger.Info("answer key sealed", "entries", len(handles))
	return handles, nil
}

type StartResult struct {
	Player common.Address
	State  state.PlayerState
}

func (e *Engine) StartGame(ctx context.Context, identity common.Address, opts ...CallOption) (*StartResult, error) {
	unlock := e.locks.Lock(identity)
	defer unlock()

	ps, err := e.store.Player(identity)
	if err != nil {
		return nil, err
	}
	if ps.Started {
		return nil, errorsmod.Wrapf(ErrAlreadyStarted, "player %s", identity)
	}
	if err := e.workers.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.workers.Release(1)

	s := e.cp.NewSession(e.store, e.contract, identity)
	score, err := s.TrivialEncrypt(StartingScore, fhe.TypeUint32)
	if err != nil {
		return nil, err
	}
	if err := e.allowAll(s, identity, score); err != nil {
		return nil, err
	}

	next := state.PlayerState{Score: score, Started: true}
	u := state.Update{Changes: s.Changes(), Player: &identity, PlayerState: next}
	for _, o := range opts {
		o(&u)
	}
	if err := e.store.Apply(u); err != nil {
		return nil, err
	}

	e.metrics.GameStarted()
	e.logger.Info("game started", "player", identity.Hex())
	e.notifier.GameStarted(GameStarted{Player: identity, Score: score})
	return &StartResult{Player: identity, State: next}, nil
}

type RoundResult struct {
	Player common.Address
	State  state.PlayerState
}

// PlayRound applies one move. Once the input has been verified the
// transition always completes or leaves no trace.
func (e *Engine) PlayRound(ctx context.Context, identity common.Address, in fhe.EncryptedInput, opts ...CallOption) (*RoundResult, error) {
	unlock := e.locks.Lock(identity)
	defer unlock()

	ps, err := e.store.Player(identity)
	if err != nil {
		return nil, err
	}
	if !ps.Started {
		return nil, errorsmod.Wrapf(ErrNotStarted, "player %s", identity)
	}
	answers, err := e.store.AnswerKey()
	if err != nil {
		return nil, err
	}
	if len(answers) != AnswerKeySize {
		return nil, ErrAnswerKeyNotSet
	}

	if err := e.workers.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.workers.Release(1)
	began := time.Now()

	cts, err := e.verifier.Verify(in, identity, e.contract)
	if err != nil {
		return nil, err
	}
	s := e.cp.NewSession(e.store, e.contract, identity)
	if err := s.Import(in.Handles, cts); err != nil {
		if errorsmod.IsOf(err, fhe.ErrHandleReused, fhe.ErrTypeMismatch, fhe.ErrMalformedInput) {
			return nil, errorsmod.Wrap(ErrInvalidProof, err.Error())
		}
		return nil, err
	}
	big, small := in.Handles[0], in.Handles[1]

	out, err := evaluateRound(s, ps.Score, big, small, answers)
	if err != nil {
		return nil, err
	}
	if err := e.allowAll(s, identity, out.Score, big, small, out.Outcome); err != nil {
		return nil, err
	}

	next := state.PlayerState{
		Score:         out.Score,
		LastBigBall:   big,
		LastSmallBall: small,
		LastOutcome:   out.Outcome,
		RoundsPlayed:  ps.RoundsPlayed + 1,
		Started:       true,
	}
	u := state.Update{Changes: s.Changes(), Player: &identity, PlayerState: next}
	for _, o := range opts {
		o(&u)
	}
	if err := e.store.Apply(u); err != nil {
		return nil, err
	}

	e.metrics.RoundPlayed(time.Since(began))
	e.logger.Debug("round played", "player", identity.Hex(), "rounds", next.RoundsPlayed)
	e.notifier.RoundPlayed(RoundPlayed{
		Player:       identity,
		NewScore:     out.Score,
		BigBall:      big,
		SmallBall:    small,
		Outcome:      out.Outcome,
		RoundsPlayed: next.RoundsPlayed,
	})
	return &RoundResult{Player: identity, State: next}, nil
}

// PlayerState returns the stored state or the zero state.
func (e *Engine) PlayerState(_ context.Context, identity common.Address) (state.PlayerState, error) {
	return e.store.Player(identity)
}

func (e *Engine) EncryptedAnswer(_ context.Context, index uint64) (fhe.Handle, error) {
	answers, err := e.store.AnswerKey()
	if err != nil {
		return fhe.Handle{}, err
	}
	return AnswerAt(answers, index)
}

// allowAll lets both the owner and the contract use and decrypt handles.
func (e *Engine) allowAll(s *fhe.Session, owner common.Address, handles ...fhe.Handle) error {
	for _, h := range handles {
		if err := s.Allow(h, owner); err != nil {
			return err
		}
		if err := s.Allow(h, e.contract); err != nil {
			return err
		}
	}
	return nil
}
