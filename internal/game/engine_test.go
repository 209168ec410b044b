package game

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"testing"

	"cosmossdk.io/log"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"zsphere/internal/fhe"
	"zsphere/internal/state"
)

const testChainID = 31337

var (
	testContract = common.HexToAddress("0x00000000000000000000000000000000000c0de1")
	alice        = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob          = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type recorder struct {
	mu      sync.Mutex
	started []GameStarted
	rounds  []RoundPlayed
}

func (r *recorder) GameStarted(ev GameStarted) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, ev)
}

func (r *recorder) RoundPlayed(ev RoundPlayed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rounds = append(r.rounds, ev)
}

type harness struct {
	engine *Engine
	store  *state.Store
	keys   *fhe.KeySet
	events *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	keys, err := fhe.GenerateKeySet(rand.Reader)
	require.NoError(t, err)
	st := state.NewStore(dbm.NewMemDB())
	rec := &recorder{}

	e, err := NewEngine(fhe.NewCoprocessor(keys, testChainID), st, Config{
		Contract:   testContract,
		ProtocolID: fhe.ProtocolID,
		Workers:    2,
	}, log.NewNopLogger(), WithNotifier(rec))
	require.NoError(t, err)

	_, err = e.InitAnswerKey(context.Background(), DefaultAnswerKey[:])
	require.NoError(t, err)
	return &harness{engine: e, store: st, keys: keys, events: rec}
}

func (h *harness) encrypt(t *testing.T, user common.Address, big, small uint32) fhe.EncryptedInput {
	t.Helper()
	binding := fhe.InputBinding{ChainID: testChainID, Contract: testContract, User: user}
	in, err := fhe.NewInputBuilder(h.keys.Public, binding).Add32(big).Add32(small).Encrypt(rand.Reader)
	require.NoError(t, err)
	return in
}

func (h *harness) decrypt(t *testing.T, handle fhe.Handle) uint64 {
	t.Helper()
	ct, ok, err := h.store.Ciphertext(handle)
	require.NoError(t, err)
	require.True(t, ok, "ciphertext %s missing", handle)
	return h.keys.Decrypt(ct).Uint64()
}

type clearState struct {
	Score, LastBig, LastSmall, Outcome uint64
	Rounds                             uint32
	Started                            bool
}

func (h *harness) clear(t *testing.T, who common.Address) clearState {
	t.Helper()
	ps, err := h.engine.PlayerState(context.Background(), who)
	require.NoError(t, err)
	cs := clearState{Rounds: ps.RoundsPlayed, Started: ps.Started, Score: h.decrypt(t, ps.Score)}
	if ps.RoundsPlayed > 0 {
		cs.LastBig = h.decrypt(t, ps.LastBigBall)
		cs.LastSmall = h.decrypt(t, ps.LastSmallBall)
		cs.Outcome = h.decrypt(t, ps.LastOutcome)
	}
	return cs
}

func TestStartGame_InitialState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.StartGame(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, clearState{Score: 100, Started: true}, h.clear(t, alice))

	_, err = h.engine.StartGame(ctx, alice)
	require.ErrorIs(t, err, ErrAlreadyStarted)
	require.Equal(t, clearState{Score: 100, Started: true}, h.clear(t, alice), "rejection is not a reset")

	require.Len(t, h.events.started, 1)
	ps, _ := h.engine.PlayerState(ctx, alice)
	require.Equal(t, ps.Score, h.events.started[0].Score)

	ok, err := h.store.IsAllowed(ps.Score, alice)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = h.store.IsAllowed(ps.Score, bob)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPlayerState_UnknownIdentityIsZero(t *testing.T) {
	h := newHarness(t)
	ps, err := h.engine.PlayerState(context.Background(), bob)
	require.NoError(t, err)
	require.Equal(t, state.PlayerState{}, ps)
}

func TestPlayRound_CorrectPick(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.StartGame(ctx, alice)
	require.NoError(t, err)

	res, err := h.engine.PlayRound(ctx, alice, h.encrypt(t, alice, 0, 1))
	require.NoError(t, err)
	require.Equal(t, uint32(1), res.State.RoundsPlayed)

	require.Equal(t, clearState{Score: 110, LastBig: 0, LastSmall: 1, Outcome: 1, Rounds: 1, Started: true}, h.clear(t, alice))

	require.Len(t, h.events.rounds, 1)
	ev := h.events.rounds[0]
	require.Equal(t, res.State.Score, ev.NewScore)
	require.Equal(t, res.State.LastOutcome, ev.Outcome)
}

func TestPlayRound_EveryAnswerWins(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.StartGame(ctx, alice)
	require.NoError(t, err)

	for big, small := range DefaultAnswerKey {
		_, err := h.engine.PlayRound(ctx, alice, h.encrypt(t, alice, uint32(big), small))
		require.NoError(t, err)
		require.Equal(t, uint64(1), h.clear(t, alice).Outcome, "big=%d", big)
	}
	require.Equal(t, uint64(140), h.clear(t, alice).Score, "no upper clamp")
}

func TestPlayRound_WrongPicksClampAtZero(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.StartGame(ctx, alice)
	require.NoError(t, err)

	prev := uint64(100)
	for i := 0; i < 11; i++ {
		_, err := h.engine.PlayRound(ctx, alice, h.encrypt(t, alice, 3, 1))
		require.NoError(t, err)
		got := h.clear(t, alice)
		want := uint64(0)
		if prev >= 10 {
			want = prev - 10
		}
		require.Equal(t, want, got.Score, "round %d", i+1)
		require.Equal(t, uint64(0), got.Outcome)
		require.Equal(t, uint32(i+1), got.Rounds)
		prev = got.Score
	}
	require.Equal(t, clearState{Score: 0, LastBig: 3, LastSmall: 1, Outcome: 0, Rounds: 11, Started: true}, h.clear(t, alice))
}

func TestPlayRound_OutOfRangeBigBallLoses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.StartGame(ctx, alice)
	require.NoError(t, err)

	// small=0 would equal the zero default of the lookup; found must veto it.
	_, err = h.engine.PlayRound(ctx, alice, h.encrypt(t, alice, 9, 0))
	require.NoError(t, err)
	got := h.clear(t, alice)
	require.Equal(t, uint64(0), got.Outcome)
	require.Equal(t, uint64(90), got.Score)
	require.Equal(t, uint64(9), got.LastBig)
}

func TestPlayRound_NotStarted(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.PlayRound(context.Background(), alice, h.encrypt(t, alice, 0, 1))
	require.ErrorIs(t, err, ErrNotStarted)

	ps, err := h.engine.PlayerState(context.Background(), alice)
	require.NoError(t, err)
	require.Equal(t, state.PlayerState{}, ps)
}

func TestPlayRound_InvalidProofLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.StartGame(ctx, alice)
	require.NoError(t, err)
	before, err := h.store.AppHash()
	require.NoError(t, err)

	// Proof generated for another contract instance.
	binding := fhe.InputBinding{ChainID: testChainID, Contract: common.HexToAddress("0xdead"), User: alice}
	foreign, err := fhe.NewInputBuilder(h.keys.Public, binding).Add32(0).Add32(1).Encrypt(rand.Reader)
	require.NoError(t, err)
	_, err = h.engine.PlayRound(ctx, alice, foreign)
	require.ErrorIs(t, err, ErrInvalidProof)

	// Input encrypted by bob, submitted by alice.
	_, err = h.engine.PlayRound(ctx, alice, h.encrypt(t, bob, 0, 1))
	require.ErrorIs(t, err, ErrInvalidProof)

	// Wrong arity.
	in := h.encrypt(t, alice, 0, 1)
	in.Handles = in.Handles[:1]
	_, err = h.engine.PlayRound(ctx, alice, in)
	require.ErrorIs(t, err, ErrInvalidProof)

	after, err := h.store.AppHash()
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Equal(t, clearState{Score: 100, Started: true}, h.clear(t, alice))
	require.Empty(t, h.events.rounds)
}

func TestPlayRound_ReplayedInputRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.StartGame(ctx, alice)
	require.NoError(t, err)

	in := h.encrypt(t, alice, 0, 1)
	_, err = h.engine.PlayRound(ctx, alice, in)
	require.NoError(t, err)
	_, err = h.engine.PlayRound(ctx, alice, in)
	require.ErrorIs(t, err, ErrInvalidProof)
	require.Equal(t, uint32(1), h.clear(t, alice).Rounds)
}

func TestPlayRound_ConcurrentIdentities(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	players := make([]common.Address, 6)
	for i := range players {
		players[i] = common.HexToAddress(fmt.Sprintf("0x%040x", 0x100+i))
		_, err := h.engine.StartGame(ctx, players[i])
		require.NoError(t, err)
	}

	const rounds = 3
	var wg sync.WaitGroup
	errs := make(chan error, len(players)*rounds)
	for _, p := range players {
		inputs := make([]fhe.EncryptedInput, rounds)
		for r := range inputs {
			inputs[r] = h.encrypt(t, p, 1, 3)
		}
		wg.Add(1)
		go func(p common.Address, inputs []fhe.EncryptedInput) {
			defer wg.Done()
			for _, in := range inputs {
				if _, err := h.engine.PlayRound(ctx, p, in); err != nil {
					errs <- err
				}
			}
		}(p, inputs)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for _, p := range players {
		got := h.clear(t, p)
		require.Equal(t, uint32(rounds), got.Rounds)
		require.Equal(t, uint64(130), got.Score)
	}
}

func TestPlayRound_SameIdentityIsLinearized(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.StartGame(ctx, alice)
	require.NoError(t, err)

	const n = 8
	inputs := make([]fhe.EncryptedInput, n)
	for i := range inputs {
		inputs[i] = h.encrypt(t, alice, 2, 2)
	}
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, in := range inputs {
		wg.Add(1)
		go func(in fhe.EncryptedInput) {
			defer wg.Done()
			if _, err := h.engine.PlayRound(ctx, alice, in); err != nil {
				errs <- err
			}
		}(in)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got := h.clear(t, alice)
	require.Equal(t, uint32(n), got.Rounds, "no lost updates")
	require.Equal(t, uint64(100+10*n), got.Score)
}

func TestEncryptedAnswer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i, want := range DefaultAnswerKey {
		handle, err := h.engine.EncryptedAnswer(ctx, uint64(i))
		require.NoError(t, err)
		require.Equal(t, uint64(want), h.decrypt(t, handle))
	}
	_, err := h.engine.EncryptedAnswer(ctx, AnswerKeySize)
	require.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = h.engine.InitAnswerKey(ctx, DefaultAnswerKey[:])
	require.Error(t, err, "answer key is immutable")
}

func TestNewEngine_UnsupportedProtocol(t *testing.T) {
	keys, err := fhe.GenerateKeySet(rand.Reader)
	require.NoError(t, err)
	st := state.NewStore(dbm.NewMemDB())

	_, err = NewEngine(fhe.NewCoprocessor(keys, testChainID), st, Config{ProtocolID: 42}, log.NewNopLogger())
	require.ErrorIs(t, err, ErrUnsupportedProtocol)

	_, err = NewEngine(nil, st, Config{ProtocolID: fhe.ProtocolID}, log.NewNopLogger())
	require.ErrorIs(t, err, ErrUnsupportedProtocol)
}

func TestValidateAnswerKey(t *testing.T) {
	require.NoError(t, ValidateAnswerKey(DefaultAnswerKey[:]))
	require.Error(t, ValidateAnswerKey([]uint32{1, 2, 3}))
	require.Error(t, ValidateAnswerKey([]uint32{1, 2, 3, 4}))
}

func TestDeferred_HoldsEventsUntilFlush(t *testing.T) {
	rec := &recorder{}
	d := NewDeferred(rec)

	d.GameStarted(GameStarted{Player: alice})
	d.RoundPlayed(RoundPlayed{Player: alice, RoundsPlayed: 1})
	require.Empty(t, rec.started)
	require.Empty(t, rec.rounds)

	d.Flush()
	require.Len(t, rec.started, 1)
	require.Len(t, rec.rounds, 1)
	require.EqualValues(t, 1, rec.rounds[0].RoundsPlayed)

	d.GameStarted(GameStarted{Player: bob})
	d.Drop()
	d.Flush()
	require.Len(t, rec.started, 1, "dropped event was delivered")
}
