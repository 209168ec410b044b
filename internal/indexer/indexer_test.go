package indexer

import (
	"context"
	"crypto/rand"
	"path/filepath"
	"testing"

	"cosmossdk.io/log"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"zsphere/internal/fhe"
	"zsphere/internal/game"
	"zsphere/internal/state"
)

var (
	testContract = common.HexToAddress("0x00000000000000000000000000000000000c0de1")
	alice        = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob          = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func openTest(t *testing.T) *Indexer {
	t.Helper()
	ix, err := Open(filepath.Join(t.TempDir(), "index.db"), log.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })
	return ix
}

func TestIndexer_FollowsEngine(t *testing.T) {
	ix := openTest(t)
	keys, err := fhe.GenerateKeySet(rand.Reader)
	require.NoError(t, err)

	bus := &game.Bus{}
	bus.Subscribe(ix)
	engine, err := game.NewEngine(fhe.NewCoprocessor(keys, 1), state.NewStore(dbm.NewMemDB()),
		game.Config{Contract: testContract, ProtocolID: fhe.ProtocolID}, log.NewNopLogger(), game.WithNotifier(bus))
	require.NoError(t, err)
	ctx := context.Background()
	_, err = engine.InitAnswerKey(ctx, game.DefaultAnswerKey[:])
	require.NoError(t, err)

	_, err = engine.StartGame(ctx, alice)
	require.NoError(t, err)
	_, err = engine.StartGame(ctx, bob)
	require.NoError(t, err)

	var last *game.RoundResult
	for i := 0; i < 2; i++ {
		in, err := fhe.NewInputBuilder(keys.Public, fhe.InputBinding{ChainID: 1, Contract: testContract, User: alice}).
			Add32(0).Add32(1).Encrypt(rand.Reader)
		require.NoError(t, err)
		last, err = engine.PlayRound(ctx, alice, in)
		require.NoError(t, err)
	}

	hist, err := ix.History(ctx, alice, 0)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	require.Equal(t, KindGameStarted, hist[0].Kind)
	require.Equal(t, KindRoundPlayed, hist[2].Kind)
	require.EqualValues(t, 2, hist[2].Round)
	require.Equal(t, last.State.LastOutcome.Hex(), hist[2].Outcome)
	require.NotEqual(t, hist[1].ID, hist[2].ID)

	score, ok, err := ix.LatestScore(ctx, alice)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, last.State.Score, score)

	hist, err = ix.History(ctx, bob, 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)

	hist, err = ix.History(ctx, alice, 1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
}

func TestIndexer_UnknownPlayer(t *testing.T) {
	ix := openTest(t)
	hist, err := ix.History(context.Background(), alice, 0)
	require.NoError(t, err)
	require.Empty(t, hist)

	_, ok, err := ix.LatestScore(context.Background(), alice)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIndexer_MigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ix, err := Open(path, log.NewNopLogger())
	require.NoError(t, err)
	ix.GameStarted(game.GameStarted{Player: alice, Score: fhe.Handle{1}})
	require.NoError(t, ix.Close())

	ix, err = Open(path, log.NewNopLogger())
	require.NoError(t, err)
	defer ix.Close()
	hist, err := ix.History(context.Background(), alice, 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
}
