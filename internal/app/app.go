package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"zsphere/internal/codec"
	"zsphere/internal/fhe"
	"zsphere/internal/game"
	"zsphere/internal/metrics"
	"zsphere/internal/state"
)

const (
	AppVersion uint64 = 1
)

type App struct {
	*abci.BaseApplication

	chainID string
	store   *state.Store
	engine  *game.Engine
	events  *game.Deferred
	pubKey  fhe.PublicKey
	fheID   uint64
	metrics *metrics.Metrics
	logger  log.Logger

	mu sync.Mutex
	// height and lastHash describe the last committed block.
	height   int64
	lastHash []byte
	// working is the block finalized but not yet committed.
	working state.Meta
}

type Option func(*App)

// WithEvents releases the engine's queued notifications once their block
// commits, and drops them when it does not.
func WithEvents(d *game.Deferred) Option {
	return func(a *App) { a.events = d }
}

func New(chainID string, st *state.Store, cp *fhe.Coprocessor, engine *game.Engine, m *metrics.Metrics, logger log.Logger, opts ...Option) (*App, error) {
	meta, err := st.Meta()
	if err != nil {
		return nil, err
	}
	a := &App{
		BaseApplication: abci.NewBaseApplication(),
		chainID:         chainID,
		store:           st,
		engine:          engine,
		events:          game.NewDeferred(&game.Bus{}),
		pubKey:          cp.PublicKey(),
		fheID:           cp.ChainID(),
		metrics:         m,
		logger:          logger.With("module", "app"),
		height:          meta.Height,
		lastHash:        meta.AppHash,
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

func (a *App) Info(_ context.Context, _ *abci.InfoRequest) (*abci.InfoResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return &abci.InfoResponse{
		Data:             "ZSphere (v1)",
		Version:          "v1",
		AppVersion:       AppVersion,
		LastBlockHeight:  a.height,
		LastBlockAppHash: a.lastHash,
	}, nil
}

// CheckTx validates against committed state only.
func (a *App) CheckTx(_ context.Context, req *abci.CheckTxRequest) (*abci.CheckTxResponse, error) {
	env, err := codec.DecodeTxEnvelope(req.Tx)
	if err != nil {
		return checkErr(errorsmod.Wrap(ErrBadTx, err.Error())), nil
	}
	if _, _, err := a.authenticate(env, a.store.Committed()); err != nil {
		return checkErr(err), nil
	}
	return &abci.CheckTxResponse{Code: 0}, nil
}

// InitChain stages the genesis state; it reaches disk with the first block.
// A node that stops before that commit gets InitChain again, so any staged
// genesis is dropped first.
func (a *App) InitChain(ctx context.Context, req *abci.InitChainRequest) (*abci.InitChainResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if req.ChainId != a.chainID {
		return nil, fmt.Errorf("genesis chain-id %q, node configured for %q", req.ChainId, a.chainID)
	}
	gs, err := parseGenesis(req.AppStateBytes)
	if err != nil {
		return nil, err
	}
	a.store.Discard()
	a.events.Drop()
	if _, err := a.engine.InitAnswerKey(ctx, gs.AnswerKey); err != nil {
		return nil, fmt.Errorf("seal answer key: %w", err)
	}
	hash, err := a.store.AppHash()
	if err != nil {
		return nil, err
	}
	a.lastHash = hash
	return &abci.InitChainResponse{AppHash: hash}, nil
}

type pendingTx struct {
	idx int
	env codec.TxEnvelope
}

// FinalizeBlock runs each signer's txs in block order and different signers
// in parallel. A tx only touches its signer's state, so results do not
// depend on scheduling. Effects stay staged until Commit.
//
// A failure that is not a registered tx error is local to this node, so it
// aborts the block instead of becoming a result other validators would not
// produce.
func (a *App) FinalizeBlock(ctx context.Context, req *abci.FinalizeBlockRequest) (*abci.FinalizeBlockResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	txResults := make([]*abci.ExecTxResult, len(req.Txs))
	groups := map[string][]pendingTx{}
	var order []string
	for i, txBytes := range req.Txs {
		env, err := codec.DecodeTxEnvelope(txBytes)
		if err != nil {
			txResults[i] = a.txErr(errorsmod.Wrap(ErrBadTx, err.Error()))
			continue
		}
		key := env.Signer
		if common.IsHexAddress(key) {
			key = common.HexToAddress(key).Hex()
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], pendingTx{idx: i, env: env})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, key := range order {
		txs := groups[key]
		g.Go(func() error {
			for _, p := range txs {
				res, err := a.deliverTx(gctx, p.env)
				if err != nil {
					return fmt.Errorf("tx %d: %w", p.idx, err)
				}
				txResults[p.idx] = res
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.abortBlock(req.Height, err)
		return nil, err
	}

	hash, err := a.store.AppHash()
	if err != nil {
		a.abortBlock(req.Height, err)
		return nil, err
	}
	a.working = state.Meta{Height: req.Height, AppHash: hash}

	return &abci.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   hash,
	}, nil
}

func (a *App) abortBlock(height int64, err error) {
	a.store.Discard()
	a.events.Drop()
	a.logger.Error("block aborted", "height", height, "err", err)
}

// Commit writes the block's staged state and its meta in one batch. Only
// then are its notifications released.
func (a *App) Commit(_ context.Context, _ *abci.CommitRequest) (*abci.CommitResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Returning an error halts the node, which is what we want on disk failure.
	if err := a.store.Commit(a.working); err != nil {
		return nil, err
	}
	a.height = a.working.Height
	a.lastHash = a.working.AppHash
	a.events.Flush()
	return &abci.CommitResponse{}, nil
}

func (a *App) deliverTx(ctx context.Context, env codec.TxEnvelope) (*abci.ExecTxResult, error) {
	signer, nonce, err := a.authenticate(env, a.store)
	if err != nil {
		return a.reject(err)
	}

	switch env.Type {
	case codec.TxTypeGameStart:
		var msg codec.GameStartTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return a.reject(errorsmod.Wrap(ErrBadTx, "bad game/start value"))
		}
		if err := requirePlayer(msg.Player, signer); err != nil {
			return a.reject(err)
		}
		res, err := a.engine.StartGame(ctx, signer, game.WithNonce(signer, nonce))
		if err != nil {
			return a.reject(err)
		}
		return okEvent(game.EventTypeGameStarted, map[string]string{
			"player": signer.Hex(),
			"score":  res.State.Score.Hex(),
		})

	case codec.TxTypeGamePlay:
		var msg codec.GamePlayTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return a.reject(errorsmod.Wrap(ErrBadTx, "bad game/play value"))
		}
		if err := requirePlayer(msg.Player, signer); err != nil {
			return a.reject(err)
		}
		res, err := a.engine.PlayRound(ctx, signer, msg.Input, game.WithNonce(signer, nonce))
		if err != nil {
			return a.reject(err)
		}
		return okEvent(game.EventTypeRoundPlayed, map[string]string{
			"player":  signer.Hex(),
			"score":   res.State.Score.Hex(),
			"big":     res.State.LastBigBall.Hex(),
			"small":   res.State.LastSmallBall.Hex(),
			"outcome": res.State.LastOutcome.Hex(),
			"rounds":  strconv.FormatUint(uint64(res.State.RoundsPlayed), 10),
		})

	default:
		return a.reject(errorsmod.Wrapf(ErrUnknownTx, "%q", env.Type))
	}
}

// reject turns a registered error into a failed tx result and hands any
// other error back to abort the block.
func (a *App) reject(err error) (*abci.ExecTxResult, error) {
	if !isTxError(err) {
		return nil, err
	}
	return a.txErr(err), nil
}

func isTxError(err error) bool {
	space, _, _ := errorsmod.ABCIInfo(err, false)
	return space != errorsmod.UndefinedCodespace
}

func (a *App) txErr(err error) *abci.ExecTxResult {
	a.metrics.TxRejected(rejectReason(err))
	space, code, msg := errorsmod.ABCIInfo(err, false)
	return &abci.ExecTxResult{Codespace: space, Code: code, Log: msg}
}

func checkErr(err error) *abci.CheckTxResponse {
	space, code, msg := errorsmod.ABCIInfo(err, false)
	return &abci.CheckTxResponse{Codespace: space, Code: code, Log: msg}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, game.ErrInvalidProof):
		return "invalid_proof"
	case errors.Is(err, game.ErrNotStarted):
		return "not_started"
	case errors.Is(err, game.ErrAlreadyStarted):
		return "already_started"
	case errors.Is(err, ErrReplay):
		return "replay"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrBadTx), errors.Is(err, ErrUnknownTx):
		return "malformed"
	}
	return "internal"
}

func okEvent(typ string, attrs map[string]string) (*abci.ExecTxResult, error) {
	ev := abci.Event{Type: typ}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: k, Value: attrs[k], Index: true})
	}
	return &abci.ExecTxResult{
		Code:   0,
		Events: []abci.Event{ev},
	}, nil
}

func normalizeAddr(raw string) (common.Address, bool) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}
