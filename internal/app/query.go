package app

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"

	"zsphere/internal/codec"
	"zsphere/internal/game"
)

// Query answers from the last committed block.
func (a *App) Query(_ context.Context, req *abci.QueryRequest) (*abci.QueryResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	committed := a.store.Committed()
	path := strings.TrimSpace(req.Path)
	switch {
	case path == codec.QueryProtocol:
		return a.queryOK(codec.ProtocolResponse{ProtocolID: a.engine.ConfidentialProtocolID()})

	case path == codec.QueryContract:
		return a.queryOK(codec.ContractResponse{Contract: a.engine.Contract().Hex()})

	case path == codec.QueryNetworkKey:
		return a.queryOK(codec.NetworkKeyResponse{
			PublicKey:  a.pubKey.Bytes(),
			FHEChainID: a.fheID,
			Contract:   a.engine.Contract().Hex(),
		})

	case strings.HasPrefix(path, codec.QueryPlayerPrefix):
		addr, ok := normalizeAddr(strings.TrimPrefix(path, codec.QueryPlayerPrefix))
		if !ok {
			return a.queryErr("invalid player address"), nil
		}
		ps, err := committed.Player(addr)
		if err != nil {
			return a.queryErr(err.Error()), nil
		}
		return a.queryOK(codec.PlayerStateResponse{
			Player:        addr.Hex(),
			Score:         ps.Score,
			LastBigBall:   ps.LastBigBall,
			LastSmallBall: ps.LastSmallBall,
			LastOutcome:   ps.LastOutcome,
			RoundsPlayed:  ps.RoundsPlayed,
			Started:       ps.Started,
		})

	case strings.HasPrefix(path, codec.QueryAnswerPrefix):
		idx, err := strconv.ParseUint(strings.TrimPrefix(path, codec.QueryAnswerPrefix), 10, 64)
		if err != nil {
			return a.queryErr("invalid answer index"), nil
		}
		answers, err := committed.AnswerKey()
		if err != nil {
			return a.queryErr(err.Error()), nil
		}
		h, err := game.AnswerAt(answers, idx)
		if err != nil {
			space, code, msg := errorsmod.ABCIInfo(err, false)
			return &abci.QueryResponse{Codespace: space, Code: code, Log: msg, Height: a.height}, nil
		}
		return a.queryOK(codec.AnswerResponse{Index: idx, Handle: h})

	case strings.HasPrefix(path, codec.QueryNoncePrefix):
		addr, ok := normalizeAddr(strings.TrimPrefix(path, codec.QueryNoncePrefix))
		if !ok {
			return a.queryErr("invalid signer address"), nil
		}
		n, err := committed.Nonce(addr)
		if err != nil {
			return a.queryErr(err.Error()), nil
		}
		return a.queryOK(codec.NonceResponse{Signer: addr.Hex(), Nonce: n})

	default:
		return a.queryErr("unknown query path"), nil
	}
}

func (a *App) queryOK(v any) (*abci.QueryResponse, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &abci.QueryResponse{Code: 0, Value: b, Height: a.height}, nil
}

func (a *App) queryErr(msg string) *abci.QueryResponse {
	return &abci.QueryResponse{Code: 1, Log: msg, Height: a.height}
}
