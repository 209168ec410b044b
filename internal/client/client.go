// Package client submits game transactions to a node and reads its state.
package client

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	abci "github.com/cometbft/cometbft/abci/types"
	cmtbytes "github.com/cometbft/cometbft/libs/bytes"
	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	coretypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"zsphere/internal/codec"
)

// Node is the subset of the CometBFT RPC client used here.
type Node interface {
	Status(ctx context.Context) (*coretypes.ResultStatus, error)
	ABCIQuery(ctx context.Context, path string, data cmtbytes.HexBytes) (*coretypes.ResultABCIQuery, error)
	BroadcastTxCommit(ctx context.Context, tx cmttypes.Tx) (*coretypes.ResultBroadcastTxCommit, error)
}

type Option func(*Client)

// WithChainID skips discovering the chain id from the node.
func WithChainID(id string) Option {
	return func(c *Client) { c.chainID = id }
}

func WithRandom(r io.Reader) Option {
	return func(c *Client) { c.rand = r }
}

// Client signs with one identity key.
type Client struct {
	node   Node
	key    *ecdsa.PrivateKey
	rand   io.Reader
	logger log.Logger

	mu      sync.Mutex
	chainID string
}

// Dial connects to a CometBFT RPC endpoint such as http://127.0.0.1:26657.
func Dial(remote string, key *ecdsa.PrivateKey, logger log.Logger, opts ...Option) (*Client, error) {
	node, err := rpchttp.New(remote)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", remote, err)
	}
	return New(node, key, logger, opts...), nil
}

func New(node Node, key *ecdsa.PrivateKey, logger log.Logger, opts ...Option) *Client {
	c := &Client{node: node, key: key, rand: rand.Reader, logger: logger.With("module", "client")}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Address() common.Address { return crypto.PubkeyToAddress(c.key.PublicKey) }

func (c *Client) ChainID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chainID != "" {
		return c.chainID, nil
	}
	st, err := c.node.Status(ctx)
	if err != nil {
		return "", fmt.Errorf("node status: %w", err)
	}
	c.chainID = st.NodeInfo.Network
	return c.chainID, nil
}

// TxResult is a committed transaction.
type TxResult struct {
	Hash   string
	Height int64
	Events []abci.Event
}

// Start submits game/start for the client's identity.
func (c *Client) Start(ctx context.Context) (*TxResult, error) {
	return c.submit(ctx, func(chainID string, nonce uint64) ([]byte, error) {
		return BuildStartTx(chainID, c.key, nonce)
	})
}

// Play encrypts big and small locally and submits game/play.
func (c *Client) Play(ctx context.Context, big, small uint32) (*TxResult, error) {
	nk, err := c.NetworkKey(ctx)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, func(chainID string, nonce uint64) ([]byte, error) {
		return BuildPlayTx(chainID, c.key, nonce, nk, big, small, c.rand)
	})
}

func (c *Client) submit(ctx context.Context, build func(chainID string, nonce uint64) ([]byte, error)) (*TxResult, error) {
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	n, err := c.Nonce(ctx, c.Address())
	if err != nil {
		return nil, err
	}
	tx, err := build(chainID, n.Nonce+1)
	if err != nil {
		return nil, err
	}
	res, err := c.node.BroadcastTxCommit(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("broadcast: %w", err)
	}
	if res.CheckTx.Code != 0 {
		return nil, remoteError(res.CheckTx.Codespace, res.CheckTx.Code, res.CheckTx.Log)
	}
	if res.TxResult.Code != 0 {
		return nil, remoteError(res.TxResult.Codespace, res.TxResult.Code, res.TxResult.Log)
	}
	c.logger.Debug("tx committed", "hash", res.Hash.String(), "height", res.Height)
	return &TxResult{Hash: res.Hash.String(), Height: res.Height, Events: res.TxResult.Events}, nil
}

func (c *Client) PlayerState(ctx context.Context, player common.Address) (codec.PlayerStateResponse, error) {
	var out codec.PlayerStateResponse
	err := c.query(ctx, codec.QueryPlayerPrefix+player.Hex(), &out)
	return out, err
}

func (c *Client) EncryptedAnswer(ctx context.Context, index uint64) (codec.AnswerResponse, error) {
	var out codec.AnswerResponse
	err := c.query(ctx, codec.QueryAnswerPrefix+strconv.FormatUint(index, 10), &out)
	return out, err
}

func (c *Client) Nonce(ctx context.Context, signer common.Address) (codec.NonceResponse, error) {
	var out codec.NonceResponse
	err := c.query(ctx, codec.QueryNoncePrefix+signer.Hex(), &out)
	return out, err
}

func (c *Client) Protocol(ctx context.Context) (codec.ProtocolResponse, error) {
	var out codec.ProtocolResponse
	err := c.query(ctx, codec.QueryProtocol, &out)
	return out, err
}

func (c *Client) Contract(ctx context.Context) (codec.ContractResponse, error) {
	var out codec.ContractResponse
	err := c.query(ctx, codec.QueryContract, &out)
	return out, err
}

func (c *Client) NetworkKey(ctx context.Context) (codec.NetworkKeyResponse, error) {
	var out codec.NetworkKeyResponse
	err := c.query(ctx, codec.QueryNetworkKey, &out)
	return out, err
}

func (c *Client) query(ctx context.Context, path string, out any) error {
	res, err := c.node.ABCIQuery(ctx, path, nil)
	if err != nil {
		return fmt.Errorf("query %s: %w", path, err)
	}
	r := res.Response
	if r.Code != 0 {
		return remoteError(r.Codespace, r.Code, r.Log)
	}
	if err := json.Unmarshal(r.Value, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// remoteError maps a response code back to the registered error when the
// codespace is known locally.
func remoteError(codespace string, code uint32, msg string) error {
	if codespace == "" {
		return fmt.Errorf("code %d: %s", code, msg)
	}
	return errorsmod.ABCIError(codespace, code, msg)
}
