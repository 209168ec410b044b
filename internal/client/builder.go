package client

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"zsphere/internal/codec"
	"zsphere/internal/fhe"
)

// BuildStartTx returns a signed game/start transaction.
func BuildStartTx(chainID string, key *ecdsa.PrivateKey, nonce uint64) ([]byte, error) {
	player := crypto.PubkeyToAddress(key.PublicKey)
	return buildTx(chainID, key, nonce, codec.TxTypeGameStart, codec.GameStartTx{Player: player.Hex()})
}

// BuildPlayTx encrypts the two picks under the network key, bound to the
// signer, and returns a signed game/play transaction.
func BuildPlayTx(chainID string, key *ecdsa.PrivateKey, nonce uint64, nk codec.NetworkKeyResponse, big, small uint32, rng io.Reader) ([]byte, error) {
	pk, err := fhe.PublicKeyFromBytes(nk.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("network key: %w", err)
	}
	if !common.IsHexAddress(nk.Contract) {
		return nil, fmt.Errorf("network key: invalid contract %q", nk.Contract)
	}
	player := crypto.PubkeyToAddress(key.PublicKey)
	in, err := fhe.NewInputBuilder(pk, fhe.InputBinding{
		ChainID:  nk.FHEChainID,
		Contract: common.HexToAddress(nk.Contract),
		User:     player,
	}).Add32(big).Add32(small).Encrypt(rng)
	if err != nil {
		return nil, err
	}
	return buildTx(chainID, key, nonce, codec.TxTypeGamePlay, codec.GamePlayTx{Player: player.Hex(), Input: in})
}

func buildTx(chainID string, key *ecdsa.PrivateKey, nonce uint64, typ string, value any) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	env := codec.TxEnvelope{Type: typ, Value: raw, Nonce: strconv.FormatUint(nonce, 10)}
	if err := env.Sign(chainID, key); err != nil {
		return nil, err
	}
	return json.Marshal(env)
}
