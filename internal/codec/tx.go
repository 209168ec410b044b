package codec

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"zsphere/internal/fhe"
)

const (
	TxTypeGameStart = "game/start"
	TxTypeGamePlay  = "game/play"
)

// TxEnvelope is the transaction container. CometBFT transactions are opaque
// bytes; ours are JSON.
type TxEnvelope struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`

	// Nonce must strictly increase per signer.
	Nonce string `json:"nonce"`
	// Signer is the 0x-prefixed identity address.
	Signer string `json:"signer"`
	// Sig is a 65-byte secp256k1 signature over keccak256(SignBytes(...)).
	Sig []byte `json:"sig"`
}

func DecodeTxEnvelope(txBytes []byte) (TxEnvelope, error) {
	var env TxEnvelope
	if err := json.Unmarshal(txBytes, &env); err != nil {
		return TxEnvelope{}, fmt.Errorf("invalid tx json: %w", err)
	}
	if env.Type == "" {
		return TxEnvelope{}, fmt.Errorf("missing tx.type")
	}
	return env, nil
}

const txAuthDomainV1 = "zsphere/tx/v1"

// SignBytes = DOMAIN || 0x00 || chainID || 0x00 || type || 0x00 || nonce || 0x00 || signer || 0x00 || sha256(value)
func SignBytes(chainID string, typ string, value []byte, nonce string, signer string) []byte {
	sum := sha256.Sum256(value)
	out := make([]byte, 0, len(txAuthDomainV1)+len(chainID)+len(typ)+len(nonce)+len(signer)+5+sha256.Size)
	out = append(out, []byte(txAuthDomainV1)...)
	out = append(out, 0)
	out = append(out, []byte(chainID)...)
	out = append(out, 0)
	out = append(out, []byte(typ)...)
	out = append(out, 0)
	out = append(out, []byte(nonce)...)
	out = append(out, 0)
	out = append(out, []byte(signer)...)
	out = append(out, 0)
	out = append(out, sum[:]...)
	return out
}

// ---- Game ----

type GameStartTx struct {
	Player string `json:"player"`
}

type GamePlayTx struct {
	Player string             `json:"player"`
	Input  fhe.EncryptedInput `json:"input"`
}
