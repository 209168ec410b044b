package codec

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestDecodeTxEnvelope(t *testing.T) {
	env, err := DecodeTxEnvelope([]byte(`{"type":"game/start","value":{"player":"0x01"},"nonce":"1","signer":"0x01"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != TxTypeGameStart || env.Nonce != "1" {
		t.Fatalf("unexpected envelope: %+v", env)
	}

	if _, err := DecodeTxEnvelope([]byte(`{"value":{}}`)); err == nil {
		t.Fatalf("expected missing type error")
	}
	if _, err := DecodeTxEnvelope([]byte(`not json`)); err == nil {
		t.Fatalf("expected json error")
	}
}

func TestSignBytes_SeparatesFields(t *testing.T) {
	a := SignBytes("c", "game/start", []byte(`{}`), "1", "0xab")
	b := SignBytes("c", "game/start", []byte(`{}`), "11", "0xab")
	c := SignBytes("d", "game/start", []byte(`{}`), "1", "0xab")
	if bytes.Equal(a, b) || bytes.Equal(a, c) {
		t.Fatalf("sign bytes collide across nonce or chain")
	}
}

func TestEnvelope_SignAndRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	env := TxEnvelope{Type: TxTypeGameStart, Value: []byte(`{}`), Nonce: "1"}
	if err := env.Sign("zsphere-test", key); err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := env.RecoverSigner("zsphere-test")
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got != crypto.PubkeyToAddress(key.PublicKey) || got.Hex() != env.Signer {
		t.Fatalf("recovered %s, signer %s", got.Hex(), env.Signer)
	}

	other, err := env.RecoverSigner("other-chain")
	if err == nil && other == got {
		t.Fatalf("signature valid on another chain")
	}

	env.Sig = env.Sig[:10]
	if _, err := env.RecoverSigner("zsphere-test"); err == nil {
		t.Fatalf("expected length error")
	}
}
