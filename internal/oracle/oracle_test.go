package oracle

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cosmossdk.io/log"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/nacl/box"

	"zsphere/internal/fhe"
	"zsphere/internal/game"
	"zsphere/internal/grant"
	"zsphere/internal/metrics"
	"zsphere/internal/state"
)

const testFHEChainID = 9000

var (
	testContract = common.HexToAddress("0x00000000000000000000000000000000000c0de1")
	testDomain   = grant.Domain{ChainID: testFHEChainID, VerifyingContract: common.HexToAddress("0x00000000000000000000000000000000000d0c0d")}
	testNow      = time.Unix(1_700_000_000, 0)
)

type player struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func newPlayer(t *testing.T) player {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return player{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

type fixture struct {
	oracle   *Oracle
	engine   *game.Engine
	keys     *fhe.KeySet
	registry *prometheus.Registry
	alice    player
	bob      player
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	keys, err := fhe.GenerateKeySet(rand.Reader)
	require.NoError(t, err)
	st := state.NewStore(dbm.NewMemDB())
	cp := fhe.NewCoprocessor(keys, testFHEChainID)
	engine, err := game.NewEngine(cp, st, game.Config{Contract: testContract, ProtocolID: fhe.ProtocolID}, log.NewNopLogger())
	require.NoError(t, err)
	_, err = engine.InitAnswerKey(context.Background(), game.DefaultAnswerKey[:])
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	o, err := New(keys, st, Config{Domain: testDomain, ClockSkew: time.Minute}, log.NewNopLogger(),
		WithClock(func() time.Time { return testNow }),
		WithMetrics(metrics.New(reg)),
	)
	require.NoError(t, err)

	f := &fixture{oracle: o, engine: engine, keys: keys, registry: reg, alice: newPlayer(t), bob: newPlayer(t)}
	for _, p := range []player{f.alice, f.bob} {
		_, err := engine.StartGame(context.Background(), p.addr)
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) score(t *testing.T, who common.Address) fhe.Handle {
	t.Helper()
	ps, err := f.engine.PlayerState(context.Background(), who)
	require.NoError(t, err)
	return ps.Score
}

type ephemeral struct {
	pub, priv *[32]byte
}

func newEphemeral(t *testing.T) ephemeral {
	t.Helper()
	pub, priv, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return ephemeral{pub: pub, priv: priv}
}

func signedRequest(t *testing.T, signer player, eph ephemeral, g grant.Request, pairs ...grant.HandleContractPair) grant.UserDecryptRequest {
	t.Helper()
	g.PublicKey = eph.pub[:]
	sig, err := grant.Sign(testDomain, g, signer.key)
	require.NoError(t, err)
	return grant.UserDecryptRequest{Pairs: pairs, Grant: g, UserAddress: signer.addr, Signature: sig}
}

func defaultGrant() grant.Request {
	return grant.Request{
		ContractAddresses: []common.Address{testContract},
		StartTimestamp:    uint64(testNow.Unix()),
		DurationDays:      10,
		ExtraData:         []byte{0},
	}
}

func open(t *testing.T, eph ephemeral, sealed []byte) uint64 {
	t.Helper()
	word, ok := box.OpenAnonymous(nil, sealed, eph.pub, eph.priv)
	require.True(t, ok, "sealed result does not open")
	require.Len(t, word, 32)
	return new(uint256.Int).SetBytes32(word).Uint64()
}

func TestUserDecrypt_OwnScore(t *testing.T) {
	f := newFixture(t)
	eph := newEphemeral(t)
	h := f.score(t, f.alice.addr)

	res, err := f.oracle.UserDecrypt(context.Background(),
		signedRequest(t, f.alice, eph, defaultGrant(), grant.HandleContractPair{Handle: h, ContractAddress: testContract}))
	require.NoError(t, err)
	require.NotEmpty(t, res.RequestID)
	require.Len(t, res.Results, 1)
	require.Equal(t, h, res.Results[0].Handle)
	require.EqualValues(t, game.StartingScore, open(t, eph, res.Results[0].Sealed))

	// A different ephemeral key cannot open it.
	other := newEphemeral(t)
	_, ok := box.OpenAnonymous(nil, res.Results[0].Sealed, other.pub, other.priv)
	require.False(t, ok)
}

func TestUserDecrypt_Rejections(t *testing.T) {
	f := newFixture(t)
	eph := newEphemeral(t)
	aliceScore := grant.HandleContractPair{Handle: f.score(t, f.alice.addr), ContractAddress: testContract}
	bobScore := grant.HandleContractPair{Handle: f.score(t, f.bob.addr), ContractAddress: testContract}

	cases := []struct {
		name string
		req  func() grant.UserDecryptRequest
		want error
	}{
		{
			name: "other player's handle",
			req:  func() grant.UserDecryptRequest { return signedRequest(t, f.alice, eph, defaultGrant(), bobScore) },
			want: grant.ErrDecryptionUnauthorized,
		},
		{
			name: "claimed user is not the signer",
			req: func() grant.UserDecryptRequest {
				r := signedRequest(t, f.bob, eph, defaultGrant(), aliceScore)
				r.UserAddress = f.alice.addr
				return r
			},
			want: grant.ErrDecryptionUnauthorized,
		},
		{
			name: "tampered grant",
			req: func() grant.UserDecryptRequest {
				r := signedRequest(t, f.alice, eph, defaultGrant(), aliceScore)
				r.Grant.DurationDays = 30
				return r
			},
			want: grant.ErrDecryptionUnauthorized,
		},
		{
			name: "contract not in grant",
			req: func() grant.UserDecryptRequest {
				g := defaultGrant()
				g.ContractAddresses = []common.Address{{9}}
				return signedRequest(t, f.alice, eph, g, aliceScore)
			},
			want: grant.ErrDecryptionUnauthorized,
		},
		{
			name: "user as contract",
			req: func() grant.UserDecryptRequest {
				g := defaultGrant()
				g.ContractAddresses = append(g.ContractAddresses, f.alice.addr)
				return signedRequest(t, f.alice, eph, g, grant.HandleContractPair{Handle: aliceScore.Handle, ContractAddress: f.alice.addr})
			},
			want: grant.ErrDecryptionUnauthorized,
		},
		{
			name: "unknown handle",
			req: func() grant.UserDecryptRequest {
				return signedRequest(t, f.alice, eph, defaultGrant(), grant.HandleContractPair{Handle: fhe.Handle{1}, ContractAddress: testContract})
			},
			want: grant.ErrDecryptionUnauthorized,
		},
		{
			name: "zero duration",
			req: func() grant.UserDecryptRequest {
				g := defaultGrant()
				g.DurationDays = 0
				return signedRequest(t, f.alice, eph, g, aliceScore)
			},
			want: grant.ErrDecryptionUnauthorized,
		},
		{
			name: "expired",
			req: func() grant.UserDecryptRequest {
				g := defaultGrant()
				g.StartTimestamp = uint64(testNow.Add(-11 * 24 * time.Hour).Unix())
				return signedRequest(t, f.alice, eph, g, aliceScore)
			},
			want: grant.ErrDecryptionWindowExpired,
		},
		{
			name: "starts beyond skew",
			req: func() grant.UserDecryptRequest {
				g := defaultGrant()
				g.StartTimestamp = uint64(testNow.Add(time.Hour).Unix())
				return signedRequest(t, f.alice, eph, g, aliceScore)
			},
			want: grant.ErrDecryptionWindowExpired,
		},
		{
			name: "one bad pair rejects all",
			req:  func() grant.UserDecryptRequest { return signedRequest(t, f.alice, eph, defaultGrant(), aliceScore, bobScore) },
			want: grant.ErrDecryptionUnauthorized,
		},
		{
			name: "no pairs",
			req:  func() grant.UserDecryptRequest { return signedRequest(t, f.alice, eph, defaultGrant()) },
			want: grant.ErrBadRequest,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := f.oracle.UserDecrypt(context.Background(), tc.req())
			require.ErrorIs(t, err, tc.want)
			require.Empty(t, res.Results)
		})
	}
}

func TestUserDecrypt_WindowEdges(t *testing.T) {
	f := newFixture(t)
	eph := newEphemeral(t)
	pair := grant.HandleContractPair{Handle: f.score(t, f.alice.addr), ContractAddress: testContract}

	g := defaultGrant()
	g.StartTimestamp = uint64(testNow.Add(-10*24*time.Hour + time.Second).Unix())
	_, err := f.oracle.UserDecrypt(context.Background(), signedRequest(t, f.alice, eph, g, pair))
	require.NoError(t, err, "last second of the window")

	g.StartTimestamp = uint64(testNow.Add(-10 * 24 * time.Hour).Unix())
	_, err = f.oracle.UserDecrypt(context.Background(), signedRequest(t, f.alice, eph, g, pair))
	require.ErrorIs(t, err, grant.ErrDecryptionWindowExpired, "end is exclusive")

	g.StartTimestamp = uint64(testNow.Add(30 * time.Second).Unix())
	_, err = f.oracle.UserDecrypt(context.Background(), signedRequest(t, f.alice, eph, g, pair))
	require.NoError(t, err, "start within skew")
}

func TestUserDecrypt_SignerCache(t *testing.T) {
	f := newFixture(t)
	eph := newEphemeral(t)
	req := signedRequest(t, f.alice, eph, defaultGrant(), grant.HandleContractPair{Handle: f.score(t, f.alice.addr), ContractAddress: testContract})

	for i := 0; i < 3; i++ {
		_, err := f.oracle.UserDecrypt(context.Background(), req)
		require.NoError(t, err)
	}
	require.Equal(t, 1, f.oracle.signers.Len())

	forged := req
	forged.UserAddress = f.bob.addr
	_, err := f.oracle.UserDecrypt(context.Background(), forged)
	require.ErrorIs(t, err, grant.ErrDecryptionUnauthorized, "cached recovery still compares the claimed user")

	n, err := testutil.GatherAndCount(f.registry, "zsphere_decrypt_requests_total")
	require.NoError(t, err)
	require.Equal(t, 2, n, "ok and unauthorized series")
}

func TestRoutes(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.oracle.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + HealthPath)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	post := func(body []byte) (*http.Response, []byte) {
		resp, err := http.Post(srv.URL+UserDecryptPath, "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		var buf bytes.Buffer
		_, err = buf.ReadFrom(resp.Body)
		require.NoError(t, err)
		return resp, buf.Bytes()
	}

	eph := newEphemeral(t)
	good := signedRequest(t, f.alice, eph, defaultGrant(), grant.HandleContractPair{Handle: f.score(t, f.alice.addr), ContractAddress: testContract})
	body, err := json.Marshal(good)
	require.NoError(t, err)
	resp, out := post(body)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(out))
	var ok grant.UserDecryptResponse
	require.NoError(t, json.Unmarshal(out, &ok))
	require.Len(t, ok.Results, 1)
	require.EqualValues(t, game.StartingScore, open(t, eph, ok.Results[0].Sealed))

	good.Pairs[0].Handle = f.score(t, f.bob.addr)
	body, err = json.Marshal(good)
	require.NoError(t, err)
	resp, out = post(body)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	var e grant.ErrorResponse
	require.NoError(t, json.Unmarshal(out, &e))
	require.Equal(t, grant.Codespace, e.Codespace)
	require.Equal(t, grant.ErrDecryptionUnauthorized.ABCICode(), e.Code)
	require.NotEmpty(t, e.RequestID)

	resp, out = post([]byte(`{"bogus":1}`))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NoError(t, json.Unmarshal(out, &e))
	require.Equal(t, grant.ErrBadRequest.ABCICode(), e.Code)
}
