package grant

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

var testDomain = Domain{ChainID: 9000, VerifyingContract: common.HexToAddress("0x00000000000000000000000000000000000d0c0d")}

func testRequest() Request {
	return Request{
		PublicKey:         make([]byte, 32),
		ContractAddresses: []common.Address{common.HexToAddress("0x00000000000000000000000000000000000c0de1")},
		StartTimestamp:    1_700_000_000,
		DurationDays:      10,
		ExtraData:         []byte{0},
	}
}

func TestSign_RecoversSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	req := testRequest()

	sig, err := Sign(testDomain, req, key)
	require.NoError(t, err)
	require.Contains(t, []byte{27, 28}, sig[64])

	h, err := SigningHash(testDomain, req)
	require.NoError(t, err)
	got, err := RecoverSigner(h, sig)
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), got)

	// Raw v in {0,1} is accepted too.
	raw := append([]byte(nil), sig...)
	raw[64] -= 27
	got, err = RecoverSigner(h, raw)
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), got)

	_, err = RecoverSigner(h, sig[:64])
	require.Error(t, err)
}

func TestSigningHash_BindsEveryField(t *testing.T) {
	base, err := SigningHash(testDomain, testRequest())
	require.NoError(t, err)

	mutations := map[string]func(*Domain, *Request){
		"publicKey": func(_ *Domain, r *Request) { r.PublicKey = append([]byte{1}, r.PublicKey[1:]...) },
		"contracts": func(_ *Domain, r *Request) { r.ContractAddresses = append(r.ContractAddresses, common.Address{1}) },
		"start":     func(_ *Domain, r *Request) { r.StartTimestamp++ },
		"duration":  func(_ *Domain, r *Request) { r.DurationDays++ },
		"extraData": func(_ *Domain, r *Request) { r.ExtraData = []byte{1} },
		"chainId":   func(d *Domain, _ *Request) { d.ChainID++ },
		"verifying": func(d *Domain, _ *Request) { d.VerifyingContract = common.Address{2} },
	}
	for name, mutate := range mutations {
		d, r := testDomain, testRequest()
		mutate(&d, &r)
		h, err := SigningHash(d, r)
		require.NoError(t, err, name)
		require.NotEqual(t, base, h, name)
	}
}

func TestRequest_Window(t *testing.T) {
	r := testRequest()
	start, end := r.Window()
	require.Equal(t, time.Unix(1_700_000_000, 0), start)
	require.Equal(t, 10*24*time.Hour, end.Sub(start))
}
