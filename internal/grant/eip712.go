package grant

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	DomainName    = "Decryption"
	DomainVersion = "1"
	PrimaryType   = "UserDecryptRequestVerification"
)

// Domain pins a grant to one chain and one verifier.
type Domain struct {
	ChainID           uint64
	VerifyingContract common.Address
}

// Request is the signed part of a user decryption grant.
type Request struct {
	PublicKey         hexutil.Bytes    `json:"publicKey"`
	ContractAddresses []common.Address `json:"contractAddresses"`
	StartTimestamp    uint64           `json:"startTimestamp"`
	DurationDays      uint64           `json:"durationDays"`
	ExtraData         hexutil.Bytes    `json:"extraData"`
}

var typedDataTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	PrimaryType: {
		{Name: "publicKey", Type: "bytes"},
		{Name: "contractAddresses", Type: "address[]"},
		{Name: "startTimestamp", Type: "uint256"},
		{Name: "durationDays", Type: "uint256"},
		{Name: "extraData", Type: "bytes"},
	},
}

// TypedData builds the EIP-712 document a wallet signs.
func TypedData(d Domain, r Request) apitypes.TypedData {
	contracts := make([]interface{}, 0, len(r.ContractAddresses))
	for _, c := range r.ContractAddresses {
		contracts = append(contracts, c.Hex())
	}
	extra := r.ExtraData
	if extra == nil {
		extra = hexutil.Bytes{}
	}
	return apitypes.TypedData{
		Types:       typedDataTypes,
		PrimaryType: PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              DomainName,
			Version:           DomainVersion,
			ChainId:           math.NewHexOrDecimal256(int64(d.ChainID)),
			VerifyingContract: d.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"publicKey":         r.PublicKey.String(),
			"contractAddresses": contracts,
			"startTimestamp":    strconv.FormatUint(r.StartTimestamp, 10),
			"durationDays":      new(big.Int).SetUint64(r.DurationDays).String(),
			"extraData":         extra.String(),
		},
	}
}

// SigningHash is keccak256("\x19\x01" || domainSeparator || hashStruct(message)).
func SigningHash(d Domain, r Request) (common.Hash, error) {
	sighash, _, err := apitypes.TypedDataAndHash(TypedData(d, r))
	if err != nil {
		return common.Hash{}, fmt.Errorf("eip712 hash: %w", err)
	}
	return common.BytesToHash(sighash), nil
}

// Sign produces a wallet-style signature with v in {27, 28}.
func Sign(d Domain, r Request, key *ecdsa.PrivateKey) ([]byte, error) {
	h, err := SigningHash(d, r)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(h.Bytes(), key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverSigner accepts v in {0, 1} or {27, 28}.
func RecoverSigner(h common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature length %d", len(sig))
	}
	norm := append([]byte(nil), sig...)
	if norm[crypto.RecoveryIDOffset] >= 27 {
		norm[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(h.Bytes(), norm)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
