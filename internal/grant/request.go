package grant

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"zsphere/internal/fhe"
)

const (
	secondsPerDay   = 24 * 60 * 60
	MaxDurationDays = 365
)

type HandleContractPair struct {
	Handle          fhe.Handle     `json:"handle"`
	ContractAddress common.Address `json:"contractAddress"`
}

// UserDecryptRequest is what a client sends to the oracle.
type UserDecryptRequest struct {
	Pairs       []HandleContractPair `json:"handleContractPairs"`
	Grant       Request              `json:"grant"`
	UserAddress common.Address       `json:"userAddress"`
	Signature   hexutil.Bytes        `json:"signature"`
}

// SealedResult is a plaintext word sealed to the grant's public key.
type SealedResult struct {
	Handle fhe.Handle    `json:"handle"`
	Sealed hexutil.Bytes `json:"sealed"`
}

type UserDecryptResponse struct {
	RequestID string         `json:"requestId"`
	Results   []SealedResult `json:"results"`
}

// ErrorResponse carries a registered error across HTTP.
type ErrorResponse struct {
	Codespace string `json:"codespace"`
	Code      uint32 `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// Window returns the half-open validity interval [start, end).
func (r Request) Window() (time.Time, time.Time) {
	start := time.Unix(int64(r.StartTimestamp), 0)
	return start, start.Add(time.Duration(r.DurationDays) * secondsPerDay * time.Second)
}
