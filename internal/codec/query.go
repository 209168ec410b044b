package codec

import "zsphere/internal/fhe"

// Query paths served by the app.
const (
	QueryPlayerPrefix = "/player/"
	QueryAnswerPrefix = "/answer/"
	QueryNoncePrefix  = "/nonce/"
	QueryProtocol     = "/protocol"
	QueryNetworkKey   = "/network-key"
	QueryContract     = "/contract"
)

type PlayerStateResponse struct {
	Player        string     `json:"player"`
	Score         fhe.Handle `json:"score"`
	LastBigBall   fhe.Handle `json:"lastBigBall"`
	LastSmallBall fhe.Handle `json:"lastSmallBall"`
	LastOutcome   fhe.Handle `json:"lastOutcome"`
	RoundsPlayed  uint32     `json:"roundsPlayed"`
	Started       bool       `json:"started"`
}

type AnswerResponse struct {
	Index  uint64     `json:"index"`
	Handle fhe.Handle `json:"handle"`
}

type NonceResponse struct {
	Signer string `json:"signer"`
	Nonce  uint64 `json:"nonce"`
}

type ContractResponse struct {
	Contract string `json:"contract"`
}

type ProtocolResponse struct {
	ProtocolID uint64 `json:"protocolId"`
}

// NetworkKeyResponse is everything a client needs to build encrypted inputs.
type NetworkKeyResponse struct {
	PublicKey  []byte `json:"publicKey"`
	FHEChainID uint64 `json:"fheChainId"`
	Contract   string `json:"contract"`
}
