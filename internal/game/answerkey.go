package game

import (
	"fmt"

	errorsmod "cosmossdk.io/errors"

	"zsphere/internal/fhe"
)

const (
	StartingScore = 100
	RoundReward   = 10
	RoundPenalty  = 10
	ScoreFloor    = 0

	// AnswerKeySize is the number of big balls.
	AnswerKeySize = 4
)

// DefaultAnswerKey maps big ball i to its winning small ball.
var DefaultAnswerKey = [AnswerKeySize]uint32{1, 3, 2, 2}

func ValidateAnswerKey(values []uint32) error {
	if len(values) != AnswerKeySize {
		return fmt.Errorf("answer key: expected %d entries, got %d", AnswerKeySize, len(values))
	}
	for i, v := range values {
		if v < 1 || v > 3 {
			return fmt.Errorf("answer key: entry %d out of range [1,3]: %d", i, v)
		}
	}
	return nil
}

func answerLabel(i int) string {
	return fmt.Sprintf("answer/%d", i)
}

// sealAnswerKey encrypts values so that neither handles nor ciphertexts
// reveal them.
func sealAnswerKey(s *fhe.Session, values []uint32) ([]fhe.Handle, error) {
	out := make([]fhe.Handle, 0, len(values))
	for i, v := range values {
		h, err := s.Seal(uint64(v), fhe.TypeUint32, answerLabel(i))
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// AnswerAt picks entry index out of a stored answer key.
func AnswerAt(answers []fhe.Handle, index uint64) (fhe.Handle, error) {
	if index >= uint64(len(answers)) {
		return fhe.Handle{}, errorsmod.Wrapf(ErrIndexOutOfRange, "index %d, size %d", index, len(answers))
	}
	return answers[index], nil
}
