package game

import (
	"zsphere/internal/fhe"
)

// Evaluator is the homomorphic instruction set the round logic is written
// against. fhe.Session implements it.
type Evaluator interface {
	TrivialEncrypt(v uint64, t fhe.Type) (fhe.Handle, error)
	Eq(a, b fhe.Handle) (fhe.Handle, error)
	Lt(a, b fhe.Handle) (fhe.Handle, error)
	And(a, b fhe.Handle) (fhe.Handle, error)
	Or(a, b fhe.Handle) (fhe.Handle, error)
	Add(a, b fhe.Handle) (fhe.Handle, error)
	Sub(a, b fhe.Handle) (fhe.Handle, error)
	Select(cond, ifTrue, ifFalse fhe.Handle) (fhe.Handle, error)
}

// Every helper below issues the same sequence of operations whatever the
// operands decrypt to.

func Equals(ev Evaluator, a, b fhe.Handle) (fhe.Handle, error) {
	return ev.Eq(a, b)
}

func Select(ev Evaluator, pred, ifTrue, ifFalse fhe.Handle) (fhe.Handle, error) {
	return ev.Select(pred, ifTrue, ifFalse)
}

func Add(ev Evaluator, a, b fhe.Handle) (fhe.Handle, error) {
	return ev.Add(a, b)
}

func AddConst(ev Evaluator, a fhe.Handle, k uint64) (fhe.Handle, error) {
	kh, err := ev.TrivialEncrypt(k, a.Type())
	if err != nil {
		return fhe.Handle{}, err
	}
	return ev.Add(a, kh)
}

// ClampFloor returns max(a-b, floor). The predicate a < floor+b is computed
// before subtracting so unsigned wraparound never reaches the result.
func ClampFloor(ev Evaluator, a, b, floor fhe.Handle) (fhe.Handle, error) {
	threshold, err := ev.Add(floor, b)
	if err != nil {
		return fhe.Handle{}, err
	}
	below, err := ev.Lt(a, threshold)
	if err != nil {
		return fhe.Handle{}, err
	}
	diff, err := ev.Sub(a, b)
	if err != nil {
		return fhe.Handle{}, err
	}
	return ev.Select(below, floor, diff)
}

// SubConstClamped is ClampFloor with plaintext-known step and floor.
func SubConstClamped(ev Evaluator, a fhe.Handle, k, floor uint64) (fhe.Handle, error) {
	kh, err := ev.TrivialEncrypt(k, a.Type())
	if err != nil {
		return fhe.Handle{}, err
	}
	fh, err := ev.TrivialEncrypt(floor, a.Type())
	if err != nil {
		return fhe.Handle{}, err
	}
	return ClampFloor(ev, a, kh, fh)
}

// Lookup selects table[index] with a select chain over every entry. found is
// an encrypted bool that is false when index matches no entry; value then
// decrypts to zero.
func Lookup(ev Evaluator, index fhe.Handle, table []fhe.Handle) (value, found fhe.Handle, err error) {
	if len(table) == 0 {
		return fhe.Handle{}, fhe.Handle{}, ErrAnswerKeyNotSet
	}
	if value, err = ev.TrivialEncrypt(0, table[0].Type()); err != nil {
		return
	}
	if found, err = ev.TrivialEncrypt(0, fhe.TypeBool); err != nil {
		return
	}
	for i, entry := range table {
		var idx, hit fhe.Handle
		if idx, err = ev.TrivialEncrypt(uint64(i), index.Type()); err != nil {
			return
		}
		if hit, err = ev.Eq(index, idx); err != nil {
			return
		}
		if value, err = ev.Select(hit, entry, value); err != nil {
			return
		}
		if found, err = ev.Or(found, hit); err != nil {
			return
		}
	}
	return value, found, nil
}

type roundOutput struct {
	Score   fhe.Handle
	Outcome fhe.Handle
}

// evaluateRound scores one move. Both the reward and the penalty branch are
// always computed and the outcome selects between them.
func evaluateRound(ev Evaluator, score, big, small fhe.Handle, answers []fhe.Handle) (roundOutput, error) {
	expected, found, err := Lookup(ev, big, answers)
	if err != nil {
		return roundOutput{}, err
	}
	match, err := Equals(ev, small, expected)
	if err != nil {
		return roundOutput{}, err
	}
	// An out-of-range big ball never wins, even when small decrypts to 0.
	win, err := ev.And(match, found)
	if err != nil {
		return roundOutput{}, err
	}

	up, err := AddConst(ev, score, RoundReward)
	if err != nil {
		return roundOutput{}, err
	}
	down, err := SubConstClamped(ev, score, RoundPenalty, ScoreFloor)
	if err != nil {
		return roundOutput{}, err
	}
	newScore, err := Select(ev, win, up, down)
	if err != nil {
		return roundOutput{}, err
	}

	one, err := ev.TrivialEncrypt(1, fhe.TypeUint32)
	if err != nil {
		return roundOutput{}, err
	}
	zero, err := ev.TrivialEncrypt(0, fhe.TypeUint32)
	if err != nil {
		return roundOutput{}, err
	}
	outcome, err := Select(ev, win, one, zero)
	if err != nil {
		return roundOutput{}, err
	}
	return roundOutput{Score: newScore, Outcome: outcome}, nil
}
