package app

import (
	"encoding/json"
	"fmt"

	"zsphere/internal/game"
)

// GenesisState is the app_state section of the genesis document.
type GenesisState struct {
	AnswerKey []uint32 `json:"answerKey"`
}

func DefaultGenesisState() GenesisState {
	return GenesisState{AnswerKey: append([]uint32(nil), game.DefaultAnswerKey[:]...)}
}

func parseGenesis(appState []byte) (GenesisState, error) {
	if len(appState) == 0 {
		return DefaultGenesisState(), nil
	}
	var gs GenesisState
	if err := json.Unmarshal(appState, &gs); err != nil {
		return GenesisState{}, fmt.Errorf("decode app_state: %w", err)
	}
	if len(gs.AnswerKey) == 0 {
		gs.AnswerKey = DefaultGenesisState().AnswerKey
	}
	if err := game.ValidateAnswerKey(gs.AnswerKey); err != nil {
		return GenesisState{}, err
	}
	return gs, nil
}
