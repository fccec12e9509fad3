package model

import (
	"encoding/json"
	"fmt"

	"jonglog-service/internal/engine"

	"gorm.io/datatypes"
)

// MustJSON encodes v for a JSON column. Values stored here are plain data
// structs, so an encoding failure falls back to "null".
func MustJSON(v interface{}) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(raw)
}

func decode(raw datatypes.JSON, v interface{}, what string) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", what, err)
	}
	return nil
}

func (m *MatchSet) Players() ([]string, error) {
	var players []string
	if err := decode(m.PlayersJSON, &players, "session players"); err != nil {
		return nil, err
	}
	return players, nil
}

func (m *MatchSet) Rules() (engine.Rules, error) {
	var rules engine.Rules
	if err := decode(m.RulesJSON, &rules, "session rules"); err != nil {
		return engine.Rules{}, err
	}
	return rules.Normalize(), nil
}

func (m *Match) Outcomes() ([]engine.Outcome, error) {
	var outcomes []engine.Outcome
	if err := decode(m.OutcomesJSON, &outcomes, "match outcomes"); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (e *Expense) Targets() ([]string, error) {
	var targets []string
	if err := decode(e.TargetsJSON, &targets, "expense targets"); err != nil {
		return nil, err
	}
	return targets, nil
}

func (e *Expense) Engine() (engine.Expense, error) {
	targets, err := e.Targets()
	if err != nil {
		return engine.Expense{}, err
	}
	return engine.Expense{Note: e.Note, Payer: e.Payer, Amount: e.Amount, Targets: targets}, nil
}

func (l *League) Players() ([]string, error) {
	var players []string
	if err := decode(l.PlayersJSON, &players, "league players"); err != nil {
		return nil, err
	}
	return players, nil
}
