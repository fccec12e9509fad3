package engine

import (
	"fmt"
	"math"

	appErr "jonglog-service/pkg/errors"
)

// PlayerCount is the number of seats at a table.
const PlayerCount = 4

type TieBreaker string

const (
	// TieBreakerPriority breaks equal scores by seat wind when winds are known.
	TieBreakerPriority TieBreaker = "priority"
	// TieBreakerSplit never breaks ties automatically.
	TieBreakerSplit TieBreaker = "split"
)

// Rules is the scoring configuration of a session.
type Rules struct {
	StartScore  int        `json:"startScore" yaml:"startScore" mapstructure:"startScore"`
	ReturnScore int        `json:"returnScore" yaml:"returnScore" mapstructure:"returnScore"`
	Uma         []int      `json:"uma" yaml:"uma" mapstructure:"uma"`
	TieBreaker  TieBreaker `json:"tieBreaker" yaml:"tieBreaker" mapstructure:"tieBreaker"`
}

func DefaultRules() Rules {
	return Rules{
		StartScore:  25000,
		ReturnScore: 30000,
		Uma:         []int{30, 10, -10, -30},
		TieBreaker:  TieBreakerPriority,
	}
}

// Validate reports a configuration error for malformed rules.
func (r Rules) Validate() error {
	if len(r.Uma) != PlayerCount {
		return fmt.Errorf("%w: uma must have %d entries, got %d", appErr.ErrInvalidRules, PlayerCount, len(r.Uma))
	}
	switch r.TieBreaker {
	case "", TieBreakerPriority, TieBreakerSplit:
	default:
		return fmt.Errorf("%w: unknown tie breaker %q", appErr.ErrInvalidRules, r.TieBreaker)
	}
	if r.StartScore <= 0 || r.ReturnScore <= 0 {
		return fmt.Errorf("%w: start and return scores must be positive", appErr.ErrInvalidRules)
	}
	return nil
}

// Normalize fills the tie breaker default and copies the uma slice.
func (r Rules) Normalize() Rules {
	if r.TieBreaker == "" {
		r.TieBreaker = TieBreakerPriority
	}
	r.Uma = append([]int(nil), r.Uma...)
	return r
}

// Equal reports whether two rule sets score identically.
func (r Rules) Equal(o Rules) bool {
	a, b := r.Normalize(), o.Normalize()
	if a.StartScore != b.StartScore || a.ReturnScore != b.ReturnScore || a.TieBreaker != b.TieBreaker {
		return false
	}
	if len(a.Uma) != len(b.Uma) {
		return false
	}
	for i := range a.Uma {
		if a.Uma[i] != b.Uma[i] {
			return false
		}
	}
	return true
}

// Oka is the pot bonus paid to the top player.
func (r Rules) Oka() float64 {
	return float64(r.ReturnScore-r.StartScore) * PlayerCount / 1000
}

// TableTotal is the sum of raw scores of a complete table.
func (r Rules) TableTotal() int {
	return r.StartScore * PlayerCount
}

// RoundScore rounds a final score to one decimal place for display.
func RoundScore(v float64) float64 {
	return math.Round(v*10) / 10
}
