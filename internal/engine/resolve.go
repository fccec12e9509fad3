package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"

	appErr "jonglog-service/pkg/errors"
)

// Mode tells Resolve which side of the score formula the inputs are on.
type Mode string

const (
	// ModeRaw takes table points and derives final scores.
	ModeRaw Mode = "raw"
	// ModeDirect takes final scores and derives table points.
	ModeDirect Mode = "direct"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeRaw:
		return ModeRaw, nil
	case ModeDirect:
		return ModeDirect, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", appErr.ErrInvalidScoreInput, s)
}

type SeatWind string

const (
	WindEast  SeatWind = "東"
	WindSouth SeatWind = "南"
	WindWest  SeatWind = "西"
	WindNorth SeatWind = "北"
)

var windOrder = map[SeatWind]int{
	WindEast:  0,
	WindSouth: 1,
	WindWest:  2,
	WindNorth: 3,
}

// ParseSeatWind accepts the kanji or the English initial/name of a wind.
func ParseSeatWind(s string) (SeatWind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case string(WindEast), "e", "east":
		return WindEast, nil
	case string(WindSouth), "s", "south":
		return WindSouth, nil
	case string(WindWest), "w", "west":
		return WindWest, nil
	case string(WindNorth), "n", "north":
		return WindNorth, nil
	}
	return "", fmt.Errorf("%w: unknown seat wind %q", appErr.ErrInvalidScoreInput, s)
}

// Input is one player's entry for a match. Score is table points in
// ModeRaw and the final score in ModeDirect.
type Input struct {
	Name     string   `json:"name" yaml:"name"`
	Score    float64  `json:"score" yaml:"score"`
	SeatWind SeatWind `json:"seatWind,omitempty" yaml:"seatWind,omitempty"`
}

type Outcome struct {
	Name       string   `json:"name" yaml:"name"`
	RawScore   int      `json:"rawScore" yaml:"rawScore"`
	Rank       int      `json:"rank" yaml:"rank"`
	FinalScore float64  `json:"finalScore" yaml:"finalScore"`
	SeatWind   SeatWind `json:"seatWind,omitempty" yaml:"seatWind,omitempty"`
}

// Priority maps an input index to a tie-break priority; higher wins.
type Priority map[int]int

func (p Priority) Clone() Priority {
	out := make(Priority, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Resolution holds either the four outcomes in input order or the tie
// groups that still need an explicit order.
type Resolution struct {
	Outcomes  []Outcome `json:"outcomes,omitempty"`
	TieGroups [][]int   `json:"tieGroups,omitempty"`
}

func (r *Resolution) NeedsTieBreak() bool {
	return len(r.TieGroups) > 0
}

const (
	scoreEpsilon = 1e-9
	sumTolerance = 0.1
)

// Resolve ranks four players and computes the missing half of the score
// formula. Unresolved ties in ModeRaw yield a Resolution with TieGroups and
// no outcomes; in ModeDirect they are rejected.
func Resolve(inputs []Input, rules Rules, mode Mode, override Priority) (*Resolution, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	rules = rules.Normalize()
	if err := validateInputs(inputs); err != nil {
		return nil, err
	}

	switch mode {
	case ModeRaw:
		return resolveRaw(inputs, rules, override)
	case ModeDirect:
		return resolveDirect(inputs, rules, override)
	}
	return nil, fmt.Errorf("%w: unknown mode %q", appErr.ErrInvalidScoreInput, mode)
}

func resolveRaw(inputs []Input, rules Rules, override Priority) (*Resolution, error) {
	raws := make([]int, len(inputs))
	keys := make([]float64, len(inputs))
	total := 0
	for i, in := range inputs {
		raws[i] = roundToHundred(in.Score)
		keys[i] = float64(raws[i])
		total += raws[i]
	}
	if total != rules.TableTotal() {
		return nil, fmt.Errorf("%w: raw scores total %d, expected %d", appErr.ErrInconsistentScores, total, rules.TableTotal())
	}

	order, groups := rankOrder(keys, inputs, rules, override)
	if len(groups) > 0 {
		return &Resolution{TieGroups: groups}, nil
	}

	oka := rules.Oka()
	outcomes := make([]Outcome, len(inputs))
	for r, i := range order {
		final := float64(raws[i]-rules.ReturnScore)/1000 + float64(rules.Uma[r])
		if r == 0 {
			final += oka
		}
		outcomes[i] = Outcome{
			Name:       inputs[i].Name,
			RawScore:   raws[i],
			Rank:       r + 1,
			FinalScore: final,
			SeatWind:   inputs[i].SeatWind,
		}
	}
	if err := checkZeroSum(outcomes); err != nil {
		return nil, err
	}
	return &Resolution{Outcomes: outcomes}, nil
}

func resolveDirect(inputs []Input, rules Rules, override Priority) (*Resolution, error) {
	finals := make([]float64, len(inputs))
	for i, in := range inputs {
		finals[i] = in.Score
	}

	order, groups := rankOrder(finals, inputs, rules, override)
	if len(groups) > 0 {
		return nil, fmt.Errorf("%w: players %s share a final score and cannot be ordered",
			appErr.ErrInconsistentScores, groupNames(inputs, groups[0]))
	}

	oka := rules.Oka()
	outcomes := make([]Outcome, len(inputs))
	for r, i := range order {
		base := finals[i] - float64(rules.Uma[r])
		if r == 0 {
			base -= oka
		}
		outcomes[i] = Outcome{
			Name:       inputs[i].Name,
			RawScore:   roundToHundred(base*1000 + float64(rules.ReturnScore)),
			Rank:       r + 1,
			FinalScore: finals[i],
			SeatWind:   inputs[i].SeatWind,
		}
	}

	for r := 0; r < len(order)-1; r++ {
		hi, lo := outcomes[order[r]], outcomes[order[r+1]]
		if hi.RawScore < lo.RawScore {
			return nil, fmt.Errorf("%w: rank %d implies %d points, below rank %d with %d; the score gap is smaller than the uma/oka gap",
				appErr.ErrInconsistentScores, hi.Rank, hi.RawScore, lo.Rank, lo.RawScore)
		}
	}
	if err := checkZeroSum(outcomes); err != nil {
		return nil, err
	}
	return &Resolution{Outcomes: outcomes}, nil
}

// rankOrder returns input indices from first to last place, plus every tie
// group neither the override nor the seat winds could order.
func rankOrder(keys []float64, inputs []Input, rules Rules, override Priority) ([]int, [][]int) {
	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return keys[order[a]] > keys[order[b]]
	})

	var unresolved [][]int
	for start := 0; start < len(order); {
		end := start + 1
		for end < len(order) && math.Abs(keys[order[start]]-keys[order[end]]) <= scoreEpsilon {
			end++
		}
		if end-start > 1 {
			group := order[start:end]
			switch {
			case coveredByOverride(group, override):
				sort.SliceStable(group, func(a, b int) bool {
					return override[group[a]] > override[group[b]]
				})
			case rules.TieBreaker == TieBreakerPriority && allWinds(group, inputs):
				sort.SliceStable(group, func(a, b int) bool {
					return windOrder[inputs[group[a]].SeatWind] < windOrder[inputs[group[b]].SeatWind]
				})
			default:
				members := append([]int(nil), group...)
				sort.Ints(members)
				unresolved = append(unresolved, members)
			}
		}
		start = end
	}
	return order, unresolved
}

func coveredByOverride(group []int, override Priority) bool {
	if len(override) == 0 {
		return false
	}
	seen := make(map[int]struct{}, len(group))
	for _, idx := range group {
		p, ok := override[idx]
		if !ok {
			return false
		}
		if _, dup := seen[p]; dup {
			return false
		}
		seen[p] = struct{}{}
	}
	return true
}

func allWinds(group []int, inputs []Input) bool {
	for _, idx := range group {
		if inputs[idx].SeatWind == "" {
			return false
		}
	}
	return true
}

func validateInputs(inputs []Input) error {
	if len(inputs) != PlayerCount {
		return fmt.Errorf("%w: expected %d players, got %d", appErr.ErrInvalidScoreInput, PlayerCount, len(inputs))
	}
	names := make(map[string]struct{}, len(inputs))
	winds := make(map[SeatWind]struct{}, len(inputs))
	for i, in := range inputs {
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return fmt.Errorf("%w: player %d has no name", appErr.ErrInvalidScoreInput, i+1)
		}
		if _, dup := names[name]; dup {
			return fmt.Errorf("%w: duplicate player %q", appErr.ErrInvalidScoreInput, name)
		}
		names[name] = struct{}{}

		if math.IsNaN(in.Score) || math.IsInf(in.Score, 0) {
			return fmt.Errorf("%w: score of %q is not a number", appErr.ErrInvalidScoreInput, name)
		}

		if in.SeatWind == "" {
			continue
		}
		if _, ok := windOrder[in.SeatWind]; !ok {
			return fmt.Errorf("%w: unknown seat wind %q", appErr.ErrInvalidScoreInput, in.SeatWind)
		}
		if _, dup := winds[in.SeatWind]; dup {
			return fmt.Errorf("%w: seat wind %s assigned twice", appErr.ErrInvalidScoreInput, in.SeatWind)
		}
		winds[in.SeatWind] = struct{}{}
	}
	return nil
}

func checkZeroSum(outcomes []Outcome) error {
	var sum float64
	for _, o := range outcomes {
		sum += o.FinalScore
	}
	if math.Abs(sum) > sumTolerance {
		return fmt.Errorf("%w: final scores sum to %.1f, expected 0", appErr.ErrInconsistentScores, RoundScore(sum))
	}
	return nil
}

func groupNames(inputs []Input, group []int) string {
	names := make([]string, len(group))
	for i, idx := range group {
		names[i] = inputs[idx].Name
	}
	return strings.Join(names, ", ")
}

func roundToHundred(v float64) int {
	return int(math.Round(v/100)) * 100
}
