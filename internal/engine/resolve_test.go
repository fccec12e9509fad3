package engine_test

import (
	"testing"

	"jonglog-service/internal/engine"
	appErr "jonglog-service/pkg/errors"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var names = []string{"A", "B", "C", "D"}

func rawInputs(scores ...float64) []engine.Input {
	inputs := make([]engine.Input, len(scores))
	for i, s := range scores {
		inputs[i] = engine.Input{Name: names[i], Score: s}
	}
	return inputs
}

func finals(outcomes []engine.Outcome) []float64 {
	out := make([]float64, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.FinalScore
	}
	return out
}

func ranks(outcomes []engine.Outcome) []int {
	out := make([]int, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.Rank
	}
	return out
}

func TestResolveRawNoTies(t *testing.T) {
	res, err := engine.Resolve(rawInputs(35000, 28000, 22000, 15000), engine.DefaultRules(), engine.ModeRaw, nil)
	require.NoError(t, err)
	require.False(t, res.NeedsTieBreak())

	assert.Equal(t, 20.0, engine.DefaultRules().Oka())
	assert.Equal(t, []int{1, 2, 3, 4}, ranks(res.Outcomes))
	assert.InDeltaSlice(t, []float64{55, 8, -18, -45}, finals(res.Outcomes), 1e-9)
	assert.Equal(t, 35000, res.Outcomes[0].RawScore)
}

func TestResolveRawKeepsInputOrder(t *testing.T) {
	res, err := engine.Resolve(rawInputs(15000, 35000, 22000, 28000), engine.DefaultRules(), engine.ModeRaw, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{4, 1, 3, 2}, ranks(res.Outcomes))
	assert.Equal(t, "A", res.Outcomes[0].Name)
	assert.InDelta(t, 55.0, res.Outcomes[1].FinalScore, 1e-9)
}

func TestResolveRawRoundsToHundred(t *testing.T) {
	res, err := engine.Resolve(rawInputs(35040, 27960, 22000, 15000), engine.DefaultRules(), engine.ModeRaw, nil)
	require.NoError(t, err)
	assert.Equal(t, 35000, res.Outcomes[0].RawScore)
	assert.Equal(t, 28000, res.Outcomes[1].RawScore)
}

func TestResolveRawBreaksTieBySeatWind(t *testing.T) {
	inputs := rawInputs(30000, 25000, 25000, 20000)
	inputs[1].SeatWind = engine.WindSouth
	inputs[2].SeatWind = engine.WindEast

	res, err := engine.Resolve(inputs, engine.DefaultRules(), engine.ModeRaw, nil)
	require.NoError(t, err)
	require.False(t, res.NeedsTieBreak())

	assert.Equal(t, 2, res.Outcomes[2].Rank, "east seat ranks above south seat")
	assert.Equal(t, 3, res.Outcomes[1].Rank)
	assert.InDeltaSlice(t, []float64{50, -15, 5, -40}, finals(res.Outcomes), 1e-9)
}

func TestResolveRawSplitPolicyIgnoresWinds(t *testing.T) {
	rules := engine.DefaultRules()
	rules.TieBreaker = engine.TieBreakerSplit
	inputs := rawInputs(30000, 25000, 25000, 20000)
	inputs[1].SeatWind = engine.WindSouth
	inputs[2].SeatWind = engine.WindEast

	res, err := engine.Resolve(inputs, rules, engine.ModeRaw, nil)
	require.NoError(t, err)
	require.True(t, res.NeedsTieBreak())
	assert.Equal(t, [][]int{{1, 2}}, res.TieGroups)
	assert.Empty(t, res.Outcomes)
}

func TestResolveRawNeedsTieBreakWithoutWinds(t *testing.T) {
	res, err := engine.Resolve(rawInputs(30000, 25000, 25000, 20000), engine.DefaultRules(), engine.ModeRaw, nil)
	require.NoError(t, err)
	require.True(t, res.NeedsTieBreak())
	assert.Equal(t, [][]int{{1, 2}}, res.TieGroups)
}

func TestResolveRawPartialWindsStayTied(t *testing.T) {
	inputs := rawInputs(30000, 25000, 25000, 20000)
	inputs[1].SeatWind = engine.WindSouth

	res, err := engine.Resolve(inputs, engine.DefaultRules(), engine.ModeRaw, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 2}}, res.TieGroups)
}

func TestResolveRawReportsEveryGroup(t *testing.T) {
	res, err := engine.Resolve(rawInputs(20000, 30000, 20000, 30000), engine.DefaultRules(), engine.ModeRaw, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 3}, {0, 2}}, res.TieGroups)
}

func TestResolveRawOverride(t *testing.T) {
	res, err := engine.Resolve(rawInputs(30000, 25000, 25000, 20000), engine.DefaultRules(), engine.ModeRaw, engine.Priority{1: 1, 2: 2})
	require.NoError(t, err)
	require.False(t, res.NeedsTieBreak())
	assert.Equal(t, []int{1, 3, 2, 4}, ranks(res.Outcomes))
}

func TestResolveRawOverrideMustCoverGroup(t *testing.T) {
	res, err := engine.Resolve(rawInputs(25000, 25000, 25000, 25000), engine.DefaultRules(), engine.ModeRaw, engine.Priority{0: 3, 1: 2, 2: 1})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 1, 2, 3}}, res.TieGroups)

	res, err = engine.Resolve(rawInputs(30000, 25000, 25000, 20000), engine.DefaultRules(), engine.ModeRaw, engine.Priority{1: 1, 2: 1})
	require.NoError(t, err)
	assert.True(t, res.NeedsTieBreak(), "equal priorities do not order a group")
}

func TestResolveRejectsInvalidRules(t *testing.T) {
	rules := engine.DefaultRules()
	rules.Uma = []int{30, 10, -40}

	_, err := engine.Resolve(rawInputs(35000, 28000, 22000, 15000), rules, engine.ModeRaw, nil)
	require.ErrorIs(t, err, appErr.ErrInvalidRules)

	rules = engine.DefaultRules()
	rules.TieBreaker = "coin"
	require.ErrorIs(t, rules.Validate(), appErr.ErrInvalidRules)
}

func TestResolveRejectsInvalidInput(t *testing.T) {
	rules := engine.DefaultRules()

	_, err := engine.Resolve(rawInputs(35000, 28000, 37000), rules, engine.ModeRaw, nil)
	require.ErrorIs(t, err, appErr.ErrInvalidScoreInput)

	dup := rawInputs(35000, 28000, 22000, 15000)
	dup[3].Name = "A"
	_, err = engine.Resolve(dup, rules, engine.ModeRaw, nil)
	require.ErrorIs(t, err, appErr.ErrInvalidScoreInput)

	winds := rawInputs(35000, 28000, 22000, 15000)
	winds[0].SeatWind = engine.WindEast
	winds[1].SeatWind = engine.WindEast
	_, err = engine.Resolve(winds, rules, engine.ModeRaw, nil)
	require.ErrorIs(t, err, appErr.ErrInvalidScoreInput)

	_, err = engine.Resolve(rawInputs(35000, 28000, 22000, 15000), rules, engine.Mode("half"), nil)
	require.ErrorIs(t, err, appErr.ErrInvalidScoreInput)
}

func TestResolveRawRejectsWrongTableTotal(t *testing.T) {
	_, err := engine.Resolve(rawInputs(35000, 28000, 22000, 16000), engine.DefaultRules(), engine.ModeRaw, nil)
	require.ErrorIs(t, err, appErr.ErrInconsistentScores)
}

func TestResolveDirect(t *testing.T) {
	res, err := engine.Resolve(rawInputs(-18, 55, -45, 8), engine.DefaultRules(), engine.ModeDirect, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{3, 1, 4, 2}, ranks(res.Outcomes))
	raws := []int{res.Outcomes[0].RawScore, res.Outcomes[1].RawScore, res.Outcomes[2].RawScore, res.Outcomes[3].RawScore}
	assert.Equal(t, []int{22000, 35000, 15000, 28000}, raws)
}

func TestResolveDirectRejectsRankInversion(t *testing.T) {
	_, err := engine.Resolve(rawInputs(10, 9, -9, -10), engine.DefaultRules(), engine.ModeDirect, nil)
	require.ErrorIs(t, err, appErr.ErrInconsistentScores)
}

func TestResolveDirectRejectsNonZeroSum(t *testing.T) {
	_, err := engine.Resolve(rawInputs(55, 8, -18, -44), engine.DefaultRules(), engine.ModeDirect, nil)
	require.ErrorIs(t, err, appErr.ErrInconsistentScores)
}

func TestResolveDirectRejectsUnorderedTie(t *testing.T) {
	_, err := engine.Resolve(rawInputs(40, 5, 5, -50), engine.DefaultRules(), engine.ModeDirect, nil)
	require.ErrorIs(t, err, appErr.ErrInconsistentScores)
}

func TestParseSeatWind(t *testing.T) {
	for in, want := range map[string]engine.SeatWind{"東": engine.WindEast, "s": engine.WindSouth, "West": engine.WindWest, " 北 ": engine.WindNorth, "": ""} {
		got, err := engine.ParseSeatWind(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := engine.ParseSeatWind("中")
	require.ErrorIs(t, err, appErr.ErrInvalidScoreInput)
}

// randomTable draws four raw scores in multiples of 100 that add up to the
// table total.
func randomTable(f *gofakeit.Faker, rules engine.Rules) []float64 {
	scores := make([]float64, engine.PlayerCount)
	rest := rules.TableTotal()
	for i := 0; i < engine.PlayerCount-1; i++ {
		s := f.Number(-50, 600) * 100
		scores[i] = float64(s)
		rest -= s
	}
	scores[engine.PlayerCount-1] = float64(rest)
	return scores
}

// inputOrder ranks tied players by their seat index.
func inputOrder() engine.Priority {
	return engine.Priority{0: 4, 1: 3, 2: 2, 3: 1}
}

func TestResolveProperties(t *testing.T) {
	f := gofakeit.New(20240601)
	rules := engine.DefaultRules()

	for n := 0; n < 500; n++ {
		inputs := rawInputs(randomTable(f, rules)...)

		res, err := engine.Resolve(inputs, rules, engine.ModeRaw, inputOrder())
		require.NoError(t, err)
		require.False(t, res.NeedsTieBreak())

		var sum float64
		byRank := make([]engine.Outcome, engine.PlayerCount)
		for _, o := range res.Outcomes {
			sum += o.FinalScore
			byRank[o.Rank-1] = o
		}
		require.InDelta(t, 0, sum, 0.1, "final scores must be zero-sum: %+v", res.Outcomes)
		for r := 1; r < engine.PlayerCount; r++ {
			require.GreaterOrEqual(t, byRank[r-1].RawScore, byRank[r].RawScore, "rank inversion: %+v", res.Outcomes)
		}

		direct := make([]engine.Input, engine.PlayerCount)
		for i, o := range res.Outcomes {
			direct[i] = engine.Input{Name: o.Name, Score: o.FinalScore}
		}
		back, err := engine.Resolve(direct, rules, engine.ModeDirect, inputOrder())
		require.NoError(t, err)
		for i := range back.Outcomes {
			require.Equal(t, res.Outcomes[i].RawScore, back.Outcomes[i].RawScore)
			require.Equal(t, res.Outcomes[i].Rank, back.Outcomes[i].Rank)
		}
	}
}
