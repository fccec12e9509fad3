package engine_test

import (
	"testing"

	"jonglog-service/internal/engine"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectStats(t *testing.T) {
	rules := engine.DefaultRules()
	var matches [][]engine.Outcome
	for _, scores := range [][]float64{
		{35000, 28000, 22000, 15000},
		{15000, 35000, 22000, 28000},
	} {
		res, err := engine.Resolve(rawInputs(scores...), rules, engine.ModeRaw, nil)
		require.NoError(t, err)
		matches = append(matches, res.Outcomes)
	}

	stats := engine.CollectStats(append([]string{"E"}, names...), matches)
	require.Len(t, stats, 5)

	order := make([]string, len(stats))
	for i, s := range stats {
		order[i] = s.Name
	}
	assert.Equal(t, []string{"B", "A", "E", "C", "D"}, order)

	want := engine.PlayerStats{
		Name:          "A",
		Games:         2,
		Score:         10,
		Ranks:         [engine.PlayerCount]int{1, 0, 0, 1},
		AvgRank:       2.5,
		TopRate:       0.5,
		RentaiRate:    0.5,
		AvoidLastRate: 0.5,
		MaxScore:      55,
		AvgScore:      5,
		ScoreStdDev:   70.7,
		AvgRawScore:   25000,
	}
	if diff := cmp.Diff(want, stats[1]); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, engine.PlayerStats{Name: "E"}, stats[2])
	assert.Zero(t, stats[3].ScoreStdDev)
	assert.Equal(t, 1.0, stats[0].RentaiRate)
}
