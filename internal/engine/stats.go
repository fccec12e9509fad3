package engine

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// PlayerStats aggregates one player's results over a set of matches.
type PlayerStats struct {
	Name          string           `json:"name"`
	Games         int              `json:"games"`
	Score         float64          `json:"score"`
	Ranks         [PlayerCount]int `json:"ranks"`
	AvgRank       float64          `json:"avgRank"`
	TopRate       float64          `json:"topRate"`
	RentaiRate    float64          `json:"rentaiRate"`
	AvoidLastRate float64          `json:"avoidLastRate"`
	MaxScore      float64          `json:"maxScore"`
	AvgScore      float64          `json:"avgScore"`
	ScoreStdDev   float64          `json:"scoreStdDev"`
	AvgRawScore   float64          `json:"avgRawScore"`
}

// CollectStats computes stats for players over matches, ordered by total
// score descending. Outcomes of other players are ignored.
func CollectStats(players []string, matches [][]Outcome) []PlayerStats {
	finals := make(map[string][]float64, len(players))
	raws := make(map[string]int, len(players))
	stats := make(map[string]*PlayerStats, len(players))
	for _, p := range players {
		stats[p] = &PlayerStats{Name: p}
	}

	for _, m := range matches {
		for _, o := range m {
			s, ok := stats[o.Name]
			if !ok {
				continue
			}
			s.Games++
			if o.Rank >= 1 && o.Rank <= PlayerCount {
				s.Ranks[o.Rank-1]++
			}
			finals[o.Name] = append(finals[o.Name], o.FinalScore)
			raws[o.Name] += o.RawScore
		}
	}

	out := make([]PlayerStats, 0, len(players))
	for _, p := range players {
		s := stats[p]
		xs := finals[p]
		if s.Games > 0 {
			g := float64(s.Games)
			rankSum := 0
			for r, n := range s.Ranks {
				rankSum += (r + 1) * n
			}
			s.Score = RoundScore(floats.Sum(xs))
			s.AvgRank = round2(float64(rankSum) / g)
			s.TopRate = round2(float64(s.Ranks[0]) / g)
			s.RentaiRate = round2(float64(s.Ranks[0]+s.Ranks[1]) / g)
			s.AvoidLastRate = round2(float64(s.Games-s.Ranks[PlayerCount-1]) / g)
			s.MaxScore = floats.Max(xs)
			s.AvgScore = RoundScore(stat.Mean(xs, nil))
			if len(xs) > 1 {
				s.ScoreStdDev = RoundScore(stat.StdDev(xs, nil))
			}
			s.AvgRawScore = math.Round(float64(raws[p]) / g)
		}
		out = append(out, *s)
	}

	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
