package report

import (
	"bytes"

	"jonglog-service/internal/engine"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var (
	background = drawing.ColorFromHex("0f172a")
	textColor  = drawing.ColorFromHex("e2e8f0")
	lineColors = []drawing.Color{
		drawing.ColorFromHex("ef4444"),
		drawing.ColorFromHex("3b82f6"),
		drawing.ColorFromHex("10b981"),
		drawing.ColorFromHex("f59e0b"),
		drawing.ColorFromHex("8b5cf6"),
		drawing.ColorFromHex("ec4899"),
		drawing.ColorFromHex("06b6d4"),
		drawing.ColorFromHex("f97316"),
		drawing.ColorFromHex("84cc16"),
		drawing.ColorFromHex("14b8a6"),
		drawing.ColorFromHex("6366f1"),
		drawing.ColorFromHex("d946ef"),
	}
)

// CumulativeScores returns one running total per player, starting at 0 and
// adding a point per match. Players absent from a match keep their total.
func CumulativeScores(players []string, matches [][]engine.Outcome) [][]float64 {
	lines := make([][]float64, len(players))
	running := make([]float64, len(players))
	pos := make(map[string]int, len(players))
	for i, p := range players {
		pos[p] = i
		lines[i] = append(make([]float64, 0, len(matches)+1), 0)
	}
	for _, m := range matches {
		for _, o := range m {
			if i, ok := pos[o.Name]; ok {
				running[i] += o.FinalScore
			}
		}
		for i := range players {
			lines[i] = append(lines[i], engine.RoundScore(running[i]))
		}
	}
	return lines
}

// CumulativeChart renders the running totals as a PNG line chart.
func CumulativeChart(title string, players []string, matches [][]engine.Outcome) ([]byte, error) {
	if len(matches) == 0 || len(players) == 0 {
		return renderNoData("No matches recorded")
	}

	lines := CumulativeScores(players, matches)
	xs := make([]float64, len(matches)+1)
	for i := range xs {
		xs[i] = float64(i)
	}

	series := make([]chart.Series, 0, len(players))
	for i, p := range players {
		color := lineColors[i%len(lineColors)]
		series = append(series, chart.ContinuousSeries{
			Name:    p,
			XValues: xs,
			YValues: lines[i],
			Style: chart.Style{
				StrokeColor: color,
				StrokeWidth: 2,
				DotColor:    color,
				DotWidth:    3,
			},
		})
	}

	graph := chart.Chart{
		Title:  title,
		Width:  800,
		Height: 400,
		TitleStyle: chart.Style{
			FontColor: textColor,
		},
		Background: chart.Style{
			FillColor: background,
			Padding:   chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		Canvas: chart.Style{
			FillColor: background,
		},
		XAxis: chart.XAxis{
			Name:           "Game",
			ValueFormatter: chart.IntValueFormatter,
			Style:          chart.Style{FontColor: textColor},
		},
		YAxis: chart.YAxis{
			Name:  "Score",
			Style: chart.Style{FontColor: textColor},
		},
		Series: series,
	}
	if lo, hi := bounds(lines); lo == hi {
		graph.YAxis.Range = &chart.ContinuousRange{Min: lo - 1, Max: hi + 1}
	}
	graph.Elements = []chart.Renderable{chart.LegendLeft(&graph)}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func bounds(lines [][]float64) (lo, hi float64) {
	first := true
	for _, line := range lines {
		for _, v := range line {
			if first || v < lo {
				lo = v
			}
			if first || v > hi {
				hi = v
			}
			first = false
		}
	}
	return lo, hi
}

// renderNoData draws the placeholder on a bare renderer; chart.Chart
// refuses to render without a series.
func renderNoData(msg string) ([]byte, error) {
	const width, height = 400, 200

	r, err := chart.PNG(width, height)
	if err != nil {
		return nil, err
	}
	font, err := chart.GetDefaultFont()
	if err != nil {
		return nil, err
	}

	r.SetFillColor(background)
	r.MoveTo(0, 0)
	r.LineTo(width, 0)
	r.LineTo(width, height)
	r.LineTo(0, height)
	r.Close()
	r.Fill()

	r.SetFont(font)
	r.SetFontColor(textColor)
	r.SetFontSize(12.0)
	tb := r.MeasureText(msg)
	r.Text(msg, (width-tb.Width())/2, (height+tb.Height())/2)

	buffer := bytes.NewBuffer([]byte{})
	if err := r.Save(buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
