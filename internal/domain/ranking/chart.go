package ranking

import (
	"bytes"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	chartWidth     = 800
	chartHeight    = 400
	chartBarWidth  = 40
	chartMaxLabels = 15
)

// Chart renders standings as a PNG bar chart. label maps member IDs to the
// text printed under each bar.
func Chart(month string, standings []Standing, label func(memberID string) string) ([]byte, error) {
	if len(standings) == 0 {
		return nil, ErrEmptyStanding
	}
	if label == nil {
		label = func(id string) string { return id }
	}
	if len(standings) > chartMaxLabels {
		standings = standings[:chartMaxLabels]
	}

	bars := make([]chart.Value, 0, len(standings))
	top := 0
	for _, s := range standings {
		bars = append(bars, chart.Value{
			Value: float64(s.Total),
			Label: fmt.Sprintf("%d. %s", s.Position, label(s.MemberID)),
			Style: chart.Style{
				FillColor:   drawing.ColorFromHex("d4a017"),
				StrokeColor: drawing.ColorFromHex("8a6d0b"),
				StrokeWidth: 1,
			},
		})
		if s.Total > top {
			top = s.Total
		}
	}

	graph := chart.BarChart{
		Title:  "Leaderboard " + month,
		Width:  chartWidth,
		Height: chartHeight,
		Background: chart.Style{
			Padding: chart.Box{Top: 40},
		},
		BarWidth: chartBarWidth,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: float64(top) + 1},
		},
		Bars: bars,
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
