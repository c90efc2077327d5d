package evidence

import (
	"io"
	"time"

	"github.com/rotisserie/eris"
	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/sells-group/audit-engine/internal/model"
)

// RenderChart writes a PNG line chart of the claim's market data.
func RenderChart(w io.Writer, claim model.Claim) error {
	points := ParsePoints(claim.MarketData)
	if len(points) < 2 {
		return ErrNotEnoughPoints
	}

	x := make([]time.Time, len(points))
	y := make([]float64, len(points))
	lo, hi := points[0].Price.InexactFloat64(), points[0].Price.InexactFloat64()
	for i, p := range points {
		x[i] = p.Date
		y[i] = p.Price.InexactFloat64()
		lo, hi = min(lo, y[i]), max(hi, y[i])
	}

	yAxis := chart.YAxis{
		Name: claim.Asset,
		ValueFormatter: func(v interface{}) string {
			return chart.FloatValueFormatterWithFormat(v, "%.2f")
		},
	}
	if lo == hi {
		yAxis.Range = &chart.ContinuousRange{Min: lo - 1, Max: hi + 1}
	}

	graph := chart.Chart{
		Title:  claim.StructuredClaim,
		Width:  960,
		Height: 540,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: yAxis,
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    claim.Asset,
				XValues: x,
				YValues: y,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return eris.Wrap(graph.Render(chart.PNG, w), "evidence: render chart")
}
