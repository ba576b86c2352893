package views

import (
	"io"

	"stockdesk/src/clients/market"
	"stockdesk/src/utils/render"

	"github.com/shopspring/decimal"
)

const chartLabelLayout = "2006-01-02 15:04:05"

// ChartData is the price series of one asset, ready for any line chart.
type ChartData struct {
	Title   string            `json:"title"`
	Labels  []string          `json:"labels"`
	Values  []decimal.Decimal `json:"values"`
	Current *decimal.Decimal  `json:"current,omitempty"`
}

// BuildChartData expects points sorted by timestamp. The last point is the
// current price.
func BuildChartData(title string, points []market.PriceHistoryPoint) ChartData {
	data := ChartData{
		Title:  title,
		Labels: make([]string, 0, len(points)),
		Values: make([]decimal.Decimal, 0, len(points)),
	}
	for _, point := range points {
		label := point.Timestamp
		if t, ok := point.Time(); ok {
			label = t.Format(chartLabelLayout)
		}
		data.Labels = append(data.Labels, label)
		data.Values = append(data.Values, point.Price)
	}
	if len(points) > 0 {
		current := points[len(points)-1].Price
		data.Current = &current
	}
	return data
}

func RenderPriceChart(w io.Writer, data ChartData) error {
	values := make([]float64, len(data.Values))
	for i, v := range data.Values {
		values[i] = v.InexactFloat64()
	}
	subtitle := ""
	if data.Current != nil {
		subtitle = "current price " + data.Current.StringFixed(2)
	}
	return render.RenderLineGraph(w, data.Title, subtitle, data.Labels, render.LineSeries{
		Name:      "Price",
		Values:    values,
		Highlight: len(values) - 1,
	})
}
