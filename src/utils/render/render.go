package render

import (
	"errors"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// LineSeries is one named line; Values are aligned with the chart labels.
type LineSeries struct {
	Name   string
	Values []float64
	// Highlight marks the point at that index with a bigger symbol, -1 for none.
	Highlight int
}

// RenderLineGraph writes a standalone HTML page with a line chart.
func RenderLineGraph(w io.Writer, title, subtitle string, labels []string, series ...LineSeries) error {
	if len(series) == 0 {
		return errors.New("no series to render")
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title}),
	)

	line.SetXAxis(labels)
	for _, s := range series {
		items := make([]opts.LineData, 0, len(s.Values))
		for i, v := range s.Values {
			item := opts.LineData{Value: v}
			if i == s.Highlight {
				item.SymbolSize = 10
			}
			items = append(items, item)
		}
		line.AddSeries(s.Name, items)
	}

	return line.Render(w)
}
