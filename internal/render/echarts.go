package render

import (
	"fmt"
	"io"

	"github.com/banshee-data/trajectory.report/internal/tracking"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// ChartHTML writes an interactive page with one line series per track.
func ChartHTML(w io.Writer, title, subtitle string, tracks []tracking.TrackSnapshot) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Theme: "dark", Width: "1100px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(len(tracks) <= 40)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "X (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "Y (px)", NameLocation: "middle", NameGap: 35, Inverse: opts.Bool(true)}),
	)

	for _, t := range tracks {
		data := make([]opts.LineData, len(t.History))
		for i, p := range t.History {
			data[i] = opts.LineData{Value: []interface{}{p.X, p.Y}}
		}
		line.AddSeries(fmt.Sprintf("track %d", t.ID), data,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		)
	}

	if err := line.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
