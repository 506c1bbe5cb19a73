package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const (
	chartID         = "deltacov_files"
	chartHeight     = "420px"
	labelRotate     = 30
	styleTagLen     = len("</style>")
	defaultAssetURL = "https://go-echarts.github.io/go-echarts-assets/assets/"
)

// buildChart plots the coverage percentage of every scored file, colored by bucket.
func buildChart(rows []rowData) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:      "100%",
			Height:     chartHeight,
			ChartID:    chartID,
			AssetsHost: defaultAssetURL,
		}),
		charts.WithTitleOpts(opts.Title{Title: "Changed line coverage per file", Left: "center"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithGridOpts(opts.Grid{Bottom: "20%", ContainLabel: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Rotate: labelRotate, Interval: "0"}}),
		charts.WithYAxisOpts(opts.YAxis{Name: "coverage %", Max: 100}),
	)

	labels := make([]string, len(rows))
	data := make([]opts.BarData, len(rows))

	for i, row := range rows {
		labels[i] = row.File
		data[i] = opts.BarData{
			Name:      row.File,
			Value:     row.Percent,
			ItemStyle: &opts.ItemStyle{Color: row.BarColor},
		}
	}

	bar.SetXAxis(labels)
	bar.AddSeries("coverage", data)

	return bar
}

// renderChart renders the chart and keeps only its element and script.
func renderChart(bar *charts.Bar) (string, error) {
	var buf bytes.Buffer

	err := bar.Render(&buf)
	if err != nil {
		return "", fmt.Errorf("rendering chart: %w", err)
	}

	return extractChartContent(buf.String()), nil
}

// extractChartContent cuts the chart container out of a full echarts page.
func extractChartContent(page string) string {
	start := strings.Index(page, `<div class="container">`)
	if start == -1 {
		return page
	}

	end := strings.Index(page, `</body>`)
	if end == -1 {
		return page
	}

	content := page[start:end]
	content = strings.ReplaceAll(content, `class="container"`, `class="echart-box"`)

	for {
		i := strings.Index(content, `<style>`)
		if i == -1 {
			break
		}

		j := strings.Index(content[i:], `</style>`)
		if j == -1 {
			break
		}

		content = content[:i] + content[i+j+styleTagLen:]
	}

	return content
}
