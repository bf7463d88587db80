package stats

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"gridsim/internal/model"
)

// CostSeries returns accumulated cost per tick keyed by agent id, in the
// agent order of the first tick. The learner, when present, comes last.
func CostSeries(history []model.TickSummary) ([]string, map[string][]float64) {
	order := make([]string, 0)
	series := make(map[string][]float64)
	for _, summary := range history {
		for _, a := range summary.Agents {
			if _, ok := series[a.ID]; !ok {
				order = append(order, a.ID)
			}
			series[a.ID] = append(series[a.ID], a.Cost)
		}
	}
	for _, summary := range history {
		if summary.Learner == nil {
			continue
		}
		if _, ok := series[learnerSeriesLabel]; !ok {
			order = append(order, learnerSeriesLabel)
		}
		series[learnerSeriesLabel] = append(series[learnerSeriesLabel], summary.Learner.Cost)
	}
	return order, series
}

// RenderCostChart writes an HTML page with one accumulated cost line per
// agent.
func RenderCostChart(w io.Writer, title string, history []model.TickSummary) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "accumulated cost",
			Subtitle: title,
		}),
		charts.WithInitializationOpts(opts.Initialization{
			Theme: "shine",
		}),
	)

	ticks := make([]string, 0, len(history))
	for _, summary := range history {
		ticks = append(ticks, strconv.Itoa(summary.Tick))
	}
	line = line.SetXAxis(ticks)

	order, series := CostSeries(history)
	for _, id := range order {
		items := make([]opts.LineData, 0, len(series[id]))
		for _, cost := range series[id] {
			items = append(items, opts.LineData{Value: cost})
		}
		line.AddSeries(id, items)
	}

	page := components.NewPage()
	page.AddCharts(line)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render cost chart: %w", err)
	}
	return nil
}

func writeCostChartFile(path, title string, history []model.TickSummary) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return RenderCostChart(f, title, history)
}
