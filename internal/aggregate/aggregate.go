// Package aggregate turns recorded metric rows into a summary CSV and
// HTML line charts: metric-vs-view-count at the highest iteration, and
// per-metric iteration trends. An empty results store aggregates to
// nothing, it is not an error.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/sparsebench/sparsebench/internal/logging"
	"github.com/sparsebench/sparsebench/internal/results"
)

// Metrics are the score columns charts are drawn for.
var Metrics = []string{"psnr", "ssim", "lpips"}

// Write renders metrics_summary.csv, latest_metrics.html, and one
// iteration_trends_<metric>.html per metric into outDir.
func Write(ctx context.Context, repo results.Repository, outDir string, logger *slog.Logger) error {
	logger = logging.WithComponent(logger, "aggregate")

	summary, err := repo.SummarizeMetrics(ctx)
	if err != nil {
		return err
	}
	if len(summary) == 0 {
		logger.Info("no metrics recorded; nothing to aggregate")
		return nil
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("cannot create plots dir: %w", err)
	}

	csvPath := filepath.Join(outDir, "metrics_summary.csv")
	f, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("cannot create summary csv: %w", err)
	}
	if err := results.WriteSummaryCSV(ctx, repo, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if err := renderToFile(LatestChart(summary), filepath.Join(outDir, "latest_metrics.html")); err != nil {
		return err
	}
	for _, metric := range Metrics {
		name := fmt.Sprintf("iteration_trends_%s.html", metric)
		if err := renderToFile(TrendChart(summary, metric), filepath.Join(outDir, name)); err != nil {
			return err
		}
	}

	logger.Info("aggregation written",
		"out_dir", logging.SanitizePath(outDir),
		"configurations", len(summary),
	)
	return nil
}

// Latest reduces the summary to its highest-iteration row per view count,
// ordered by view count.
func Latest(summary []results.SummaryRow) []results.SummaryRow {
	byViews := map[int]results.SummaryRow{}
	var order []int
	for _, row := range summary {
		best, ok := byViews[row.ViewCount]
		if !ok {
			order = append(order, row.ViewCount)
		}
		if !ok || row.Iteration > best.Iteration {
			byViews[row.ViewCount] = row
		}
	}

	out := make([]results.SummaryRow, 0, len(order))
	for _, vc := range order {
		out = append(out, byViews[vc])
	}
	return out
}

// LatestChart plots each metric against view count at the highest iteration.
func LatestChart(summary []results.SummaryRow) *charts.Line {
	latest := Latest(summary)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Highest iteration metrics per view-count"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "View count"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Metric"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	xAxis := make([]string, len(latest))
	for i, row := range latest {
		xAxis[i] = fmt.Sprint(row.ViewCount)
	}
	line.SetXAxis(xAxis)

	for _, metric := range Metrics {
		data := make([]opts.LineData, len(latest))
		for i, row := range latest {
			data[i] = opts.LineData{Value: metricValue(row, metric)}
		}
		line.AddSeries(metricLabel(metric), data,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}))
	}
	return line
}

// TrendChart plots one metric against iteration, one series per view count.
func TrendChart(summary []results.SummaryRow, metric string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("%s vs iteration", metricLabel(metric))}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Iteration"}),
		charts.WithYAxisOpts(opts.YAxis{Name: metricLabel(metric)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	seen := map[int]bool{}
	var iterOrder []int
	for _, row := range summary {
		if !seen[row.Iteration] {
			seen[row.Iteration] = true
			iterOrder = append(iterOrder, row.Iteration)
		}
	}
	sort.Ints(iterOrder)

	xAxis := make([]string, len(iterOrder))
	for i, it := range iterOrder {
		xAxis[i] = fmt.Sprint(it)
	}
	line.SetXAxis(xAxis)

	values := map[int]map[int]float64{}
	var seriesOrder []int
	for _, row := range summary {
		if _, ok := values[row.ViewCount]; !ok {
			seriesOrder = append(seriesOrder, row.ViewCount)
			values[row.ViewCount] = map[int]float64{}
		}
		values[row.ViewCount][row.Iteration] = metricValue(row, metric)
	}

	// Each series carries one point per axis category; an iteration a view
	// count was never scored at becomes the echarts null marker "-", which
	// renders a gap rather than shifting later points onto wrong iterations.
	for _, vc := range seriesOrder {
		data := make([]opts.LineData, len(iterOrder))
		for i, it := range iterOrder {
			if v, ok := values[vc][it]; ok {
				data[i] = opts.LineData{Value: v}
			} else {
				data[i] = opts.LineData{Value: "-"}
			}
		}
		line.AddSeries(fmt.Sprintf("%d views", vc), data,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}))
	}
	return line
}

func metricValue(row results.SummaryRow, metric string) float64 {
	switch metric {
	case "ssim":
		return row.SSIM
	case "lpips":
		return row.LPIPS
	default:
		return row.PSNR
	}
}

func metricLabel(metric string) string {
	switch metric {
	case "psnr":
		return "PSNR"
	case "ssim":
		return "SSIM"
	case "lpips":
		return "LPIPS"
	default:
		return metric
	}
}

func renderToFile(line *charts.Line, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create chart file: %w", err)
	}
	if err := line.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("cannot render chart %s: %w", path, err)
	}
	return f.Close()
}
