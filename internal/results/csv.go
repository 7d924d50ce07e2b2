package results

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// MetricsColumns is the header of the flat metrics table consumed by
// external aggregation tooling.
var MetricsColumns = []string{
	"timestamp",
	"subset_label",
	"view_count",
	"model_dir",
	"method",
	"iteration",
	"psnr",
	"ssim",
	"lpips",
	"selected_views",
}

// WriteMetricsCSV writes the full flat metrics table to w.
func WriteMetricsCSV(ctx context.Context, repo Repository, w io.Writer) error {
	rows, err := repo.ListMetricRows(ctx)
	if err != nil {
		return fmt.Errorf("failed to list metric rows: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(MetricsColumns); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
			row.SubsetLabel,
			strconv.Itoa(row.ViewCount),
			row.ModelDir,
			row.Method,
			strconv.Itoa(row.Iteration),
			formatFloat(row.PSNR),
			formatFloat(row.SSIM),
			formatFloat(row.LPIPS),
			strings.Join(row.SelectedViews, ";"),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummaryCSV writes mean metrics per (view_count, iteration) to w.
func WriteSummaryCSV(ctx context.Context, repo Repository, w io.Writer) error {
	summary, err := repo.SummarizeMetrics(ctx)
	if err != nil {
		return fmt.Errorf("failed to summarize metrics: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"view_count", "iteration", "psnr", "ssim", "lpips", "samples"}); err != nil {
		return err
	}
	for _, s := range summary {
		record := []string{
			strconv.Itoa(s.ViewCount),
			strconv.Itoa(s.Iteration),
			formatFloat(s.PSNR),
			formatFloat(s.SSIM),
			formatFloat(s.LPIPS),
			strconv.Itoa(s.Samples),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
