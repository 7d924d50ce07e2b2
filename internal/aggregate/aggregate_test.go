package aggregate

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/sparsebench/sparsebench/internal/results"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func seededRepo(t *testing.T) results.Repository {
	t.Helper()

	db, err := results.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	repo := results.NewRepository(db.Conn())
	ctx := context.Background()

	for _, seed := range []struct {
		label     string
		viewCount int
		psnr7k    float64
		psnr30k   float64
	}{
		{"3_views", 3, 20.0, 24.0},
		{"8_views", 8, 23.0, 27.0},
	} {
		now := time.Now()
		run := &results.Run{
			ID: results.NewID(), Label: seed.label, ViewCount: seed.viewCount,
			Strategy: "uniform", Status: results.RunStatusCompleted,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := repo.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
		for iter, psnr := range map[int]float64{7000: seed.psnr7k, 30000: seed.psnr30k} {
			m := &results.Metric{RunID: run.ID, Method: "ours", Iteration: iter,
				PSNR: psnr, SSIM: 0.8, LPIPS: 0.2, CreatedAt: now}
			if err := repo.InsertMetric(ctx, m); err != nil {
				t.Fatalf("InsertMetric: %v", err)
			}
		}
	}
	return repo
}

func TestLatest_PicksHighestIteration(t *testing.T) {
	summary := []results.SummaryRow{
		{ViewCount: 3, Iteration: 7000, PSNR: 20},
		{ViewCount: 3, Iteration: 30000, PSNR: 24},
		{ViewCount: 8, Iteration: 7000, PSNR: 23},
		{ViewCount: 8, Iteration: 30000, PSNR: 27},
	}

	got := Latest(summary)
	want := []results.SummaryRow{
		{ViewCount: 3, Iteration: 30000, PSNR: 24},
		{ViewCount: 8, Iteration: 30000, PSNR: 27},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Latest = %+v, want %+v", got, want)
	}
}

func TestTrendChart_AlignsSeriesByIteration(t *testing.T) {
	// 8 views was only scored at 30000; its single point must land on the
	// 30000 category, not slide to the first axis slot.
	summary := []results.SummaryRow{
		{ViewCount: 3, Iteration: 7000, PSNR: 20},
		{ViewCount: 3, Iteration: 30000, PSNR: 24},
		{ViewCount: 8, Iteration: 30000, PSNR: 27},
	}

	line := TrendChart(summary, "psnr")

	data := map[string][]opts.LineData{}
	for _, s := range line.MultiSeries {
		points, ok := s.Data.([]opts.LineData)
		if !ok {
			t.Fatalf("series %q data has type %T", s.Name, s.Data)
		}
		data[s.Name] = points
	}

	sparse, ok := data["8 views"]
	if !ok {
		t.Fatalf("missing series, got %v", line.MultiSeries)
	}
	if len(sparse) != 2 {
		t.Fatalf("8 views has %d points, want one per iteration category", len(sparse))
	}
	if sparse[0].Value != "-" {
		t.Errorf("8 views at iteration 7000 = %v, want the gap marker", sparse[0].Value)
	}
	if sparse[1].Value != 27.0 {
		t.Errorf("8 views at iteration 30000 = %v, want 27", sparse[1].Value)
	}

	dense := data["3 views"]
	if len(dense) != 2 || dense[0].Value != 20.0 || dense[1].Value != 24.0 {
		t.Errorf("3 views points = %+v, want 20 then 24", dense)
	}
}

func TestWrite_ProducesCSVAndCharts(t *testing.T) {
	repo := seededRepo(t)
	outDir := filepath.Join(t.TempDir(), "plots")

	if err := Write(context.Background(), repo, outDir, testLogger()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	wantFiles := []string{
		"metrics_summary.csv",
		"latest_metrics.html",
		"iteration_trends_psnr.html",
		"iteration_trends_ssim.html",
		"iteration_trends_lpips.html",
	}
	for _, name := range wantFiles {
		path := filepath.Join(outDir, name)
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("missing output %s: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("output %s is empty", name)
		}
	}
}

func TestWrite_EmptyStoreIsNoOp(t *testing.T) {
	db, err := results.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	defer db.Close()
	repo := results.NewRepository(db.Conn())

	outDir := filepath.Join(t.TempDir(), "plots")
	if err := Write(context.Background(), repo, outDir, testLogger()); err != nil {
		t.Fatalf("Write on empty store: %v", err)
	}
	if _, err := os.Stat(outDir); err == nil {
		t.Error("empty store should not create the plots dir")
	}
}
