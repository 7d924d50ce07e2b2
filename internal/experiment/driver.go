package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/sparsebench/sparsebench/internal/dataset"
	"github.com/sparsebench/sparsebench/internal/logging"
	"github.com/sparsebench/sparsebench/internal/results"
	"github.com/sparsebench/sparsebench/internal/splat"
)

// Paths are the fixed directories a driver works against.
type Paths struct {
	RawDataDir     string // full capture dataset
	SplitsDir      string // subset output root
	ExperimentsDir string // model output root
}

// Driver runs experiment configs through subset assembly, training, and
// evaluation, persisting run state and metric rows.
type Driver struct {
	paths  Paths
	runner splat.Runner
	repo   results.Repository
	logger *slog.Logger
}

func NewDriver(paths Paths, runner splat.Runner, repo results.Repository, logger *slog.Logger) *Driver {
	return &Driver{
		paths:  paths,
		runner: runner,
		repo:   repo,
		logger: logging.WithComponent(logger, "experiment"),
	}
}

// RunAll executes each config in order. A failing config is recorded and
// logged, then the batch continues; only context cancellation stops it.
func (d *Driver) RunAll(ctx context.Context, configPaths []string) error {
	for _, path := range configPaths {
		if err := ctx.Err(); err != nil {
			return err
		}

		d.logger.Info("running experiment config", "config", path)
		if err := d.RunConfigFile(ctx, path); err != nil {
			d.logger.Error("experiment config failed", "config", path, "error", err)
		}
	}
	return nil
}

// RunConfigFile loads and runs one config file.
func (d *Driver) RunConfigFile(ctx context.Context, path string) error {
	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}
	return d.RunConfig(ctx, cfg)
}

// RunConfig executes one experiment: subset, train, render, metrics, record.
func (d *Driver) RunConfig(ctx context.Context, cfg *Config) error {
	label := cfg.Label()
	logger := logging.WithSubset(d.logger, label)

	run := &results.Run{
		ID:        results.NewID(),
		Label:     label,
		Strategy:  cfg.Policy().StrategyOrDefault(),
		ModelDir:  d.modelDir(cfg, label),
		Status:    results.RunStatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := d.repo.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("cannot record run: %w", err)
	}
	logger = logging.WithRunID(logger, run.ID)

	if err := d.execute(ctx, cfg, run, logger); err != nil {
		if dbErr := d.repo.UpdateRunStatus(ctx, run.ID, results.RunStatusFailed, err.Error()); dbErr != nil {
			logger.Error("cannot mark run failed", "error", dbErr)
		}
		return err
	}

	if err := d.repo.UpdateRunStatus(ctx, run.ID, results.RunStatusCompleted, ""); err != nil {
		logger.Error("cannot mark run completed", "error", err)
	}
	logger.Info("experiment completed")
	return nil
}

func (d *Driver) execute(ctx context.Context, cfg *Config, run *results.Run, logger *slog.Logger) error {
	if err := d.repo.UpdateRunStatus(ctx, run.ID, results.RunStatusRunning, ""); err != nil {
		logger.Error("cannot mark run running", "error", err)
	}

	rawDir := cfg.Subset.RawDir
	if rawDir == "" {
		rawDir = d.paths.RawDataDir
	}
	subsetDir := cfg.Subset.OutputDir
	if subsetDir == "" {
		subsetDir = filepath.Join(d.paths.SplitsDir, run.Label)
	}

	summary, err := dataset.Assemble(rawDir, subsetDir, cfg.Policy(), cfg.Subset.Extension, cfg.FullTestSet())
	if err != nil {
		return fmt.Errorf("subset assembly failed: %w", err)
	}
	logger.Info("subset ready",
		"subset_dir", logging.SanitizePath(summary.SubsetDir),
		"view_count", summary.ViewCount,
		"files", summary.Files,
	)

	if err := d.repo.UpdateRunSelection(ctx, run.ID, summary.ViewCount, summary.SelectedViews, summary.SubsetDir); err != nil {
		logger.Error("cannot record selection", "error", err)
	}

	trainResult, err := d.runner.RunTrain(ctx, summary.SubsetDir, run.ModelDir, cfg.Training.Args)
	if err != nil {
		return fmt.Errorf("train invocation failed: %w", err)
	}
	if !trainResult.IsSuccess() {
		return fmt.Errorf("train exited %d: %s", trainResult.ExitCode, trainResult.StderrTail)
	}

	iterations := cfg.RenderIterations()
	if len(iterations) == 0 {
		return fmt.Errorf("no render iterations configured")
	}
	for _, iteration := range iterations {
		renderResult, err := d.runner.RunRender(ctx, summary.SubsetDir, run.ModelDir, iteration, cfg.Render.args())
		if err != nil {
			return fmt.Errorf("render invocation failed: %w", err)
		}
		if !renderResult.IsSuccess() {
			return fmt.Errorf("render iteration %d exited %d: %s", iteration, renderResult.ExitCode, renderResult.StderrTail)
		}
	}

	metricsResult, err := d.runner.RunMetrics(ctx, run.ModelDir, cfg.Metrics.Args)
	if err != nil {
		return fmt.Errorf("metrics invocation failed: %w", err)
	}
	if !metricsResult.IsSuccess() {
		return fmt.Errorf("metrics exited %d: %s", metricsResult.ExitCode, metricsResult.StderrTail)
	}

	scores, err := d.runner.LoadResults(run.ModelDir)
	if err != nil {
		return err
	}
	if len(scores) == 0 {
		logger.Warn("metrics produced no results.json entries")
		return nil
	}

	for method, mm := range scores {
		iteration, _ := splat.ExtractIteration(method)
		metric := &results.Metric{
			RunID:     run.ID,
			Method:    method,
			Iteration: iteration,
			PSNR:      mm.PSNR,
			SSIM:      mm.SSIM,
			LPIPS:     mm.LPIPS,
			CreatedAt: time.Now(),
		}
		if err := d.repo.InsertMetric(ctx, metric); err != nil {
			return fmt.Errorf("cannot record metric row: %w", err)
		}
	}
	logger.Info("metrics recorded", "methods", len(scores))
	return nil
}

func (d *Driver) modelDir(cfg *Config, label string) string {
	if cfg.Training.ModelDir != "" {
		return cfg.Training.ModelDir
	}
	return filepath.Join(d.paths.ExperimentsDir, label)
}

// args tolerates a nil render block.
func (r *RenderConfig) args() map[string]any {
	if r == nil {
		return nil
	}
	return r.Args
}
