// Command sparsebench builds sparse-view subsets of multi-view capture
// datasets and drives gaussian-splatting experiments over them.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sparsebench/sparsebench/internal/aggregate"
	"github.com/sparsebench/sparsebench/internal/api"
	"github.com/sparsebench/sparsebench/internal/config"
	"github.com/sparsebench/sparsebench/internal/dataset"
	"github.com/sparsebench/sparsebench/internal/experiment"
	"github.com/sparsebench/sparsebench/internal/logging"
	"github.com/sparsebench/sparsebench/internal/results"
	"github.com/sparsebench/sparsebench/internal/splat"
)

const usage = `usage: sparsebench <command> [flags]

commands:
  subset      build a sparse-view subset of a raw dataset
  train       train a model from a YAML config
  evaluate    render and score a trained model from a YAML config
  run         run experiment configs end-to-end (subset, train, evaluate)
  aggregate   write summary CSV and charts from recorded metrics
  serve       expose recorded runs and metrics over HTTP
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run(command string, args []string) error {
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.NewLogger(cfg.LogLevel())

	switch command {
	case "subset":
		return cmdSubset(args, logger)
	case "train":
		return cmdTrain(cfg, args, logger)
	case "evaluate":
		return cmdEvaluate(cfg, args, logger)
	case "run":
		return cmdRun(cfg, args, logger)
	case "aggregate":
		return cmdAggregate(cfg, args, logger)
	case "serve":
		return cmdServe(cfg, logger)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func cmdSubset(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("subset", flag.ExitOnError)
	rawDir := fs.String("raw-data-dir", "", "raw dataset directory (required)")
	outputDir := fs.String("output-dir", "", "subset output directory (required)")
	viewCount := fs.Int("view-count", 3, "number of views to keep")
	indices := fs.String("indices", "", "comma-separated frame indices")
	names := fs.String("names", "", "comma-separated frame names")
	strategy := fs.String("strategy", dataset.StrategyUniform, "selection strategy: uniform or random")
	seed := fs.String("seed", "", "random sampling seed (any integer; empty = unseeded)")
	extension := fs.String("extension", dataset.DefaultExtension, "image asset extension")
	noFullTestSet := fs.Bool("no-full-test-set", false,
		"filter test/val to selected views (metrics not comparable across view counts)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *rawDir == "" || *outputDir == "" {
		return fmt.Errorf("subset requires --raw-data-dir and --output-dir")
	}

	policy, err := subsetPolicy(*names, *indices, *strategy, *seed, *viewCount)
	if err != nil {
		return err
	}

	summary, err := dataset.Assemble(*rawDir, *outputDir, policy, *extension, !*noFullTestSet)
	if err != nil {
		return err
	}

	logger.Info("subset ready",
		"subset_dir", summary.SubsetDir,
		"view_count", summary.ViewCount,
		"selected_views", summary.SelectedViews,
		"files", summary.Files,
	)
	fmt.Printf("Subset ready at %s: %d views, frames per transform: %v\n",
		summary.SubsetDir, summary.ViewCount, summary.Files)
	return nil
}

// trainFileConfig is the standalone `train` YAML shape.
type trainFileConfig struct {
	SourceDir string         `yaml:"source_dir"`
	ModelDir  string         `yaml:"model_dir"`
	Args      map[string]any `yaml:"args"`
}

func cmdTrain(cfg config.Config, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML describing source_dir, model_dir, and args (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return fmt.Errorf("train requires --config")
	}

	var tc trainFileConfig
	if err := loadYAML(*configPath, &tc); err != nil {
		return err
	}
	if tc.SourceDir == "" || tc.ModelDir == "" {
		return fmt.Errorf("train config requires source_dir and model_dir")
	}

	runner, err := newSplatRunner(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	result, err := runner.RunTrain(ctx, tc.SourceDir, tc.ModelDir, tc.Args)
	if err != nil {
		return err
	}
	if !result.IsSuccess() {
		return fmt.Errorf("train exited %d: %s", result.ExitCode, result.StderrTail)
	}
	return nil
}

// evaluateFileConfig is the standalone `evaluate` YAML shape. Label and
// view_count tag the recorded metric rows with subset provenance.
type evaluateFileConfig struct {
	SourceDir     string                    `yaml:"source_dir"`
	ModelDir      string                    `yaml:"model_dir"`
	Label         string                    `yaml:"label"`
	ViewCount     int                       `yaml:"view_count"`
	SelectedViews []string                  `yaml:"selected_views"`
	Render        experiment.RenderConfig  `yaml:"render"`
	Metrics       experiment.MetricsConfig `yaml:"metrics"`
}

func cmdEvaluate(cfg config.Config, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML describing source_dir, model_dir, render, and metrics (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return fmt.Errorf("evaluate requires --config")
	}

	var ec evaluateFileConfig
	if err := loadYAML(*configPath, &ec); err != nil {
		return err
	}
	if ec.SourceDir == "" || ec.ModelDir == "" {
		return fmt.Errorf("evaluate config requires source_dir and model_dir")
	}
	iterations := ec.Render.Iterations.Sorted()
	if len(iterations) == 0 {
		return fmt.Errorf("evaluate config requires render iterations")
	}

	runner, err := newSplatRunner(cfg, logger)
	if err != nil {
		return err
	}
	db, repo, err := openResults(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signalContext()
	defer stop()

	for _, iteration := range iterations {
		result, err := runner.RunRender(ctx, ec.SourceDir, ec.ModelDir, iteration, ec.Render.Args)
		if err != nil {
			return err
		}
		if !result.IsSuccess() {
			return fmt.Errorf("render iteration %d exited %d: %s", iteration, result.ExitCode, result.StderrTail)
		}
	}

	result, err := runner.RunMetrics(ctx, ec.ModelDir, ec.Metrics.Args)
	if err != nil {
		return err
	}
	if !result.IsSuccess() {
		return fmt.Errorf("metrics exited %d: %s", result.ExitCode, result.StderrTail)
	}

	scores, err := runner.LoadResults(ec.ModelDir)
	if err != nil {
		return err
	}
	if len(scores) == 0 {
		logger.Warn("metrics produced no results.json entries")
		return nil
	}

	now := time.Now()
	run := &results.Run{
		ID:            results.NewID(),
		Label:         experiment.SanitizeLabel(ec.Label),
		ViewCount:     ec.ViewCount,
		SelectedViews: ec.SelectedViews,
		Strategy:      "external",
		SubsetDir:     ec.SourceDir,
		ModelDir:      ec.ModelDir,
		Status:        results.RunStatusCompleted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := repo.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("cannot record run: %w", err)
	}
	for method, mm := range scores {
		iteration, _ := splat.ExtractIteration(method)
		metric := &results.Metric{
			RunID: run.ID, Method: method, Iteration: iteration,
			PSNR: mm.PSNR, SSIM: mm.SSIM, LPIPS: mm.LPIPS, CreatedAt: time.Now(),
		}
		if err := repo.InsertMetric(ctx, metric); err != nil {
			return fmt.Errorf("cannot record metric row: %w", err)
		}
	}
	logger.Info("evaluation recorded", "run_id", run.ID, "methods", len(scores))
	return nil
}

func cmdRun(cfg config.Config, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configDir := fs.String("config-dir", "configs", "directory holding views_*.yaml configs")
	configs := fs.String("configs", "", "comma-separated list of explicit config files")
	rawDataDir := fs.String("raw-data-dir", "data/raw/lego", "raw dataset directory")
	splitsDir := fs.String("splits-dir", "data/splits", "subset output root")
	experimentsDir := fs.String("experiments-dir", "experiments", "model output root")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var configPaths []string
	if *configs != "" {
		configPaths = splitList(*configs)
	} else {
		discovered, err := experiment.DiscoverConfigs(*configDir)
		if err != nil {
			return err
		}
		configPaths = discovered
	}

	runner, err := newSplatRunner(cfg, logger)
	if err != nil {
		return err
	}
	db, repo, err := openResults(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	driver := experiment.NewDriver(experiment.Paths{
		RawDataDir:     *rawDataDir,
		SplitsDir:      *splitsDir,
		ExperimentsDir: *experimentsDir,
	}, runner, repo, logger)

	ctx, stop := signalContext()
	defer stop()

	return driver.RunAll(ctx, configPaths)
}

func cmdAggregate(cfg config.Config, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("aggregate", flag.ExitOnError)
	outDir := fs.String("out-dir", cfg.PlotsDir(), "directory for summary CSV and charts")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, repo, err := openResults(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signalContext()
	defer stop()

	return aggregate.Write(ctx, repo, *outDir, logger)
}

func cmdServe(cfg config.Config, logger *slog.Logger) error {
	db, repo, err := openResults(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	server := api.NewServer(api.ServerConfig{
		Port:       cfg.Port(),
		Repository: repo,
		Logger:     logger,
		StartTime:  time.Now(),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func newSplatRunner(cfg config.Config, logger *slog.Logger) (splat.Runner, error) {
	return splat.NewRunner(splat.Config{
		PythonPath:     cfg.Python(),
		RepoDir:        cfg.SplatRepo(),
		TrainTimeout:   cfg.TrainTimeout(),
		RenderTimeout:  cfg.RenderTimeout(),
		MetricsTimeout: cfg.MetricsTimeout(),
		Logger:         logger,
	})
}

func openResults(cfg config.Config, logger *slog.Logger) (*results.DB, results.Repository, error) {
	db, err := results.New(cfg.DBPath(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open results database: %w", err)
	}
	return db, results.NewRepository(db.Conn()), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// subsetPolicy builds a selection policy from the subset command's flags.
// The seed arrives as a string so absence and negative values stay distinct.
func subsetPolicy(names, indices, strategy, seed string, viewCount int) (dataset.Policy, error) {
	policy := dataset.Policy{
		Strategy:  strategy,
		ViewCount: &viewCount,
	}
	if names != "" {
		policy.Names = splitList(names)
	}
	if indices != "" {
		parsed, err := parseIntList(indices)
		if err != nil {
			return dataset.Policy{}, fmt.Errorf("invalid --indices: %w", err)
		}
		policy.Indices = parsed
	}
	if seed != "" {
		n, err := strconv.ParseInt(seed, 10, 64)
		if err != nil {
			return dataset.Policy{}, fmt.Errorf("invalid --seed: %w", err)
		}
		policy.Seed = &n
	}
	return policy, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseIntList(s string) ([]int, error) {
	var out []int
	for _, p := range splitList(s) {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func loadYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("cannot parse %s: %w", path, err)
	}
	return nil
}
