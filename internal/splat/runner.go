package splat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics

	trainScript   = "train.py"
	renderScript  = "render.py"
	metricsScript = "metrics.py"
	resultsFile   = "results.json"
)

// Runner executes the gaussian-splatting scripts as subprocesses.
// It is the single implementation of the train/evaluate execution
// contract used by the experiment driver.
type Runner interface {
	// RunTrain executes `python train.py -s <source> -m <model> <args>`.
	RunTrain(ctx context.Context, sourceDir, modelDir string, args map[string]any) (RunResult, error)

	// RunRender executes `python render.py -s <source> -m <model> --iteration <n> <args>`.
	RunRender(ctx context.Context, sourceDir, modelDir string, iteration int, args map[string]any) (RunResult, error)

	// RunMetrics executes `python metrics.py -m <model> <args>`.
	RunMetrics(ctx context.Context, modelDir string, args map[string]any) (RunResult, error)

	// LoadResults parses <modelDir>/results.json. A missing file yields an
	// empty Results, not an error: metrics.py writes it only on success.
	LoadResults(modelDir string) (Results, error)
}

// Config holds the runner's configuration.
type Config struct {
	PythonPath     string        // path to python binary; empty = auto-detect
	RepoDir        string        // gaussian-splatting checkout holding the scripts
	TrainTimeout   time.Duration
	RenderTimeout  time.Duration
	MetricsTimeout time.Duration
	Logger         *slog.Logger
}

// SubprocessRunner is the production implementation of Runner.
type SubprocessRunner struct {
	cfg    Config
	python string // resolved python path
}

// NewRunner creates a SubprocessRunner, resolving the Python binary and
// checking the scripts exist in the configured repo.
func NewRunner(cfg Config) (*SubprocessRunner, error) {
	python, err := resolvePython(cfg.PythonPath)
	if err != nil {
		return nil, fmt.Errorf("cannot locate python: %w", err)
	}

	if cfg.RepoDir == "" {
		return nil, errors.New("gaussian-splatting repo dir not configured")
	}
	for _, script := range []string{trainScript, renderScript, metricsScript} {
		if _, err := os.Stat(filepath.Join(cfg.RepoDir, script)); err != nil {
			return nil, fmt.Errorf("missing script %s in %s: %w", script, cfg.RepoDir, err)
		}
	}

	cfg.Logger.Info("splat runner initialised",
		"python", python,
		"repo", cfg.RepoDir,
	)

	return &SubprocessRunner{cfg: cfg, python: python}, nil
}

func (r *SubprocessRunner) RunTrain(ctx context.Context, sourceDir, modelDir string, args map[string]any) (RunResult, error) {
	if err := os.MkdirAll(modelDir, 0755); err != nil {
		return RunResult{ExitCode: -1}, fmt.Errorf("cannot create model dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.TrainTimeout)
	defer cancel()

	cmdArgs := append([]string{"-s", sourceDir, "-m", modelDir}, FlattenArgs(args)...)
	return r.exec(ctx, trainScript, cmdArgs...), nil
}

func (r *SubprocessRunner) RunRender(ctx context.Context, sourceDir, modelDir string, iteration int, args map[string]any) (RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.RenderTimeout)
	defer cancel()

	cmdArgs := []string{"-s", sourceDir, "-m", modelDir, "--iteration", fmt.Sprint(iteration)}
	cmdArgs = append(cmdArgs, FlattenArgs(args)...)
	return r.exec(ctx, renderScript, cmdArgs...), nil
}

func (r *SubprocessRunner) RunMetrics(ctx context.Context, modelDir string, args map[string]any) (RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.MetricsTimeout)
	defer cancel()

	cmdArgs := append([]string{"-m", modelDir}, FlattenArgs(args)...)
	return r.exec(ctx, metricsScript, cmdArgs...), nil
}

func (r *SubprocessRunner) LoadResults(modelDir string) (Results, error) {
	data, err := os.ReadFile(filepath.Join(modelDir, resultsFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Results{}, nil
		}
		return nil, fmt.Errorf("cannot read %s: %w", resultsFile, err)
	}

	var results Results
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("cannot parse %s: %w", resultsFile, err)
	}
	return results, nil
}

// exec is the core subprocess execution helper.
func (r *SubprocessRunner) exec(ctx context.Context, script string, args ...string) RunResult {
	start := time.Now()

	cmdArgs := append([]string{filepath.Join(r.cfg.RepoDir, script)}, args...)
	cmd := exec.CommandContext(ctx, r.python, cmdArgs...)
	cmd.Dir = r.cfg.RepoDir

	// Capture stderr with bounded buffer; the scripts log progress to stdout.
	var stderrBuf bytes.Buffer
	cmd.Stderr = io.Writer(&limitedWriter{w: &stderrBuf, limit: maxStderrBytes})
	cmd.Stdout = io.Discard

	r.cfg.Logger.Info("executing splat command",
		"script", script,
		"args", args,
	)

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	stderrTail := stderrBuf.String()

	if exitCode != 0 {
		r.cfg.Logger.Warn("splat command failed",
			"script", script,
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrTail, 512),
		)
	} else {
		r.cfg.Logger.Info("splat command succeeded",
			"script", script,
			"duration_ms", elapsed.Milliseconds(),
		)
	}

	return RunResult{
		ExitCode:   exitCode,
		StderrTail: stderrTail,
		Duration:   elapsed,
	}
}

// FlattenArgs converts an args map into CLI flags with deterministic
// ordering: keys sorted, nil skipped, bools as bare flags, lists expanded.
func FlattenArgs(args map[string]any) []string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var flattened []string
	for _, key := range keys {
		value := args[key]
		if value == nil {
			continue
		}
		flag := "--" + key
		switch v := value.(type) {
		case bool:
			if v {
				flattened = append(flattened, flag)
			}
		case []any:
			flattened = append(flattened, flag)
			for _, item := range v {
				flattened = append(flattened, fmt.Sprint(item))
			}
		default:
			flattened = append(flattened, flag, fmt.Sprint(v))
		}
	}
	return flattened
}

// resolvePython finds a usable python binary.
func resolvePython(preferred string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured python %q not found", preferred)
	}
	for _, name := range []string{"python3", "python"} {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", errors.New("no python binary found on PATH (tried python3, python)")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
