// Package splat provides subprocess-based execution of the external
// gaussian-splatting scripts (train.py, render.py, metrics.py) with
// structured result parsing. Nothing here trains or renders in-process;
// the package is a thin, timeout-bounded shell around the Python tools.
package splat

import (
	"regexp"
	"strconv"
	"time"
)

// RunResult is the structured outcome of executing a splat subprocess.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// MethodMetrics holds one method's image-quality scores as written by
// metrics.py into results.json.
type MethodMetrics struct {
	PSNR  float64 `json:"PSNR"`
	SSIM  float64 `json:"SSIM"`
	LPIPS float64 `json:"LPIPS"`
}

// Results maps a render method name (e.g. "ours_30000") to its metrics.
type Results map[string]MethodMetrics

var iterationPattern = regexp.MustCompile(`(\d+)`)

// ExtractIteration pulls the iteration number out of a method name like
// "ours_30000". Returns 0 and false when the name carries no number.
func ExtractIteration(method string) (int, bool) {
	m := iterationPattern.FindString(method)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}
