package results

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run is one experiment invocation: a subset build plus the training and
// evaluation that followed it. SelectedViews is the provenance tag that
// makes a metric row reproducible.
type Run struct {
	ID            string    `json:"id"`
	Label         string    `json:"label"`
	ViewCount     int       `json:"view_count"`
	SelectedViews []string  `json:"selected_views"`
	Strategy      string    `json:"strategy"`
	SubsetDir     string    `json:"subset_dir"`
	ModelDir      string    `json:"model_dir"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Metric is one method's scores for a run, as parsed from results.json.
type Metric struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Method    string    `json:"method"`
	Iteration int       `json:"iteration"`
	PSNR      float64   `json:"psnr"`
	SSIM      float64   `json:"ssim"`
	LPIPS     float64   `json:"lpips"`
	CreatedAt time.Time `json:"created_at"`
}

// MetricRow is a metric joined with its run's provenance columns; one line
// of the flat metrics table.
type MetricRow struct {
	Timestamp     time.Time `json:"timestamp"`
	SubsetLabel   string    `json:"subset_label"`
	ViewCount     int       `json:"view_count"`
	ModelDir      string    `json:"model_dir"`
	Method        string    `json:"method"`
	Iteration     int       `json:"iteration"`
	PSNR          float64   `json:"psnr"`
	SSIM          float64   `json:"ssim"`
	LPIPS         float64   `json:"lpips"`
	SelectedViews []string  `json:"selected_views"`
}

// SummaryRow is the mean of each metric over all runs sharing a
// (view_count, iteration) configuration.
type SummaryRow struct {
	ViewCount int     `json:"view_count"`
	Iteration int     `json:"iteration"`
	PSNR      float64 `json:"psnr"`
	SSIM      float64 `json:"ssim"`
	LPIPS     float64 `json:"lpips"`
	Samples   int     `json:"samples"`
}

func NewID() string {
	return uuid.NewString()
}

// joinViews flattens a selected-view list for storage; splitViews reverses it.
func joinViews(views []string) string {
	return strings.Join(views, ";")
}

func splitViews(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ";")
}
