package results

import (
	"context"
	"database/sql"
	"time"
)

type Repository interface {
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	UpdateRunStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateRunSelection(ctx context.Context, id string, viewCount int, selectedViews []string, subsetDir string) error

	InsertMetric(ctx context.Context, m *Metric) error
	ListMetricsByRun(ctx context.Context, runID string) ([]*Metric, error)
	ListMetricRows(ctx context.Context) ([]*MetricRow, error)
	SummarizeMetrics(ctx context.Context) ([]SummaryRow, error)
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateRun(ctx context.Context, run *Run) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (id, label, view_count, selected_views, strategy, subset_dir, model_dir, status, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Label, run.ViewCount, joinViews(run.SelectedViews), run.Strategy, run.SubsetDir, run.ModelDir,
		run.Status, run.Error, run.CreatedAt.Format(time.RFC3339), run.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, label, view_count, selected_views, strategy, subset_dir, model_dir, status, error, created_at, updated_at
		FROM runs WHERE id = ?
	`, id)
	return scanRun(row)
}

func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, label, view_count, selected_views, strategy, subset_dir, model_dir, status, error, created_at, updated_at
		FROM runs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *SQLiteRepository) UpdateRunStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, errorMsg, time.Now().Format(time.RFC3339), id)
	return err
}

func (r *SQLiteRepository) UpdateRunSelection(ctx context.Context, id string, viewCount int, selectedViews []string, subsetDir string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE runs SET view_count = ?, selected_views = ?, subset_dir = ?, updated_at = ? WHERE id = ?
	`, viewCount, joinViews(selectedViews), subsetDir, time.Now().Format(time.RFC3339), id)
	return err
}

func (r *SQLiteRepository) InsertMetric(ctx context.Context, m *Metric) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO metrics (run_id, method, iteration, psnr, ssim, lpips, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.RunID, m.Method, m.Iteration, m.PSNR, m.SSIM, m.LPIPS, m.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		m.ID = id
	}
	return nil
}

func (r *SQLiteRepository) ListMetricsByRun(ctx context.Context, runID string) ([]*Metric, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, run_id, method, iteration, psnr, ssim, lpips, created_at
		FROM metrics WHERE run_id = ? ORDER BY iteration, method
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []*Metric
	for rows.Next() {
		var m Metric
		var createdAt string
		if err := rows.Scan(&m.ID, &m.RunID, &m.Method, &m.Iteration, &m.PSNR, &m.SSIM, &m.LPIPS, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		metrics = append(metrics, &m)
	}
	return metrics, rows.Err()
}

// ListMetricRows returns the flat metrics table, one row per (run, method),
// ordered by insertion.
func (r *SQLiteRepository) ListMetricRows(ctx context.Context) ([]*MetricRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.created_at, r.label, r.view_count, r.model_dir, m.method, m.iteration, m.psnr, m.ssim, m.lpips, r.selected_views
		FROM metrics m JOIN runs r ON r.id = m.run_id
		ORDER BY m.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*MetricRow
	for rows.Next() {
		var row MetricRow
		var createdAt, views string
		if err := rows.Scan(&createdAt, &row.SubsetLabel, &row.ViewCount, &row.ModelDir,
			&row.Method, &row.Iteration, &row.PSNR, &row.SSIM, &row.LPIPS, &views); err != nil {
			return nil, err
		}
		row.Timestamp, _ = time.Parse(time.RFC3339, createdAt)
		row.SelectedViews = splitViews(views)
		out = append(out, &row)
	}
	return out, rows.Err()
}

// SummarizeMetrics averages psnr/ssim/lpips per (view_count, iteration),
// ordered by view count then iteration.
func (r *SQLiteRepository) SummarizeMetrics(ctx context.Context) ([]SummaryRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.view_count, m.iteration, AVG(m.psnr), AVG(m.ssim), AVG(m.lpips), COUNT(*)
		FROM metrics m JOIN runs r ON r.id = m.run_id
		GROUP BY r.view_count, m.iteration
		ORDER BY r.view_count, m.iteration
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SummaryRow
	for rows.Next() {
		var s SummaryRow
		if err := rows.Scan(&s.ViewCount, &s.Iteration, &s.PSNR, &s.SSIM, &s.LPIPS, &s.Samples); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var views, createdAt, updatedAt string

	err := row.Scan(&run.ID, &run.Label, &run.ViewCount, &views, &run.Strategy,
		&run.SubsetDir, &run.ModelDir, &run.Status, &run.Error, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	run.SelectedViews = splitViews(views)
	run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	run.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &run, nil
}
