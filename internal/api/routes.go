package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sparsebench/sparsebench/internal/aggregate"
	"github.com/sparsebench/sparsebench/internal/config"
	"github.com/sparsebench/sparsebench/internal/results"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))
	r.Get("/runs", listRunsHandler(cfg))
	r.Get("/runs/{id}", getRunHandler(cfg))
	r.Get("/runs/{id}/metrics", runMetricsHandler(cfg))
	r.Get("/metrics.csv", metricsCSVHandler(cfg))
	r.Get("/summary", summaryHandler(cfg))
	r.Get("/plots/latest", latestPlotHandler(cfg))
	r.Get("/plots/trends/{metric}", trendPlotHandler(cfg))

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: config.Version,
			UptimeS: uptime,
		})
	}
}

func listRunsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if l := r.URL.Query().Get("limit"); l != "" {
			if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 500 {
				limit = v
			}
		}

		runs, err := cfg.Repository.ListRuns(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list runs", "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, RunsResponse{Runs: runs})
	}
}

func getRunHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		run, err := cfg.Repository.GetRun(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to get run", "INTERNAL_ERROR")
			return
		}
		if run == nil {
			WriteError(w, http.StatusNotFound, "run not found", "NOT_FOUND")
			return
		}

		metrics, err := cfg.Repository.ListMetricsByRun(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to get run metrics", "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, RunResponse{Run: run, Metrics: metrics})
	}
}

func runMetricsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		run, err := cfg.Repository.GetRun(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to get run", "INTERNAL_ERROR")
			return
		}
		if run == nil {
			WriteError(w, http.StatusNotFound, "run not found", "NOT_FOUND")
			return
		}

		metrics, err := cfg.Repository.ListMetricsByRun(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list metrics", "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, MetricsResponse{Metrics: metrics})
	}
}

func metricsCSVHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		if err := results.WriteMetricsCSV(r.Context(), cfg.Repository, w); err != nil {
			cfg.Logger.Error("failed to write metrics csv", "error", err)
		}
	}
}

func summaryHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := cfg.Repository.SummarizeMetrics(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to summarize metrics", "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, SummaryResponse{Summary: summary})
	}
}

// latestPlotHandler renders the highest-iteration metrics chart inline as HTML.
func latestPlotHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := cfg.Repository.SummarizeMetrics(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to summarize metrics", "INTERNAL_ERROR")
			return
		}
		if len(summary) == 0 {
			WriteError(w, http.StatusNotFound, "no metrics recorded", "NOT_FOUND")
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := aggregate.LatestChart(summary).Render(w); err != nil {
			cfg.Logger.Error("failed to render chart", "error", err)
		}
	}
}

func trendPlotHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metric := chi.URLParam(r, "metric")
		if !validMetric(metric) {
			WriteError(w, http.StatusBadRequest, "unknown metric", "BAD_REQUEST")
			return
		}

		summary, err := cfg.Repository.SummarizeMetrics(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to summarize metrics", "INTERNAL_ERROR")
			return
		}
		if len(summary) == 0 {
			WriteError(w, http.StatusNotFound, "no metrics recorded", "NOT_FOUND")
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := aggregate.TrendChart(summary, metric).Render(w); err != nil {
			cfg.Logger.Error("failed to render chart", "error", err)
		}
	}
}

func validMetric(metric string) bool {
	for _, m := range aggregate.Metrics {
		if metric == m {
			return true
		}
	}
	return false
}
