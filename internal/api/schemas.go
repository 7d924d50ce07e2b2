package api

import (
	"github.com/sparsebench/sparsebench/internal/results"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type RunsResponse struct {
	Runs []*results.Run `json:"runs"`
}

type RunResponse struct {
	Run     *results.Run      `json:"run"`
	Metrics []*results.Metric `json:"metrics,omitempty"`
}

type MetricsResponse struct {
	Metrics []*results.Metric `json:"metrics"`
}

type SummaryResponse struct {
	Summary []results.SummaryRow `json:"summary"`
}
