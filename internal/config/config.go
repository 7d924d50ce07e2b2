// Package config provides configuration management for sparsebench.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// Default values
	DefaultPort     = 8791
	DefaultLogLevel = "info"
	DefaultDataDir  = ".sparsebench"

	// Environment variable names
	EnvPort     = "SPARSEBENCH_PORT"
	EnvLogLevel = "SPARSEBENCH_LOG_LEVEL"
	EnvDataDir  = "SPARSEBENCH_DATA_DIR"

	// Gaussian-splatting runner environment variable names
	EnvPython    = "SPARSEBENCH_PYTHON"
	EnvSplatRepo = "SPARSEBENCH_SPLAT_REPO"

	// Database filename
	DBFilename = "sparsebench.db"

	// Subprocess timeout defaults
	DefaultTrainTimeout   = 6 * time.Hour
	DefaultRenderTimeout  = 30 * time.Minute
	DefaultMetricsTimeout = 30 * time.Minute
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	ResultsDir() string
	PlotsDir() string
	Python() string
	SplatRepo() string
	TrainTimeout() time.Duration
	RenderTimeout() time.Duration
	MetricsTimeout() time.Duration
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string

	python    string
	splatRepo string
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:     DefaultPort,
		logLevel: DefaultLogLevel,
		dataDir:  defaultDataDir(),
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	// Override log level from environment
	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	// Override data directory from environment
	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	cfg.python = os.Getenv(EnvPython)
	cfg.splatRepo = os.Getenv(EnvSplatRepo)

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// ResultsDir returns the directory for exported CSV files
func (c *EnvConfig) ResultsDir() string {
	return filepath.Join(c.dataDir, "results")
}

// PlotsDir returns the directory for rendered summary plots
func (c *EnvConfig) PlotsDir() string {
	return filepath.Join(c.dataDir, "results", "plots")
}

func (c *EnvConfig) Python() string {
	return c.python
}

// SplatRepo returns the path to the gaussian-splatting checkout whose
// train.py / render.py / metrics.py scripts are invoked as subprocesses.
func (c *EnvConfig) SplatRepo() string {
	return c.splatRepo
}

func (c *EnvConfig) TrainTimeout() time.Duration {
	return DefaultTrainTimeout
}

func (c *EnvConfig) RenderTimeout() time.Duration {
	return DefaultRenderTimeout
}

func (c *EnvConfig) MetricsTimeout() time.Duration {
	return DefaultMetricsTimeout
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
