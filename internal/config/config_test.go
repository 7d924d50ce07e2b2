package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDataDir_FromEnv(t *testing.T) {
	os.Setenv(EnvDataDir, "/tmp/sparsebench-test")
	defer os.Unsetenv(EnvDataDir)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DataDir() != "/tmp/sparsebench-test" {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir(), "/tmp/sparsebench-test")
	}
	if cfg.DBPath() != filepath.Join("/tmp/sparsebench-test", DBFilename) {
		t.Errorf("DBPath = %q, want under data dir", cfg.DBPath())
	}
}

func TestPort_Default(t *testing.T) {
	os.Unsetenv(EnvPort)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("default Port = %d, want %d", cfg.Port(), DefaultPort)
	}
}

func TestPort_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"not a number", "abc"},
		{"zero", "0"},
		{"too large", "70000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Setenv(EnvPort, tt.value)
			defer os.Unsetenv(EnvPort)

			if _, err := New(); err == nil {
				t.Errorf("New() with %s=%q expected error", EnvPort, tt.value)
			}
		})
	}
}

func TestPython_FromEnv(t *testing.T) {
	os.Setenv(EnvPython, "/opt/venv/bin/python")
	defer os.Unsetenv(EnvPython)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Python() != "/opt/venv/bin/python" {
		t.Errorf("Python = %q, want %q", cfg.Python(), "/opt/venv/bin/python")
	}
}

func TestSplatRepo_Default(t *testing.T) {
	os.Unsetenv(EnvSplatRepo)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SplatRepo() != "" {
		t.Errorf("default SplatRepo = %q, want empty", cfg.SplatRepo())
	}
}
