package experiment

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"gopkg.in/yaml.v3"
)

const sampleConfig = `
name: views_3
subset:
  view_count: 3
  selection:
    strategy: uniform
  extension: .png
training:
  args:
    iterations: [7000, 30000]
    eval: true
render:
  iterations: [7000, 30000]
metrics:
  args: {}
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "views_3.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Label() != "views_3" {
		t.Errorf("Label = %q, want views_3", cfg.Label())
	}
	if !cfg.FullTestSet() {
		t.Error("FullTestSet should default to true")
	}
	policy := cfg.Policy()
	if policy.ViewCount == nil || *policy.ViewCount != 3 {
		t.Errorf("Policy.ViewCount = %v, want 3 from subset block", policy.ViewCount)
	}
	if got := cfg.RenderIterations(); !reflect.DeepEqual(got, []int{7000, 30000}) {
		t.Errorf("RenderIterations = %v", got)
	}
}

func TestConfig_LabelFallbacks(t *testing.T) {
	three := 3

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"explicit name", Config{Name: "baseline"}, "baseline"},
		{"subset name", Config{Subset: SubsetConfig{Name: "narrow"}}, "narrow"},
		{"view count default", Config{Subset: SubsetConfig{ViewCount: &three}}, "3_views"},
		{"nothing set", Config{}, "auto_views"},
		{"unsafe name sanitized", Config{Name: "a/b views"}, "a_b_views"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Label(); got != tt.want {
				t.Errorf("Label = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfig_FullTestSetDisabled(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
subset:
  view_count: 2
  full_test_set: false
`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.FullTestSet() {
		t.Error("FullTestSet = true, want explicit false honored")
	}
}

func TestIterationList_ScalarOrList(t *testing.T) {
	var scalar struct {
		Iterations IterationList `yaml:"iterations"`
	}
	if err := yaml.Unmarshal([]byte("iterations: 7000"), &scalar); err != nil {
		t.Fatalf("scalar unmarshal: %v", err)
	}
	if !reflect.DeepEqual([]int(scalar.Iterations), []int{7000}) {
		t.Errorf("scalar = %v", scalar.Iterations)
	}

	var list struct {
		Iterations IterationList `yaml:"iterations"`
	}
	if err := yaml.Unmarshal([]byte("iterations: [30000, 7000, 7000]"), &list); err != nil {
		t.Fatalf("list unmarshal: %v", err)
	}
	if got := list.Iterations.Sorted(); !reflect.DeepEqual(got, []int{7000, 30000}) {
		t.Errorf("Sorted = %v, want deduplicated ascending", got)
	}
}

func TestRenderConfig_SingularIterationKey(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
subset:
  view_count: 2
render:
  iteration: 7000
`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got := cfg.RenderIterations(); !reflect.DeepEqual(got, []int{7000}) {
		t.Errorf("RenderIterations = %v, want singular iteration key honored", got)
	}
}

func TestRenderIterations_FromTrainingArgs(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
subset:
  view_count: 2
training:
  args:
    iterations: [7000, 30000]
`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got := cfg.RenderIterations(); !reflect.DeepEqual(got, []int{7000, 30000}) {
		t.Errorf("RenderIterations = %v, want fall back to training args", got)
	}
}

func TestDiscoverConfigs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"views_8.yaml", "views_3.yaml", "other.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := DiscoverConfigs(dir)
	if err != nil {
		t.Fatalf("DiscoverConfigs: %v", err)
	}
	want := []string{filepath.Join(dir, "views_3.yaml"), filepath.Join(dir, "views_8.yaml")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DiscoverConfigs = %v, want %v", got, want)
	}
}

func TestDiscoverConfigs_Empty(t *testing.T) {
	if _, err := DiscoverConfigs(t.TempDir()); err == nil {
		t.Fatal("expected error for directory without configs")
	}
}

func TestSanitizeLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"3_views", "3_views"},
		{"a/b\\c", "a_b_c"},
		{"  spaced  ", "spaced"},
		{"a b", "a_b"},
		{"", "unnamed"},
		{"..", "unnamed"},
	}

	for _, tt := range tests {
		if got := SanitizeLabel(tt.in); got != tt.want {
			t.Errorf("SanitizeLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
