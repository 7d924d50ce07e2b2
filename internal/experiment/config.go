// Package experiment drives the sparse-view pipeline end-to-end: for each
// YAML configuration it assembles a subset, trains a model through the
// external splat scripts, renders and scores the result, and records metric
// rows in the results store. Configs run strictly in sequence; a failed
// config is logged and the batch moves on.
package experiment

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/sparsebench/sparsebench/internal/dataset"
)

// Config is one experiment definition, loaded from YAML.
type Config struct {
	Name     string        `yaml:"name"`
	Subset   SubsetConfig  `yaml:"subset"`
	Training TrainConfig   `yaml:"training"`
	Render   *RenderConfig `yaml:"render"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// SubsetConfig configures the view-selection and subset-assembly step.
type SubsetConfig struct {
	Name        string         `yaml:"name"`
	ViewCount   *int           `yaml:"view_count"`
	Selection   dataset.Policy `yaml:"selection"`
	Extension   string         `yaml:"extension"`
	FullTestSet *bool          `yaml:"full_test_set"`
	RawDir      string         `yaml:"raw_dir"`
	OutputDir   string         `yaml:"output_dir"`
}

// TrainConfig configures the training subprocess.
type TrainConfig struct {
	ModelDir string         `yaml:"model_dir"`
	Args     map[string]any `yaml:"args"`
}

// RenderConfig configures the render subprocess. Iterations accepts a
// scalar or a list in YAML, under either an `iterations` or a singular
// `iteration` key.
type RenderConfig struct {
	Iterations IterationList  `yaml:"iterations"`
	Args       map[string]any `yaml:"args"`
}

func (r *RenderConfig) UnmarshalYAML(value *yaml.Node) error {
	var aux struct {
		Iterations IterationList  `yaml:"iterations"`
		Iteration  IterationList  `yaml:"iteration"`
		Args       map[string]any `yaml:"args"`
	}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	r.Args = aux.Args
	r.Iterations = aux.Iterations
	if len(r.Iterations) == 0 {
		r.Iterations = aux.Iteration
	}
	return nil
}

// MetricsConfig configures the metrics subprocess.
type MetricsConfig struct {
	Args map[string]any `yaml:"args"`
}

// IterationList unmarshals either a single integer or a list of integers.
type IterationList []int

func (l *IterationList) UnmarshalYAML(value *yaml.Node) error {
	var single int
	if err := value.Decode(&single); err == nil {
		*l = IterationList{single}
		return nil
	}
	var many []int
	if err := value.Decode(&many); err != nil {
		return fmt.Errorf("iterations must be an integer or a list of integers")
	}
	*l = many
	return nil
}

// Sorted returns the iterations deduplicated and ascending.
func (l IterationList) Sorted() []int {
	seen := make(map[int]bool, len(l))
	out := make([]int, 0, len(l))
	for _, it := range l {
		if seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	sort.Ints(out)
	return out
}

// Label returns the config's subset label: explicit name first, then the
// subset name, then a view-count default. Always filesystem-safe.
func (c *Config) Label() string {
	label := c.Name
	if label == "" {
		label = c.Subset.Name
	}
	if label == "" {
		if c.Subset.ViewCount != nil {
			label = fmt.Sprintf("%d_views", *c.Subset.ViewCount)
		} else {
			label = "auto_views"
		}
	}
	return SanitizeLabel(label)
}

// FullTestSet reports the held-out comparability mode; defaults to true so
// metrics stay comparable across view counts unless explicitly disabled.
func (c *Config) FullTestSet() bool {
	if c.Subset.FullTestSet == nil {
		return true
	}
	return *c.Subset.FullTestSet
}

// Policy returns the effective selection policy: the subset-level
// view_count fills in when the selection block leaves it unset.
func (c *Config) Policy() dataset.Policy {
	policy := c.Subset.Selection
	if policy.ViewCount == nil {
		policy.ViewCount = c.Subset.ViewCount
	}
	return policy
}

// RenderIterations returns the iterations to render: the render block when
// present, otherwise whatever the training args requested via "iterations".
func (c *Config) RenderIterations() []int {
	if c.Render != nil {
		return c.Render.Iterations.Sorted()
	}
	if raw, ok := c.Training.Args["iterations"]; ok {
		switch v := raw.(type) {
		case int:
			return []int{v}
		case []any:
			var out IterationList
			for _, item := range v {
				if n, ok := item.(int); ok {
					out = append(out, n)
				}
			}
			return out.Sorted()
		}
	}
	return nil
}

// LoadConfig reads and parses one experiment config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// DiscoverConfigs lists the views_*.yaml files in a directory, sorted.
func DiscoverConfigs(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "views_*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, fmt.Errorf("no configuration files found in %s", dir)
	}
	return matches, nil
}
