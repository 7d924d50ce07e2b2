package dataset

import (
	"math/rand"
	"time"
)

// Selection strategies.
const (
	StrategyUniform = "uniform"
	StrategyRandom  = "random"
)

// Policy describes which camera views to keep and by what method.
// Names, Indices, ViewCount, and Strategy are mutually exclusive branches:
// explicit names win over indices, which win over count-based strategies.
type Policy struct {
	Names     []string `json:"names,omitempty" yaml:"names,omitempty"`
	Indices   []int    `json:"indices,omitempty" yaml:"indices,omitempty"`
	Strategy  string   `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Seed      *int64   `json:"seed,omitempty" yaml:"seed,omitempty"`
	ViewCount *int     `json:"view_count,omitempty" yaml:"view_count,omitempty"`
}

// StrategyOrDefault returns the policy's strategy, defaulting to uniform.
func (p Policy) StrategyOrDefault() string {
	if p.Strategy == "" {
		return StrategyUniform
	}
	return p.Strategy
}

// Select maps a frame catalog and a policy to an ordered list of normalized
// frame names. It is deterministic for fixed inputs and seed, and never
// fails: invalid inputs degrade to smaller-than-requested selections.
func Select(frames []Frame, policy Policy) []string {
	names := make([]string, len(frames))
	for i := range frames {
		names[i] = frames[i].Name()
	}

	if len(policy.Names) > 0 {
		// Caller-supplied identifiers are trusted; the catalog is not
		// consulted. Any extension or path prefix is stripped.
		normalized := make([]string, 0, len(policy.Names))
		for _, raw := range policy.Names {
			normalized = append(normalized, stem(raw))
		}
		return dedupe(normalized)
	}

	if len(policy.Indices) > 0 {
		selected := make([]string, 0, len(policy.Indices))
		for _, idx := range policy.Indices {
			if idx >= 0 && idx < len(names) {
				selected = append(selected, names[idx])
			}
		}
		return dedupe(selected)
	}

	if policy.ViewCount == nil || *policy.ViewCount >= len(names) {
		return names
	}
	count := *policy.ViewCount
	if count <= 0 {
		return names
	}

	if policy.StrategyOrDefault() == StrategyRandom {
		rnd := newRand(policy.Seed)
		perm := rnd.Perm(len(names))
		selected := make([]string, 0, count)
		for _, idx := range perm[:count] {
			selected = append(selected, names[idx])
		}
		return selected
	}

	// Uniform spacing with forward collision resolution: a colliding index
	// advances by one and reclamps. On tiny catalogs with large counts this
	// under-fills the distinct selection; that boundary is kept as-is.
	step := float64(len(names)) / float64(count)
	seen := make(map[int]bool)
	selected := make([]string, 0, count)
	for i := 0; i < count; i++ {
		idx := int(float64(i) * step)
		if idx > len(names)-1 {
			idx = len(names) - 1
		}
		if seen[idx] {
			idx++
			if idx > len(names)-1 {
				idx = len(names) - 1
			}
		}
		seen[idx] = true
		selected = append(selected, names[idx])
	}
	return selected
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func newRand(seed *int64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewSource(*seed))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
