package dataset

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultExtension is the asset extension used when none is configured.
const DefaultExtension = ".png"

// Summary is the record returned by Assemble for downstream consumers:
// the trainer needs SubsetDir, the evaluator tags metric rows with
// ViewCount and SelectedViews.
type Summary struct {
	SubsetDir        string         `json:"subset_dir"`
	ViewCount        int            `json:"view_count"`
	SelectedViews    []string       `json:"selected_views"`
	Strategy         string         `json:"strategy"`
	SelectionIndices []int          `json:"selection_indices,omitempty"`
	SelectionNames   []string       `json:"selection_names,omitempty"`
	Files            map[string]int `json:"files"`
}

// Assemble builds a sparse-view subset of the dataset at rawDir into
// subsetDir. The train manifest is filtered to the views the policy selects.
// When fullHeldOut is true (the default mode), val and test manifests keep
// their full frame lists so PSNR/SSIM/LPIPS are computed over the same
// held-out set no matter how many training views were chosen.
//
// Any existing subsetDir is destroyed and rebuilt; repeated calls never
// accumulate stale files.
func Assemble(rawDir, subsetDir string, policy Policy, extension string, fullHeldOut bool) (*Summary, error) {
	if extension == "" {
		extension = DefaultExtension
	}

	trainPath := filepath.Join(rawDir, TrainManifest)
	if _, err := os.Stat(trainPath); err != nil {
		return nil, fmt.Errorf("transform file not found: %s: %w", trainPath, err)
	}

	if err := os.RemoveAll(subsetDir); err != nil {
		return nil, fmt.Errorf("cannot clear subset dir: %w", err)
	}
	if err := os.MkdirAll(subsetDir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create subset dir: %w", err)
	}

	train, err := LoadManifest(trainPath)
	if err != nil {
		return nil, err
	}

	selectedViews := Select(train.Frames, policy)
	selectedSet := make(map[string]bool, len(selectedViews))
	for _, name := range selectedViews {
		selectedSet[name] = true
	}

	manifestNames := []string{TrainManifest}
	for _, name := range HeldOutManifests {
		if _, err := os.Stat(filepath.Join(rawDir, name)); err == nil {
			manifestNames = append(manifestNames, name)
		}
	}

	files := make(map[string]int, len(manifestNames))
	var framesToCopy []Frame

	for _, name := range manifestNames {
		m, err := LoadManifest(filepath.Join(rawDir, name))
		if err != nil {
			return nil, err
		}

		isTrain := name == TrainManifest
		if isTrain || !fullHeldOut {
			kept := m.Frames[:0:0]
			for _, frame := range m.Frames {
				if selectedSet[frame.Name()] {
					kept = append(kept, frame)
				}
			}
			m.Frames = kept
		}

		if err := WriteManifest(filepath.Join(subsetDir, name), m); err != nil {
			return nil, err
		}
		files[name] = len(m.Frames)
		framesToCopy = append(framesToCopy, m.Frames...)
	}

	if err := CopyAssets(framesToCopy, rawDir, subsetDir, extension); err != nil {
		return nil, err
	}

	return &Summary{
		SubsetDir:        subsetDir,
		ViewCount:        len(selectedViews),
		SelectedViews:    selectedViews,
		Strategy:         policy.StrategyOrDefault(),
		SelectionIndices: policy.Indices,
		SelectionNames:   policy.Names,
		Files:            files,
	}, nil
}
