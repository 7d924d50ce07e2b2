package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// writeRawDataset lays out a blender-style capture: one manifest per split
// plus a PNG per frame under train/, val/, test/.
func writeRawDataset(t *testing.T, dir string, splits map[string]int) {
	t.Helper()

	for split, count := range splits {
		frames := make([]map[string]any, count)
		for i := range frames {
			frames[i] = map[string]any{
				"file_path":        fmt.Sprintf("./%s/r_%d", split, i),
				"transform_matrix": [][]float64{{1, 0}, {0, 1}},
			}
		}
		doc := map[string]any{
			"camera_angle_x": 0.6911,
			"frames":         frames,
		}
		data, err := json.MarshalIndent(doc, "", "    ")
		if err != nil {
			t.Fatalf("encode fixture manifest: %v", err)
		}
		name := fmt.Sprintf("transforms_%s.json", split)
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			t.Fatalf("write fixture manifest: %v", err)
		}

		if err := os.MkdirAll(filepath.Join(dir, split), 0755); err != nil {
			t.Fatalf("create split dir: %v", err)
		}
		for i := 0; i < count; i++ {
			img := filepath.Join(dir, split, fmt.Sprintf("r_%d.png", i))
			if err := os.WriteFile(img, []byte(fmt.Sprintf("png-%s-%d", split, i)), 0644); err != nil {
				t.Fatalf("write fixture image: %v", err)
			}
		}
	}
}

func manifestFrameNames(t *testing.T, path string) []string {
	t.Helper()

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("load %s: %v", path, err)
	}
	names := make([]string, len(m.Frames))
	for i := range m.Frames {
		names[i] = m.Frames[i].Name()
	}
	return names
}

func TestAssemble_EndToEnd(t *testing.T) {
	raw := t.TempDir()
	writeRawDataset(t, raw, map[string]int{"train": 10, "test": 5})
	subset := filepath.Join(t.TempDir(), "3_views")

	summary, err := Assemble(raw, subset, Policy{ViewCount: intPtr(3)}, ".png", true)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	wantViews := []string{"r_0", "r_3", "r_6"}
	if !reflect.DeepEqual(summary.SelectedViews, wantViews) {
		t.Errorf("SelectedViews = %v, want %v", summary.SelectedViews, wantViews)
	}
	if summary.ViewCount != 3 {
		t.Errorf("ViewCount = %d, want 3", summary.ViewCount)
	}
	if summary.Strategy != StrategyUniform {
		t.Errorf("Strategy = %q, want uniform", summary.Strategy)
	}
	if summary.Files[TrainManifest] != 3 || summary.Files[TestManifest] != 5 {
		t.Errorf("Files = %v, want train=3 test=5", summary.Files)
	}

	gotTrain := manifestFrameNames(t, filepath.Join(subset, TrainManifest))
	if !reflect.DeepEqual(gotTrain, wantViews) {
		t.Errorf("subset train frames = %v, want %v", gotTrain, wantViews)
	}
	if gotTest := manifestFrameNames(t, filepath.Join(subset, TestManifest)); len(gotTest) != 5 {
		t.Errorf("subset test frames = %v, want all 5 retained", gotTest)
	}

	// Only selected train assets are materialized; held-out assets all are.
	for _, name := range wantViews {
		if _, err := os.Stat(filepath.Join(subset, "train", name+".png")); err != nil {
			t.Errorf("selected asset %s not copied: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(subset, "train", "r_1.png")); err == nil {
		t.Error("unselected asset train/r_1.png was copied")
	}
	for i := 0; i < 5; i++ {
		if _, err := os.Stat(filepath.Join(subset, "test", fmt.Sprintf("r_%d.png", i))); err != nil {
			t.Errorf("held-out asset test/r_%d.png not copied: %v", i, err)
		}
	}
}

func TestAssemble_HeldOutComparability(t *testing.T) {
	raw := t.TempDir()
	writeRawDataset(t, raw, map[string]int{"train": 10, "test": 5})

	base := t.TempDir()
	subsetA := filepath.Join(base, "3_views")
	subsetB := filepath.Join(base, "8_views")

	if _, err := Assemble(raw, subsetA, Policy{ViewCount: intPtr(3)}, ".png", true); err != nil {
		t.Fatalf("Assemble 3 views: %v", err)
	}
	if _, err := Assemble(raw, subsetB, Policy{ViewCount: intPtr(8)}, ".png", true); err != nil {
		t.Fatalf("Assemble 8 views: %v", err)
	}

	testA, err := os.ReadFile(filepath.Join(subsetA, TestManifest))
	if err != nil {
		t.Fatalf("read test manifest A: %v", err)
	}
	testB, err := os.ReadFile(filepath.Join(subsetB, TestManifest))
	if err != nil {
		t.Fatalf("read test manifest B: %v", err)
	}
	if !bytes.Equal(testA, testB) {
		t.Error("held-out test manifests differ between view-count configurations")
	}
}

func TestAssemble_FilteredHeldOut(t *testing.T) {
	raw := t.TempDir()
	writeRawDataset(t, raw, map[string]int{"train": 6, "val": 6})
	subset := filepath.Join(t.TempDir(), "subset")

	// Without full held-out mode, val frames are filtered by the same
	// selected-view set as train.
	summary, err := Assemble(raw, subset, Policy{ViewCount: intPtr(2)}, ".png", false)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if summary.Files[ValManifest] != 2 {
		t.Errorf("val retained %d frames, want 2", summary.Files[ValManifest])
	}
}

func TestAssemble_IdempotentRebuild(t *testing.T) {
	raw := t.TempDir()
	writeRawDataset(t, raw, map[string]int{"train": 8, "val": 3, "test": 4})
	subset := filepath.Join(t.TempDir(), "subset")

	policy := Policy{ViewCount: intPtr(4)}
	if _, err := Assemble(raw, subset, policy, ".png", true); err != nil {
		t.Fatalf("first Assemble: %v", err)
	}

	firstTrain, err := os.ReadFile(filepath.Join(subset, TrainManifest))
	if err != nil {
		t.Fatalf("read first train manifest: %v", err)
	}

	// A stale file from a previous run must not survive the rebuild.
	stale := filepath.Join(subset, "train", "stale.png")
	if err := os.WriteFile(stale, []byte("junk"), 0644); err != nil {
		t.Fatalf("write stale file: %v", err)
	}

	if _, err := Assemble(raw, subset, policy, ".png", true); err != nil {
		t.Fatalf("second Assemble: %v", err)
	}

	secondTrain, err := os.ReadFile(filepath.Join(subset, TrainManifest))
	if err != nil {
		t.Fatalf("read second train manifest: %v", err)
	}
	if !bytes.Equal(firstTrain, secondTrain) {
		t.Error("rebuild produced different train manifest bytes")
	}
	if _, err := os.Stat(stale); err == nil {
		t.Error("stale file survived rebuild")
	}
}

func TestAssemble_TrainOnlyDataset(t *testing.T) {
	raw := t.TempDir()
	writeRawDataset(t, raw, map[string]int{"train": 5})
	subset := filepath.Join(t.TempDir(), "subset")

	summary, err := Assemble(raw, subset, Policy{ViewCount: intPtr(2)}, ".png", true)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(summary.Files) != 1 {
		t.Errorf("Files = %v, want only the train manifest", summary.Files)
	}
	if _, err := os.Stat(filepath.Join(subset, ValManifest)); err == nil {
		t.Error("val manifest appeared out of nowhere")
	}
}

func TestAssemble_MissingTrainManifest(t *testing.T) {
	raw := t.TempDir()
	subset := filepath.Join(t.TempDir(), "subset")

	if _, err := Assemble(raw, subset, Policy{}, ".png", true); err == nil {
		t.Fatal("expected error for missing train manifest")
	}
}

func TestAssemble_MissingSourceAsset(t *testing.T) {
	raw := t.TempDir()
	writeRawDataset(t, raw, map[string]int{"train": 3})
	if err := os.Remove(filepath.Join(raw, "train", "r_1.png")); err != nil {
		t.Fatalf("remove asset: %v", err)
	}
	subset := filepath.Join(t.TempDir(), "subset")

	// r_1 is part of the full selection, so its missing image is fatal.
	if _, err := Assemble(raw, subset, Policy{}, ".png", true); err == nil {
		t.Fatal("expected error for missing source asset")
	}
}

func TestCopyAssets_DeduplicatesDestinations(t *testing.T) {
	raw := t.TempDir()
	if err := os.MkdirAll(filepath.Join(raw, "train"), 0755); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(raw, "train", "r_0.png")
	if err := os.WriteFile(src, []byte("png"), 0644); err != nil {
		t.Fatal(err)
	}

	// Two frames normalizing to the same destination copy once.
	frames := []Frame{
		{FilePath: "./train/r_0"},
		{FilePath: "train/r_0"},
	}
	subset := t.TempDir()
	if err := CopyAssets(frames, raw, subset, ".png"); err != nil {
		t.Fatalf("CopyAssets: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(subset, "train", "r_0.png"))
	if err != nil {
		t.Fatalf("read copied asset: %v", err)
	}
	if string(data) != "png" {
		t.Errorf("copied asset content = %q", data)
	}
}

func TestCopyAssets_PreservesModTime(t *testing.T) {
	raw := t.TempDir()
	if err := os.MkdirAll(filepath.Join(raw, "train"), 0755); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(raw, "train", "r_0.png")
	if err := os.WriteFile(src, []byte("png"), 0644); err != nil {
		t.Fatal(err)
	}
	srcInfo, err := os.Stat(src)
	if err != nil {
		t.Fatal(err)
	}

	subset := t.TempDir()
	if err := CopyAssets([]Frame{{FilePath: "./train/r_0"}}, raw, subset, ".png"); err != nil {
		t.Fatalf("CopyAssets: %v", err)
	}

	destInfo, err := os.Stat(filepath.Join(subset, "train", "r_0.png"))
	if err != nil {
		t.Fatal(err)
	}
	if !destInfo.ModTime().Equal(srcInfo.ModTime()) {
		t.Errorf("ModTime = %v, want %v", destInfo.ModTime(), srcInfo.ModTime())
	}
}
