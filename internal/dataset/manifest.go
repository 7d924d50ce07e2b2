// Package dataset implements the view-selection and subset-assembly engine
// for multi-view scene-capture datasets: loading transform manifests,
// selecting a deterministic subset of camera views, rewriting filtered
// manifests, and materializing only the image assets those views reference.
package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Manifest file names searched for in a raw dataset directory.
// The train manifest is required; val and test are optional.
const (
	TrainManifest = "transforms_train.json"
	ValManifest   = "transforms_val.json"
	TestManifest  = "transforms_test.json"
)

// HeldOutManifests lists the optional manifests, in fixed search order.
var HeldOutManifests = []string{ValManifest, TestManifest}

// Frame is one camera capture in a manifest. Only file_path is interpreted;
// the camera transform and any other fields are carried through unchanged.
type Frame struct {
	FilePath string

	raw json.RawMessage
}

// Name returns the frame's normalized name.
func (f *Frame) Name() string {
	return NormalizeFrameName(f.FilePath)
}

func (f *Frame) UnmarshalJSON(data []byte) error {
	var probe struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.FilePath == "" {
		return fmt.Errorf("frame missing file_path")
	}
	f.FilePath = probe.FilePath
	f.raw = append(f.raw[:0], data...)
	return nil
}

func (f Frame) MarshalJSON() ([]byte, error) {
	if f.raw == nil {
		return json.Marshal(map[string]string{"file_path": f.FilePath})
	}
	return f.raw, nil
}

// Manifest is one transforms_{train,val,test}.json document: an ordered
// frame list plus opaque top-level fields (camera intrinsics and whatever
// else the capture tool wrote) that are round-tripped untouched, in their
// original key order.
type Manifest struct {
	Frames []Frame

	extra map[string]json.RawMessage
	order []string // top-level keys in decode order; "frames" keeps its slot
}

func (m *Manifest) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("manifest must be a JSON object")
	}

	extra := map[string]json.RawMessage{}
	var order []string
	framesSeen := false
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key := keyTok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("invalid %s field: %w", key, err)
		}
		order = append(order, key)

		if key == "frames" {
			framesSeen = true
			if err := json.Unmarshal(value, &m.Frames); err != nil {
				return fmt.Errorf("invalid frames field: %w", err)
			}
			continue
		}
		extra[key] = value
	}
	if !framesSeen {
		return fmt.Errorf("manifest missing frames field")
	}

	m.extra = extra
	m.order = order
	return nil
}

func (m Manifest) MarshalJSON() ([]byte, error) {
	order := m.order
	if len(order) == 0 {
		// Constructed in code, never decoded: extras sorted, frames last.
		order = append(m.ExtraKeys(), "frames")
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, key := range order {
		var value json.RawMessage
		if key == "frames" {
			framesRaw, err := json.Marshal(m.Frames)
			if err != nil {
				return nil, err
			}
			value = framesRaw
		} else {
			raw, ok := m.extra[key]
			if !ok {
				continue
			}
			value = raw
		}

		if !first {
			buf.WriteByte(',')
		}
		first = false

		keyRaw, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyRaw)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ExtraKeys returns the names of the opaque top-level fields, sorted.
func (m *Manifest) ExtraKeys() []string {
	keys := make([]string, 0, len(m.extra))
	for k := range m.extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("cannot parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// WriteManifest writes a manifest with stable 4-space indentation.
func WriteManifest(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return fmt.Errorf("cannot encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("cannot write manifest %s: %w", path, err)
	}
	return nil
}
