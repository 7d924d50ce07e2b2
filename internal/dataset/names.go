package dataset

import (
	"path"
	"strings"
)

// NormalizeFrameName converts a manifest file_path into the canonical frame
// identity: relative-path markers stripped, directory and extension removed.
// The same rule is used for selection, manifest filtering, and asset copying;
// two frames with the same normalized name are the same view.
func NormalizeFrameName(filePath string) string {
	return stem(strings.ReplaceAll(filePath, "./", ""))
}

// stem returns the final path element without its extension.
func stem(p string) string {
	base := path.Base(p)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}
