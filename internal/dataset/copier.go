package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CopyAssets materializes the image files referenced by frames, copying each
// from rawDir to the same relative location under subsetDir with the given
// extension substituted. Repeated destinations are copied once. A missing
// source file aborts the whole copy: a manifest referencing an asset that is
// not on disk indicates a corrupt or mismatched dataset.
func CopyAssets(frames []Frame, rawDir, subsetDir, extension string) error {
	copied := make(map[string]bool)
	for i := range frames {
		rel := assetRelPath(frames[i].FilePath, extension)
		dest := filepath.Join(subsetDir, rel)
		if copied[dest] {
			continue
		}

		src := filepath.Join(rawDir, rel)
		if err := copyFile(src, dest); err != nil {
			return err
		}
		copied[dest] = true
	}
	return nil
}

// assetRelPath strips relative-path markers and substitutes the extension.
func assetRelPath(filePath, extension string) string {
	rel := strings.ReplaceAll(filePath, "./", "")
	if ext := filepath.Ext(rel); ext != "" {
		rel = strings.TrimSuffix(rel, ext)
	}
	return filepath.FromSlash(rel) + extension
}

// copyFile copies bytes and the source's modification time.
func copyFile(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("missing source asset %s: %w", src, err)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("cannot create asset dir: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("cannot open asset %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("cannot create asset %s: %w", dest, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("cannot copy asset %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("cannot finalize asset %s: %w", dest, err)
	}

	if err := os.Chtimes(dest, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("cannot set asset times %s: %w", dest, err)
	}
	return nil
}
