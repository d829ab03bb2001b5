package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// MoveToReviewed relocates a finished file into the reviewed output
// directory, preserving its path relative to the data root.
func (st *Store) MoveToReviewed(path string) (string, error) {
	return st.moveTo(path, st.ReviewedDir, "reviewed")
}

// MoveToSkipped relocates an explicitly skipped file into the skipped
// output directory.
func (st *Store) MoveToSkipped(path string) (string, error) {
	return st.moveTo(path, st.SkippedDir, "skipped")
}

func (st *Store) moveTo(path, destRoot, label string) (string, error) {
	if destRoot == "" {
		return "", fmt.Errorf("no %s output directory configured", label)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	dst := filepath.Join(destRoot, st.relPath(path))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create directory for %s: %w", dst, err)
	}
	if err := os.Rename(path, dst); err != nil {
		// Rename fails across filesystems; fall back to copy and remove.
		if err := copyAndRemove(path, dst); err != nil {
			return "", err
		}
	}
	log.Info().Str("file", st.relPath(path)).Str("dest", dst).Msgf("moved file to %s", label)
	return dst, nil
}

func copyAndRemove(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("move %s to %s: %w", src, dst, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove %s after move: %w", src, err)
	}
	return nil
}
