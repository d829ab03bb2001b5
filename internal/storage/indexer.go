package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/goldedit/internal/model"
)

// FileInfo describes one JSONL file under the data root. Counts are
// recomputed from disk on every listing call, so they always reflect disk
// truth rather than pending session edits.
type FileInfo struct {
	ID            string    `json:"id"`
	Path          string    `json:"path"`
	EntryCount    int       `json:"entry_count"`
	ReviewedCount int       `json:"reviewed_count"`
	SizeBytes     int64     `json:"size_bytes"`
	LastModified  time.Time `json:"last_modified"`
}

// FileStats extends FileInfo with the per-file review progress numbers.
type FileStats struct {
	FileInfo
	NonNullSlotsCount int  `json:"non_null_slots_count"`
	FirstOffHours     bool `json:"first_off_hours"`
}

// FileID derives the stable URL-safe identifier for a path relative to the
// data root: path separators become a double underscore.
func FileID(rel string) string {
	return strings.ReplaceAll(filepath.ToSlash(rel), "/", "__")
}

// List walks the data root for JSONL files, sorted by relative path. Files
// that fail to parse are listed with zero counts rather than breaking the
// whole listing.
func (st *Store) List() ([]FileInfo, error) {
	var infos []FileInfo
	err := filepath.WalkDir(st.DataRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".jsonl") {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel := st.relPath(path)
		info := FileInfo{
			ID:           FileID(rel),
			Path:         filepath.ToSlash(rel),
			SizeBytes:    fi.Size(),
			LastModified: fi.ModTime(),
		}
		entries, err := LoadEntries(path)
		if err != nil {
			log.Warn().Str("file", rel).Err(err).Msg("unreadable file in data root")
		} else {
			info.EntryCount = len(entries)
			info.ReviewedCount = countReviewed(entries)
		}
		infos = append(infos, info)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", st.DataRoot, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}

// Resolve reverses the file ID transform and returns the absolute path.
// IDs that point outside the data root, or at nothing, yield ErrNotFound.
func (st *Store) Resolve(fileID string) (string, error) {
	rel := filepath.FromSlash(strings.ReplaceAll(fileID, "__", "/"))
	if rel == "" || filepath.IsAbs(rel) {
		return "", fmt.Errorf("file %q: %w", fileID, ErrNotFound)
	}
	path := filepath.Join(st.DataRoot, rel)
	inside, err := filepath.Rel(filepath.Clean(st.DataRoot), path)
	if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("file %q: %w", fileID, ErrNotFound)
	}
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("file %q: %w", fileID, ErrNotFound)
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.IsDir() {
		return "", fmt.Errorf("file %q: %w", fileID, ErrNotFound)
	}
	return path, nil
}

// Stats loads a file and computes its review progress.
func (st *Store) Stats(fileID string) (*FileStats, error) {
	path, err := st.Resolve(fileID)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	entries, err := LoadEntries(path)
	if err != nil {
		return nil, err
	}
	rel := st.relPath(path)
	stats := &FileStats{
		FileInfo: FileInfo{
			ID:            fileID,
			Path:          filepath.ToSlash(rel),
			EntryCount:    len(entries),
			ReviewedCount: countReviewed(entries),
			SizeBytes:     fi.Size(),
			LastModified:  fi.ModTime(),
		},
		FirstOffHours: FirstMessageOffHours(path),
	}
	for _, e := range entries {
		if e.HasNonNullSlot() {
			stats.NonNullSlotsCount++
		}
	}
	return stats, nil
}

func countReviewed(entries []*model.Entry) int {
	n := 0
	for _, e := range entries {
		if e.Reviewed {
			n++
		}
	}
	return n
}
