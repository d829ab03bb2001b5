package storage

import (
	"path/filepath"
	"strings"
)

// Store is the record store: it owns every read, write, and move of the
// JSONL files under the data root. The surrounding HTTP/CLI layer never
// touches the filesystem directly.
type Store struct {
	// DataRoot is the directory holding the JSONL files being reviewed.
	DataRoot string
	// BackupOnSave copies the pre-save file into BackupDir before the
	// atomic rename.
	BackupOnSave bool
	BackupDir    string
	// AuditLog is the append-only save log. Empty disables auditing.
	AuditLog string
	// ReviewedDir and SkippedDir receive finished files.
	ReviewedDir string
	SkippedDir  string
}

// relPath returns path relative to the data root, falling back to the base
// name for paths outside it.
func (st *Store) relPath(path string) string {
	rel, err := filepath.Rel(st.DataRoot, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.Base(path)
	}
	return rel
}
