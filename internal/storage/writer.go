package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"github.com/rs/zerolog/log"

	"github.com/goldedit/internal/model"
)

// SaveResult describes one completed save.
type SaveResult struct {
	SaveID       string   `json:"save_id"`
	Path         string   `json:"path"`
	EntryCount   int      `json:"entry_count"`
	ChangedCount int      `json:"changed_count"`
	ChangedIDs   []string `json:"changed_ids"`
	BackupPath   string   `json:"backup_path,omitempty"`
}

// Save writes the full entry sequence back to path. The write is
// rename-atomic: content goes to a sibling temp file first, so the target
// never holds a half-written file no matter where the process dies. If
// backups are enabled the pre-save file is copied into the backup directory
// first, and every save appends one line to the audit log.
func (st *Store) Save(path string, entries []*model.Entry) (*SaveResult, error) {
	lines, err := marshalLines(entries)
	if err != nil {
		return nil, err
	}

	prior, err := readRawLines(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	changedIDs := changedEntries(prior, lines, entries)

	res := &SaveResult{
		SaveID:       uuid.NewString(),
		Path:         path,
		EntryCount:   len(entries),
		ChangedCount: len(changedIDs),
		ChangedIDs:   changedIDs,
	}

	if st.BackupOnSave && prior != nil {
		backupPath, err := st.backup(path)
		if err != nil {
			return nil, err
		}
		res.BackupPath = backupPath
	}

	if err := writeLinesAtomic(path, lines); err != nil {
		return nil, err
	}

	if err := st.appendAudit(res); err != nil {
		return nil, err
	}

	log.Info().
		Str("file", st.relPath(path)).
		Str("save_id", res.SaveID).
		Int("entries", res.EntryCount).
		Int("changed", res.ChangedCount).
		Msg("saved file")

	return res, nil
}

// WriteEntriesAtomic serializes entries as JSONL and writes them with the
// temp-file-plus-rename pattern, with no backup or audit trail.
func WriteEntriesAtomic(path string, entries []*model.Entry) error {
	lines, err := marshalLines(entries)
	if err != nil {
		return err
	}
	return writeLinesAtomic(path, lines)
}

func marshalLines(entries []*model.Entry) ([][]byte, error) {
	lines := make([][]byte, len(entries))
	for i, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("serialize entry %d (%s): %w", i, e.ID, err)
		}
		lines[i] = b
	}
	return lines, nil
}

func writeLinesAtomic(path string, lines [][]byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp_*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		if _, err := w.Write(line); err != nil {
			tmp.Close()
			return fmt.Errorf("write %s: %w", tmpName, err)
		}
		if err := w.WriteByte('\n'); err != nil {
			tmp.Close()
			return fmt.Errorf("write %s: %w", tmpName, err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s over %s: %w", tmpName, path, err)
	}
	return nil
}

// readRawLines returns the non-blank lines of path, or fs.ErrNotExist.
func readRawLines(path string) ([][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lines [][]byte
	for _, line := range bytes.Split(data, []byte("\n")) {
		if line = bytes.TrimSpace(line); len(line) > 0 {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// changedEntries compares prior and new lines in RFC 8785 canonical form and
// returns the IDs of entries whose content actually changed. Lines past the
// end of the shorter sequence count as changed.
func changedEntries(prior, lines [][]byte, entries []*model.Entry) []string {
	changed := []string{}
	for i, line := range lines {
		if i < len(prior) && canonicalEqual(prior[i], line) {
			continue
		}
		changed = append(changed, entries[i].ID)
	}
	return changed
}

func canonicalEqual(a, b []byte) bool {
	ca, errA := jcs.Transform(a)
	cb, errB := jcs.Transform(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

// backup copies the pre-save file into the backup directory, mirroring its
// path relative to the data root and stamping the copy with the save time.
func (st *Store) backup(path string) (string, error) {
	if st.BackupDir == "" {
		return "", nil
	}
	rel := st.relPath(path)
	stamp := time.Now().Format("20060102_150405")
	name := fmt.Sprintf("%s.%s.bak", filepath.Base(rel), stamp)
	dst := filepath.Join(st.BackupDir, filepath.Dir(rel), name)

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("backup %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("backup %s: %w", path, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("backup %s: %w", path, err)
	}
	return dst, nil
}

type auditRecord struct {
	Timestamp    string   `json:"timestamp"`
	SaveID       string   `json:"save_id"`
	File         string   `json:"file"`
	EntryCount   int      `json:"entry_count"`
	ChangedCount int      `json:"changed_count"`
	ChangedIDs   []string `json:"changed_ids"`
	Backup       string   `json:"backup,omitempty"`
}

func (st *Store) appendAudit(res *SaveResult) error {
	if st.AuditLog == "" {
		return nil
	}
	rec := auditRecord{
		Timestamp:    time.Now().Format(time.RFC3339),
		SaveID:       res.SaveID,
		File:         st.relPath(res.Path),
		EntryCount:   res.EntryCount,
		ChangedCount: res.ChangedCount,
		ChangedIDs:   res.ChangedIDs,
		Backup:       res.BackupPath,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("serialize audit record: %w", err)
	}
	f, err := os.OpenFile(st.AuditLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log %s: %w", st.AuditLog, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append audit log %s: %w", st.AuditLog, err)
	}
	return nil
}
