package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/goldedit/internal/model"
)

// maxHistoryPerKey bounds each entry's undo stack.
const maxHistoryPerKey = 100

// Key addresses one entry of one file.
type Key struct {
	FileID string
	Index  int
}

type edit struct {
	path string
	prev any
	at   time.Time
}

// Session is the in-memory overlay of pending edits: field-level overrides
// keyed by (file, entry index) that have not been flushed to disk, with an
// undo stack per key. It is process-local and never persisted; a restart
// loses unsaved edits.
//
// The mutex only keeps the maps safe for Go's memory model. There is no
// editing-level coordination: two reviewers pointed at the same data root
// can still clobber each other's unsaved work on save. That is a documented
// limitation of the single-reviewer deployment, not something this type
// tries to solve.
type Session struct {
	mu        sync.Mutex
	overrides map[Key]map[string]any
	history   map[Key][]edit
	dirty     map[string]bool
}

// New returns an empty session.
func New() *Session {
	return &Session{
		overrides: map[Key]map[string]any{},
		history:   map[Key][]edit{},
		dirty:     map[string]bool{},
	}
}

// SetField records an override for one field of one entry. The previous
// effective value (an existing override if present, otherwise the base
// record's value) is pushed onto the key's undo stack, and the file is
// marked dirty. A bad path or value type rejects the update and leaves all
// prior session state untouched.
func (s *Session) SetField(fileID string, index int, base *model.Entry, path string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key{FileID: fileID, Index: index}
	prev, ok := s.overrides[key][path]
	if !ok {
		var err error
		if prev, err = base.FieldValue(path); err != nil {
			return err
		}
	}

	// Dry-run the write on a throwaway copy so nothing that cannot be
	// applied later ever lands in the session.
	probe, err := base.Clone()
	if err != nil {
		return err
	}
	if err := probe.SetFieldValue(path, value); err != nil {
		return err
	}

	hist := append(s.history[key], edit{path: path, prev: prev, at: time.Now()})
	if len(hist) > maxHistoryPerKey {
		hist = hist[len(hist)-maxHistoryPerKey:]
	}
	s.history[key] = hist

	if s.overrides[key] == nil {
		s.overrides[key] = map[string]any{}
	}
	s.overrides[key][path] = value
	s.dirty[fileID] = true
	return nil
}

// Undo pops the most recent edit for a key and restores its prior value.
// It returns the restored field path, or ok=false when there is nothing to
// undo. Undo never un-dirties the file: the session tracks "has been
// touched", not deep equality with the on-disk record.
func (s *Session) Undo(fileID string, index int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key{FileID: fileID, Index: index}
	hist := s.history[key]
	if len(hist) == 0 {
		return "", false
	}
	last := hist[len(hist)-1]
	s.history[key] = hist[:len(hist)-1]

	if s.overrides[key] == nil {
		s.overrides[key] = map[string]any{}
	}
	s.overrides[key][last.path] = last.prev
	return last.path, true
}

// EffectiveEntry merges the base record with any pending overrides for the
// key, producing the record the UI displays. The base is never mutated.
func (s *Session) EffectiveEntry(fileID string, index int, base *model.Entry) (*model.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effectiveLocked(Key{FileID: fileID, Index: index}, base)
}

func (s *Session) effectiveLocked(key Key, base *model.Entry) (*model.Entry, error) {
	ov := s.overrides[key]
	if len(ov) == 0 {
		return base, nil
	}
	merged, err := base.Clone()
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(ov))
	for p := range ov {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := merged.SetFieldValue(p, ov[p]); err != nil {
			return nil, fmt.Errorf("apply override %s to entry %d: %w", p, key.Index, err)
		}
	}
	return merged, nil
}

// HasOverrides reports whether the key has pending edits.
func (s *Session) HasOverrides(fileID string, index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.overrides[Key{FileID: fileID, Index: index}]) > 0
}

// Merged applies every pending override for the file onto the base
// sequence, in entry order, without clearing session state. Overrides whose
// index falls outside the base sequence are skipped.
func (s *Session) Merged(fileID string, base []*model.Entry) ([]*model.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Entry, len(base))
	copy(out, base)
	for key := range s.overrides {
		if key.FileID != fileID {
			continue
		}
		if key.Index < 0 || key.Index >= len(base) {
			log.Warn().Str("file", fileID).Int("index", key.Index).Msg("stale session override, index out of range")
			continue
		}
		merged, err := s.effectiveLocked(key, base[key.Index])
		if err != nil {
			return nil, err
		}
		out[key.Index] = merged
	}
	return out, nil
}

// MarkSaved clears all pending state for a file after a successful save.
func (s *Session) MarkSaved(fileID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.overrides {
		if key.FileID == fileID {
			delete(s.overrides, key)
			delete(s.history, key)
		}
	}
	delete(s.dirty, fileID)
}

// Flush merges and clears in one step: the returned sequence is ready for
// the record store, and the file's session state is gone.
func (s *Session) Flush(fileID string, base []*model.Entry) ([]*model.Entry, error) {
	merged, err := s.Merged(fileID, base)
	if err != nil {
		return nil, err
	}
	s.MarkSaved(fileID)
	return merged, nil
}

// IsDirty reports whether the file has been touched since its last save.
func (s *Session) IsDirty(fileID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty[fileID]
}

// DirtyFiles lists every touched file, sorted.
func (s *Session) DirtyFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	files := make([]string, 0, len(s.dirty))
	for f := range s.dirty {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}
