package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goldedit/internal/model"
)

// FinishReviewed writes a cleaned copy of a finished file into the reviewed
// output directory and removes the source from the data root. Cleaning
// strips the review-only apparatus: evidence, QA hints, and nulls.
func (st *Store) FinishReviewed(path string, entries []*model.Entry) (string, error) {
	if st.ReviewedDir == "" {
		return "", fmt.Errorf("no reviewed output directory configured")
	}
	lines, err := marshalLines(entries)
	if err != nil {
		return "", err
	}
	cleaned := make([][]byte, len(lines))
	for i, line := range lines {
		if cleaned[i], err = CleanEntryJSON(line); err != nil {
			return "", fmt.Errorf("clean entry %d (%s): %w", i, entries[i].ID, err)
		}
	}
	dst := filepath.Join(st.ReviewedDir, st.relPath(path))
	if err := writeLinesAtomic(dst, cleaned); err != nil {
		return "", err
	}
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("remove %s after export: %w", path, err)
	}
	return dst, nil
}

// CleanEntryJSON strips review-only fields from one serialized entry:
// qa_hint, the gold.evidence section, and every null value, recursively.
func CleanEntryJSON(line []byte) ([]byte, error) {
	var obj map[string]any
	if err := json.Unmarshal(line, &obj); err != nil {
		return nil, err
	}
	delete(obj, "qa_hint")
	if gold, ok := obj["gold"].(map[string]any); ok {
		delete(gold, "evidence")
	}
	return json.Marshal(removeNulls(obj))
}

func removeNulls(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if val == nil {
				continue
			}
			out[k] = removeNulls(val)
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, val := range t {
			if val == nil {
				continue
			}
			out = append(out, removeNulls(val))
		}
		return out
	default:
		return v
	}
}
