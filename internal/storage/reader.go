package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/goldedit/internal/model"
)

// maxLineBytes bounds a single JSONL line; long context threads easily
// exceed bufio's default 64K token size.
const maxLineBytes = 16 * 1024 * 1024

// LoadEntries parses a whole JSONL file into entry records. Blank lines are
// skipped; any malformed line fails the load with a ParseError carrying its
// line number.
func LoadEntries(path string) ([]*model.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var entries []*model.Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var e model.Entry
		if err := json.Unmarshal(text, &e); err != nil {
			return nil, &ParseError{Path: path, Line: line, Err: err}
		}
		entries = append(entries, &e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return entries, nil
}

// LineIndex is the lazy-loading mode: one pass records the byte offset of
// every non-blank line, and records are parsed on demand by index with the
// same per-line error contract as LoadEntries.
type LineIndex struct {
	path    string
	offsets []int64
	lengths []int
	lines   []int
}

// OpenIndex scans a JSONL file and indexes its record positions.
func OpenIndex(path string) (*LineIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	ix := &LineIndex{path: path}
	r := bufio.NewReaderSize(f, 64*1024)
	var offset int64
	line := 0
	for {
		chunk, err := r.ReadBytes('\n')
		if len(chunk) > 0 {
			line++
			if len(bytes.TrimSpace(chunk)) > 0 {
				ix.offsets = append(ix.offsets, offset)
				ix.lengths = append(ix.lengths, len(chunk))
				ix.lines = append(ix.lines, line)
			}
			offset += int64(len(chunk))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", path, err)
		}
	}
	return ix, nil
}

// Len returns the number of indexed records.
func (ix *LineIndex) Len() int { return len(ix.offsets) }

// Entry parses the record at index i.
func (ix *LineIndex) Entry(i int) (*model.Entry, error) {
	if i < 0 || i >= len(ix.offsets) {
		return nil, fmt.Errorf("entry index %d out of range: %w", i, ErrNotFound)
	}
	f, err := os.Open(ix.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ix.path, err)
	}
	defer f.Close()

	buf := make([]byte, ix.lengths[i])
	if _, err := f.ReadAt(buf, ix.offsets[i]); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read %s: %w", ix.path, err)
	}
	var e model.Entry
	if err := json.Unmarshal(bytes.TrimSpace(buf), &e); err != nil {
		return nil, &ParseError{Path: ix.path, Line: ix.lines[i], Err: err}
	}
	return &e, nil
}

// CountEntries counts the records in a JSONL file without parsing them.
func CountEntries(path string) (int, error) {
	ix, err := OpenIndex(path)
	if err != nil {
		return 0, err
	}
	return ix.Len(), nil
}

// FirstMessageOffHours reports whether the file's first message was sent
// outside working hours (08:00 inclusive to 21:00 exclusive, local time).
// Unreadable files or missing timestamps report false.
func FirstMessageOffHours(path string) bool {
	ix, err := OpenIndex(path)
	if err != nil || ix.Len() == 0 {
		return false
	}
	e, err := ix.Entry(0)
	if err != nil || e.Message == nil || e.Message.TsMS == 0 {
		return false
	}
	h := time.UnixMilli(e.Message.TsMS).Hour()
	return h < 8 || h >= 21
}
