package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldedit/internal/model"
	"github.com/goldedit/internal/storage"
)

func TestBuildAggregatesSlotStats(t *testing.T) {
	root := t.TempDir()
	st := &storage.Store{DataRoot: root}

	write := func(name string, lines ...string) {
		t.Helper()
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	}
	write("a.jsonl",
		`{"id": "a0", "context": [], "gold": {"slots": {"name": "Анна", "is_first_time": true}, "evidence": {}}, "reviewed": true}`,
		`{"id": "a1", "context": [], "gold": {"slots": {"name": null, "is_first_time": false}, "evidence": {}}, "reviewed": false}`,
	)
	write(filepath.Join("clinic", "b.jsonl"),
		`{"id": "b0", "context": [], "gold": {"slots": {"is_first_time": true}, "evidence": {}}, "reviewed": true}`,
	)
	write("broken.jsonl", "{bad")

	rep, err := Build(st, model.DefaultSchema())
	require.NoError(t, err)

	// The broken file is counted in the listing but skipped in the stats.
	assert.Equal(t, 3, rep.TotalFiles)
	require.Len(t, rep.Files, 2)
	assert.Equal(t, 3, rep.TotalEntries)
	assert.Equal(t, 2, rep.TotalReviewed)

	assert.Equal(t, "a.jsonl", rep.Files[0].Path)
	assert.Equal(t, 1, rep.Files[0].Slots["name"].TotalNonNull)
	assert.Equal(t, 2, rep.Files[0].Slots["is_first_time"].TotalNonNull)
	assert.Equal(t, 1, rep.Files[0].Slots["is_first_time"].TrueCount)
	assert.Equal(t, 1, rep.Files[0].Slots["is_first_time"].FalseCount)

	global := rep.GlobalSlotStats["is_first_time"]
	assert.Equal(t, 3, global.TotalNonNull)
	assert.Equal(t, 2, global.TrueCount)
}

func TestWriteText(t *testing.T) {
	rep := &Report{
		TotalFiles:    1,
		TotalEntries:  2,
		TotalReviewed: 1,
		Files:         []FileReport{{Path: "a.jsonl", TotalEntries: 2, ReviewedCount: 1}},
		GlobalSlotStats: map[string]SlotStats{
			"name":          {TotalNonNull: 1},
			"is_first_time": {TotalNonNull: 2, TrueCount: 1, FalseCount: 1},
		},
	}

	var buf bytes.Buffer
	rep.WriteText(&buf, model.DefaultSchema())
	out := buf.String()

	assert.Contains(t, out, "Files: 1  Entries: 2  Reviewed: 1")
	assert.Contains(t, out, "a.jsonl  entries=2 reviewed=1")
	assert.Contains(t, out, "true=1 false=1")
}
