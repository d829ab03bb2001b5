package session

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldedit/internal/model"
)

func testEntry(t *testing.T, id string, ts int64, role string, ctx ...*model.Message) *model.Entry {
	t.Helper()
	ctxJSON, err := json.Marshal(ctx)
	require.NoError(t, err)
	line := fmt.Sprintf(`{"id": %q, "message": {"role": %q, "text": "hi", "ts_ms": %d}, "context": %s, "gold": {"slots": {}, "evidence": {}}}`,
		id, role, ts, ctxJSON)
	var e model.Entry
	require.NoError(t, json.Unmarshal([]byte(line), &e))
	return &e
}

func ctxMsg(t *testing.T, ts int64, role string) *model.Message {
	t.Helper()
	var m model.Message
	line := fmt.Sprintf(`{"role": %q, "text": "ctx", "ts_ms": %d}`, role, ts)
	require.NoError(t, json.Unmarshal([]byte(line), &m))
	return &m
}

func TestSetFieldOverlaysWithoutMutatingBase(t *testing.T) {
	s := New()
	base := testEntry(t, "e0", 100, "client")

	require.NoError(t, s.SetField("f", 0, base, "message.role", "manager"))

	eff, err := s.EffectiveEntry("f", 0, base)
	require.NoError(t, err)
	assert.Equal(t, "manager", eff.Message.Role)
	assert.Equal(t, "client", base.Message.Role)
	assert.True(t, s.HasOverrides("f", 0))
	assert.True(t, s.IsDirty("f"))
}

func TestSetFieldRejectsBadValueLeavingStateUntouched(t *testing.T) {
	s := New()
	base := testEntry(t, "e0", 100, "client")

	assert.Error(t, s.SetField("f", 0, base, "reviewed", "yes"))
	assert.Error(t, s.SetField("f", 0, base, "no.such.path", "x"))

	assert.False(t, s.HasOverrides("f", 0))
	assert.False(t, s.IsDirty("f"))
	_, ok := s.Undo("f", 0)
	assert.False(t, ok)
}

func TestUndoRestoresPriorValues(t *testing.T) {
	s := New()
	base := testEntry(t, "e0", 100, "client")

	require.NoError(t, s.SetField("f", 0, base, "message.role", "manager"))
	require.NoError(t, s.SetField("f", 0, base, "message.role", "bot"))

	path, ok := s.Undo("f", 0)
	require.True(t, ok)
	assert.Equal(t, "message.role", path)
	eff, err := s.EffectiveEntry("f", 0, base)
	require.NoError(t, err)
	assert.Equal(t, "manager", eff.Message.Role)

	// A second undo lands back on the base record's value.
	_, ok = s.Undo("f", 0)
	require.True(t, ok)
	eff, err = s.EffectiveEntry("f", 0, base)
	require.NoError(t, err)
	assert.Equal(t, "client", eff.Message.Role)

	_, ok = s.Undo("f", 0)
	assert.False(t, ok)
}

func TestUndoQAHintRestoresAbsence(t *testing.T) {
	s := New()
	base := testEntry(t, "e0", 100, "client")

	require.NoError(t, s.SetField("f", 0, base, "qa_hint", "check"))
	_, ok := s.Undo("f", 0)
	require.True(t, ok)

	// The field was absent before the edit; undo must not leave "" behind.
	eff, err := s.EffectiveEntry("f", 0, base)
	require.NoError(t, err)
	b, err := json.Marshal(eff)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "qa_hint")
}

func TestUndoNeverUndirties(t *testing.T) {
	s := New()
	base := testEntry(t, "e0", 100, "client")

	require.NoError(t, s.SetField("f", 0, base, "reviewed", true))
	_, ok := s.Undo("f", 0)
	require.True(t, ok)
	assert.True(t, s.IsDirty("f"))
}

func TestUndoIsPerEntry(t *testing.T) {
	s := New()
	e0 := testEntry(t, "e0", 100, "client")
	e1 := testEntry(t, "e1", 200, "client")

	require.NoError(t, s.SetField("f", 0, e0, "message.role", "manager"))
	require.NoError(t, s.SetField("f", 1, e1, "message.role", "bot"))

	_, ok := s.Undo("f", 1)
	require.True(t, ok)

	eff, err := s.EffectiveEntry("f", 0, e0)
	require.NoError(t, err)
	assert.Equal(t, "manager", eff.Message.Role)
}

func TestHistoryIsBounded(t *testing.T) {
	s := New()
	base := testEntry(t, "e0", 100, "client")
	for i := 0; i < maxHistoryPerKey+20; i++ {
		require.NoError(t, s.SetField("f", 0, base, "qa_hint", fmt.Sprintf("v%d", i)))
	}
	undos := 0
	for {
		if _, ok := s.Undo("f", 0); !ok {
			break
		}
		undos++
	}
	assert.Equal(t, maxHistoryPerKey, undos)
}

func TestMergedAppliesOverridesAndKeepsSession(t *testing.T) {
	s := New()
	base := []*model.Entry{
		testEntry(t, "e0", 100, "client"),
		testEntry(t, "e1", 200, "client"),
	}

	require.NoError(t, s.SetField("f", 1, base[1], "reviewed", true))
	// A stale override past the end of the file is skipped, not fatal.
	require.NoError(t, s.SetField("f", 7, base[0], "reviewed", true))

	merged, err := s.Merged("f", base)
	require.NoError(t, err)
	require.Len(t, merged, 2)
	assert.False(t, merged[0].Reviewed)
	assert.True(t, merged[1].Reviewed)
	assert.False(t, base[1].Reviewed)

	// Merged does not clear: a failed write afterwards must not lose edits.
	assert.True(t, s.IsDirty("f"))
	assert.True(t, s.HasOverrides("f", 1))
}

func TestMarkSavedClearsOneFileOnly(t *testing.T) {
	s := New()
	e := testEntry(t, "e0", 100, "client")
	require.NoError(t, s.SetField("a", 0, e, "reviewed", true))
	require.NoError(t, s.SetField("b", 0, e, "reviewed", true))

	s.MarkSaved("a")

	assert.False(t, s.IsDirty("a"))
	assert.False(t, s.HasOverrides("a", 0))
	_, ok := s.Undo("a", 0)
	assert.False(t, ok)
	assert.True(t, s.IsDirty("b"))
	assert.Equal(t, []string{"b"}, s.DirtyFiles())
}

func TestFlushMergesAndClears(t *testing.T) {
	s := New()
	base := []*model.Entry{testEntry(t, "e0", 100, "client")}
	require.NoError(t, s.SetField("f", 0, base[0], "message.role", "manager"))

	merged, err := s.Flush("f", base)
	require.NoError(t, err)
	assert.Equal(t, "manager", merged[0].Message.Role)
	assert.False(t, s.IsDirty("f"))
	assert.False(t, s.HasOverrides("f", 0))
}
