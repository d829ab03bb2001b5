package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldedit/internal/model"
)

func TestPropagateRoleAcrossEntries(t *testing.T) {
	s := New()
	base := []*model.Entry{
		testEntry(t, "e0", 100, "client"),
		// The edited message reappears twice in this entry's context.
		testEntry(t, "e1", 200, "client", ctxMsg(t, 100, "client"), ctxMsg(t, 100, "client")),
		testEntry(t, "e2", 100, "client"),
		testEntry(t, "e3", 999, "client", ctxMsg(t, 50, "client")),
	}

	synced, err := s.PropagateRole("f", base, 0, 100, "manager")
	require.NoError(t, err)
	// e1 and e2 share the timestamp; e3 does not; e0 is the source.
	assert.Equal(t, 2, synced)

	eff1, err := s.EffectiveEntry("f", 1, base[1])
	require.NoError(t, err)
	assert.Equal(t, "manager", eff1.Context[0].Role)
	assert.Equal(t, "manager", eff1.Context[1].Role)
	assert.Equal(t, "client", eff1.Message.Role)

	eff2, err := s.EffectiveEntry("f", 2, base[2])
	require.NoError(t, err)
	assert.Equal(t, "manager", eff2.Message.Role)

	eff3, err := s.EffectiveEntry("f", 3, base[3])
	require.NoError(t, err)
	assert.Equal(t, "client", eff3.Context[0].Role)

	// Base records stay untouched until save.
	assert.Equal(t, "client", base[1].Context[0].Role)
	assert.Equal(t, "client", base[2].Message.Role)
}

func TestPropagateRoleSkipsAlreadyCorrect(t *testing.T) {
	s := New()
	base := []*model.Entry{
		testEntry(t, "e0", 100, "client"),
		testEntry(t, "e1", 100, "manager"),
		testEntry(t, "e2", 100, "client"),
	}

	synced, err := s.PropagateRole("f", base, 0, 100, "manager")
	require.NoError(t, err)
	assert.Equal(t, 1, synced)
	assert.False(t, s.HasOverrides("f", 1))
}

func TestPropagateRoleSeesSessionState(t *testing.T) {
	s := New()
	base := []*model.Entry{
		testEntry(t, "e0", 100, "client"),
		testEntry(t, "e1", 100, "client"),
	}

	// e1 was already retagged in this session; syncing the same role again
	// finds nothing left to change.
	require.NoError(t, s.SetField("f", 1, base[1], "message.role", "manager"))
	synced, err := s.PropagateRole("f", base, 0, 100, "manager")
	require.NoError(t, err)
	assert.Equal(t, 0, synced)
}

func TestPropagateRoleIsUndoable(t *testing.T) {
	s := New()
	base := []*model.Entry{
		testEntry(t, "e0", 100, "client"),
		testEntry(t, "e1", 100, "client"),
	}

	synced, err := s.PropagateRole("f", base, 0, 100, "manager")
	require.NoError(t, err)
	require.Equal(t, 1, synced)

	path, ok := s.Undo("f", 1)
	require.True(t, ok)
	assert.Equal(t, "message.role", path)
	eff, err := s.EffectiveEntry("f", 1, base[1])
	require.NoError(t, err)
	assert.Equal(t, "client", eff.Message.Role)
}

func TestPropagateRoleZeroTimestampIsNoop(t *testing.T) {
	s := New()
	base := []*model.Entry{
		testEntry(t, "e0", 0, "client"),
		testEntry(t, "e1", 0, "client"),
	}

	synced, err := s.PropagateRole("f", base, 0, 0, "manager")
	require.NoError(t, err)
	assert.Equal(t, 0, synced)
	assert.False(t, s.IsDirty("f"))
}
