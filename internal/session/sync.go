package session

import (
	"github.com/goldedit/internal/model"
)

// PropagateRole applies a role change to every other entry of the file
// whose primary or context message shares the edited message's timestamp.
// Entries are inspected through their session-effective view, updates go
// through SetField (so they are undoable and dirty the file), and the
// return value counts the other entries altered: the edited entry itself is
// excluded, having been updated directly.
func (s *Session) PropagateRole(fileID string, base []*model.Entry, sourceIndex int, tsMS int64, role string) (int, error) {
	if tsMS == 0 {
		return 0, nil
	}
	synced := 0
	for idx, rec := range base {
		if idx == sourceIndex {
			continue
		}
		eff, err := s.EffectiveEntry(fileID, idx, rec)
		if err != nil {
			return synced, err
		}
		changed := false
		if eff.Message != nil && eff.Message.TsMS == tsMS && eff.Message.Role != role {
			if err := s.SetField(fileID, idx, rec, "message.role", role); err != nil {
				return synced, err
			}
			changed = true
		}
		// Several context positions within one entry may share the
		// timestamp; all of them get the new role.
		for ci, msg := range eff.Context {
			if msg != nil && msg.TsMS == tsMS && msg.Role != role {
				if err := s.SetField(fileID, idx, rec, model.ContextRolePath(ci), role); err != nil {
					return synced, err
				}
				changed = true
			}
		}
		if changed {
			synced++
		}
	}
	return synced, nil
}
