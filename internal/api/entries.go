package api

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/goldedit/internal/model"
	"github.com/goldedit/internal/storage"
)

// EntryResponse is the response for a single entry.
type EntryResponse struct {
	Index      int          `json:"index"`
	Entry      *model.Entry `json:"entry"`
	HasUnsaved bool         `json:"has_unsaved"`
	// SyncedCount is the number of other entries updated by role sync.
	SyncedCount int `json:"synced_count"`
	// Undone names the field path restored by an undo, when one happened.
	Undone string `json:"undone,omitempty"`
}

// IndexedEntry pairs an entry with its position in the file, which survives
// filtering and pagination.
type IndexedEntry struct {
	Index      int          `json:"index"`
	Entry      *model.Entry `json:"entry"`
	HasUnsaved bool         `json:"has_unsaved"`
}

// EntriesListResponse is the response for entry lists and searches.
type EntriesListResponse struct {
	Entries  []IndexedEntry `json:"entries"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// ContextRoleUpdate retags one context message's role.
type ContextRoleUpdate struct {
	Index int    `json:"index"`
	Role  string `json:"role"`
}

// EntryUpdate is the PATCH payload. Nil fields are left alone.
type EntryUpdate struct {
	Slots          map[string]model.SlotValue `json:"slots"`
	Evidence       map[string]string          `json:"evidence"`
	Intentions     *[]string                  `json:"intentions"`
	QAHint         *string                    `json:"qa_hint"`
	Reviewed       *bool                      `json:"reviewed"`
	MessageRole    *string                    `json:"message_role"`
	ContextUpdates []ContextRoleUpdate        `json:"context_updates"`
}

// SaveFileResponse is the response for the save endpoint.
type SaveFileResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	SaveID       string `json:"save_id,omitempty"`
	BackupPath   string `json:"backup_path,omitempty"`
	ChangedCount int    `json:"changed_count"`
}

// MoveFileResponse is the response for the skip and finish endpoints.
type MoveFileResponse struct {
	Success bool   `json:"success"`
	Dest    string `json:"dest"`
}

func (s *Server) listEntries(c echo.Context) error {
	fileID := c.Param("id")
	path, err := s.store.Resolve(fileID)
	if err != nil {
		return httpError(c, err)
	}
	entries, err := storage.LoadEntries(path)
	if err != nil {
		return httpError(c, err)
	}

	page := intQuery(c, "page", 1)
	pageSize := intQuery(c, "page_size", 50)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	filtered, err := s.filterEntries(c, fileID, entries)
	if err != nil {
		return httpError(c, err)
	}

	total := len(filtered)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return c.JSON(http.StatusOK, EntriesListResponse{
		Entries:  filtered[start:end],
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

// filterEntries produces the session-effective view of the file, narrowed
// by the query filters, with original indices attached.
func (s *Server) filterEntries(c echo.Context, fileID string, entries []*model.Entry) ([]IndexedEntry, error) {
	onlyNonNull := boolQuery(c, "filter_non_null")
	onlyBoolSlots := boolQuery(c, "filter_bool_slots")
	onlyQAHint := boolQuery(c, "filter_qa_hint")
	slotFilter := c.QueryParam("filter_slot")
	search := strings.ToLower(c.QueryParam("search"))

	out := []IndexedEntry{}
	for i, base := range entries {
		eff, err := s.session.EffectiveEntry(fileID, i, base)
		if err != nil {
			return nil, err
		}
		if onlyNonNull && !eff.HasNonNullSlot() {
			continue
		}
		if onlyBoolSlots && !hasAnnotatedSlot(eff, s.schema.BoolSlots()) {
			continue
		}
		if slotFilter != "" && !hasAnnotatedSlot(eff, []string{slotFilter}) {
			continue
		}
		if onlyQAHint && eff.QAHintText() == "" {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(eff.SearchText()), search) {
			continue
		}
		out = append(out, IndexedEntry{
			Index:      i,
			Entry:      eff,
			HasUnsaved: s.session.HasOverrides(fileID, i),
		})
	}
	return out, nil
}

func (s *Server) searchEntries(c echo.Context) error {
	fileID := c.Param("id")
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "query parameter q is required"})
	}
	path, err := s.store.Resolve(fileID)
	if err != nil {
		return httpError(c, err)
	}
	entries, err := storage.LoadEntries(path)
	if err != nil {
		return httpError(c, err)
	}

	needle := strings.ToLower(q)
	results := []IndexedEntry{}
	for i, base := range entries {
		eff, err := s.session.EffectiveEntry(fileID, i, base)
		if err != nil {
			return httpError(c, err)
		}
		if strings.Contains(strings.ToLower(eff.SearchText()), needle) {
			results = append(results, IndexedEntry{
				Index:      i,
				Entry:      eff,
				HasUnsaved: s.session.HasOverrides(fileID, i),
			})
		}
	}
	return c.JSON(http.StatusOK, EntriesListResponse{
		Entries:  results,
		Total:    len(results),
		Page:     1,
		PageSize: len(results),
	})
}

func (s *Server) getEntry(c echo.Context) error {
	fileID := c.Param("id")
	index, err := entryIndex(c)
	if err != nil {
		return httpError(c, err)
	}
	path, err := s.store.Resolve(fileID)
	if err != nil {
		return httpError(c, err)
	}
	// Single-entry reads go through the lazy line index: only the
	// requested line is parsed.
	ix, err := storage.OpenIndex(path)
	if err != nil {
		return httpError(c, err)
	}
	base, err := ix.Entry(index)
	if err != nil {
		return httpError(c, err)
	}
	eff, err := s.session.EffectiveEntry(fileID, index, base)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, EntryResponse{
		Index:      index,
		Entry:      eff,
		HasUnsaved: s.session.HasOverrides(fileID, index),
	})
}

func (s *Server) patchEntry(c echo.Context) error {
	fileID := c.Param("id")
	index, err := entryIndex(c)
	if err != nil {
		return httpError(c, err)
	}
	var update EntryUpdate
	if err := c.Bind(&update); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	path, err := s.store.Resolve(fileID)
	if err != nil {
		return httpError(c, err)
	}
	entries, err := storage.LoadEntries(path)
	if err != nil {
		return httpError(c, err)
	}
	if index < 0 || index >= len(entries) {
		return httpError(c, fmt.Errorf("entry index %d out of range: %w", index, storage.ErrNotFound))
	}
	base := entries[index]

	// Validate the whole update before recording any of it, so a bad slot
	// value leaves the session exactly as it was.
	slotNames := make([]string, 0, len(update.Slots))
	for name := range update.Slots {
		slotNames = append(slotNames, name)
	}
	sort.Strings(slotNames)
	normalized := map[string]model.SlotValue{}
	for _, name := range slotNames {
		v := s.schema.NormalizeSlot(name, update.Slots[name])
		if err := s.schema.ValidateSlot(name, v); err != nil {
			return httpError(c, err)
		}
		normalized[name] = v
	}
	if update.Intentions != nil {
		if err := s.schema.ValidateIntentions(*update.Intentions); err != nil {
			return httpError(c, err)
		}
	}

	for _, name := range slotNames {
		if err := s.session.SetField(fileID, index, base, model.SlotFieldPath(name), normalized[name]); err != nil {
			return httpError(c, err)
		}
	}

	evidenceNames := make([]string, 0, len(update.Evidence))
	for name := range update.Evidence {
		evidenceNames = append(evidenceNames, name)
	}
	sort.Strings(evidenceNames)
	for _, name := range evidenceNames {
		v := model.StringSlot(update.Evidence[name])
		if err := s.session.SetField(fileID, index, base, model.EvidenceFieldPath(name), v); err != nil {
			return httpError(c, err)
		}
	}

	if update.Intentions != nil {
		if err := s.session.SetField(fileID, index, base, "gold.intentions", *update.Intentions); err != nil {
			return httpError(c, err)
		}
	}
	if update.QAHint != nil {
		if err := s.session.SetField(fileID, index, base, "qa_hint", *update.QAHint); err != nil {
			return httpError(c, err)
		}
	}
	if update.Reviewed != nil {
		if err := s.session.SetField(fileID, index, base, "reviewed", *update.Reviewed); err != nil {
			return httpError(c, err)
		}
	}

	// Role edits run the sync rule: the same role lands on every other
	// entry sharing the message's timestamp, before the response reports
	// how many were touched.
	syncedCount := 0
	if update.MessageRole != nil {
		if err := s.session.SetField(fileID, index, base, "message.role", *update.MessageRole); err != nil {
			return httpError(c, err)
		}
		if base.Message != nil {
			n, err := s.session.PropagateRole(fileID, entries, index, base.Message.TsMS, *update.MessageRole)
			if err != nil {
				return httpError(c, err)
			}
			syncedCount += n
		}
	}
	for _, cu := range update.ContextUpdates {
		if cu.Role == "" || cu.Index < 0 || cu.Index >= len(base.Context) {
			continue
		}
		if err := s.session.SetField(fileID, index, base, model.ContextRolePath(cu.Index), cu.Role); err != nil {
			return httpError(c, err)
		}
		n, err := s.session.PropagateRole(fileID, entries, index, base.Context[cu.Index].TsMS, cu.Role)
		if err != nil {
			return httpError(c, err)
		}
		syncedCount += n
	}

	eff, err := s.session.EffectiveEntry(fileID, index, base)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, EntryResponse{
		Index:       index,
		Entry:       eff,
		HasUnsaved:  s.session.HasOverrides(fileID, index),
		SyncedCount: syncedCount,
	})
}

func (s *Server) undoEntry(c echo.Context) error {
	fileID := c.Param("id")
	index, err := entryIndex(c)
	if err != nil {
		return httpError(c, err)
	}
	path, err := s.store.Resolve(fileID)
	if err != nil {
		return httpError(c, err)
	}
	ix, err := storage.OpenIndex(path)
	if err != nil {
		return httpError(c, err)
	}
	base, err := ix.Entry(index)
	if err != nil {
		return httpError(c, err)
	}

	undone, _ := s.session.Undo(fileID, index)
	eff, err := s.session.EffectiveEntry(fileID, index, base)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, EntryResponse{
		Index:      index,
		Entry:      eff,
		HasUnsaved: s.session.HasOverrides(fileID, index),
		Undone:     undone,
	})
}

func (s *Server) toggleReviewed(c echo.Context) error {
	fileID := c.Param("id")
	index, err := entryIndex(c)
	if err != nil {
		return httpError(c, err)
	}
	path, err := s.store.Resolve(fileID)
	if err != nil {
		return httpError(c, err)
	}
	ix, err := storage.OpenIndex(path)
	if err != nil {
		return httpError(c, err)
	}
	base, err := ix.Entry(index)
	if err != nil {
		return httpError(c, err)
	}
	eff, err := s.session.EffectiveEntry(fileID, index, base)
	if err != nil {
		return httpError(c, err)
	}
	if err := s.session.SetField(fileID, index, base, "reviewed", !eff.Reviewed); err != nil {
		return httpError(c, err)
	}
	eff, err = s.session.EffectiveEntry(fileID, index, base)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, EntryResponse{
		Index:      index,
		Entry:      eff,
		HasUnsaved: true,
	})
}

func (s *Server) saveFile(c echo.Context) error {
	fileID := c.Param("id")
	path, err := s.store.Resolve(fileID)
	if err != nil {
		return httpError(c, err)
	}
	if !s.session.IsDirty(fileID) {
		return c.JSON(http.StatusOK, SaveFileResponse{
			Success: true,
			Message: "no changes to save",
		})
	}
	entries, err := storage.LoadEntries(path)
	if err != nil {
		return httpError(c, err)
	}
	merged, err := s.session.Merged(fileID, entries)
	if err != nil {
		return httpError(c, err)
	}
	res, err := s.store.Save(path, merged)
	if err != nil {
		// The session keeps its pending edits: a failed save must not
		// cost the reviewer their work.
		return httpError(c, err)
	}
	s.session.MarkSaved(fileID)
	return c.JSON(http.StatusOK, SaveFileResponse{
		Success:      true,
		Message:      fmt.Sprintf("saved %s", fileID),
		SaveID:       res.SaveID,
		BackupPath:   res.BackupPath,
		ChangedCount: res.ChangedCount,
	})
}

func (s *Server) skipFile(c echo.Context) error {
	fileID := c.Param("id")
	path, err := s.store.Resolve(fileID)
	if err != nil {
		return httpError(c, err)
	}
	if s.session.IsDirty(fileID) {
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "file has unsaved changes, save or discard them first"})
	}
	dest, err := s.store.MoveToSkipped(path)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, MoveFileResponse{Success: true, Dest: dest})
}

func (s *Server) finishFile(c echo.Context) error {
	fileID := c.Param("id")
	path, err := s.store.Resolve(fileID)
	if err != nil {
		return httpError(c, err)
	}
	if s.session.IsDirty(fileID) {
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "file has unsaved changes, save them first"})
	}
	var dest string
	if c.QueryParam("clean") == "false" {
		// Move the file as-is, keeping evidence and hints.
		dest, err = s.store.MoveToReviewed(path)
	} else {
		var entries []*model.Entry
		entries, err = storage.LoadEntries(path)
		if err != nil {
			return httpError(c, err)
		}
		dest, err = s.store.FinishReviewed(path, entries)
	}
	if err != nil {
		return httpError(c, err)
	}
	log.Info().Str("file", fileID).Str("dest", dest).Msg("file finished")
	return c.JSON(http.StatusOK, MoveFileResponse{Success: true, Dest: dest})
}

func entryIndex(c echo.Context) (int, error) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return 0, fmt.Errorf("entry index %q: %w", c.Param("index"), storage.ErrNotFound)
	}
	return index, nil
}

func intQuery(c echo.Context, name string, fallback int) int {
	v, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return fallback
	}
	return v
}

func boolQuery(c echo.Context, name string) bool {
	v, _ := strconv.ParseBool(c.QueryParam(name))
	return v
}

func hasAnnotatedSlot(e *model.Entry, names []string) bool {
	if e.Gold == nil {
		return false
	}
	for _, name := range names {
		if v, ok := e.Gold.Slots[name]; ok && !v.IsNull() {
			return true
		}
	}
	return false
}
