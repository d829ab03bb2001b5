package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/goldedit/internal/storage"
)

// FileListResponse is the response for the file list endpoint.
type FileListResponse struct {
	Files        []storage.FileInfo `json:"files"`
	TotalFiles   int                `json:"total_files"`
	TotalEntries int                `json:"total_entries"`
	// DirtyFiles lists file IDs with unsaved session edits, for the UI's
	// unsaved badge. Counts in Files always reflect disk truth.
	DirtyFiles []string `json:"dirty_files"`
}

// FileStatsResponse is the per-file statistics response.
type FileStatsResponse struct {
	*storage.FileStats
	Dirty bool `json:"dirty"`
}

func (s *Server) listFiles(c echo.Context) error {
	infos, err := s.store.List()
	if err != nil {
		return httpError(c, err)
	}
	resp := FileListResponse{
		Files:      infos,
		TotalFiles: len(infos),
		DirtyFiles: s.session.DirtyFiles(),
	}
	for _, info := range infos {
		resp.TotalEntries += info.EntryCount
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) getFileStats(c echo.Context) error {
	fileID := c.Param("id")
	stats, err := s.store.Stats(fileID)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, FileStatsResponse{
		FileStats: stats,
		Dirty:     s.session.IsDirty(fileID),
	})
}
