package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/goldedit/internal/report"
)

func (s *Server) exportReport(c echo.Context) error {
	rep, err := report.Build(s.store, s.schema)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, rep)
}
