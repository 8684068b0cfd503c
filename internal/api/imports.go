package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskvault/internal/importer"
	"taskvault/pkg/task"
)

type parseFunc func(io.Reader) ([]map[string]any, error)

func (s *Server) handleImportCSV(c *gin.Context) {
	s.importFile(c, "CSV", importer.ParseCSV)
}

func (s *Server) handleImportJSONL(c *gin.Context) {
	s.importFile(c, "JSONL", importer.ParseJSONL)
}

// importFile reads the upload from the multipart field "file" or, failing
// that, the raw body, and creates one task per parsed record.
func (s *Server) importFile(c *gin.Context, format string, parse parseFunc) {
	src, err := uploadReader(c)
	if err != nil {
		s.fail(c, err, "Failed to import "+format)
		return
	}
	defer src.Close()

	payloads, err := parse(src)
	if errors.Is(err, importer.ErrEmpty) {
		writeError(c, http.StatusBadRequest, "No "+format+" content provided")
		return
	}
	if err != nil {
		s.fail(c, err, "Failed to import "+format)
		return
	}
	if len(payloads) == 0 {
		writeJSON(c, http.StatusOK, []task.View{})
		return
	}

	tasks, err := s.engine.BulkCreate(c.Request.Context(), payloads)
	if err != nil {
		s.fail(c, err, "Failed to import "+format)
		return
	}
	s.log.Info("imported tasks", "format", format, "count", len(tasks), "rid", requestIDOf(c))
	writeJSON(c, http.StatusOK, task.PresentAll(tasks))
}

func uploadReader(c *gin.Context) (io.ReadCloser, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Request.Body, nil
	}
	return fh.Open()
}
