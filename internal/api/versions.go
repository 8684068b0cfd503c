package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskvault/pkg/history"
	"taskvault/pkg/task"
	"taskvault/pkg/version"
)

type versionRequest struct {
	Data     *task.Snapshot `json:"data"`
	ParentID *string        `json:"parentId"`
	Label    *string        `json:"label"`
	MakeHead bool           `json:"makeHead"`
}

type saveRequest struct {
	Data         *task.Snapshot `json:"data"`
	ParentID     *string        `json:"parentId"`
	Label        *string        `json:"label"`
	CompressInto *string        `json:"compressIntoVersionId"`
}

type saveResponse struct {
	Success   bool             `json:"success"`
	VersionID string           `json:"versionId"`
	Dataset   task.View        `json:"dataset"`
	Inserted  bool             `json:"inserted"`
	Version   *version.Summary `json:"version"`
	Label     *string          `json:"label"`
}

// bindRequest decodes a typed JSON body. An empty body leaves dst zero.
func bindRequest(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, http.StatusBadRequest, "Request body must be valid JSON: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleVersionList(c *gin.Context) {
	h, err := s.engine.ListVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err, "Failed to fetch versions")
		return
	}
	writeJSON(c, http.StatusOK, h)
}

func (s *Server) handleVersionCreate(c *gin.Context) {
	var req versionRequest
	if !bindRequest(c, &req) {
		return
	}
	v, err := s.engine.CreateVersion(c.Request.Context(), c.Param("id"), history.NewVersion{
		ParentID: req.ParentID,
		Snapshot: req.Data,
		Label:    req.Label,
		MakeHead: req.MakeHead,
	})
	if err != nil {
		s.fail(c, err, "Failed to create version")
		return
	}
	writeJSON(c, http.StatusOK, v)
}

func (s *Server) handleVersionGet(c *gin.Context) {
	v, err := s.engine.GetVersion(c.Request.Context(), c.Param("id"), c.Param("versionId"))
	if err != nil {
		s.fail(c, err, "Failed to fetch version")
		return
	}
	writeJSON(c, http.StatusOK, v)
}

func (s *Server) handleVersionUpdate(c *gin.Context) {
	var req versionRequest
	if !bindRequest(c, &req) {
		return
	}
	v, err := s.engine.UpdateVersion(c.Request.Context(), c.Param("id"), c.Param("versionId"), version.Patch{
		Snapshot: req.Data,
		Label:    req.Label,
	})
	if err != nil {
		s.fail(c, err, "Failed to update version")
		return
	}
	writeJSON(c, http.StatusOK, v)
}

func (s *Server) handleSetHead(c *gin.Context) {
	var req struct {
		VersionID string `json:"versionId"`
	}
	if !bindRequest(c, &req) {
		return
	}
	t, err := s.engine.SetHead(c.Request.Context(), c.Param("id"), req.VersionID)
	if err != nil {
		s.fail(c, err, "Failed to set head")
		return
	}
	writeJSON(c, http.StatusOK, task.Present(t))
}

// handleSave is the one-call save used by the editor: patch or insert a
// version, then promote it to head.
func (s *Server) handleSave(c *gin.Context) {
	var req saveRequest
	if !bindRequest(c, &req) {
		return
	}
	res, err := s.engine.AtomicSave(c.Request.Context(), history.SaveRequest{
		TaskID:       c.Param("id"),
		Snapshot:     req.Data,
		Label:        req.Label,
		ParentID:     req.ParentID,
		CompressInto: req.CompressInto,
	})
	if err != nil {
		s.fail(c, err, "Atomic save failed")
		return
	}
	writeJSON(c, http.StatusOK, saveResponse{
		Success:   res.Success,
		VersionID: res.VersionID,
		Dataset:   task.Present(res.Task),
		Inserted:  res.Inserted,
		Version:   res.Version,
		Label:     res.Label,
	})
}
