package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"taskvault/pkg/history"
	"taskvault/pkg/task"
	"taskvault/pkg/version"
)

// bindObject decodes the body as a JSON object. A missing or malformed body
// yields an empty object.
func bindObject(c *gin.Context) map[string]any {
	var body map[string]any
	if err := json.NewDecoder(c.Request.Body).Decode(&body); err != nil || body == nil {
		return map[string]any{}
	}
	return body
}

func (s *Server) handleTaskList(c *gin.Context) {
	tasks, err := s.engine.ListTasks(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		s.fail(c, err, "Failed to fetch dataset")
		return
	}
	writeJSON(c, http.StatusOK, task.PresentAll(tasks))
}

func (s *Server) handleTaskCreate(c *gin.Context) {
	body := bindObject(c)

	opts := history.CreateOptions{InitialVersion: truthy(body["createInitialVersion"])}
	for _, key := range []string{"label", "initialLabel"} {
		if l, ok := body[key].(string); ok && strings.TrimSpace(l) != "" {
			l = strings.TrimSpace(l)
			opts.Label = &l
			break
		}
	}

	t, err := s.engine.CreateTask(c.Request.Context(), body, opts)
	if err != nil {
		s.fail(c, err, "Failed to create dataset item")
		return
	}
	writeJSON(c, http.StatusOK, task.Present(t))
}

func (s *Server) handleBulkCreate(c *gin.Context) {
	var req struct {
		Items []map[string]any `json:"items"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Items) == 0 {
		writeJSON(c, http.StatusOK, []task.View{})
		return
	}
	tasks, err := s.engine.BulkCreate(c.Request.Context(), req.Items)
	if err != nil {
		s.fail(c, err, "Failed to bulk create dataset items")
		return
	}
	writeJSON(c, http.StatusOK, task.PresentAll(tasks))
}

func (s *Server) handleTaskGet(c *gin.Context) {
	t, err := s.engine.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err, "Failed to fetch dataset item")
		return
	}
	writeJSON(c, http.StatusOK, task.Present(t))
}

func (s *Server) handleTaskUpdate(c *gin.Context) {
	t, err := s.engine.UpdateTask(c.Request.Context(), c.Param("id"), bindObject(c))
	if err != nil {
		s.fail(c, err, "Failed to update dataset item")
		return
	}
	writeJSON(c, http.StatusOK, task.Present(t))
}

func (s *Server) handleTaskDelete(c *gin.Context) {
	if err := s.engine.DeleteTask(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err, "Failed to delete dataset item")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true})
}

// handleStampPaths resolves the lineage path of each requested task.
func (s *Server) handleStampPaths(c *gin.Context) {
	var ids []string
	if raw, ok := bindObject(c)["ids"].([]any); ok {
		for _, v := range raw {
			if id := idString(v); id != "" {
				ids = append(ids, id)
			}
		}
	}
	paths := make(map[string]string, len(ids))
	segments := make(map[string][][]string, len(ids))
	if len(ids) == 0 {
		writeJSON(c, http.StatusOK, gin.H{"paths": paths, "segments": segments})
		return
	}

	lineages, err := s.engine.BatchLineage(c.Request.Context(), ids)
	if err != nil {
		s.fail(c, err, "Failed to compute stamp paths")
		return
	}
	for _, id := range ids {
		l, ok := lineages[id]
		if !ok {
			l = version.Lineage{Path: version.NoLineage}
		}
		if l.Segments == nil {
			l.Segments = [][]string{}
		}
		paths[id] = l.Path
		segments[id] = l.Segments
	}
	writeJSON(c, http.StatusOK, gin.H{"paths": paths, "segments": segments})
}

func idString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if !t {
			return ""
		}
	case float64:
		if t == 0 {
			return ""
		}
	}
	return fmt.Sprint(v)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	}
	return true
}
