package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"taskvault/internal/runner"
	"taskvault/internal/topics"
)

func (s *Server) handleRunTests(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, gin.H{"success": false, "error": "Invalid JSON in request body."})
		return
	}
	var req map[string]any
	if json.Unmarshal(body, &req) != nil || req == nil || !hasKeys(req, "solution", "tests") {
		writeJSON(c, http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Request body must be valid JSON and include 'solution' and 'tests' keys.",
		})
		return
	}
	if s.runner == nil {
		writeJSON(c, http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Backend API endpoint is not configured on the server.",
		})
		return
	}

	s.log.Info("proxying test run", "rid", requestIDOf(c))
	resp, err := s.runner.Run(c.Request.Context(), body)
	switch {
	case errors.Is(err, runner.ErrTimeout):
		s.log.Error("test runner timeout", "rid", requestIDOf(c))
		writeJSON(c, http.StatusGatewayTimeout, gin.H{
			"success": false,
			"error":   "The request to the test runner service timed out.",
			"timeout": true,
		})
	case err != nil:
		s.log.Error("test runner failed", "error", err, "rid", requestIDOf(c))
		writeJSON(c, http.StatusBadGateway, gin.H{
			"success": false,
			"error":   "Failed to communicate with the test runner service: " + err.Error(),
		})
	default:
		c.Data(resp.Status, resp.ContentType, resp.Body)
	}
}

func (s *Server) handleSuggestTopics(c *gin.Context) {
	var req map[string]any
	if !strings.HasPrefix(c.ContentType(), "application/json") ||
		json.NewDecoder(c.Request.Body).Decode(&req) != nil || req == nil {
		writeError(c, http.StatusBadRequest, "Request must be JSON")
		return
	}
	problem, _ := req["prompt"].(string)
	solution, _ := req["solution"].(string)
	if problem == "" || solution == "" {
		writeError(c, http.StatusBadRequest, "Missing 'prompt' or 'solution' in request body")
		return
	}
	if s.topics == nil {
		writeError(c, http.StatusInternalServerError, "Failed to generate or parse topics from the model.")
		return
	}

	suggested, err := s.topics.Suggest(c.Request.Context(), problem, solution)
	switch {
	case errors.Is(err, topics.ErrTimeout):
		s.log.Error("topic model timeout", "rid", requestIDOf(c))
		writeJSON(c, http.StatusGatewayTimeout, gin.H{
			"error":   "The request to the topic model timed out.",
			"timeout": true,
		})
	case err != nil:
		s.log.Error("suggest topics", "error", err, "rid", requestIDOf(c))
		writeError(c, http.StatusInternalServerError, "Failed to generate or parse topics from the model.")
	default:
		writeJSON(c, http.StatusOK, gin.H{"topics": suggested})
	}
}

func hasKeys(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			return false
		}
	}
	return true
}
