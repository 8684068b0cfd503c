package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"taskvault/pkg/journal"
)

const keepAliveInterval = 15 * time.Second

func (s *Server) handleTaskJournal(c *gin.Context) {
	if s.journal == nil {
		writeJSON(c, http.StatusOK, []journal.Entry{})
		return
	}
	entries, err := s.journal.ByTask(c.Request.Context(), c.Param("id"), queryInt(c, "limit", 0))
	if err != nil {
		s.fail(c, err, "Failed to fetch journal")
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(c, http.StatusOK, entries)
}

// handleJournalStream pushes new journal entries as server-sent events,
// for one task when ?task= is given and for all tasks otherwise.
func (s *Server) handleJournalStream(c *gin.Context) {
	if s.journal == nil {
		writeError(c, http.StatusServiceUnavailable, "journal is not enabled")
		return
	}

	ch := s.journal.Subscribe(c.Query("task"))
	defer s.journal.Unsubscribe(ch)

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ctx := c.Request.Context()
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			w.Flush()
		case e := <-ch:
			data, err := json.Marshal(e)
			if err != nil {
				s.log.Warn("SSE marshal", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Kind, data); err != nil {
				return
			}
			w.Flush()
		}
	}
}
