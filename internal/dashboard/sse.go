package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

// handleStream pushes the current state once, then every notification for
// the workspace as it happens, with periodic heartbeats.
func (s *Server) handleStream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	notes, cancel := s.hub.Subscribe(s.workspaceID)
	defer cancel()

	if state, err := s.loadState(ctx); err == nil {
		writeSSE(c.Writer, "state", state)
	} else {
		writeSSE(c.Writer, "error", gin.H{"error": err.Error()})
	}
	c.Writer.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", gin.H{"timestamp": s.now().UTC().Format(time.RFC3339)})
			c.Writer.Flush()
		case n, ok := <-notes:
			if !ok {
				return
			}
			writeSSE(c.Writer, n.Kind, n)
			c.Writer.Flush()
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
