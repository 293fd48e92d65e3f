package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

// chatEvent holds data for a chat SSE event.
type chatEvent struct {
	ID     string `json:"id"`
	Author string `json:"author"`
	Text   string `json:"text"`
	File   string `json:"file,omitempty"`
	Stamp  string `json:"stamp"`
	Count  int    `json:"count"`
}

// statusEvent holds data for a status SSE event.
type statusEvent struct {
	Stamp  string `json:"stamp"`
	Status string `json:"status"`
	Volume string `json:"volume,omitempty"`
	Note   string `json:"note,omitempty"`
}

// handleSSE streams new chat messages and status entries by polling the
// provider state.
func handleSSE(p Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		ctx := c.Request.Context()

		// Baseline on the current state so only NEW items alert.
		seen := map[string]bool{}
		seenStatus := map[string]bool{}
		if state, err := p.State(ctx); err == nil {
			for _, m := range state.Messages {
				seen[m.ID] = true
			}
			for _, h := range state.History {
				seenStatus[h.Stamp+"\x00"+h.Status] = true
			}
		}

		ticker := time.NewTicker(3 * time.Second)
		heartbeat := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				state, err := p.State(ctx)
				if err != nil {
					continue
				}
				for _, m := range state.Messages {
					if seen[m.ID] {
						continue
					}
					seen[m.ID] = true
					writeSSE(c.Writer, "chat", chatEvent{
						ID:     m.ID,
						Author: string(m.Author),
						Text:   m.Text,
						File:   m.FileName,
						Stamp:  m.RawStamp,
						Count:  len(state.Messages),
					})
				}
				for _, h := range state.History {
					key := h.Stamp + "\x00" + h.Status
					if seenStatus[key] {
						continue
					}
					seenStatus[key] = true
					writeSSE(c.Writer, "status", statusEvent{
						Stamp:  h.Stamp,
						Status: h.Status,
						Volume: h.Volume,
						Note:   h.Note,
					})
				}
				c.Writer.Flush()
			}
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
