package server

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/heizoel/internal/events"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	streamEventReady     = "ready"
	streamEventHeartbeat = "heartbeat"
)

// handleEventStream relays row-level changes to the admin view as server-sent events. The
// event name is the topic; the data is the change itself.
func (h *httpHandler) handleEventStream(c *gin.Context) {
	topics, err := events.ParseTopics(c.Query("topics"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_topics"})
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.events.Subscribe(ctx, topics...)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	names := make([]string, 0, len(topics))
	for _, topic := range topics {
		names = append(names, string(topic))
	}
	c.SSEvent(streamEventReady, gin.H{"topics": names})
	c.Writer.Flush()
	h.logger.Debug("event stream opened", zap.String("account_id", c.GetString(accountIDContextKey)), zap.String("topics", strings.Join(names, ",")))

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case change, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(string(change.Topic), change)
			return true
		case at := <-heartbeat.C:
			c.SSEvent(streamEventHeartbeat, gin.H{"at": at.UTC()})
			return true
		}
	})
	h.logger.Debug("event stream closed", zap.String("account_id", c.GetString(accountIDContextKey)))
}
