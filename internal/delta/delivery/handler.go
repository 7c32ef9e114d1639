package delivery

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/coder92330/nylas-mail/internal/delta"
)

const keepaliveInterval = 1 * time.Second

type DeltaHandler struct {
	feed   *delta.Feed
	logger *logrus.Logger
}

func NewDeltaHandler(feed *delta.Feed, logger *logrus.Logger) *DeltaHandler {
	return &DeltaHandler{feed: feed, logger: logger}
}

// LatestCursor returns the cursor for "only changes after now".
func (h *DeltaHandler) LatestCursor(c *gin.Context) {
	accountID := c.GetString("accountID")
	cursor, err := h.feed.LatestCursor(accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cursor": cursor})
}

// Stream serves the delta feed as newline-delimited JSON. Replays from the
// since query parameter (cursor accepted as an alias), then follows live
// commits; a bare newline every second keeps intermediaries from timing the
// connection out.
func (h *DeltaHandler) Stream(c *gin.Context) {
	accountID := c.GetString("accountID")

	raw := c.Query("since")
	if raw == "" {
		raw = c.Query("cursor")
	}
	cursor, err := delta.ParseCursor(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	c.Writer.Header().Set("Content-Type", "application/x-ndjson")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := c.Request.Context()
	batches := make(chan []delta.Delta, 4)
	streamErr := make(chan error, 1)
	go func() {
		streamErr <- h.feed.Stream(ctx, accountID, cursor, batches)
	}()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-streamErr:
			if err != nil && ctx.Err() == nil {
				h.logger.WithField("account_id", accountID).WithError(err).Error("Delta stream failed")
			}
			return
		case batch := <-batches:
			for _, d := range batch {
				line, err := json.Marshal(d)
				if err != nil {
					h.logger.WithError(err).Error("Could not marshal delta")
					continue
				}
				if _, err := c.Writer.Write(append(line, '\n')); err != nil {
					return
				}
			}
			flusher.Flush()
		case <-keepalive.C:
			if _, err := c.Writer.Write([]byte("\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
