// Package events streams file change events to clients over server-sent events
package events

import (
	"io"
	"net/http"
	"time"

	"bitwise74/fileshare-api/internal"
	"bitwise74/fileshare-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

const keepAliveInterval = 30 * time.Second

// Stream sends every event the caller may see until the client goes away.
// Events about private files only reach their owner.
func Stream(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	userID := middleware.IdentityOf(c).UserID

	if d.Hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":     "Events are not available",
			"requestID": requestID,
		})
		return
	}

	events, unsubscribe := d.Hub.Subscribe()
	defer unsubscribe()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case e, ok := <-events:
			if !ok {
				return false
			}

			if e.VisibleTo(userID) {
				c.SSEvent(e.Kind, e)
			}
			return true
		case t := <-keepAlive.C:
			c.SSEvent("ping", t.Unix())
			return true
		}
	})
}
